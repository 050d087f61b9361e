// Package toposort turns a resolved dagbuild.Arena DAG into an ordered
// vector of DagNodes, in one of two styles: a classical DFS sort, or a
// locality-biased "smart" sort that reads like a human-authored script.
package toposort

import (
	"github.com/objectplan/objectplan/internal/core"
	"github.com/objectplan/objectplan/internal/dagbuild"
)

// status tracks simple sort's own three-state walk; it is independent of a
// DagNode's selector-phase Status, so a DagNode already left at VisitedOnce
// by the selector starts simple sort as unvisited.
type status int

const (
	unvisited status = iota
	visiting
	visited
)

// Simple runs a classical DFS post-order topological sort over every node
// in the arena. Re-entering a node already in the visiting state means the
// selector failed to eliminate a cycle, which is fatal here.
func Simple(a *dagbuild.Arena) ([]*dagbuild.DagNode, error) {
	nodes := a.All()
	state := make(map[dagbuild.NodeKey]status, len(nodes))
	var order []*dagbuild.DagNode

	var visit func(n *dagbuild.DagNode) error
	visit = func(n *dagbuild.DagNode) error {
		switch state[n.Key] {
		case visited:
			return nil
		case visiting:
			return &core.UnresolvedCycleError{Path: []string{string(n.Key)}}
		}
		state[n.Key] = visiting
		for _, dep := range targetsOf(n) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[n.Key] = visited
		order = append(order, n)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n); err != nil {
			return nil, err
		}
	}

	if len(order) != len(nodes) {
		return nil, unsortedRemainder(nodes, order)
	}
	return order, nil
}

// targetsOf returns the resolved dependency targets of n: every DepSet's
// Actual if set, otherwise (an is_set DepSet, never collapsed) every
// candidate. Any other DepSet without an Actual (an is_optional set that
// resolved to "no edge") contributes nothing.
func targetsOf(n *dagbuild.DagNode) []*dagbuild.DagNode {
	var out []*dagbuild.DagNode
	for _, ds := range n.Deps {
		if ds.Actual != nil {
			out = append(out, ds.Actual)
			continue
		}
		if ds.IsSet {
			out = append(out, ds.Candidates...)
		}
	}
	return out
}

func unsortedRemainder(all, sorted []*dagbuild.DagNode) error {
	done := make(map[dagbuild.NodeKey]bool, len(sorted))
	for _, n := range sorted {
		done[n.Key] = true
	}
	var remaining []string
	for _, n := range all {
		if !done[n.Key] {
			remaining = append(remaining, string(n.Key))
		}
	}
	return &core.UnsortedRemainderError{Remaining: remaining}
}

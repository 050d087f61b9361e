// Package selector converts a dagbuild.Arena DAG-candidate — which may still
// have DepSets with multiple alternatives and may still contain cycles —
// into a true DAG by picking one actual target per DepSet and, where
// necessary, introducing synthetic breaker nodes to cut a cycle.
package selector

import (
	"fmt"

	"github.com/objectplan/objectplan/internal/core"
	"github.com/objectplan/objectplan/internal/dagbuild"
)

// Resolve runs dagify over every node in the arena, then populates
// Dependents (reverse edges) across the whole arena for the topological
// sorter's smart-sort pass.
//
// A node whose dagify call exits via a propagated cycle is left in the
// Visiting status with its DepSets unresolved: the cycle may still be
// cuttable once a node visited *later* in this pass spawns a breaker (the
// breaker only becomes visible to a re-attempt, never to the in-flight
// call that first observed the cycle). So Resolve retries every node that
// failed this way, resetting it to Unvisited, until a full pass makes no
// further progress.
func Resolve(a *dagbuild.Arena) error {
	s := &selector{arena: a}
	pending := a.All()
	for len(pending) > 0 {
		var remaining []*dagbuild.DagNode
		var lastErr error
		progressed := false
		for _, n := range pending {
			if n.Status == dagbuild.VisitedOnce || n.Status == dagbuild.Visited {
				continue
			}
			n.Status = dagbuild.Unvisited
			if _, err := s.dagify(n, nil); err != nil {
				var cyc *cyclic
				if !asCyclic(err, &cyc) {
					return err
				}
				remaining = append(remaining, n)
				lastErr = &core.UnresolvedCycleError{Path: keysToStrings(cyc.path)}
				continue
			}
			progressed = true
		}
		if len(remaining) == 0 {
			break
		}
		if !progressed {
			return lastErr
		}
		pending = remaining
	}
	wireDependents(a)
	return nil
}

type selector struct {
	arena *dagbuild.Arena
}

// cyclic is the internal sentinel dagify propagates up the call stack;
// path holds the dagify trail (outermost call first) ending at the
// re-entered node, followed by the key of each node the cycle unwound
// through.
type cyclic struct {
	path []dagbuild.NodeKey
}

func (c *cyclic) Error() string { return fmt.Sprintf("cyclic path: %v", c.path) }

// dagify resolves N's DepSets to concrete actuals, recursing into each
// alternative. It returns the node that should stand in for N in the
// caller's DepSet: ordinarily N itself, or N's breaker clone if resolving
// one of N's own DepSets had to absorb a cycle by breaking it.
func (s *selector) dagify(n *dagbuild.DagNode, trail []dagbuild.NodeKey) (*dagbuild.DagNode, error) {
	if n.Status == dagbuild.Visiting {
		return nil, &cyclic{path: append(append([]dagbuild.NodeKey{}, trail...), n.Key)}
	}
	if n.Status == dagbuild.VisitedOnce || n.Status == dagbuild.Visited {
		if n.Breaker != nil {
			return n.Breaker, nil
		}
		return n, nil
	}
	n.Status = dagbuild.Visiting
	nextTrail := append(append([]dagbuild.NodeKey{}, trail...), n.Key)

	for _, ds := range n.Deps {
		if ds.Actual != nil || ds.IsSet {
			continue
		}
		if err := s.resolveDepSet(n, ds, nextTrail); err != nil {
			return nil, err
		}
	}
	// is_set DepSets run last: every member must independently resolve
	// (they are unioned, not collapsed to one actual).
	for _, ds := range n.Deps {
		if !ds.IsSet {
			continue
		}
		for _, cand := range ds.Candidates {
			if _, err := s.dagify(cand, nextTrail); err != nil {
				var cyc *cyclic
				if asCyclic(err, &cyc) {
					return nil, &cyclic{path: append(cyc.path, n.Key)}
				}
				return nil, err
			}
		}
	}

	n.Status = dagbuild.VisitedOnce
	if n.Breaker != nil {
		return n.Breaker, nil
	}
	return n, nil
}

// resolveDepSet resolves one ordinary (non-is_set) DepSet belonging to n: it
// picks the first alternative that resolves without propagating a cycle back
// to n. If every alternative cycles, n's cycle_breaker_type (if set) absorbs
// the cycle by spawning (or reusing) a breaker clone of n that inherits
// every dependency except the one being broken; n gains a hard dependency on
// the breaker. Without a cycle_breaker_type the cycle re-raises to n's
// caller. An is_optional DepSet that exhausts every alternative without
// success resolves to "no edge" rather than raising either way.
func (s *selector) resolveDepSet(n *dagbuild.DagNode, ds *dagbuild.DepSet, trail []dagbuild.NodeKey) error {
	var lastCyclic *cyclic
	for _, cand := range ds.Candidates {
		replacement, err := s.dagify(cand, trail)
		if err == nil {
			ds.Actual = replacement
			return nil
		}
		var cyc *cyclic
		if !asCyclic(err, &cyc) {
			return err
		}
		lastCyclic = cyc
	}

	if lastCyclic == nil {
		// No candidates at all: only possible for an already-empty
		// optional DepSet (dagbuild left it uncollapsed for this reason).
		return nil
	}

	if n.Source.CycleBreakerType != "" {
		if n.Breaker == nil {
			n.Breaker = spawnBreaker(s.arena, n, ds)
		}
		ds.Actual = n.Breaker
		return nil
	}

	if ds.IsOptional {
		return nil
	}

	return &cyclic{path: append(append([]dagbuild.NodeKey{}, lastCyclic.path...), n.Key)}
}

// spawnBreaker clones n's source object under its cycle_breaker_type and
// registers the clone in the arena under build type dagbuild.Breaker. The
// breaker inherits every DepSet n already had at spawn time except broken —
// the one being broken, whose edge closed the cycle — since the broken
// DepSet's Actual is about to be repointed at the breaker itself, which
// would otherwise leave the breaker depending on itself.
func spawnBreaker(a *dagbuild.Arena, n *dagbuild.DagNode, broken *dagbuild.DepSet) *dagbuild.DagNode {
	clone := n.Source.Clone()
	clone.Type = n.Source.CycleBreakerType
	clone.CycleBreakerType = ""
	breaker := &dagbuild.DagNode{
		Key:        breakerKey(n),
		BuildType:  dagbuild.Breaker,
		Source:     clone,
		BreakerFor: n,
	}
	for _, ds := range n.Deps {
		if ds == broken {
			continue
		}
		breaker.Deps = append(breaker.Deps, ds)
	}
	a.Add(breaker)
	n.Deps = append(n.Deps, &dagbuild.DepSet{Candidates: []*dagbuild.DagNode{breaker}, Actual: breaker})
	return breaker
}

func breakerKey(n *dagbuild.DagNode) dagbuild.NodeKey {
	return dagbuild.NodeKey(fmt.Sprintf("breaker.%s", n.Source.FQN))
}

// wireDependents populates Dependents (reverse edges) across the whole
// arena, consumed by internal/toposort's smart sort.
func wireDependents(a *dagbuild.Arena) {
	for _, n := range a.All() {
		for _, ds := range n.Deps {
			targets := ds.Candidates
			if ds.Actual != nil {
				targets = []*dagbuild.DagNode{ds.Actual}
			} else if !ds.IsSet {
				// An is_optional DepSet that resolved to "no edge".
				targets = nil
			}
			for _, t := range targets {
				t.Dependents = append(t.Dependents, n)
			}
		}
	}
}

func keysToStrings(keys []dagbuild.NodeKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// asCyclic is a tiny concrete-type assertion helper; the cyclic sentinel
// never crosses a package boundary (Resolve converts it to
// core.UnresolvedCycleError before returning), so a plain type assertion
// suffices in place of errors.As.
func asCyclic(err error, target **cyclic) bool {
	c, ok := err.(*cyclic)
	if !ok {
		return false
	}
	*target = c
	return true
}

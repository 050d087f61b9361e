package toposort

import (
	"sort"

	"github.com/objectplan/objectplan/internal/dagbuild"
)

// Smart produces the same topological-order guarantee as Simple but biases
// the choice of *which* buildable node to emit next toward staying in the
// current subtree, so the output reads like a human-authored script instead
// of a breadth-first dump.
//
// It builds a sorted tree of DagNodes (every node linked into a ring of
// siblings under its dagbuild.DagNode.Parent, in FQN order), tracks a
// buildable_kids counter per node (and for the virtual root, represented by
// a nil *dagbuild.DagNode key throughout this file), and walks a cursor
// through the tree by minimal displacement: descend into a buildable
// child's subtree if one exists, else scan siblings in ring order, else
// ascend to the parent and retry.
//
// Per the decision recorded for the sort's termination behaviour: if the
// cursor returns all the way to the root and no buildable descendant
// remains anywhere, the walk terminates (there is nothing left to find).
func Smart(a *dagbuild.Arena) ([]*dagbuild.DagNode, error) {
	nodes := a.All()
	t := newSortTree(nodes)

	var order []*dagbuild.DagNode
	cursor := (*dagbuild.DagNode)(nil) // nil represents the virtual root
	for len(order) < len(nodes) {
		next := t.findNext(cursor)
		if next == nil {
			break
		}
		order = append(order, next)
		t.selectNode(next)
		cursor = next
	}

	if len(order) != len(nodes) {
		return nil, unsortedRemainder(nodes, order)
	}
	return order, nil
}

type sortTree struct {
	children      map[*dagbuild.DagNode][]*dagbuild.DagNode // nil key = root's children
	parent        map[*dagbuild.DagNode]*dagbuild.DagNode
	remaining     map[*dagbuild.DagNode]int
	targets       map[*dagbuild.DagNode][]*dagbuild.DagNode
	buildable     map[*dagbuild.DagNode]bool
	buildableKids map[*dagbuild.DagNode]int // nil key = root's count
}

func newSortTree(nodes []*dagbuild.DagNode) *sortTree {
	t := &sortTree{
		children:      map[*dagbuild.DagNode][]*dagbuild.DagNode{},
		parent:        map[*dagbuild.DagNode]*dagbuild.DagNode{},
		remaining:     map[*dagbuild.DagNode]int{},
		targets:       map[*dagbuild.DagNode][]*dagbuild.DagNode{},
		buildable:     map[*dagbuild.DagNode]bool{},
		buildableKids: map[*dagbuild.DagNode]int{},
	}
	for _, n := range nodes {
		t.parent[n] = n.Parent
		t.children[n.Parent] = append(t.children[n.Parent], n)
		uniq := dedupeTargets(targetsOf(n))
		t.targets[n] = uniq
		t.remaining[n] = len(uniq)
	}
	for p := range t.children {
		sort.Slice(t.children[p], func(i, j int) bool {
			return t.children[p][i].FQN() < t.children[p][j].FQN()
		})
	}
	for _, n := range nodes {
		if t.remaining[n] == 0 {
			t.markBuildable(n)
		}
	}
	return t
}

func dedupeTargets(in []*dagbuild.DagNode) []*dagbuild.DagNode {
	seen := map[*dagbuild.DagNode]bool{}
	var out []*dagbuild.DagNode
	for _, n := range in {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (t *sortTree) markBuildable(n *dagbuild.DagNode) {
	t.buildable[n] = true
	for p := t.parent[n]; ; p = t.parent[p] {
		t.buildableKids[p]++
		if p == nil {
			break
		}
	}
}

func (t *sortTree) unmarkBuildable(n *dagbuild.DagNode) {
	delete(t.buildable, n)
	for p := t.parent[n]; ; p = t.parent[p] {
		t.buildableKids[p]--
		if p == nil {
			break
		}
	}
}

// selectNode marks n selected: it stops being buildable, ancestor counters
// are decremented, and every dependent's remaining edge count drops — any
// dependent that reaches zero remaining becomes buildable.
func (t *sortTree) selectNode(n *dagbuild.DagNode) {
	t.unmarkBuildable(n)
	for _, dep := range n.Dependents {
		if t.remaining[dep] == 0 {
			continue
		}
		t.remaining[dep]--
		if t.remaining[dep] == 0 && !t.buildable[dep] {
			t.markBuildable(dep)
		}
	}
}

// findNext implements the minimal-displacement cursor walk from cursor
// (nil meaning the root).
func (t *sortTree) findNext(cursor *dagbuild.DagNode) *dagbuild.DagNode {
	if found := t.descend(cursor); found != nil {
		return found
	}
	node := cursor
	for {
		if found := t.scanSiblings(node); found != nil {
			return found
		}
		if node == nil {
			return nil
		}
		node = t.parent[node]
		if found := t.descend(node); found != nil {
			return found
		}
	}
}

// descend looks for a buildable node within node's own subtree, preferring
// node itself, then its buildable children (recursively).
func (t *sortTree) descend(node *dagbuild.DagNode) *dagbuild.DagNode {
	if node != nil && t.buildable[node] {
		return node
	}
	if t.buildableKids[node] == 0 {
		return nil
	}
	for _, kid := range t.children[node] {
		if t.buildable[kid] {
			return kid
		}
		if t.buildableKids[kid] > 0 {
			if found := t.descend(kid); found != nil {
				return found
			}
		}
	}
	return nil
}

// scanSiblings scans node's sibling ring, in order, starting just after
// node, for one that is itself buildable or has a buildable descendant.
func (t *sortTree) scanSiblings(node *dagbuild.DagNode) *dagbuild.DagNode {
	parent := t.parent[node]
	siblings := t.children[parent]
	if len(siblings) == 0 {
		return nil
	}
	start := 0
	for i, s := range siblings {
		if s == node {
			start = i
			break
		}
	}
	for i := 1; i <= len(siblings); i++ {
		s := siblings[(start+i)%len(siblings)]
		if s == node {
			continue
		}
		if t.buildable[s] {
			return s
		}
		if t.buildableKids[s] > 0 {
			if found := t.descend(s); found != nil {
				return found
			}
		}
	}
	return nil
}

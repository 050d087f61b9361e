package toposort

import (
	"testing"

	"github.com/objectplan/objectplan/internal/dagbuild"
	"github.com/objectplan/objectplan/internal/model"
)

func node(key, fqn string) *dagbuild.DagNode {
	return &dagbuild.DagNode{
		Key:       dagbuild.NodeKey(key),
		BuildType: dagbuild.Build,
		Source:    &model.DbObject{FQN: model.FQN(fqn)},
	}
}

// chain builds a->b->c (a depends on b, b depends on c) with Dependents
// wired the way internal/selector would leave them.
func chain() (a, b, c *dagbuild.DagNode) {
	a, b, c = node("build.a", "a"), node("build.b", "b"), node("build.c", "c")
	a.Deps = []*dagbuild.DepSet{{Actual: b}}
	b.Deps = []*dagbuild.DepSet{{Actual: c}}
	b.Dependents = []*dagbuild.DagNode{a}
	c.Dependents = []*dagbuild.DagNode{b}
	return a, b, c
}

func arenaOf(nodes ...*dagbuild.DagNode) *dagbuild.Arena {
	a := dagbuild.NewArena()
	for _, n := range nodes {
		a.Add(n)
	}
	return a
}

func indexOf(order []*dagbuild.DagNode, n *dagbuild.DagNode) int {
	for i, o := range order {
		if o == n {
			return i
		}
	}
	return -1
}

func TestSimpleSortOrdersDependenciesFirst(t *testing.T) {
	a, b, c := chain()
	order, err := Simple(arenaOf(a, b, c))
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("len(order) = %d, want 3", len(order))
	}
	if indexOf(order, c) > indexOf(order, b) || indexOf(order, b) > indexOf(order, a) {
		t.Fatalf("order = %v, want c before b before a", order)
	}
}

func TestSimpleSortDetectsCycle(t *testing.T) {
	a, b := node("build.a", "a"), node("build.b", "b")
	a.Deps = []*dagbuild.DepSet{{Actual: b}}
	b.Deps = []*dagbuild.DepSet{{Actual: a}}
	_, err := Simple(arenaOf(a, b))
	if err == nil {
		t.Fatalf("expected unresolved cycle error")
	}
}

func TestSmartSortOrdersDependenciesFirst(t *testing.T) {
	a, b, c := chain()
	order, err := Smart(arenaOf(a, b, c))
	if err != nil {
		t.Fatalf("Smart: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("len(order) = %d, want 3", len(order))
	}
	if indexOf(order, c) > indexOf(order, b) || indexOf(order, b) > indexOf(order, a) {
		t.Fatalf("order = %v, want c before b before a", order)
	}
}

func TestSmartSortStaysWithinSubtree(t *testing.T) {
	// Two independent sibling subtrees under an implicit root: schema1's
	// table depends on schema1 (its parent); schema2's table depends on
	// schema2. A locality-biased sort should finish schema1's subtree
	// before moving to schema2's, rather than interleaving breadth-first.
	s1 := node("exists.schema1", "schema1")
	s2 := node("exists.schema2", "schema2")
	t1 := node("build.schema1.t", "schema1.t")
	t2 := node("build.schema2.t", "schema2.t")
	t1.Parent = s1
	t2.Parent = s2
	t1.Deps = []*dagbuild.DepSet{{Actual: s1}}
	t2.Deps = []*dagbuild.DepSet{{Actual: s2}}
	s1.Dependents = []*dagbuild.DagNode{t1}
	s2.Dependents = []*dagbuild.DagNode{t2}

	order, err := Smart(arenaOf(s1, s2, t1, t2))
	if err != nil {
		t.Fatalf("Smart: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("len(order) = %d, want 4", len(order))
	}
	// Whichever schema is visited first, its table must follow immediately
	// (no interleaving with the other subtree).
	if order[0] == s1 {
		if order[1] != t1 {
			t.Fatalf("order = %v, want schema1's table right after schema1", order)
		}
	} else if order[0] == s2 {
		if order[1] != t2 {
			t.Fatalf("order = %v, want schema2's table right after schema2", order)
		}
	} else {
		t.Fatalf("order[0] = %v, want a schema node", order[0])
	}
}

func TestSmartSortUnsortedRemainderWhenCyclic(t *testing.T) {
	a, b := node("build.a", "a"), node("build.b", "b")
	a.Deps = []*dagbuild.DepSet{{Actual: b}}
	b.Deps = []*dagbuild.DepSet{{Actual: a}}
	a.Dependents = []*dagbuild.DagNode{b}
	b.Dependents = []*dagbuild.DagNode{a}
	_, err := Smart(arenaOf(a, b))
	if err == nil {
		t.Fatalf("expected unsorted remainder error")
	}
}

package selector

import (
	"testing"

	"github.com/objectplan/objectplan/internal/dagbuild"
	"github.com/objectplan/objectplan/internal/model"
)

func node(bt dagbuild.BuildType, fqn string, breakerType string) *dagbuild.DagNode {
	src := &model.DbObject{FQN: model.FQN(fqn), CycleBreakerType: breakerType}
	return &dagbuild.DagNode{Key: dagbuild.NodeKey(string(bt) + "." + fqn), BuildType: bt, Source: src}
}

func TestResolveSimpleChain(t *testing.T) {
	a := dagbuild.NewArena()
	x := node(dagbuild.Build, "x", "")
	y := node(dagbuild.Build, "y", "")
	x.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{y}}}
	a.Add(x)
	a.Add(y)

	if err := Resolve(a); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if x.Deps[0].Actual != y {
		t.Fatalf("x's dep did not resolve to y")
	}
	if len(y.Dependents) != 1 || y.Dependents[0] != x {
		t.Fatalf("y.Dependents = %v, want [x]", y.Dependents)
	}
}

func TestResolveCycleWithoutBreakerFails(t *testing.T) {
	a := dagbuild.NewArena()
	x := node(dagbuild.Build, "x", "")
	y := node(dagbuild.Build, "y", "")
	x.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{y}}}
	y.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{x}}}
	a.Add(x)
	a.Add(y)

	if err := Resolve(a); err == nil {
		t.Fatalf("expected unresolved cycle error")
	}
}

func TestResolveCycleWithBreakerSpawnsBreaker(t *testing.T) {
	a := dagbuild.NewArena()
	x := node(dagbuild.Build, "x", "function_stub")
	y := node(dagbuild.Build, "y", "")
	x.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{y}}}
	y.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{x}}}
	a.Add(x)
	a.Add(y)

	if err := Resolve(a); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if x.Breaker == nil {
		t.Fatalf("x did not spawn a breaker")
	}
	if y.Deps[0].Actual != x.Breaker {
		t.Fatalf("y's dep should resolve to x's breaker, got %v", y.Deps[0].Actual)
	}
}

func TestResolveOptionalDepSetExhaustsToNoEdge(t *testing.T) {
	a := dagbuild.NewArena()
	x := node(dagbuild.Build, "x", "")
	y := node(dagbuild.Build, "y", "")
	x.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{y}, IsOptional: true}}
	y.Deps = []*dagbuild.DepSet{{Candidates: []*dagbuild.DagNode{x}, IsOptional: true}}
	a.Add(x)
	a.Add(y)

	if err := Resolve(a); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

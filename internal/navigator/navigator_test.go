package navigator

import (
	"testing"

	"github.com/objectplan/objectplan/internal/dagbuild"
	"github.com/objectplan/objectplan/internal/model"
)

func TestDiffContextsMatchedChangeDepartsThenArrives(t *testing.T) {
	from := []model.ContextEntry{{Name: "search_path", Value: "a", Default: "public"}}
	to := []model.ContextEntry{{Name: "search_path", Value: "b", Default: "public"}}
	departs, arrives := diffContexts(from, to)
	if len(departs) != 1 || departs[0].Value != "a" {
		t.Fatalf("departs = %v", departs)
	}
	if len(arrives) != 1 || arrives[0].Value != "b" {
		t.Fatalf("arrives = %v", arrives)
	}
}

func TestDiffContextsDefaultValuesNeverEvent(t *testing.T) {
	from := []model.ContextEntry{{Name: "role", Value: "public", Default: "public"}}
	to := []model.ContextEntry{{Name: "role", Value: "public", Default: "public"}}
	departs, arrives := diffContexts(from, to)
	if len(departs) != 0 || len(arrives) != 0 {
		t.Fatalf("departs=%v arrives=%v, want none", departs, arrives)
	}
}

func TestDiffContextsUnmatchedToArrivesUnlessDefault(t *testing.T) {
	to := []model.ContextEntry{{Name: "role", Value: "alice", Default: "public"}}
	_, arrives := diffContexts(nil, to)
	if len(arrives) != 1 {
		t.Fatalf("arrives = %v, want one arrival", arrives)
	}
}

func TestDiffContextsUnmatchedFromDepartsUnlessDefault(t *testing.T) {
	from := []model.ContextEntry{{Name: "role", Value: "alice", Default: "public"}}
	departs, _ := diffContexts(from, nil)
	if len(departs) != 1 {
		t.Fatalf("departs = %v, want one departure", departs)
	}
}

func TestObjectPathNavigationSharesCommonAncestor(t *testing.T) {
	schema := &model.DbObject{FQN: "schema.s"}
	tableA := &model.DbObject{FQN: "table.a", ParentFQN: "schema.s"}
	tableB := &model.DbObject{FQN: "table.b", ParentFQN: "schema.s"}
	schema.Children = []*model.DbObject{tableA, tableB}
	tree, err := model.NewTree([]*model.DbObject{schema})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	departs := objectDepartPath(tree, tableA, tableB)
	arrives := objectArrivePath(tree, tableA, tableB)
	// Common ancestor is schema.s, so moving between two of its direct
	// children never departs or arrives at the schema itself; the
	// destination child still gets its own arrival entry.
	if len(departs) != 0 {
		t.Fatalf("departs = %v, want none (shared parent)", departs)
	}
	if len(arrives) != 1 || arrives[0] != tableB {
		t.Fatalf("arrives = %v, want [tableB]", arrives)
	}
}

func TestNavigateEmitsFinalCloseTransition(t *testing.T) {
	obj := &model.DbObject{FQN: "table.x", Visit: true}
	tree, err := model.NewTree([]*model.DbObject{obj})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	n := &dagbuild.DagNode{BuildType: dagbuild.Build, Source: obj}
	steps := Navigate(tree, []*dagbuild.DagNode{n})
	if len(steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2 (one per node, one closing)", len(steps))
	}
	if steps[1].Node != nil {
		t.Fatalf("closing step should carry no DagNode")
	}
}

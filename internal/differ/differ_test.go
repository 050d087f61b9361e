package differ

import (
	"testing"

	"github.com/objectplan/objectplan/internal/model"
	"github.com/objectplan/objectplan/internal/ruleset"
)

func obj(fqn, typ string, attrs map[string]string) *model.DbObject {
	return &model.DbObject{
		FQN:          model.FQN(fqn),
		Type:         typ,
		Attributes:   attrs,
		Contents:     &model.ContentNode{Attributes: attrs},
		Dependencies: &model.DependencyBlock{},
	}
}

func mustTree(t *testing.T, roots []*model.DbObject) *model.Tree {
	t.Helper()
	tr, err := model.NewTree(roots)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tr
}

func TestDiffClassifiesNewGoneSame(t *testing.T) {
	before := mustTree(t, []*model.DbObject{
		obj("t.kept", "table", map[string]string{"owner": "alice"}),
		obj("t.dropped", "table", map[string]string{"owner": "alice"}),
	})
	after := mustTree(t, []*model.DbObject{
		obj("t.kept", "table", map[string]string{"owner": "alice"}),
		obj("t.added", "table", map[string]string{"owner": "bob"}),
	})

	res, err := Diff(before, after, Options{})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	classes := map[model.FQN]model.DiffClass{}
	for _, o := range res.Merged.All() {
		classes[o.FQN] = o.Diff
	}
	if classes["t.kept"] != model.ClassSame {
		t.Errorf("t.kept = %v, want same", classes["t.kept"])
	}
	if classes["t.dropped"] != model.ClassGone {
		t.Errorf("t.dropped = %v, want gone", classes["t.dropped"])
	}
	if classes["t.added"] != model.ClassNew {
		t.Errorf("t.added = %v, want new", classes["t.added"])
	}
}

func TestDiffAttributeChangeIsClassDiff(t *testing.T) {
	before := mustTree(t, []*model.DbObject{obj("t.x", "table", map[string]string{"owner": "alice"})})
	after := mustTree(t, []*model.DbObject{obj("t.x", "table", map[string]string{"owner": "bob"})})

	res, err := Diff(before, after, Options{})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	got, _ := res.Merged.ByFQN("t.x")
	if got.Diff != model.ClassDiff {
		t.Fatalf("Diff = %v, want diff", got.Diff)
	}
}

func TestDiffRebuildCheckForcesRebuild(t *testing.T) {
	rules := &ruleset.RuleSet{Types: map[string]*ruleset.TypeRule{
		"column": {Type: "column", Checks: []ruleset.Check{
			&ruleset.AttributeCheck{Name: "datatype", Rebuild: true},
		}},
	}}
	before := mustTree(t, []*model.DbObject{obj("c.x", "column", map[string]string{"datatype": "int"})})
	after := mustTree(t, []*model.DbObject{obj("c.x", "column", map[string]string{"datatype": "text"})})

	res, err := Diff(before, after, Options{Rules: rules})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	got, _ := res.Merged.ByFQN("c.x")
	if got.Diff != model.ClassRebuild {
		t.Fatalf("Diff = %v, want rebuild", got.Diff)
	}
}

func TestDiffFailCheckRaisesRuleViolation(t *testing.T) {
	rules := &ruleset.RuleSet{Types: map[string]*ruleset.TypeRule{
		"view": {Type: "view", Checks: []ruleset.Check{
			&ruleset.AttributeCheck{Name: "definition", Fail: true, Msg: "cannot diff view definitions"},
		}},
	}}
	before := mustTree(t, []*model.DbObject{obj("v.x", "view", map[string]string{"definition": "select 1"})})
	after := mustTree(t, []*model.DbObject{obj("v.x", "view", map[string]string{"definition": "select 2"})})

	_, err := Diff(before, after, Options{Rules: rules})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
}

func TestDiffPromotesRebuildWhenDependencyGone(t *testing.T) {
	before := mustTree(t, []*model.DbObject{
		obj("t.gone", "table", map[string]string{}),
		obj("v.x", "view", map[string]string{}),
	})
	// The dependency must be declared on the after-side object: diffOne
	// clones after's Dependencies for a matched pair, not before's.
	dependent := obj("v.x", "view", map[string]string{})
	dependent.Dependencies = &model.DependencyBlock{
		Forwards: []model.DepSet{{Deps: []model.Dep{{FQN: "t.gone"}}}},
	}
	after := mustTree(t, []*model.DbObject{dependent})

	res, err := Diff(before, after, Options{})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	got, _ := res.Merged.ByFQN("v.x")
	if got.Diff != model.ClassRebuild {
		t.Fatalf("Diff = %v, want rebuild (promoted by gone dependency)", got.Diff)
	}
}

func TestDiffPromotesRebuildAcrossHardDependencyOnRebuiltTarget(t *testing.T) {
	// table.s.t flips an attribute marked Rebuild:true, so it classifies
	// ClassRebuild on its own. view.s.v has a hard (non-soft) dependency on
	// it but is otherwise unchanged; it must cascade to ClassRebuild too.
	rules := &ruleset.RuleSet{Types: map[string]*ruleset.TypeRule{
		"table": {Type: "table", Checks: []ruleset.Check{
			&ruleset.AttributeCheck{Name: "type", Rebuild: true},
		}},
	}}

	dependent := obj("v.s.v", "view", map[string]string{})
	dependent.Dependencies = &model.DependencyBlock{
		Forwards: []model.DepSet{{Deps: []model.Dep{{FQN: "t.s.t"}}}},
	}
	before := mustTree(t, []*model.DbObject{
		obj("t.s.t", "table", map[string]string{"type": "int"}),
		dependent,
	})

	dependentAfter := obj("v.s.v", "view", map[string]string{})
	dependentAfter.Dependencies = &model.DependencyBlock{
		Forwards: []model.DepSet{{Deps: []model.Dep{{FQN: "t.s.t"}}}},
	}
	after := mustTree(t, []*model.DbObject{
		obj("t.s.t", "table", map[string]string{"type": "text"}),
		dependentAfter,
	})

	res, err := Diff(before, after, Options{Rules: rules})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	table, _ := res.Merged.ByFQN("t.s.t")
	if table.Diff != model.ClassRebuild {
		t.Fatalf("t.s.t Diff = %v, want rebuild", table.Diff)
	}
	view, _ := res.Merged.ByFQN("v.s.v")
	if view.Diff != model.ClassRebuild {
		t.Fatalf("v.s.v Diff = %v, want rebuild (promoted by hard dependency on rebuilt table)", view.Diff)
	}
}

func TestDiffDuplicateKeyIsError(t *testing.T) {
	before := mustTree(t, []*model.DbObject{
		obj("t.a", "table", map[string]string{}),
	})
	// Force a duplicate match-key collision: two siblings of the same type
	// whose KeyAttr resolves to the same value.
	dup1 := obj("t.b", "table", map[string]string{})
	dup1.KeyAttr = "k"
	dup1.Attributes["k"] = "same"
	dup2 := obj("t.c", "table", map[string]string{})
	dup2.KeyAttr = "k"
	dup2.Attributes["k"] = "same"

	_, err := Diff(before, mustTree(t, []*model.DbObject{dup1, dup2}), Options{})
	if err == nil {
		t.Fatalf("expected duplicate identity error")
	}
}

func TestDiffSynthesizesBackwardsFromForwards(t *testing.T) {
	view := obj("v.x", "view", map[string]string{})
	view.Dependencies.Forwards = []model.DepSet{{Deps: []model.Dep{{FQN: "t.x"}}}}
	table := obj("t.x", "table", map[string]string{})

	before := mustTree(t, []*model.DbObject{table, view})
	after := mustTree(t, []*model.DbObject{
		obj("t.x", "table", map[string]string{}),
		func() *model.DbObject {
			v := obj("v.x", "view", map[string]string{})
			v.Dependencies.Forwards = []model.DepSet{{Deps: []model.Dep{{FQN: "t.x"}}}}
			return v
		}(),
	})

	res, err := Diff(before, after, Options{})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	table2, _ := res.Merged.ByFQN("t.x")
	if len(table2.Dependencies.Backwards) != 1 {
		t.Fatalf("t.x backwards = %+v, want one synthesized edge from v.x", table2.Dependencies.Backwards)
	}
	back := table2.Dependencies.Backwards[0].Deps[0]
	if back.FQN != "v.x" {
		t.Fatalf("backwards edge = %+v, want fqn v.x", back)
	}
}

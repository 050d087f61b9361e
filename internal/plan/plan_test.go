package plan

import (
	"encoding/json"
	"testing"

	"github.com/objectplan/objectplan/internal/config"
	"github.com/objectplan/objectplan/internal/model"
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

func TestGenerateOrdersBuildBeforeDependent(t *testing.T) {
	before := mustTree(t, nil)

	newSchema := obj("s", "schema", map[string]string{})
	newTable := obj("s.t", "table", map[string]string{})
	newTable.ParentFQN = "s"
	after := mustTree(t, []*model.DbObject{newSchema, newTable})

	p, err := Generate(before, after, nil, config.New())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !p.HasAnyChanges() {
		t.Fatalf("expected changes")
	}

	var schemaIdx, tableIdx = -1, -1
	for i, step := range p.Steps {
		if step.Action != "build" {
			continue
		}
		switch step.FQN {
		case "s":
			schemaIdx = i
		case "s.t":
			tableIdx = i
		}
	}
	if schemaIdx == -1 || tableIdx == -1 {
		t.Fatalf("missing steps: %+v", p.Steps)
	}
	if tableIdx < schemaIdx {
		t.Fatalf("table built at %d before its schema at %d", tableIdx, schemaIdx)
	}
}

func TestGenerateNoChangesReportsEmptyPlan(t *testing.T) {
	tree := mustTree(t, []*model.DbObject{obj("t.x", "table", map[string]string{"owner": "alice"})})
	p, err := Generate(tree, mustTree(t, []*model.DbObject{obj("t.x", "table", map[string]string{"owner": "alice"})}), nil, config.New())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if p.HasAnyChanges() {
		t.Fatalf("expected no changes, got %+v", p.Steps)
	}
	if got := p.HumanColored(false); got != "No changes detected.\n" {
		t.Fatalf("HumanColored = %q", got)
	}
}

func TestGenerateRoundTripsThroughJSON(t *testing.T) {
	before := mustTree(t, []*model.DbObject{obj("t.x", "table", map[string]string{})})
	after := mustTree(t, []*model.DbObject{
		obj("t.x", "table", map[string]string{}),
		obj("t.y", "table", map[string]string{}),
	})
	p, err := Generate(before, after, nil, config.New())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var round Plan
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(round.Steps) != len(p.Steps) {
		t.Fatalf("round trip lost steps: got %d, want %d", len(round.Steps), len(p.Steps))
	}
}

func TestGenerateDropOnlyModeSuppressesBuild(t *testing.T) {
	before := mustTree(t, []*model.DbObject{obj("t.gone", "table", map[string]string{})})
	after := mustTree(t, []*model.DbObject{obj("t.new", "table", map[string]string{})})

	cfg := config.New()
	cfg.Mode = config.ModeDropOnly
	p, err := Generate(before, after, nil, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, step := range p.Steps {
		if step.Action == "build" {
			t.Fatalf("drop-only mode scheduled a build step: %+v", step)
		}
	}
}

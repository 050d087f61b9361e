package ruleset

import (
	"strings"
	"testing"

	"github.com/objectplan/objectplan/internal/model"
)

const sampleDoc = `
<ruleset>
  <type name="table" key="fqn">
    <attribute name="owner" rebuild="true">
      <dependency fqn="role.{new.owner}"/>
    </attribute>
    <attribute name="comment"/>
    <element name="column" key="name" rebuild="true">
      <attribute name="datatype" rebuild="true"/>
    </element>
    <text rebuild="false"/>
  </type>
  <type name="view">
    <attribute name="definition" fail="true" msg="view definitions cannot be diffed in place"/>
  </type>
</ruleset>
`

func TestLoadParsesTypesAndChecks(t *testing.T) {
	rs, err := Load(strings.NewReader(sampleDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	table := rs.Lookup("table")
	if table == nil {
		t.Fatalf("no rule for type table")
	}
	if table.KeyAttr() != "fqn" {
		t.Fatalf("KeyAttr = %q, want fqn", table.KeyAttr())
	}
	if len(table.Checks) != 4 {
		t.Fatalf("len(Checks) = %d, want 4", len(table.Checks))
	}

	owner, ok := table.Checks[0].(*AttributeCheck)
	if !ok {
		t.Fatalf("Checks[0] = %T, want *AttributeCheck", table.Checks[0])
	}
	if !owner.Rebuild || owner.Dep == nil || owner.Dep.FQNTemplate != "role.{new.owner}" {
		t.Fatalf("owner check = %+v", owner)
	}

	col, ok := table.Checks[2].(*ElementCheck)
	if !ok {
		t.Fatalf("Checks[2] = %T, want *ElementCheck", table.Checks[2])
	}
	if col.KeyAttr != "name" || len(col.Children) != 1 {
		t.Fatalf("column check = %+v", col)
	}

	view := rs.Lookup("view")
	if view == nil {
		t.Fatalf("no rule for type view")
	}
	def := view.Checks[0].(*AttributeCheck)
	if !def.Fail || def.Msg == "" {
		t.Fatalf("view.definition check = %+v", def)
	}
}

func TestLoadRejectsDuplicateType(t *testing.T) {
	_, err := Load(strings.NewReader(`<ruleset><type name="x"/><type name="x"/></ruleset>`))
	if err == nil {
		t.Fatalf("expected error for duplicate type")
	}
}

func TestLoadRejectsUnnamedType(t *testing.T) {
	_, err := Load(strings.NewReader(`<ruleset><type/></ruleset>`))
	if err == nil {
		t.Fatalf("expected error for unnamed type")
	}
}

func TestDepTemplateRenderSubstitutesPlaceholders(t *testing.T) {
	dep := &DepTemplate{FQNTemplate: "role.{new.owner}"}
	after := &model.ContentNode{Attributes: map[string]string{"owner": "alice"}}
	got, ok := dep.Render(nil, after, nil, nil)
	if !ok {
		t.Fatalf("Render did not fire")
	}
	if got.FQN != "role.alice" {
		t.Fatalf("FQN = %q, want role.alice", got.FQN)
	}
}

func TestDepTemplateRenderSkipsEmptyResult(t *testing.T) {
	dep := &DepTemplate{FQNTemplate: "role.{new.owner}"}
	after := &model.ContentNode{Attributes: map[string]string{}}
	_, ok := dep.Render(nil, after, nil, nil)
	if ok {
		t.Fatalf("Render should not fire on empty substitution")
	}
}

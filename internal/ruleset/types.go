// Package ruleset loads the diff rule set: for each object type, which
// attributes and child elements to compare, which differences force a
// rebuild, and what extra dependencies each difference implies.
package ruleset

// RuleSet is a diff rule set indexed by object type.
type RuleSet struct {
	Types map[string]*TypeRule
}

// Lookup returns the rule for a type, or nil if the type has no rule (an
// object of an unruled type runs no content checks; the differ still
// compares its attributes and can classify it ClassDiff).
func (r *RuleSet) Lookup(objectType string) *TypeRule {
	if r == nil {
		return nil
	}
	return r.Types[objectType]
}

// TypeRule is the per-type entry: the key attribute named by the rule set,
// and the ordered list of checks to run when both sides have a match. The
// differ matches objects on each DbObject's own KeyAttr (see
// model.DbObject.KeyValue); it does not read Key.
type TypeRule struct {
	Type   string
	Key    string // defaults to "fqn" if empty
	Checks []Check
}

// KeyAttr returns the configured key attribute, defaulting to "fqn".
func (t *TypeRule) KeyAttr() string {
	if t == nil || t.Key == "" {
		return "fqn"
	}
	return t.Key
}

// Check is the common interface for the three check kinds: AttributeCheck,
// ElementCheck, TextCheck.
type Check interface {
	isCheck()
}

// DepTemplate is the dependency template a firing check may carry. Exactly
// one of FQNTemplate/PQNTemplate is set. Each field supports {old.attr},
// {new.attr}, {eval.expr} and {param.name} substitutions (see template.go).
type DepTemplate struct {
	FQNTemplate string
	PQNTemplate string
	Old         bool
	Soft        bool
	IsOptional  bool
}

// AttributeCheck compares one named attribute on the matched before/after
// content nodes.
type AttributeCheck struct {
	Name    string
	Fail    bool
	Msg     string
	Rebuild bool
	Dep     *DepTemplate
}

func (*AttributeCheck) isCheck() {}

// ElementCheck compares children of a given element type, matched either by
// a named key attribute or by element identity, recursing into the matched
// pair's own checks.
type ElementCheck struct {
	Element  string
	KeyAttr  string // "" means match by element name alone (singleton element)
	Rebuild  bool
	Dep      *DepTemplate
	Children []Check
}

func (*ElementCheck) isCheck() {}

// TextCheck compares the child text content of the matched nodes verbatim.
type TextCheck struct {
	Rebuild bool
	Dep     *DepTemplate
}

func (*TextCheck) isCheck() {}

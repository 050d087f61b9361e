// Package model defines the object tree that the rest of objectplan operates
// on: dbobject nodes, their contexts and dependency sets, as described by the
// object tree input format. Nothing in this package knows about diffing,
// scheduling, or navigation; it is the shared vocabulary those packages use.
package model

import "fmt"

// FQN is a fully qualified name, globally unique within one object tree.
type FQN string

// PQN is a partially qualified name. Unlike an FQN it may be shared by more
// than one object; it exists for dependency targets that cannot be addressed
// by FQN.
type PQN string

// DiffClass is the classification a dbobject carries after the differ has
// run. The zero value, ClassUnclassified, means the differ has not yet
// visited the object.
type DiffClass int

const (
	ClassUnclassified DiffClass = iota
	ClassNew
	ClassGone
	ClassSame
	ClassDiff
	ClassRebuild
	ClassDiffKids
)

func (c DiffClass) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassGone:
		return "gone"
	case ClassSame:
		return "same"
	case ClassDiff:
		return "diff"
	case ClassRebuild:
		return "rebuild"
	case ClassDiffKids:
		return "diffkids"
	default:
		return "unclassified"
	}
}

// ContextEntry names an ambient scope a dbobject lives in: a search_path
// entry, a current role, a current schema, and so on. Default describes the
// value that requires no navigation event to establish.
type ContextEntry struct {
	Name    string
	Value   string
	Default string
}

// Dep is a single dependency, keyed by either FQN or PQN (never both). Old
// means the edge only existed in the before-state; Soft means the edge is
// excluded from rebuild promotion.
type Dep struct {
	FQN  FQN
	PQN  PQN
	Old  bool
	Soft bool
}

// IsPQN reports whether this Dep is keyed by PQN rather than FQN.
func (d Dep) IsPQN() bool { return d.FQN == "" && d.PQN != "" }

func (d Dep) String() string {
	if d.IsPQN() {
		return fmt.Sprintf("pqn:%s", d.PQN)
	}
	return fmt.Sprintf("fqn:%s", d.FQN)
}

// DepSet is an ordered collection of candidate dependencies that resolves to
// exactly one chosen edge (IsSet: all members are required and unioned;
// otherwise the first alternative that resolves wins; IsOptional: no edge at
// all is an acceptable resolution).
type DepSet struct {
	Deps       []Dep
	IsSet      bool
	IsOptional bool

	// Actual is not filled in by any pipeline stage: the dependency selector
	// records its choice on the DAG node's own DepSet (dagbuild.DepSet.Actual),
	// not here.
	Actual *ResolvedDep
}

// ResolvedDep is the outcome of resolving one Dep against the DAG's node
// indexes: the concrete key of the node the edge now points to.
type ResolvedDep struct {
	Key      string // "<build_type>.<fqn>" of the resolved target
	FromDep  Dep
	Inverted bool // true if this edge direction was inverted (drop-node processing)
}

// DependencyBlock carries the two directions of dependency edges a dbobject
// can have: those that apply advancing before->after (Forwards) and those
// that apply reversing after->before (Backwards).
type DependencyBlock struct {
	Forwards  []DepSet
	Backwards []DepSet
}

// Clone makes a deep-enough copy of a DependencyBlock for use by a breaker
// node: Deps are copied by value (they contain no pointers), but the slices
// themselves are fresh so mutating the clone never touches the original.
func (b *DependencyBlock) Clone() *DependencyBlock {
	if b == nil {
		return &DependencyBlock{}
	}
	out := &DependencyBlock{
		Forwards:  make([]DepSet, len(b.Forwards)),
		Backwards: make([]DepSet, len(b.Backwards)),
	}
	for i, ds := range b.Forwards {
		out.Forwards[i] = cloneDepSet(ds)
	}
	for i, ds := range b.Backwards {
		out.Backwards[i] = cloneDepSet(ds)
	}
	return out
}

func cloneDepSet(ds DepSet) DepSet {
	deps := make([]Dep, len(ds.Deps))
	copy(deps, ds.Deps)
	return DepSet{Deps: deps, IsSet: ds.IsSet, IsOptional: ds.IsOptional}
}

// ContentNode is an opaque subtree of object-type-specific content: the
// element a rule-set check walks when comparing two objects. It mirrors the
// shape of the XML <dbobject> children (other than <dependencies> and
// <context>, which are lifted onto DbObject directly).
type ContentNode struct {
	Element    string
	Attributes map[string]string
	Text       string
	Children   []*ContentNode
}

// Attr returns the named attribute value, or "" if absent.
func (n *ContentNode) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attributes[name]
}

// ChildrenOf returns the direct children with the given element name, in
// document order.
func (n *ContentNode) ChildrenOf(element string) []*ContentNode {
	if n == nil {
		return nil
	}
	var out []*ContentNode
	for _, c := range n.Children {
		if c.Element == element {
			out = append(out, c)
		}
	}
	return out
}

// DbObject is an immutable (post-parse) description of one database object.
// The differ and everything downstream annotate copies, never the parse-time
// original: see Clone.
type DbObject struct {
	FQN              FQN
	PQN              PQN
	Type             string
	KeyAttr          string // which attribute is this object's diff key; "" means FQN
	ParentFQN        FQN
	Attributes       map[string]string
	Contents         *ContentNode
	Contexts         []ContextEntry
	Dependencies     *DependencyBlock
	CycleBreakerType string
	Visit            bool

	// Diff is set by the differ once the object has been classified.
	Diff DiffClass

	// Children are the dbobject descendants in document order. The
	// differ's merged output tree follows this same shape.
	Children []*DbObject
}

// KeyValue returns the value the differ should match this object on: the
// named KeyAttr if set, otherwise the FQN.
func (o *DbObject) KeyValue() string {
	if o.KeyAttr != "" {
		return o.Attributes[o.KeyAttr]
	}
	return string(o.FQN)
}

// Clone makes a shallow-structural copy of a DbObject suitable for mutation
// by the differ (new Dependencies block, new Children slice) without
// aliasing the original tree.
func (o *DbObject) Clone() *DbObject {
	clone := *o
	clone.Attributes = make(map[string]string, len(o.Attributes))
	for k, v := range o.Attributes {
		clone.Attributes[k] = v
	}
	clone.Contexts = append([]ContextEntry(nil), o.Contexts...)
	clone.Dependencies = o.Dependencies.Clone()
	clone.Children = nil
	return &clone
}

// Tree is a forest of DbObjects (possibly under one implicit "all objects"
// root) together with an FQN index. It is the unit the differ takes as
// before/after input and produces as merged output.
type Tree struct {
	Roots []*DbObject
	byFQN map[FQN]*DbObject
}

// NewTree builds a Tree from a set of root objects, validating the FQN
// uniqueness invariant from spec §3 ("Every DbObject's fqn appears at most
// once in the object tree").
func NewTree(roots []*DbObject) (*Tree, error) {
	t := &Tree{Roots: roots, byFQN: make(map[FQN]*DbObject)}
	var walk func(*DbObject) error
	walk = func(o *DbObject) error {
		if o.FQN == "" {
			return fmt.Errorf("dbobject of type %q has no fqn", o.Type)
		}
		if existing, ok := t.byFQN[o.FQN]; ok && existing != o {
			return fmt.Errorf("duplicate fqn %q (types %q and %q)", o.FQN, existing.Type, o.Type)
		}
		t.byFQN[o.FQN] = o
		for _, c := range o.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ByFQN looks up an object by fully qualified name.
func (t *Tree) ByFQN(fqn FQN) (*DbObject, bool) {
	o, ok := t.byFQN[fqn]
	return o, ok
}

// All returns every object in the tree in document order (pre-order,
// depth-first over Roots).
func (t *Tree) All() []*DbObject {
	out := make([]*DbObject, 0, len(t.byFQN))
	var walk func(*DbObject)
	walk = func(o *DbObject) {
		out = append(out, o)
		for _, c := range o.Children {
			walk(c)
		}
	}
	for _, r := range t.Roots {
		walk(r)
	}
	return out
}

// Ancestors returns the chain of ancestor FQNs for o, nearest first, walking
// ParentFQN links against the tree's index. An object with no parent (or a
// dangling parent reference) yields an empty slice.
func (t *Tree) Ancestors(o *DbObject) []FQN {
	var chain []FQN
	cur := o
	seen := map[FQN]bool{}
	for cur.ParentFQN != "" && !seen[cur.ParentFQN] {
		seen[cur.ParentFQN] = true
		parent, ok := t.byFQN[cur.ParentFQN]
		if !ok {
			break
		}
		chain = append(chain, parent.FQN)
		cur = parent
	}
	return chain
}

// Package differ compares a before and after model.Tree object-by-object,
// classifying each match under the rule set, synthesizing the dependencies
// rule templates imply, promoting objects whose dependencies force a rebuild,
// and marking unchanged ancestors of promoted objects as diffkids.
package differ

import (
	"fmt"
	"sort"

	"github.com/objectplan/objectplan/internal/core"
	"github.com/objectplan/objectplan/internal/model"
	"github.com/objectplan/objectplan/internal/ruleset"
)

// Options controls one Diff invocation.
type Options struct {
	Rules  *ruleset.RuleSet
	Params map[string]string
	Eval   ruleset.Evaluator
}

// Result is the differ's output: a merged tree (every before and after
// object present exactly once, classified).
type Result struct {
	Merged *model.Tree
}

// Diff compares before and after, returning the merged, classified tree.
func Diff(before, after *model.Tree, opts Options) (*Result, error) {
	d := &differ{opts: opts}
	var beforeRoots, afterRoots []*model.DbObject
	if before != nil {
		beforeRoots = before.Roots
	}
	if after != nil {
		afterRoots = after.Roots
	}
	merged, err := d.diffSiblings(beforeRoots, afterRoots)
	if err != nil {
		return nil, err
	}
	tree, err := model.NewTree(merged)
	if err != nil {
		return nil, fmt.Errorf("differ: %w", err)
	}
	synthesizeBackwards(tree)
	promote(tree)
	return &Result{Merged: tree}, nil
}

// synthesizeBackwards derives every object's Backwards dependency block from
// the whole tree's Forwards edges: if O forward-depends on T (O must be built
// after T), then T backward-depends on O (T must be dropped after O), per
// spec §4.2's drop-direction inversion. Declared deps and rule-synthesized
// deps are both covered, since this runs after every diffOne has finished
// appending its checks' dependency templates.
func synthesizeBackwards(tree *model.Tree) {
	for _, o := range tree.All() {
		if o.Dependencies == nil {
			continue
		}
		for _, ds := range o.Dependencies.Forwards {
			for _, dep := range ds.Deps {
				target := resolveByFQNOrPQN(tree, dep)
				if target == nil || target.Dependencies == nil {
					continue
				}
				back := model.Dep{FQN: o.FQN, Old: dep.Old, Soft: dep.Soft}
				target.Dependencies.Backwards = append(target.Dependencies.Backwards, model.DepSet{Deps: []model.Dep{back}})
			}
		}
	}
}

type differ struct {
	opts Options
}

// matchKey is the (type, key-value) identity two sibling lists are matched
// on, mirroring the source's two-level hash-by-type-then-key lookup.
type matchKey struct {
	typ string
	key string
}

func keyOf(o *model.DbObject) matchKey {
	return matchKey{typ: o.Type, key: o.KeyValue()}
}

// diffSiblings matches one level of the tree (a set of siblings from before
// against a set of siblings from after) in after's document order, then
// appends any before-only survivors (ClassGone) that after never matched.
func (d *differ) diffSiblings(before, after []*model.DbObject) ([]*model.DbObject, error) {
	beforeByKey := make(map[matchKey]*model.DbObject, len(before))
	for _, o := range before {
		k := keyOf(o)
		if _, dup := beforeByKey[k]; dup {
			return nil, &core.DuplicateIdentityError{Type: o.Type, Key: k.key}
		}
		beforeByKey[k] = o
	}
	consumed := make(map[matchKey]bool, len(before))
	afterSeen := make(map[matchKey]bool, len(after))

	var out []*model.DbObject
	for _, a := range after {
		k := keyOf(a)
		if afterSeen[k] {
			return nil, &core.DuplicateIdentityError{Type: a.Type, Key: k.key}
		}
		afterSeen[k] = true
		b, matched := beforeByKey[k]
		if matched {
			consumed[k] = true
		}
		merged, err := d.diffOne(b, a)
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}

	// Before-only objects keep document order among themselves, appended
	// after every after-side object, matching the source's "gone objects
	// trail the diff" convention.
	for _, b := range before {
		k := keyOf(b)
		if consumed[k] {
			continue
		}
		gone, err := d.diffOne(b, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, gone)
	}
	return out, nil
}

// diffOne classifies a single matched (or unmatched) pair and recurses into
// children. Exactly one of before/after may be nil.
func (d *differ) diffOne(before, after *model.DbObject) (*model.DbObject, error) {
	switch {
	case before == nil && after == nil:
		return nil, fmt.Errorf("differ: diffOne called with no object")
	case before == nil:
		clone := after.Clone()
		clone.Diff = model.ClassNew
		children, err := d.diffSiblings(nil, after.Children)
		if err != nil {
			return nil, err
		}
		clone.Children = children
		return clone, nil
	case after == nil:
		clone := before.Clone()
		clone.Diff = model.ClassGone
		children, err := d.diffSiblings(before.Children, nil)
		if err != nil {
			return nil, err
		}
		clone.Children = children
		return clone, nil
	}

	clone := after.Clone()
	var checks []ruleset.Check
	if rule := d.opts.Rules.Lookup(after.Type); rule != nil {
		checks = rule.Checks
	}

	diffFound, rebuildFound, extraDeps, err := d.runChecks(checks, before.Contents, after.Contents, before.FQN, after.Type)
	if err != nil {
		return nil, err
	}
	if attributesDiffer(before, after) {
		diffFound = true
	}
	if len(extraDeps) > 0 {
		appendDeps(clone.Dependencies, extraDeps)
	}

	children, err := d.diffSiblings(before.Children, after.Children)
	if err != nil {
		return nil, err
	}
	clone.Children = children

	childDiff := false
	for _, c := range children {
		if c.Diff != model.ClassSame {
			childDiff = true
			break
		}
	}

	switch {
	case rebuildFound:
		clone.Diff = model.ClassRebuild
	case diffFound:
		clone.Diff = model.ClassDiff
	case childDiff:
		clone.Diff = model.ClassDiffKids
	default:
		clone.Diff = model.ClassSame
	}
	return clone, nil
}

func attributesDiffer(before, after *model.DbObject) bool {
	if len(before.Attributes) != len(after.Attributes) {
		return true
	}
	for k, v := range after.Attributes {
		if before.Attributes[k] != v {
			return true
		}
	}
	return false
}

// runChecks walks a type's ordered checks against the matched content nodes.
// It reports whether any check found a difference at all, whether any
// *rebuild-marked* check found a difference, and the dependencies any firing
// check's template produced.
func (d *differ) runChecks(checks []ruleset.Check, before, after *model.ContentNode, fqn model.FQN, typ string) (diffFound, rebuildFound bool, deps []model.Dep, err error) {
	for _, c := range checks {
		fired, sub, rebuild, dep, ferr := d.runCheck(c, before, after, fqn, typ)
		if ferr != nil {
			return false, false, nil, ferr
		}
		deps = append(deps, sub...)
		if !fired {
			continue
		}
		diffFound = true
		if rebuild {
			rebuildFound = true
		}
		if dep != nil {
			deps = append(deps, *dep)
		}
	}
	return diffFound, rebuildFound, deps, nil
}

// runCheck evaluates one check, returning whether it fired (found a
// difference), any dependencies nested element checks produced, whether the
// check itself is rebuild-marked, and the dependency the check's own
// template rendered (if it fired).
func (d *differ) runCheck(c ruleset.Check, before, after *model.ContentNode, fqn model.FQN, typ string) (fired bool, nested []model.Dep, rebuild bool, dep *model.Dep, err error) {
	switch cc := c.(type) {
	case *ruleset.AttributeCheck:
		bv, av := before.Attr(cc.Name), after.Attr(cc.Name)
		if bv == av {
			return false, nil, false, nil, nil
		}
		if cc.Fail {
			msg := cc.Msg
			if msg == "" {
				msg = fmt.Sprintf("attribute %q changed from %q to %q", cc.Name, bv, av)
			}
			return false, nil, false, nil, &core.RuleViolationError{FQN: string(fqn), Type: typ, Message: msg}
		}
		if rd, ok := cc.Dep.Render(before, after, d.opts.Params, d.opts.Eval); ok {
			dep = &rd
		}
		return true, nil, cc.Rebuild, dep, nil

	case *ruleset.TextCheck:
		bt, at := "", ""
		if before != nil {
			bt = before.Text
		}
		if after != nil {
			at = after.Text
		}
		if bt == at {
			return false, nil, false, nil, nil
		}
		if rd, ok := cc.Dep.Render(before, after, d.opts.Params, d.opts.Eval); ok {
			dep = &rd
		}
		return true, nil, cc.Rebuild, dep, nil

	case *ruleset.ElementCheck:
		bKids := childrenByKey(before, cc.Element, cc.KeyAttr)
		aKids := childrenByKey(after, cc.Element, cc.KeyAttr)
		elementFired := false
		var deps []model.Dep
		seen := map[string]bool{}
		for key, a := range aKids {
			seen[key] = true
			b := bKids[key]
			if b == nil {
				elementFired = true
				continue
			}
			sub, subRebuild, subDeps, serr := d.runChecks(cc.Children, b, a, fqn, typ)
			if serr != nil {
				return false, nil, false, nil, serr
			}
			if sub {
				elementFired = true
			}
			if subRebuild {
				elementFired = true
			}
			deps = append(deps, subDeps...)
		}
		for key := range bKids {
			if !seen[key] {
				elementFired = true
			}
		}
		if !elementFired {
			return false, deps, false, nil, nil
		}
		if rd, ok := cc.Dep.Render(before, after, d.opts.Params, d.opts.Eval); ok {
			dep = &rd
		}
		return true, deps, cc.Rebuild, dep, nil

	default:
		return false, nil, false, nil, nil
	}
}

// childrenByKey indexes an element's matching children for comparison. When
// keyAttr is empty the element is a singleton and the map has at most one
// entry keyed "".
func childrenByKey(n *model.ContentNode, element, keyAttr string) map[string]*model.ContentNode {
	out := map[string]*model.ContentNode{}
	for _, c := range n.ChildrenOf(element) {
		key := ""
		if keyAttr != "" {
			key = c.Attr(keyAttr)
		}
		out[key] = c
	}
	return out
}

func appendDeps(block *model.DependencyBlock, deps []model.Dep) {
	if block == nil {
		return
	}
	for _, dep := range deps {
		block.Forwards = append(block.Forwards, model.DepSet{Deps: []model.Dep{dep}})
	}
}

// promote runs the fixed-point rebuild-promotion pass: an object is promoted
// to ClassRebuild if it has a non-soft dependency whose target is classified
// ClassRebuild, ClassNew, or ClassGone. The pass repeats until no further
// object changes, since a promotion can itself trigger another object's
// promotion (a hard dependency on a freshly rebuilt object cascades the same
// way a dependency on a gone object does). Every ancestor of a promoted
// object that is still classified ClassSame becomes ClassDiffKids.
//
// An Old-marked dependency participates in promotion under exactly the same
// rule as any other. Old only changes how the edge is interpreted by the DAG
// builder (see internal/dagbuild), not whether it can promote a rebuild here.
func promote(tree *model.Tree) {
	for {
		changed := false
		for _, o := range tree.All() {
			if o.Diff == model.ClassRebuild || o.Diff == model.ClassGone || o.Diff == model.ClassNew {
				continue
			}
			if dependsOnPromoted(tree, o) {
				o.Diff = model.ClassRebuild
				changed = true
				for _, fqn := range tree.Ancestors(o) {
					if anc, ok := tree.ByFQN(fqn); ok && anc.Diff == model.ClassSame {
						anc.Diff = model.ClassDiffKids
					}
				}
			}
		}
		if !changed {
			return
		}
	}
}

func dependsOnPromoted(tree *model.Tree, o *model.DbObject) bool {
	if o.Dependencies == nil {
		return false
	}
	for _, ds := range o.Dependencies.Forwards {
		for _, dep := range ds.Deps {
			if dep.Soft {
				continue
			}
			target := resolveByFQNOrPQN(tree, dep)
			if target == nil {
				continue
			}
			switch target.Diff {
			case model.ClassRebuild, model.ClassNew, model.ClassGone:
				return true
			}
		}
	}
	return false
}

func resolveByFQNOrPQN(tree *model.Tree, dep model.Dep) *model.DbObject {
	if !dep.IsPQN() {
		o, _ := tree.ByFQN(dep.FQN)
		return o
	}
	var candidates []*model.DbObject
	for _, o := range tree.All() {
		if o.PQN == dep.PQN {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].FQN < candidates[j].FQN })
	return candidates[0]
}

package dagbuild

import (
	"github.com/objectplan/objectplan/internal/config"
	"github.com/objectplan/objectplan/internal/core"
	"github.com/objectplan/objectplan/internal/model"
)

// Build projects tree into a DagNode candidate graph under mode's default
// build/drop election.
func Build(tree *model.Tree, mode config.BuildMode) (*Arena, error) {
	a := newArena()

	for _, o := range tree.All() {
		for _, n := range expand(o, mode) {
			a.insert(n)
		}
	}

	for _, o := range tree.All() {
		if err := wireParent(a, o, mode); err != nil {
			return nil, err
		}
		if err := wireDeps(a, o); err != nil {
			return nil, err
		}
	}
	wireBuildDropPairing(a)

	return a, nil
}

// expand returns the DagNodes one object produces, per spec §4.2's per-class
// expansion table.
func expand(o *model.DbObject, mode config.BuildMode) []*DagNode {
	switch o.Diff {
	case model.ClassSame, model.ClassDiffKids:
		return []*DagNode{newNode(Exists, o)}
	case model.ClassNew:
		if mode == config.ModeDropOnly {
			return nil
		}
		return []*DagNode{newNode(Build, o)}
	case model.ClassGone:
		if mode == config.ModeBuildOnly {
			return nil
		}
		return []*DagNode{newNode(Drop, o)}
	case model.ClassDiff:
		return []*DagNode{newNode(Diff, o)}
	case model.ClassRebuild:
		var out []*DagNode
		if mode != config.ModeDropOnly {
			out = append(out, newNode(Build, o))
		}
		if mode != config.ModeBuildOnly {
			out = append(out, newNode(Drop, o))
		}
		return out
	default:
		// No diff in play: the invocation's mode decides.
		var out []*DagNode
		if mode != config.ModeDropOnly {
			out = append(out, newNode(Build, o))
		}
		if mode != config.ModeBuildOnly {
			out = append(out, newNode(Drop, o))
		}
		return out
	}
}

// wireParent attaches a node's parent (via the truth table, from
// parent_fqn), inverting the relationship for drop nodes per spec §4.2.
func wireParent(a *Arena, o *model.DbObject, mode config.BuildMode) error {
	if o.ParentFQN == "" {
		return nil
	}
	for _, bt := range []BuildType{Build, Drop, Diff, Exists} {
		n, ok := a.Lookup(bt, o.FQN)
		if !ok {
			continue
		}
		parent, ok := resolveFQN(a, bt, o.ParentFQN, false)
		if !ok {
			// Parent not present in this invocation's scope (e.g. pruned by
			// build mode); nothing to wire.
			continue
		}
		n.Parent = parent
		if bt == Drop {
			// Leaves drop before their parent: the parent's own drop (when
			// one exists) depends on this node's drop, not the reverse.
			if parentDrop, ok := a.Lookup(Drop, o.ParentFQN); ok {
				parentDrop.Deps = append(parentDrop.Deps, &DepSet{Candidates: []*DagNode{n}})
			}
		} else {
			n.Deps = append(n.Deps, &DepSet{Candidates: []*DagNode{parent}})
		}
	}
	return nil
}

// wireDeps resolves every declared/synthesized dependency of o's nodes.
// Non-drop nodes resolve the Forwards block; drop nodes resolve the
// Backwards block (already the inverted relationship, per the differ's
// forwards/backwards synthesis).
func wireDeps(a *Arena, o *model.DbObject) error {
	if o.Dependencies == nil {
		return nil
	}
	for _, bt := range []BuildType{Build, Drop, Diff} {
		n, ok := a.Lookup(bt, o.FQN)
		if !ok {
			continue
		}
		block := o.Dependencies.Forwards
		if bt == Drop {
			block = o.Dependencies.Backwards
		}
		for _, ds := range block {
			resolved, err := resolveDepSet(a, n.BuildType, ds)
			if err != nil {
				return err
			}
			if resolved != nil {
				n.Deps = append(n.Deps, resolved)
			}
		}
	}
	return nil
}

func resolveDepSet(a *Arena, looker BuildType, ds model.DepSet) (*DepSet, error) {
	out := &DepSet{IsSet: ds.IsSet, IsOptional: ds.IsOptional}
	for _, dep := range ds.Deps {
		var target *DagNode
		var ok bool
		if dep.IsPQN() {
			var err error
			target, ok, err = resolvePQN(a, looker, dep.PQN, dep.Old)
			if err != nil {
				return nil, err
			}
		} else {
			target, ok = resolveFQN(a, looker, dep.FQN, dep.Old)
		}
		if !ok {
			if ds.IsOptional || ds.IsSet {
				// Dropped silently: an optional set simply has one fewer
				// candidate; a required set reports the miss below.
				if ds.IsSet {
					return nil, &core.UnresolvedDependencyError{Target: string(dep.FQN) + string(dep.PQN), IsPQN: dep.IsPQN()}
				}
				continue
			}
			return nil, &core.UnresolvedDependencyError{Target: string(dep.FQN) + string(dep.PQN), IsPQN: dep.IsPQN()}
		}
		out.Candidates = append(out.Candidates, target)
	}
	if len(out.Candidates) == 0 {
		if ds.IsOptional {
			return out, nil
		}
		return nil, nil
	}
	return out, nil
}

func resolveFQN(a *Arena, looker BuildType, fqn model.FQN, old bool) (*DagNode, bool) {
	for _, bt := range searchOrder(looker, old) {
		if n, ok := a.Lookup(bt, fqn); ok {
			return n, true
		}
	}
	return nil, false
}

// resolvePQN finds the DagNode a PQN dependency resolves to at the first
// build type in searchOrder that has any candidate at all. Per spec's second
// Open Question ("two DagNodes with the same PQN within one build type"),
// more than one candidate at that build type is an ambiguous reference,
// reported as a DuplicateIdentityError rather than silently picking one.
func resolvePQN(a *Arena, looker BuildType, pqn model.PQN, old bool) (*DagNode, bool, error) {
	for _, bt := range searchOrder(looker, old) {
		cands, ok := a.byPQN[pqnKey(bt, pqn)]
		if !ok || len(cands) == 0 {
			continue
		}
		if len(cands) > 1 {
			return nil, false, &core.DuplicateIdentityError{Type: string(bt), Key: string(pqn)}
		}
		return cands[0], true, nil
	}
	return nil, false, nil
}

// wireBuildDropPairing adds the drop-before-build edge for every rebuilt
// object (spec §4.2's "Build/Drop pairing").
func wireBuildDropPairing(a *Arena) {
	for _, n := range a.All() {
		if n.BuildType != Build {
			continue
		}
		if drop, ok := a.Lookup(Drop, n.FQN()); ok {
			n.Deps = append(n.Deps, &DepSet{Candidates: []*DagNode{drop}})
		}
	}
}

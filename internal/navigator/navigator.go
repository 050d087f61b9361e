// Package navigator inserts arrive/depart events into a sorted DagNode
// vector: context transitions (search_path, current role, and similar
// ambient scopes) and object-path transitions (entering/leaving enclosing
// dbobjects), so the emitted plan reads as a sequence a human DBA could
// follow by hand.
package navigator

import (
	"github.com/objectplan/objectplan/internal/dagbuild"
	"github.com/objectplan/objectplan/internal/model"
)

// EventKind distinguishes a context transition from an object-path
// transition in the composite event stream.
type EventKind int

const (
	ContextDepart EventKind = iota
	ObjectDepart
	ObjectArrive
	ContextArrive
)

// Event is one navigation instruction interleaved into the plan.
type Event struct {
	Kind EventKind
	// Context is set for ContextDepart/ContextArrive.
	Context model.ContextEntry
	// Object is set for ObjectDepart/ObjectArrive.
	Object *model.DbObject
}

// Step pairs one scheduled DagNode with the navigation events that must run
// immediately before it.
type Step struct {
	Events []Event
	Node   *dagbuild.DagNode
}

// Navigate walks the sorted vector, inserting the navigation events
// described between each consecutive pair (and a final closing transition
// to null after the last node), per spec §4.5's composite ordering:
// context departures, object departures, object arrivals, context arrivals.
func Navigate(tree *model.Tree, sorted []*dagbuild.DagNode) []Step {
	steps := make([]Step, 0, len(sorted)+1)
	var prev *model.DbObject
	for _, n := range sorted {
		steps = append(steps, Step{Events: composite(tree, prev, n.Source), Node: n})
		prev = n.Source
	}
	if prev != nil {
		steps = append(steps, Step{Events: composite(tree, prev, nil)})
	}
	return steps
}

// composite computes the full departures-then-arrivals event list for the
// transition from `from` to `to` (either may be nil: nil `from` means "the
// very start of the plan", nil `to` means "close everything at the end").
func composite(tree *model.Tree, from, to *model.DbObject) []Event {
	var events []Event

	fromCtx := contextsOf(from)
	toCtx := contextsOf(to)
	ctxDeparts, ctxArrives := diffContexts(fromCtx, toCtx)
	for _, c := range ctxDeparts {
		events = append(events, Event{Kind: ContextDepart, Context: c})
	}

	if requiresNavigation(to) {
		for _, dep := range objectDepartPath(tree, from, to) {
			events = append(events, Event{Kind: ObjectDepart, Object: dep})
		}
		for _, arr := range objectArrivePath(tree, from, to) {
			events = append(events, Event{Kind: ObjectArrive, Object: arr})
		}
	}

	for _, c := range ctxArrives {
		events = append(events, Event{Kind: ContextArrive, Context: c})
	}
	return events
}

func contextsOf(o *model.DbObject) []model.ContextEntry {
	if o == nil {
		return nil
	}
	return o.Contexts
}

// diffContexts implements spec §4.5's context-navigation algorithm exactly:
// matched entries that changed value depart (if the old value wasn't
// already the default) then arrive (if the new value isn't the default);
// unmatched `to` entries arrive outright (unless default); unmatched
// leftover `from` entries depart outright (unless default).
func diffContexts(from, to []model.ContextEntry) (departs, arrives []model.ContextEntry) {
	fromByName := make(map[string]model.ContextEntry, len(from))
	matched := make(map[string]bool, len(from))
	for _, c := range from {
		fromByName[c.Name] = c
	}
	for _, c := range to {
		match, ok := fromByName[c.Name]
		if ok {
			matched[c.Name] = true
			if match.Value != c.Value {
				if match.Value != match.Default {
					departs = append(departs, match)
				}
				if c.Value != c.Default {
					arrives = append(arrives, c)
				}
			}
			continue
		}
		if c.Value != c.Default {
			arrives = append(arrives, c)
		}
	}
	for _, c := range from {
		if matched[c.Name] {
			continue
		}
		if c.Value != c.Default {
			departs = append(departs, c)
		}
	}
	return departs, arrives
}

// requiresNavigation reports whether the transition into `to` needs
// object-path events at all: a nil `to` (closing the plan) always
// navigates; otherwise only objects whose source carries the visit hint do.
func requiresNavigation(to *model.DbObject) bool {
	if to == nil {
		return true
	}
	return to.Visit
}

// objectDepartPath returns the ancestors of `from` (nearest first) up to
// (not including) the common ancestor with `to`, skipping any ancestor
// classified ClassGone (its drop navigates implicitly, so it needs no
// explicit depart event). When `from` is itself the common ancestor (`to`
// lies inside it), nothing is departed.
func objectDepartPath(tree *model.Tree, from, to *model.DbObject) []*model.DbObject {
	if from == nil {
		return nil
	}
	common := commonAncestor(tree, from, to)
	if common == from.FQN {
		return nil
	}
	var out []*model.DbObject
	for _, fqn := range tree.Ancestors(from) {
		if fqn == common {
			break
		}
		o, ok := tree.ByFQN(fqn)
		if !ok || o.Diff == model.ClassGone {
			continue
		}
		out = append(out, o)
	}
	return out
}

// objectArrivePath returns the path from the common ancestor down to `to`,
// in root-to-leaf order: `to`'s proper ancestors (exclusive of the common
// ancestor, skipping any ancestor whose own action already builds it into
// existence), followed by `to` itself — unless `to` is solely being dropped,
// in which case no explicit arrival at `to` is needed (its drop runs from
// its parent's context, never from inside it).
func objectArrivePath(tree *model.Tree, from, to *model.DbObject) []*model.DbObject {
	if to == nil {
		return nil
	}
	common := commonAncestor(tree, from, to)
	chain := tree.Ancestors(to) // nearest-first
	if common == to.FQN {
		// `to` encloses `from`: no ancestor of `to` lies below the common one.
		chain = nil
	}
	var path []*model.DbObject
	for _, fqn := range chain {
		if fqn == common {
			break
		}
		o, ok := tree.ByFQN(fqn)
		if !ok || o.Diff == model.ClassNew {
			continue
		}
		path = append(path, o)
	}
	// reverse to root-to-leaf order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if to.Diff != model.ClassGone {
		path = append(path, to)
	}
	return path
}

// commonAncestor finds the nearest shared ancestor FQN of from and to by
// walking up from the deeper side until the depths match, then in
// lockstep, per spec §4.5. An empty FQN ("") means "the implicit root" (no
// shared named ancestor).
func commonAncestor(tree *model.Tree, from, to *model.DbObject) model.FQN {
	if from == nil || to == nil {
		return ""
	}
	fromChain := append([]model.FQN{from.FQN}, tree.Ancestors(from)...)
	toChain := append([]model.FQN{to.FQN}, tree.Ancestors(to)...)

	for len(fromChain) > len(toChain) {
		fromChain = fromChain[1:]
	}
	for len(toChain) > len(fromChain) {
		toChain = toChain[1:]
	}
	for i := range fromChain {
		if fromChain[i] == toChain[i] {
			return fromChain[i]
		}
	}
	return ""
}

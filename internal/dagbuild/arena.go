package dagbuild

import (
	"fmt"
	"sort"

	"github.com/objectplan/objectplan/internal/model"
)

// Arena owns every DagNode created for one invocation, indexed by key (the
// "byfqn" index; the map key already encodes <build_type>.<fqn>) and by
// PQN. There is no manual freeing: the arena, and every DagNode it owns, is
// simply dropped at the end of the invocation.
type Arena struct {
	byFQN map[NodeKey]*DagNode
	byPQN map[string][]*DagNode // key "<build_type>.<pqn>", candidates in insertion order
}

func newArena() *Arena {
	return &Arena{byFQN: map[NodeKey]*DagNode{}, byPQN: map[string][]*DagNode{}}
}

// NewArena returns an empty Arena. Build is the usual way to populate one
// from a diff-classified tree; NewArena plus Add exists for callers (and
// tests) that construct a DAG candidate by hand.
func NewArena() *Arena {
	return newArena()
}

func pqnKey(bt BuildType, pqn model.PQN) string {
	return fmt.Sprintf("%s.%s", bt, pqn)
}

func (a *Arena) insert(n *DagNode) {
	a.byFQN[n.Key] = n
	if n.Source.PQN != "" {
		k := pqnKey(n.BuildType, n.Source.PQN)
		a.byPQN[k] = append(a.byPQN[k], n)
	}
}

// Lookup returns the node keyed exactly by bt.fqn, if any.
func (a *Arena) Lookup(bt BuildType, fqn model.FQN) (*DagNode, bool) {
	n, ok := a.byFQN[keyFor(bt, fqn)]
	return n, ok
}

// All returns every node in the arena, sorted by key for deterministic
// iteration.
func (a *Arena) All() []*DagNode {
	out := make([]*DagNode, 0, len(a.byFQN))
	for _, n := range a.byFQN {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Add inserts a synthetic node (used by internal/selector to register a
// breaker clone) into the arena.
func (a *Arena) Add(n *DagNode) {
	a.insert(n)
}

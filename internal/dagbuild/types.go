// Package dagbuild projects a diff-classified model.Tree into the DagNode
// candidate graph: one node per required operation, dependencies resolved
// against the build-type truth table, parent edges derived from the object
// tree, and build/drop pairing for rebuilt objects. The result may still
// contain cycles and unresolved DepSet alternatives; internal/selector turns
// it into a true DAG.
package dagbuild

import (
	"fmt"

	"github.com/objectplan/objectplan/internal/model"
)

// BuildType is the operation a DagNode represents.
type BuildType string

const (
	Build        BuildType = "build"
	Drop         BuildType = "drop"
	Diff         BuildType = "diff"
	Exists       BuildType = "exists"
	Rebuild      BuildType = "rebuild"
	Arrive       BuildType = "arrive"
	Depart       BuildType = "depart"
	DiffPrep     BuildType = "diffprep"
	DiffComplete BuildType = "diffcomplete"
	Fallback     BuildType = "fallback"
	EndFallback  BuildType = "endfallback"
	Breaker      BuildType = "breaker"
)

// Status is a DagNode's position in the selector/sort state machines.
type Status int

const (
	Unvisited Status = iota
	Visiting
	VisitedOnce
	Visited
	Buildable
	Selected
)

// NodeKey is the arena key: "<build_type>.<fqn>".
type NodeKey string

func keyFor(bt BuildType, fqn model.FQN) NodeKey {
	return NodeKey(fmt.Sprintf("%s.%s", bt, fqn))
}

// DepSet is a dagbuild-resolved dependency: Candidates holds, in truth-table
// precedence order, every DagNode a raw model.Dep alternative resolved to.
// IsSet requires every candidate to be kept (unioned into the owner's
// effective deps); otherwise the selector picks the first that resolves
// without a cycle. IsOptional means "no edge" is an acceptable outcome.
type DepSet struct {
	Candidates []*DagNode
	IsSet      bool
	IsOptional bool

	// Actual is set by internal/selector once resolution completes.
	Actual *DagNode
}

// DagNode is the scheduling unit: one required operation against one source
// object.
type DagNode struct {
	Key       NodeKey
	BuildType BuildType
	Source    *model.DbObject
	Status    Status

	Parent *DagNode
	Deps   []*DepSet

	// Dependents is populated by internal/selector once the DAG is final
	// (reverse edges, consumed by internal/toposort's smart sort).
	Dependents []*DagNode

	BreakerFor *DagNode
	Breaker    *DagNode
}

func (n *DagNode) FQN() model.FQN {
	return n.Source.FQN
}

func newNode(bt BuildType, src *model.DbObject) *DagNode {
	return &DagNode{Key: keyFor(bt, src.FQN), BuildType: bt, Source: src}
}

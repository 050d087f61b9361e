// Package core holds the error kinds shared across objectplan's pipeline
// (differ, dagbuild, selector, toposort). It is the Go-idiomatic stand-in for
// the source's BEGIN/EXCEPTION/FINALLY macro system: every fallible stage
// returns one of these concrete error types instead of unwinding through a
// handler stack, so callers use errors.As to branch on error kind.
package core

import "fmt"

// RuleViolationError is raised when a rule-set attribute check marked `fail`
// finds a difference.
type RuleViolationError struct {
	FQN     string
	Type    string
	Message string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("rule violation on %s (%s): %s", e.FQN, e.Type, e.Message)
}

// DuplicateIdentityError is raised when two objects share a (type, key) on
// one side of a diff, or two DagNodes share a build-type/fqn key.
type DuplicateIdentityError struct {
	Type string
	Key  string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate identity for type %q key %q", e.Type, e.Key)
}

// UnresolvedDependencyError is raised when an FQN or PQN dependency target
// has no matching object under the build-type truth table.
type UnresolvedDependencyError struct {
	Referrer string
	Target   string
	IsPQN    bool
}

func (e *UnresolvedDependencyError) Error() string {
	kind := "fqn"
	if e.IsPQN {
		kind = "pqn"
	}
	return fmt.Sprintf("unresolved %s dependency %q referenced by %q", kind, e.Target, e.Referrer)
}

// UnresolvedCycleError is raised when the dependency selector exhausts every
// alternative and breaker along a cycle path.
type UnresolvedCycleError struct {
	Path []string // FQNs/keys from point of first detection back to the re-entry node
}

func (e *UnresolvedCycleError) Error() string {
	return fmt.Sprintf("unresolved dependency cycle: %v", e.Path)
}

// UnsortedRemainderError is raised when the topological sorter finishes with
// nodes still in the candidate set: a resolver bug or mis-constructed input.
type UnsortedRemainderError struct {
	Remaining []string
}

func (e *UnsortedRemainderError) Error() string {
	return fmt.Sprintf("topological sort left %d node(s) unsorted: %v", len(e.Remaining), e.Remaining)
}

// StructuralError covers malformed input: a missing required attribute, a
// misplaced element, a duplicate rule definition.
type StructuralError struct {
	Context string // collaborator context: template file + line, when known
	Message string
}

func (e *StructuralError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s", e.Context, e.Message)
	}
	return e.Message
}

// Package plan is the single public entry point that chains every pipeline
// stage (differ, dagbuild, selector, toposort, navigator) into one ordered,
// serializable build plan.
package plan

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/objectplan/objectplan/internal/color"
	"github.com/objectplan/objectplan/internal/config"
	"github.com/objectplan/objectplan/internal/dagbuild"
	"github.com/objectplan/objectplan/internal/differ"
	"github.com/objectplan/objectplan/internal/logger"
	"github.com/objectplan/objectplan/internal/model"
	"github.com/objectplan/objectplan/internal/navigator"
	"github.com/objectplan/objectplan/internal/ruleset"
	"github.com/objectplan/objectplan/internal/selector"
	"github.com/objectplan/objectplan/internal/toposort"
	"github.com/objectplan/objectplan/internal/version"
)

// Step is one flat entry in the plan's output sequence. Action is one of
// build, drop, diff, rebuild, breaker (a scheduled object action) or arrive,
// depart (a navigation event). Type is either the dbobject's type, or "context" for
// a context arrive/depart.
type Step struct {
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
	FQN    string `json:"fqn,omitempty"`
	Value  string `json:"value,omitempty"` // set only for context arrive/depart
}

// Plan is the ordered output of one Generate call.
type Plan struct {
	Version       string    `json:"version"`
	ObjectplanVer string    `json:"objectplan_version"`
	CreatedAt     time.Time `json:"created_at"`
	Steps         []Step    `json:"steps"`
}

// Generate runs the full pipeline: differ -> rebuild-promotion (folded into
// differ.Diff) -> dagbuild -> selector -> toposort -> navigator, and returns
// the ordered Plan.
func Generate(before, after *model.Tree, rules *ruleset.RuleSet, cfg config.Config) (*Plan, error) {
	p, _, err := GenerateWithTree(before, after, rules, cfg)
	return p, err
}

// GenerateWithTree runs the same pipeline as Generate but also returns the
// differ's merged tree, the one place a collaborator can resolve a Step's
// FQN back to its full object (contents, attributes, dependencies) once the
// Plan itself has been flattened to bare action/type/fqn entries.
func GenerateWithTree(before, after *model.Tree, rules *ruleset.RuleSet, cfg config.Config) (*Plan, *model.Tree, error) {
	log := logger.Get()

	diffOpts := differ.Options{Rules: rules, Params: cfg.Params, Eval: ruleset.DefaultEvaluator{}}
	diffResult, err := differ.Diff(before, after, diffOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("plan: diff: %w", err)
	}
	log.Debug("diff complete", "objects", len(diffResult.Merged.All()))

	arena, err := dagbuild.Build(diffResult.Merged, cfg.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("plan: dagbuild: %w", err)
	}
	log.Debug("dag built", "nodes", len(arena.All()))

	if err := selector.Resolve(arena); err != nil {
		return nil, nil, fmt.Errorf("plan: selector: %w", err)
	}

	var sorted []*dagbuild.DagNode
	if cfg.SimpleSort {
		sorted, err = toposort.Simple(arena)
	} else {
		sorted, err = toposort.Smart(arena)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("plan: toposort: %w", err)
	}
	log.Debug("sort complete", "steps", len(sorted))

	navSteps := navigator.Navigate(diffResult.Merged, sorted)

	createdAt := time.Now().Truncate(time.Second)
	if testTime := os.Getenv("OBJECTPLAN_TEST_TIME"); testTime != "" {
		if parsed, perr := time.Parse(time.RFC3339, testTime); perr == nil {
			createdAt = parsed
		}
	}

	p := &Plan{
		Version:       version.PlanFormat(),
		ObjectplanVer: version.App(),
		CreatedAt:     createdAt,
		Steps:         toPlanSteps(navSteps, cfg.IgnoreContexts),
	}
	return p, diffResult.Merged, nil
}

// toPlanSteps flattens the navigator's composite event stream into the
// plan's output sequence: arrive/depart events and scheduled object actions
// each become their own Step, interleaved in emission order, matching the
// plan's on-disk shape. A dagbuild.Exists node never becomes a Step of its
// own (nothing executes for an untouched object kept only as a structural
// anchor), but navigation events attached to the transition into it still
// appear.
func toPlanSteps(navSteps []navigator.Step, ignoreContexts bool) []Step {
	var out []Step
	for _, ns := range navSteps {
		for _, e := range ns.Events {
			if ignoreContexts && isContextEvent(e.Kind) {
				continue
			}
			out = append(out, eventToStep(e))
		}
		if ns.Node == nil || ns.Node.BuildType == dagbuild.Exists {
			continue
		}
		out = append(out, Step{
			Action: string(ns.Node.BuildType),
			Type:   ns.Node.Source.Type,
			FQN:    string(ns.Node.FQN()),
		})
	}
	return out
}

func isContextEvent(k navigator.EventKind) bool {
	return k == navigator.ContextDepart || k == navigator.ContextArrive
}

func eventToStep(e navigator.Event) Step {
	switch e.Kind {
	case navigator.ContextDepart:
		return Step{Action: "depart", Type: "context", FQN: e.Context.Name, Value: e.Context.Value}
	case navigator.ContextArrive:
		return Step{Action: "arrive", Type: "context", FQN: e.Context.Name, Value: e.Context.Value}
	case navigator.ObjectDepart:
		return Step{Action: "depart", Type: e.Object.Type, FQN: string(e.Object.FQN)}
	default: // ObjectArrive
		return Step{Action: "arrive", Type: e.Object.Type, FQN: string(e.Object.FQN)}
	}
}

// HasAnyChanges reports whether the plan schedules any object action at all
// (navigation-only steps don't count as a change).
func (p *Plan) HasAnyChanges() bool {
	for _, s := range p.Steps {
		switch s.Action {
		case string(dagbuild.Build), string(dagbuild.Drop), string(dagbuild.Diff), string(dagbuild.Rebuild):
			return true
		}
	}
	return false
}

// Summary counts steps by action.
type Summary struct {
	Total  int
	Build  int
	Diff   int
	Drop   int
	ByType map[string]TypeSummary
}

// TypeSummary counts one object type's actions.
type TypeSummary struct {
	Build int
	Diff  int
	Drop  int
}

func (p *Plan) summarize() Summary {
	s := Summary{ByType: make(map[string]TypeSummary)}
	for _, step := range p.Steps {
		ts := s.ByType[step.Type]
		switch step.Action {
		case string(dagbuild.Build):
			s.Build++
			ts.Build++
		case string(dagbuild.Diff), string(dagbuild.Rebuild):
			s.Diff++
			ts.Diff++
		case string(dagbuild.Drop):
			s.Drop++
			ts.Drop++
		default:
			continue
		}
		s.ByType[step.Type] = ts
	}
	s.Total = s.Build + s.Diff + s.Drop
	return s
}

// HumanColored renders a Terraform-style summary of the plan.
func (p *Plan) HumanColored(enableColor bool) string {
	c := color.New(enableColor)
	var out strings.Builder

	summary := p.summarize()
	if summary.Total == 0 {
		out.WriteString("No changes detected.\n")
		return out.String()
	}

	out.WriteString(c.FormatPlanHeader(summary.Build, summary.Diff, summary.Drop) + "\n\n")

	var types []string
	for t := range summary.ByType {
		types = append(types, t)
	}
	sort.Strings(types)

	out.WriteString(c.Bold("Summary by type:") + "\n")
	for _, t := range types {
		ts := summary.ByType[t]
		out.WriteString(c.FormatSummaryLine(t, ts.Build, ts.Diff, ts.Drop) + "\n")
	}
	out.WriteString("\n")

	out.WriteString(c.Bold("Plan:") + "\n")
	for _, step := range p.Steps {
		if step.Action == "arrive" || step.Action == "depart" {
			out.WriteString("  " + c.Cyan(describeNavigationStep(step)) + "\n")
			continue
		}
		out.WriteString(c.FormatPlanLine(step.Type, step.FQN, step.Action) + "\n")
	}

	return out.String()
}

func describeNavigationStep(s Step) string {
	if s.Type == "context" {
		if s.Action == "depart" {
			return fmt.Sprintf("< leave %s=%s", s.FQN, s.Value)
		}
		return fmt.Sprintf("> enter %s=%s", s.FQN, s.Value)
	}
	if s.Action == "depart" {
		return fmt.Sprintf("< leave %s", s.FQN)
	}
	return fmt.Sprintf("> enter %s", s.FQN)
}

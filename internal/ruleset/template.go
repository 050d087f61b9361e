package ruleset

import (
	"regexp"
	"strings"

	"github.com/objectplan/objectplan/internal/model"
)

// Evaluator resolves {eval.expr} placeholders in a dependency template. The
// default implementation (DefaultEvaluator) evaluates nothing; collaborators
// embedding objectplan with a real expression language can supply their own.
type Evaluator interface {
	Eval(expr string, before, after *model.ContentNode) (string, error)
}

// DefaultEvaluator returns the expression text unchanged, as a string
// literal. It has no built-in functions and performs no substitution of its
// own.
type DefaultEvaluator struct{}

func (DefaultEvaluator) Eval(expr string, before, after *model.ContentNode) (string, error) {
	return expr, nil
}

var placeholder = regexp.MustCompile(`\{(old|new|eval|param)\.([^}]+)\}`)

// Substitute expands {old.attr}, {new.attr}, {eval.expr} and {param.name}
// placeholders in tmpl. before/after are the matched content nodes the
// firing check compared; params answers {param.name} lookups.
func Substitute(tmpl string, before, after *model.ContentNode, params map[string]string, eval Evaluator) string {
	if eval == nil {
		eval = DefaultEvaluator{}
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		groups := placeholder.FindStringSubmatch(m)
		kind, arg := groups[1], groups[2]
		switch kind {
		case "old":
			return before.Attr(arg)
		case "new":
			return after.Attr(arg)
		case "param":
			return params[arg]
		case "eval":
			out, err := eval.Eval(arg, before, after)
			if err != nil {
				return ""
			}
			return out
		default:
			return m
		}
	})
}

// Render expands a DepTemplate against a matched before/after pair into a
// concrete model.Dep. Returns false (the dependency does not fire) if the
// template resolves to an empty string or any of its placeholders
// substitutes to an empty string.
func (d *DepTemplate) Render(before, after *model.ContentNode, params map[string]string, eval Evaluator) (model.Dep, bool) {
	if d == nil {
		return model.Dep{}, false
	}
	render := func(tmpl string) string {
		for _, m := range placeholder.FindAllString(tmpl, -1) {
			if Substitute(m, before, after, params, eval) == "" {
				return ""
			}
		}
		return strings.TrimSpace(Substitute(tmpl, before, after, params, eval))
	}
	dep := model.Dep{Old: d.Old, Soft: d.Soft}
	if d.FQNTemplate != "" {
		fqn := render(d.FQNTemplate)
		if fqn == "" {
			return model.Dep{}, false
		}
		dep.FQN = model.FQN(fqn)
		return dep, true
	}
	if d.PQNTemplate != "" {
		pqn := render(d.PQNTemplate)
		if pqn == "" {
			return model.Dep{}, false
		}
		dep.PQN = model.PQN(pqn)
		return dep, true
	}
	return model.Dep{}, false
}

// Package diff implements the "objectplan diff" subcommand: read a before
// and after object-tree snapshot plus a rule set, and print the resulting
// build plan.
package diff

import (
	"fmt"
	"os"
	"strings"

	"github.com/objectplan/objectplan/internal/config"
	"github.com/objectplan/objectplan/internal/model"
	"github.com/objectplan/objectplan/internal/plan"
	"github.com/objectplan/objectplan/internal/planio"
	"github.com/objectplan/objectplan/internal/ruleset"
	"github.com/objectplan/objectplan/internal/xmltree"
	"github.com/spf13/cobra"
)

var (
	beforeFile     string
	afterFile      string
	rulesFile      string
	params         []string
	simpleSort     bool
	ignoreContexts bool
	mode           string
	outputJSON     bool
	outputXML      bool
	noColor        bool
)

var DiffCmd = &cobra.Command{
	Use:          "diff",
	Short:        "Compute a build plan between two object trees",
	RunE:         runDiff,
	SilenceUsage: true,
}

func init() {
	DiffCmd.Flags().StringVar(&beforeFile, "before", "", "Path to the before-state object tree XML (required)")
	DiffCmd.Flags().StringVar(&afterFile, "after", "", "Path to the after-state object tree XML (required)")
	DiffCmd.Flags().StringVar(&rulesFile, "rules", "", "Path to the rule set XML (required)")
	DiffCmd.Flags().StringSliceVar(&params, "param", nil, "Invocation parameter as name=value, repeatable")
	DiffCmd.Flags().BoolVar(&simpleSort, "simple-sort", false, "Use the strict DFS sort instead of the locality-biased smart sort")
	DiffCmd.Flags().BoolVar(&ignoreContexts, "ignore-contexts", false, "Suppress context arrive/depart events in the plan")
	DiffCmd.Flags().StringVar(&mode, "mode", "build-and-drop", "Build mode: build-and-drop, build-only, or drop-only")
	DiffCmd.Flags().BoolVar(&outputJSON, "output-json", false, "Print the plan as JSON instead of XML")
	DiffCmd.Flags().BoolVar(&outputXML, "output-xml", false, "Print the plan as XML (default when neither flag is given: human summary)")
	DiffCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored human output")

	for _, name := range []string{"before", "after", "rules"} {
		_ = DiffCmd.MarkFlagRequired(name)
	}
}

func runDiff(cmd *cobra.Command, args []string) error {
	before, err := loadTree(beforeFile)
	if err != nil {
		return fmt.Errorf("loading before-state: %w", err)
	}
	after, err := loadTree(afterFile)
	if err != nil {
		return fmt.Errorf("loading after-state: %w", err)
	}

	rulesF, err := os.Open(rulesFile)
	if err != nil {
		return fmt.Errorf("opening rules: %w", err)
	}
	defer rulesF.Close()
	rules, err := ruleset.Load(rulesF)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	cfg := config.New()
	cfg.SimpleSort = simpleSort
	cfg.IgnoreContexts = ignoreContexts
	cfg.Mode, err = parseMode(mode)
	if err != nil {
		return err
	}
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("malformed --param %q, want name=value", p)
		}
		cfg.Params[name] = value
	}

	result, err := plan.Generate(before, after, rules, cfg)
	if err != nil {
		return fmt.Errorf("generating plan: %w", err)
	}

	switch {
	case outputJSON:
		return planio.WriteJSON(os.Stdout, result)
	case outputXML:
		return planio.WriteXML(os.Stdout, result)
	default:
		fmt.Print(result.HumanColored(!noColor))
		return nil
	}
}

func loadTree(path string) (*model.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return xmltree.Parse(f)
}

func parseMode(s string) (config.BuildMode, error) {
	switch s {
	case "", "build-and-drop":
		return config.ModeBuildAndDrop, nil
	case "build-only":
		return config.ModeBuildOnly, nil
	case "drop-only":
		return config.ModeDropOnly, nil
	default:
		return 0, fmt.Errorf("unknown --mode %q", s)
	}
}

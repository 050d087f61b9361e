// Package apply implements the "objectplan apply" subcommand: either
// generate a plan from a before/after object-tree pair, or load a
// previously-generated plan from disk, then execute it against a live
// Postgres database through the pgcollab collaborator.
package apply

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/objectplan/objectplan/internal/collab/dsncollab"
	"github.com/objectplan/objectplan/internal/collab/pgcollab"
	"github.com/objectplan/objectplan/internal/config"
	"github.com/objectplan/objectplan/internal/model"
	"github.com/objectplan/objectplan/internal/plan"
	"github.com/objectplan/objectplan/internal/planio"
	"github.com/objectplan/objectplan/internal/ruleset"
	"github.com/objectplan/objectplan/internal/version"
	"github.com/objectplan/objectplan/internal/xmltree"
)

var (
	dsn            string
	beforeFile     string
	afterFile      string
	rulesFile      string
	planFile       string
	planFormat     string
	autoApprove    bool
	simpleSort     bool
	ignoreContexts bool
	mode           string
)

var ApplyCmd = &cobra.Command{
	Use:          "apply",
	Short:        "Execute a build plan against a live database",
	Long:         "Apply a migration plan to a database. Either provide --before/--after/--rules to generate a plan, or --plan to execute a plan generated earlier by \"objectplan diff\".",
	RunE:         runApply,
	SilenceUsage: true,
}

func init() {
	ApplyCmd.Flags().StringVar(&dsn, "dsn", "", "Target database connection string (required)")
	ApplyCmd.Flags().StringVar(&beforeFile, "before", "", "Path to the before-state object tree XML")
	ApplyCmd.Flags().StringVar(&afterFile, "after", "", "Path to the after-state object tree XML")
	ApplyCmd.Flags().StringVar(&rulesFile, "rules", "", "Path to the rule set XML")
	ApplyCmd.Flags().StringVar(&planFile, "plan", "", "Path to a pre-generated plan file (alternative to --before/--after/--rules)")
	ApplyCmd.Flags().StringVar(&planFormat, "plan-format", "xml", "Format of --plan: xml or json")
	ApplyCmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Apply without prompting for confirmation")
	ApplyCmd.Flags().BoolVar(&simpleSort, "simple-sort", false, "Use the strict DFS sort instead of the locality-biased smart sort")
	ApplyCmd.Flags().BoolVar(&ignoreContexts, "ignore-contexts", false, "Suppress context arrive/depart events in the generated plan")
	ApplyCmd.Flags().StringVar(&mode, "mode", "build-and-drop", "Build mode: build-and-drop, build-only, or drop-only")

	ApplyCmd.MarkFlagsMutuallyExclusive("plan", "before")
	ApplyCmd.MarkFlagsMutuallyExclusive("plan", "after")
	ApplyCmd.MarkFlagsMutuallyExclusive("plan", "rules")
	_ = ApplyCmd.MarkFlagRequired("dsn")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, tree, err := resolvePlanAndTree(ctx)
	if err != nil {
		return err
	}

	if !p.HasAnyChanges() {
		fmt.Println("No changes detected.")
		return nil
	}

	fmt.Print(p.HumanColored(true))
	if !autoApprove && !confirm() {
		fmt.Println("Apply cancelled.")
		return nil
	}

	connCfg, err := dsncollab.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parsing --dsn: %w", err)
	}
	conn, err := pgx.Connect(ctx, connCfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	exec := pgcollab.New(conn, tree)
	if err := exec.Validate(ctx, p); err != nil {
		return fmt.Errorf("validating plan: %w", err)
	}
	if err := exec.Apply(ctx, p); err != nil {
		return fmt.Errorf("applying plan: %w", err)
	}

	fmt.Println("Apply complete.")
	return nil
}

// resolvePlanAndTree returns the plan to execute together with the object
// tree a pgcollab.Executor needs to resolve each step's DDL. When --plan was
// given, there is no tree to resolve against: an empty tree means every step
// except bare context arrive/depart resolves to nothing, matching a plan
// file whose source trees are no longer available.
func resolvePlanAndTree(ctx context.Context) (*plan.Plan, *model.Tree, error) {
	if planFile != "" {
		p, err := loadPlan(planFile, planFormat)
		if err != nil {
			return nil, nil, err
		}
		empty, _ := model.NewTree(nil)
		return p, empty, nil
	}

	before, err := loadTree(beforeFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading before-state: %w", err)
	}
	after, err := loadTree(afterFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading after-state: %w", err)
	}
	rulesF, err := os.Open(rulesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening rules: %w", err)
	}
	defer rulesF.Close()
	rules, err := ruleset.Load(rulesF)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rules: %w", err)
	}

	cfg := config.New()
	cfg.SimpleSort = simpleSort
	cfg.IgnoreContexts = ignoreContexts
	cfg.Mode, err = parseMode(mode)
	if err != nil {
		return nil, nil, err
	}

	p, tree, err := plan.GenerateWithTree(before, after, rules, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("generating plan: %w", err)
	}
	return p, tree, nil
}

func loadTree(path string) (*model.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return xmltree.Parse(f)
}

func loadPlan(path, format string) (*plan.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plan: %w", err)
	}
	defer f.Close()
	var p *plan.Plan
	switch format {
	case "json":
		p, err = planio.ReadJSON(f)
	default:
		p, err = planio.ReadXML(f)
	}
	if err != nil {
		return nil, err
	}
	if p.Version != version.PlanFormat() {
		return nil, fmt.Errorf("plan format version %q is not supported (want %q)", p.Version, version.PlanFormat())
	}
	return p, nil
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

func confirm() bool {
	fmt.Print("\nDo you want to apply these changes? Only 'yes' will be accepted: ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/hooks"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/script"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

// plans returns the plans command group, covering plan management and the
// deployment lifecycle: prepare, run and rollback.
//
// Example usage:
//
//	# Promote the HR schema from dev to prod, ignoring synonyms
//	leaf plans add --name promote --source dev --target prod --schemas HR \
//	  --exclude-types SYNONYM --disable-drop-types TABLE
//
//	# Preview, then deploy everything changed since March 1st
//	leaf plans run promote --cutoff-date 2025.03.01 --dry
//	leaf plans run promote --cutoff-date 2025.03.01
//
//	# Undo the last applied deployment
//	leaf plans rollback promote
func plans(p appParams) *cli.Command {
	return &cli.Command{
		Name:  "plans",
		Usage: "Manage and run deployment plans",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a plan",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "unique plan name", Required: true},
					&cli.StringFlag{Name: "source", Usage: "source connection name", Required: true},
					&cli.StringFlag{Name: "target", Usage: "target connection name", Required: true},
					&cli.StringSliceFlag{Name: "schemas", Usage: "schemas to compare", Required: true},
					&cli.StringSliceFlag{Name: "exclude-types", Usage: "object types to ignore (defaults to rules.exclude_types)"},
					&cli.StringSliceFlag{Name: "exclude-names", Usage: "object name patterns to ignore, e.g. TMP_*"},
					&cli.StringSliceFlag{Name: "disable-drop-types", Usage: "object types that are never dropped"},
					&cli.BoolFlag{Name: "disable-all-drops", Usage: "never drop objects or columns"},
					&cli.BoolFlag{Name: "include-unknown-kinds", Usage: "diff object types leaf has no ordering for"},
					&cli.BoolFlag{Name: "fail-fast", Usage: "stop deployments at the first failed change"},
					&cli.StringFlag{Name: "hooks", Usage: "YAML or JSON file with hook scripts"},
					&cli.BoolFlag{Name: "disable-hooks", Usage: "never run hooks for this plan"},
					&cli.StringFlag{Name: "schedule", Usage: "cron schedule for `leaf schedule`, e.g. \"0 2 * * *\""},
					&cli.BoolFlag{Name: "skip-validation", Usage: "do not check that the schemas exist on both connections"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return addPlan(ctx, cmd, p)
				},
			},
			{
				Name:  "list",
				Usage: "List plans",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listPlans(ctx, cmd, p)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a plan and its recent deployments",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return showPlan(ctx, cmd, p)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a plan and its deployment history",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}

					if err := p.Store.DeletePlan(ctx, name); err != nil {
						return err
					}

					fmt.Fprintf(output(cmd), "Removed plan %s\n", name)
					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "Remove every plan and its deployment history",
				Flags: []cli.Flag{yesFlag("confirm removal")},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireYes(cmd, "prune plans"); err != nil {
						return err
					}

					n, err := p.Store.PrunePlans(ctx)
					if err != nil {
						return err
					}

					fmt.Fprintf(output(cmd), "Removed %d plans\n", n)
					return nil
				},
			},
			{
				Name:      "reset",
				Usage:     "Force a plan back to IDLE",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}

					plan, err := p.Controller.Reset(ctx, name)
					if err != nil {
						return err
					}

					fmt.Fprintf(output(cmd), "Plan %s is %s\n", plan.Name, plan.Status)
					return nil
				},
			},
			{
				Name:      "prepare",
				Usage:     "Compute and store a deployment without applying it",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{cutoffFlag(), failFastFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return preparePlan(ctx, cmd, p)
				},
			},
			{
				Name:      "run",
				Usage:     "Prepare and apply a deployment",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					cutoffFlag(),
					failFastFlag(),
					&cli.BoolFlag{Name: "dry", Aliases: []string{"d"}, Usage: "only show the changes that would be applied"},
					&cli.BoolFlag{Name: "with-hooks", Usage: "run the prepare hooks during a dry run"},
					&cli.BoolFlag{Name: "scripts", Usage: "write deploy.sql and rollback.sql to scripts_dir"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write deploy.sql and rollback.sql under this directory"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runPlan(ctx, cmd, p)
				},
			},
			{
				Name:      "rollback",
				Usage:     "Undo the plan's last applied deployment",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return rollbackPlan(ctx, cmd, p)
				},
			},
		},
	}
}

func addPlan(ctx context.Context, cmd *cli.Command, p appParams) error {
	source, err := connectionByName(ctx, p, cmd.String("source"))
	if err != nil {
		return err
	}
	target, err := connectionByName(ctx, p, cmd.String("target"))
	if err != nil {
		return err
	}

	excludeTypes := p.Config.Rules.ExcludeTypes
	if cmd.IsSet("exclude-types") {
		excludeTypes = cmd.StringSlice("exclude-types")
	}

	plan := &store.Plan{
		Name:     strings.TrimSpace(cmd.String("name")),
		SourceID: source.ID,
		TargetID: target.ID,
		Schemas:  normalizeSchemas(cmd.StringSlice("schemas")),
		Rules: schema.RuleSet{
			ExcludedTypes:       schema.ParseObjectKinds(excludeTypes),
			ExcludedNames:       cmd.StringSlice("exclude-names"),
			DisabledDropTypes:   schema.ParseObjectKinds(cmd.StringSlice("disable-drop-types")),
			DisableAllDrops:     cmd.Bool("disable-all-drops"),
			IncludeUnknownKinds: cmd.Bool("include-unknown-kinds"),
			FailFast:            cmd.Bool("fail-fast"),
		},
		DisableHooks: cmd.Bool("disable-hooks"),
		Schedule:     strings.TrimSpace(cmd.String("schedule")),
	}

	if err := plan.Rules.Validate(); err != nil {
		return err
	}

	if plan.Schedule != "" {
		if _, err := cron.ParseStandard(plan.Schedule); err != nil {
			return errors.Wrapf(err, "invalid schedule %q", plan.Schedule)
		}
	}

	if path := cmd.String("hooks"); path != "" {
		h, err := hooks.LoadFile(path)
		if err != nil {
			return err
		}
		plan.Hooks = *h
	}

	if !cmd.Bool("skip-validation") {
		for _, c := range []*store.Connection{source, target} {
			if err := validateSchemas(ctx, p, c, plan.Schemas); err != nil {
				return err
			}
		}
	}

	if err := p.Store.CreatePlan(ctx, plan); err != nil {
		return err
	}

	fmt.Fprintf(output(cmd), "Added plan %s (%s -> %s, schemas: %s)\n",
		plan.Name, source.Name, target.Name, strings.Join(plan.Schemas, ", "))
	return nil
}

func listPlans(ctx context.Context, cmd *cli.Command, p appParams) error {
	list, err := p.Store.ListPlans(ctx)
	if err != nil {
		return err
	}

	w := output(cmd)
	if len(list) == 0 {
		fmt.Fprintln(w, "No plans.")
		return nil
	}

	names, err := connectionNames(ctx, p)
	if err != nil {
		return err
	}

	table := newTable("NAME", "SOURCE", "TARGET", "SCHEMAS", "STATUS", "SCHEDULE")
	for _, plan := range list {
		table.AddRow(
			plan.Name,
			names[plan.SourceID],
			names[plan.TargetID],
			strings.Join(plan.Schemas, ","),
			plan.Status,
			plan.Schedule,
		)
	}
	fmt.Fprintln(w, table)
	return nil
}

func showPlan(ctx context.Context, cmd *cli.Command, p appParams) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	plan, err := p.planByName(ctx, name)
	if err != nil {
		return err
	}

	names, err := connectionNames(ctx, p)
	if err != nil {
		return err
	}

	w := output(cmd)
	table := newTable("Plan:", plan.Name)
	table.AddRow("Status:", plan.Status)
	table.AddRow("Source:", names[plan.SourceID])
	table.AddRow("Target:", names[plan.TargetID])
	table.AddRow("Schemas:", strings.Join(plan.Schemas, ", "))
	table.AddRow("Excluded types:", joinKinds(plan.Rules.ExcludedTypes))
	table.AddRow("Excluded names:", strings.Join(plan.Rules.ExcludedNames, ", "))
	table.AddRow("Disabled drops:", joinKinds(plan.Rules.DisabledDropTypes))
	table.AddRow("Disable all drops:", plan.Rules.DisableAllDrops)
	table.AddRow("Fail fast:", plan.Rules.FailFast)
	table.AddRow("Hooks:", describeHooks(plan))
	table.AddRow("Schedule:", plan.Schedule)
	fmt.Fprintln(w, table)

	recent, err := p.Store.ListDeployments(ctx, store.ListOptions{PlanID: plan.ID, Limit: 5})
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	printDeployments(w, map[int64]string{plan.ID: plan.Name}, recent)
	return nil
}

func preparePlan(ctx context.Context, cmd *cli.Command, p appParams) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	opts, err := runOptions(cmd)
	if err != nil {
		return err
	}

	res, err := p.Controller.Prepare(ctx, name, opts)
	printResult(output(cmd), res)
	if err != nil {
		return err
	}

	fmt.Fprintf(output(cmd), "\nApply with: leaf deployments apply %d\n", res.Deployment.ID)
	return nil
}

func runPlan(ctx context.Context, cmd *cli.Command, p appParams) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	opts, err := runOptions(cmd)
	if err != nil {
		return err
	}

	w := output(cmd)
	if cmd.Bool("dry") {
		preview, err := p.Controller.DryRun(ctx, name, opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "Dry run of plan %s (cutoff %s)\n\n", preview.Plan.Name, preview.Cutoff.Format(time.RFC3339))
		printChangeSet(w, preview.ChangeSet)
		return writeScripts(cmd, p, preview.Plan.Name, time.Now(), preview.ChangeSet)
	}

	res, err := p.Controller.Run(ctx, name, opts)
	defer p.flushMetrics()

	printResult(w, res)
	if res != nil && res.Deployment != nil && res.Deployment.ChangeSet != nil {
		if werr := writeScripts(cmd, p, res.Plan.Name, res.Deployment.StartedAt, res.Deployment.ChangeSet); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func rollbackPlan(ctx context.Context, cmd *cli.Command, p appParams) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	res, err := p.Controller.Rollback(ctx, name)
	defer p.flushMetrics()

	w := output(cmd)
	if res != nil {
		fmt.Fprintf(w, "Rollback of deployment %d: %s (%d rolled back, %d failed)\n\n",
			res.Deployment.ID, res.Rollback.Status, res.Rollback.Summary.Succeeded, res.Rollback.Summary.Failed)
		printChanges(w, res.Changes)
	}

	var incomplete *deploy.RollbackIncompleteError
	if errors.As(err, &incomplete) {
		fmt.Fprintf(w, "\nPlan %s is FAILED; fix the target and run: leaf plans reset %s\n", name, name)
	}
	return err
}

// writeScripts writes cs as scripts when --output or --scripts was given.
func writeScripts(cmd *cli.Command, p appParams, plan string, at time.Time, cs *schema.ChangeSet) error {
	dir := cmd.String("output")
	if dir == "" && cmd.Bool("scripts") {
		dir = p.Config.ScriptsDir
	}
	if dir == "" {
		return nil
	}

	out, err := script.Write(dir, plan, at, cs)
	if err != nil {
		return err
	}

	fmt.Fprintf(output(cmd), "Scripts written to %s\n", out)
	return nil
}

func connectionByName(ctx context.Context, p appParams, name string) (*store.Connection, error) {
	c, err := p.Store.GetConnectionByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.Errorf("connection %s not found", name)
	}
	return c, err
}

func connectionNames(ctx context.Context, p appParams) (map[int64]string, error) {
	conns, err := p.Store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(conns))
	for _, c := range conns {
		names[c.ID] = c.Name
	}
	return names, nil
}

func validateSchemas(ctx context.Context, p appParams, c *store.Connection, schemas []string) error {
	session, err := p.Registry.Open(ctx, c.Connection)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	return connector.ValidateSchemas(ctx, c.Name, session, schemas)
}

func normalizeSchemas(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinKinds(kinds []schema.ObjectKind) string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}

func describeHooks(plan *store.Plan) string {
	if plan.DisableHooks {
		return "disabled"
	}

	var stages []string
	for _, stage := range hooks.Stages() {
		if n := len(plan.Hooks.Scripts(stage)); n > 0 {
			stages = append(stages, fmt.Sprintf("%s (%d)", stage, n))
		}
	}

	if len(stages) == 0 {
		return "none"
	}
	return strings.Join(stages, ", ")
}

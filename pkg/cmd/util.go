package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/urfave/cli/v3"
)

const maxColWidth = 60

// output returns the writer user-facing output goes to.
func output(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

func newTable(headers ...any) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	table.Wrap = true
	table.AddRow(headers...)
	return table
}

// requireArg returns the command's single positional argument.
func requireArg(cmd *cli.Command, name string) (string, error) {
	arg := strings.TrimSpace(cmd.Args().First())
	if arg == "" {
		return "", errors.Errorf("missing required argument: %s", name)
	}
	return arg, nil
}

// requireYes guards destructive commands behind --yes.
func requireYes(cmd *cli.Command, what string) error {
	if !cmd.Bool("yes") {
		return errors.Errorf("refusing to %s without --yes", what)
	}
	return nil
}

func yesFlag(usage string) cli.Flag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   usage,
	}
}

func cutoffFlag() cli.Flag {
	return &cli.StringFlag{
		Name: "cutoff-date",
		Usage: fmt.Sprintf(
			"only include objects changed after this date (%s or %s); defaults to the start of the last successful deployment",
			"2006.01.02", "2006.01.02:15.04.05",
		),
		Config: cli.StringConfig{TrimSpace: true},
	}
}

func failFastFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "fail-fast",
		Usage: "stop at the first failed change (overrides the plan's setting)",
	}
}

// runOptions reads the deployment flags shared by prepare, run and apply.
func runOptions(cmd *cli.Command) (deploy.Options, error) {
	var opts deploy.Options

	if cmd.IsSet("cutoff-date") {
		cutoff, err := schema.ParseCutoff(cmd.String("cutoff-date"))
		if err != nil {
			return opts, err
		}
		opts.Cutoff = &cutoff
	}

	if cmd.IsSet("fail-fast") {
		failFast := cmd.Bool("fail-fast")
		opts.FailFast = &failFast
	}

	opts.WithHooks = cmd.Bool("with-hooks")
	return opts, nil
}

// flushMetrics writes the metrics textfile when one is configured. Failures
// are logged; they never fail the command.
func (p appParams) flushMetrics() {
	if p.Config == nil || p.Config.MetricsFile == "" {
		return
	}

	if err := p.Metrics.WriteToTextfile(p.Config.MetricsFile); err != nil {
		slog.Warn("Failed to write metrics", "err", err)
	}
}

func (p appParams) planByName(ctx context.Context, name string) (*store.Plan, error) {
	plan, err := p.Store.GetPlanByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.Errorf("plan %s not found", name)
	}
	return plan, err
}

func printChangeSet(w io.Writer, cs *schema.ChangeSet) {
	if cs.Empty() {
		fmt.Fprintln(w, "No changes.")
		return
	}

	sum := cs.Summary()
	fmt.Fprintf(w, "%d changes: %d creates, %d replaces, %d drops\n\n", len(cs.Ops), sum.Creates, sum.Replaces, sum.Drops)

	table := newTable("#", "OP", "KIND", "OBJECT", "WARNING")
	for i, op := range cs.Ops {
		table.AddRow(i+1, op.Type, op.Identity.Kind, op.Identity.QualifiedName(), op.Warning)
	}
	fmt.Fprintln(w, table)
}

func printChanges(w io.Writer, changes []*store.Change) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}

	table := newTable("#", "OP", "KIND", "OBJECT", "STATUS", "ROLLBACK", "ERROR")
	for _, c := range changes {
		msg := c.Error
		if msg == "" {
			msg = c.RollbackError
		}
		table.AddRow(c.Position+1, c.Op, c.Identity.Kind, c.Identity.QualifiedName(), c.Status, c.RollbackStatus, msg)
	}
	fmt.Fprintln(w, table)
}

func printDeployment(w io.Writer, plan string, d *store.Deployment) {
	table := uitable.New()
	table.MaxColWidth = maxColWidth * 2
	table.Wrap = true

	table.AddRow("Deployment:", d.ID)
	table.AddRow("Plan:", plan)
	table.AddRow("Status:", d.Status)
	if d.Cutoff != nil {
		table.AddRow("Cutoff:", d.Cutoff.Format(time.RFC3339))
	}
	table.AddRow("Fail fast:", d.FailFast)
	table.AddRow("Started:", fmt.Sprintf("%s (%s)", d.StartedAt.Format(time.RFC3339), humanize.Time(d.StartedAt)))
	if d.EndedAt != nil {
		table.AddRow("Duration:", d.Duration().Round(time.Millisecond))
	}
	table.AddRow("Summary:", fmt.Sprintf(
		"%d succeeded, %d failed, %d skipped",
		d.Summary.Succeeded, d.Summary.Failed, d.Summary.Skipped,
	))
	if d.Error != "" {
		table.AddRow("Error:", d.Error)
	}

	fmt.Fprintln(w, table)
}

func printResult(w io.Writer, res *deploy.Result) {
	if res == nil || res.Deployment == nil {
		return
	}

	printDeployment(w, res.Plan.Name, res.Deployment)
	fmt.Fprintln(w)
	printChanges(w, res.Changes)
}

// printDeployments lists deployments, newest first as returned by the store.
// plans maps plan IDs to names.
func printDeployments(w io.Writer, plans map[int64]string, list []*store.Deployment) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No deployments.")
		return
	}

	table := newTable("ID", "PLAN", "STATUS", "OPS", "FAILED", "STARTED", "DURATION")
	for _, d := range list {
		ops := 0
		if d.ChangeSet != nil {
			ops = len(d.ChangeSet.Ops)
		}

		var duration any = "-"
		if d.EndedAt != nil {
			duration = d.Duration().Round(time.Millisecond)
		}

		table.AddRow(d.ID, plans[d.PlanID], d.Status, ops, d.Summary.Failed, humanize.Time(d.StartedAt), duration)
	}
	fmt.Fprintln(w, table)
}

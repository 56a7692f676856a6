package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/script"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/urfave/cli/v3"
)

// deployments returns the deployments command group for inspecting history
// and applying prepared deployments.
func deployments(p appParams) *cli.Command {
	return &cli.Command{
		Name:    "deployments",
		Aliases: []string{"deploy"},
		Usage:   "Inspect and apply deployments",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List deployments",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "plan", Usage: "only list deployments of this plan"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "maximum number of deployments (0 for all)"},
					&cli.StringFlag{
						Name:  "order",
						Value: "desc",
						Usage: "sort by start time: asc or desc",
						Validator: func(v string) error {
							switch strings.ToLower(v) {
							case "asc", "desc":
								return nil
							}
							return errors.Errorf("invalid order %q: must be asc or desc", v)
						},
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listDeployments(ctx, cmd, p)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a deployment and its changes",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "scripts", Usage: "print the deploy and rollback scripts"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return showDeployment(ctx, cmd, p)
				},
			},
			{
				Name:      "apply",
				Usage:     "Apply a prepared deployment",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{failFastFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := deploymentID(cmd)
					if err != nil {
						return err
					}

					opts, err := runOptions(cmd)
					if err != nil {
						return err
					}

					res, err := p.Controller.Apply(ctx, id, opts)
					defer p.flushMetrics()

					printResult(output(cmd), res)
					return err
				},
			},
		},
	}
}

func listDeployments(ctx context.Context, cmd *cli.Command, p appParams) error {
	opts := store.ListOptions{
		Limit:     int(cmd.Int("limit")),
		Ascending: strings.EqualFold(cmd.String("order"), "asc"),
	}

	names := make(map[int64]string)
	if name := strings.TrimSpace(cmd.String("plan")); name != "" {
		plan, err := p.planByName(ctx, name)
		if err != nil {
			return err
		}
		opts.PlanID = plan.ID
		names[plan.ID] = plan.Name
	} else {
		all, err := p.Store.ListPlans(ctx)
		if err != nil {
			return err
		}
		for _, plan := range all {
			names[plan.ID] = plan.Name
		}
	}

	list, err := p.Store.ListDeployments(ctx, opts)
	if err != nil {
		return err
	}

	printDeployments(output(cmd), names, list)
	return nil
}

func showDeployment(ctx context.Context, cmd *cli.Command, p appParams) error {
	id, err := deploymentID(cmd)
	if err != nil {
		return err
	}

	d, err := p.Store.GetDeployment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("deployment %d not found", id)
	}
	if err != nil {
		return err
	}

	plan, err := p.Store.GetPlan(ctx, d.PlanID)
	if err != nil {
		return err
	}

	changes, err := p.Store.ListChanges(ctx, d.ID)
	if err != nil {
		return err
	}

	rollbacks, err := p.Store.ListRollbacks(ctx, d.ID)
	if err != nil {
		return err
	}

	w := output(cmd)
	printDeployment(w, plan.Name, d)
	fmt.Fprintln(w)
	printChanges(w, changes)

	if len(rollbacks) > 0 {
		fmt.Fprintln(w)
		table := newTable("ROLLBACK", "STATUS", "ROLLED BACK", "FAILED", "STARTED", "ERROR")
		for _, r := range rollbacks {
			table.AddRow(r.ID, r.Status, r.Summary.Succeeded, r.Summary.Failed, r.StartedAt.Format("2006-01-02 15:04:05"), r.Error)
		}
		fmt.Fprintln(w, table)
	}

	if cmd.Bool("scripts") && d.ChangeSet != nil {
		s := script.Render(d.ChangeSet)
		fmt.Fprintf(w, "\n-- %s\n%s\n-- %s\n%s", script.DeployFile, s.Deploy, script.RollbackFile, s.Rollback)
	}

	return nil
}

func deploymentID(cmd *cli.Command) (int64, error) {
	arg, err := requireArg(cmd, "id")
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid deployment id %q", arg)
	}
	return id, nil
}

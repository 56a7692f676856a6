package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

// schedule returns the command that runs scheduled plans in the foreground
// until interrupted.
func schedule(p appParams) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run plans on their schedules",
		Description: `Every plan with a schedule is run with its stored rules and the default
cutoff. Runs of a plan that is already busy are skipped.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "timezone",
				Value: "UTC",
				Usage: "IANA time zone the schedules are evaluated in",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "print the scheduled plans and exit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			loc, err := time.LoadLocation(cmd.String("timezone"))
			if err != nil {
				return errors.Wrapf(err, "invalid timezone %q", cmd.String("timezone"))
			}

			s := newScheduler(p, loc)
			n, err := s.Load(ctx)
			if err != nil {
				return err
			}

			w := output(cmd)
			if cmd.Bool("list") || n == 0 {
				printSchedule(w, s.Entries())
				return nil
			}

			fmt.Fprintf(w, "Scheduling %d plans (%s). Press Ctrl+C to stop.\n", n, loc)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return s.Run(ctx)
		},
	}
}

func newScheduler(p appParams, loc *time.Location) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		Plans:    p.Store,
		Runner:   p.Controller,
		Location: loc,
		AfterRun: func(string, *deploy.Result, error) {
			p.flushMetrics()
		},
	})
}

func printSchedule(w io.Writer, entries []scheduler.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No scheduled plans.")
		return
	}

	table := newTable("PLAN", "SCHEDULE")
	for _, e := range entries {
		table.AddRow(e.Plan, e.Schedule)
	}
	fmt.Fprintln(w, table)
}

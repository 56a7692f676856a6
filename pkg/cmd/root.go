package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pseudomuto/leaf/pkg/config"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/consts"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/metrics"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}

	// appParams holds the services shared by the leaf commands.
	appParams struct {
		fx.In

		Config     *config.Config
		Store      *store.Store
		Registry   *connector.Registry
		Controller *deploy.Controller
		Metrics    *metrics.Metrics
	}
)

// Run builds the leaf CLI from the provided commands and runs it with the
// process arguments once the fx app starts, shutting the app down with exit
// code 1 when the command fails. Stopping the app cancels the command's
// context and waits for it to return.
//
// The --config flag is resolved by config.Module before any command is
// constructed; it is declared here so it shows up in help and is accepted by
// the parser.
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := newApp(p.Version.Version, p.Commands)
	ctx, cancel := context.WithCancel(p.Ctx)
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				code := 0
				if err := app.Run(ctx, p.Args); err != nil {
					slog.Error("Error running command", "err", err)
					code = 1
				}

				_ = p.Shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func newApp(version string, commands []*cli.Command) *cli.Command {
	return &cli.Command{
		Name:  "leaf",
		Usage: "Promote schema objects between databases",
		Description: `leaf compares the schema objects of a source database with a target,
computes an ordered set of changes that brings the target in line, and applies
them with a recorded, reversible deployment history.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the leaf config file",
				Sources: cli.EnvVars(consts.EnvPrefix + "CONFIG"),
				Value:   consts.ConfigFile,
			},
		},
		Commands: commands,
	}
}

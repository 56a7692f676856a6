package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/pseudomuto/leaf/pkg/cmd"
	"github.com/pseudomuto/leaf/pkg/config"
	"github.com/pseudomuto/leaf/pkg/store"
	"go.uber.org/fx"
)

// NB: These are set by GoReleaser during a build.
var (
	version string
	commit  string
	date    string
)

func main() {
	app := fx.New(
		fx.Supply(
			os.Args,
			&cmd.Version{Version: version, Commit: commit, Timestamp: date},
		),
		fx.Provide(context.Background),
		config.Module,
		store.Module,
		cmd.Module,
		fx.NopLogger,
		// Claimed applies and rollbacks run to completion after a signal.
		fx.StopTimeout(time.Hour),
	)

	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "leaf:", err)
		os.Exit(1)
	}

	app.Run()
}

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/config"
	"github.com/pseudomuto/leaf/pkg/consts"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/urfave/cli/v3"
)

// initCmd returns the init command, which writes a default leaf.yaml and
// creates the state database it points to.
//
// Example usage:
//
//	# Write leaf.yaml in the current directory
//	leaf init
//
//	# Overwrite an existing file, keeping state under /var/lib/leaf
//	leaf init --force --database /var/lib/leaf/leaf.db
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default leaf.yaml and create the state database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:   "path",
				Usage:  "where to write the config file",
				Value:  consts.ConfigFile,
				Config: cli.StringConfig{TrimSpace: true},
			},
			&cli.StringFlag{
				Name:   "database",
				Usage:  "the state database path to configure",
				Config: cli.StringConfig{TrimSpace: true},
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "overwrite an existing config file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("path")
			if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
				return errors.Errorf("%s already exists, use --force to overwrite it", path)
			}

			cfg := config.Default()
			if db := cmd.String("database"); db != "" {
				cfg.Database = db
			}

			var buf bytes.Buffer
			if err := cfg.Write(&buf); err != nil {
				return err
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, consts.ModeDir); err != nil {
					return errors.Wrapf(err, "failed to create directory: %s", dir)
				}
			}

			if err := os.WriteFile(path, buf.Bytes(), consts.ModeFile); err != nil {
				return errors.Wrapf(err, "failed to write file: %s", path)
			}

			s, err := store.New(ctx, store.Config{Path: cfg.Database})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			w := output(cmd)
			fmt.Fprintf(w, "Wrote %s\n", path)
			fmt.Fprintf(w, "State database: %s\n", cfg.Database)
			return nil
		},
	}
}

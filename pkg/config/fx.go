package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/juju/clock"
	"github.com/pseudomuto/leaf/pkg/consts"
	"go.uber.org/fx"
)

// Module provides the *Config, loaded from the path given by --config,
// LEAF_CONFIG or leaf.yaml in the working directory, and installs the
// configured slog handler as the default logger. A missing file yields the
// defaults so commands like init and help work anywhere.
var Module = fx.Module("config",
	fx.Provide(
		func(args []string) (*Config, error) {
			return Load(Path(args))
		},
		func() clock.Clock {
			return clock.WallClock
		},
	),
	fx.Invoke(func(cfg *Config) error {
		logger, err := cfg.Logger(os.Stderr)
		if err != nil {
			return err
		}

		slog.SetDefault(logger)
		return nil
	}),
)

// Path returns the config file named by the --config (or -c) flag in args,
// then LEAF_CONFIG, then the default leaf.yaml.
func Path(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}

		for _, flag := range []string{"--config", "-config", "-c"} {
			if arg == flag && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(arg, flag+"="); ok {
				return v
			}
		}
	}

	if path := os.Getenv(consts.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return consts.ConfigFile
}

package store

import (
	"context"

	"github.com/juju/clock"
	"github.com/pseudomuto/leaf/pkg/config"
	"go.uber.org/fx"
)

var Module = fx.Module("store", fx.Provide(
	// Opens the state database named by the configuration and closes it when
	// the application stops.
	func(lc fx.Lifecycle, cfg *config.Config, clk clock.Clock) (*Store, error) {
		s, err := New(context.Background(), Config{Path: cfg.Database, Clock: clk})
		if err != nil {
			return nil, err
		}

		lc.Append(fx.StopHook(s.Close))
		return s, nil
	},
))

package cmd

import (
	"github.com/juju/clock"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/metrics"
	"github.com/pseudomuto/leaf/pkg/store"
	"go.uber.org/fx"
)

var Module = fx.Module("cli",
	fx.Provide(
		newRegistry,
		metrics.New,
		func(s *store.Store, r *connector.Registry, clk clock.Clock, m *metrics.Metrics) *deploy.Controller {
			return deploy.New(deploy.Config{Repo: s, Registry: r, Clock: clk, Metrics: m})
		},
		fx.Annotate(initCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(connections, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(plans, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(deployments, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(schedule, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)

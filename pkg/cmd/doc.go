// Package cmd provides the CLI commands for leaf.
//
// leaf keeps its state (connections, plans and deployment history) in a
// local SQLite database and promotes schema objects from a source database to
// a target through recorded, reversible deployments.
//
// # Available Commands
//
//   - init: Write a default leaf.yaml and create the state database
//   - connections: Add, list, ping and remove database connections
//   - plans: Manage plans and run the deployment lifecycle (prepare, run, rollback, reset)
//   - deployments: Inspect deployment history and apply prepared deployments
//   - schedule: Run plans on their cron schedules in the foreground
//
// # Command Structure
//
// Each command is a function returning a *cli.Command that is registered in
// the "commands" fx group. Commands receive their dependencies (store,
// connector registry, deployment controller, metrics) through appParams.
//
// # Global Options
//
//   - --config, -c: The leaf config file (defaults to leaf.yaml, or $LEAF_CONFIG)
//   - --help, -h: Display command help
//   - --version: Display version information
//
// # Example Usage
//
//	leaf init
//	leaf connections add --name dev --driver postgres --dsn postgres://dev:5432/app
//	leaf connections add --name prod --driver postgres --dsn postgres://prod:5432/app
//	leaf plans add --name promote --source dev --target prod --schemas public
//	leaf plans run promote --cutoff-date 2025.03.01 --dry
//	leaf plans run promote --cutoff-date 2025.03.01 --scripts
//	leaf plans rollback promote
//	leaf deployments list --plan promote
package cmd

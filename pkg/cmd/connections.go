package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/urfave/cli/v3"
)

// connections returns the connections command group.
//
// Example usage:
//
//	leaf connections add --name prod --driver postgres \
//	  --connection-string postgres://db.internal:5432/app --username deploy --password secret
//	leaf connections ping prod
//	leaf connections list
//	leaf connections remove prod
func connections(p appParams) *cli.Command {
	return &cli.Command{
		Name:    "connections",
		Aliases: []string{"conn"},
		Usage:   "Manage database connections",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a connection",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "unique connection name", Required: true},
					&cli.StringFlag{
						Name:     "driver",
						Usage:    "one of " + strings.Join(p.Registry.Drivers(), ", "),
						Required: true,
					},
					&cli.StringFlag{Name: "connection-string", Aliases: []string{"dsn"}, Usage: "driver connection string", Required: true},
					&cli.StringFlag{Name: "username", Usage: "user to connect as"},
					&cli.StringFlag{Name: "password", Usage: "password of the user"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return addConnection(ctx, cmd, p)
				},
			},
			{
				Name:  "list",
				Usage: "List connections",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return listConnections(ctx, cmd, p)
				},
			},
			{
				Name:      "ping",
				Usage:     "Check that a saved connection can be opened",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return pingConnection(ctx, cmd, p)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a connection that no plan uses",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}

					if err := p.Store.DeleteConnection(ctx, name); err != nil {
						if errors.Is(err, store.ErrInUse) {
							return errors.Errorf("connection %s is used by a plan; remove the plan first", name)
						}
						return err
					}

					fmt.Fprintf(output(cmd), "Removed connection %s\n", name)
					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "Remove every connection that no plan uses",
				Flags: []cli.Flag{yesFlag("confirm removal")},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireYes(cmd, "prune connections"); err != nil {
						return err
					}

					n, err := p.Store.PruneConnections(ctx)
					if err != nil {
						return err
					}

					fmt.Fprintf(output(cmd), "Removed %d connections\n", n)
					return nil
				},
			},
		},
	}
}

func addConnection(ctx context.Context, cmd *cli.Command, p appParams) error {
	driver := strings.ToLower(strings.TrimSpace(cmd.String("driver")))
	if !p.Registry.Supports(driver) {
		return errors.Errorf("unsupported driver %q: expected one of %s", driver, strings.Join(p.Registry.Drivers(), ", "))
	}

	c := &store.Connection{Connection: connector.Connection{
		Name:             strings.TrimSpace(cmd.String("name")),
		Driver:           driver,
		Username:         cmd.String("username"),
		Password:         cmd.String("password"),
		ConnectionString: strings.TrimSpace(cmd.String("connection-string")),
	}}

	if err := p.Store.CreateConnection(ctx, c); err != nil {
		return err
	}

	fmt.Fprintf(output(cmd), "Added connection %s (%s)\n", c.Name, c.Driver)
	return nil
}

func listConnections(ctx context.Context, cmd *cli.Command, p appParams) error {
	conns, err := p.Store.ListConnections(ctx)
	if err != nil {
		return err
	}

	w := output(cmd)
	if len(conns) == 0 {
		fmt.Fprintln(w, "No connections.")
		return nil
	}

	table := newTable("NAME", "DRIVER", "USERNAME", "CONNECTION STRING")
	for _, c := range conns {
		table.AddRow(c.Name, c.Driver, c.Username, c.ConnectionString)
	}
	fmt.Fprintln(w, table)
	return nil
}

func pingConnection(ctx context.Context, cmd *cli.Command, p appParams) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	c, err := p.Store.GetConnectionByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.Errorf("connection %s not found", name)
		}
		return err
	}

	session, err := p.Registry.Open(ctx, c.Connection)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	schemas, err := session.Schemas(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to list schemas of %s", name)
	}

	fmt.Fprintf(output(cmd), "Connection %s is reachable (%d schemas)\n", name, len(schemas))
	return nil
}

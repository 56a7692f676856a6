package clickhouse_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pseudomuto/leaf/pkg/clickhouse"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

func startClickHouse(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping ClickHouse integration test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	ctx := context.Background()
	container, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.8-alpine",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword(""),
		testcontainers.WithEnv(map[string]string{"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return dsn
}

func TestClickHouse_DeployAndRollback(t *testing.T) {
	dsn := startClickHouse(t)
	ctx := context.Background()

	session, err := clickhouse.Open(ctx, connector.Connection{Name: "ch", Driver: "clickhouse", ConnectionString: dsn})
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	require.NoError(t, session.Execute(ctx, "CREATE DATABASE analytics"))
	require.NoError(t, session.Execute(ctx, "CREATE TABLE analytics.events (id UInt64) ENGINE = MergeTree ORDER BY id"))
	require.NoError(t, connector.ValidateSchemas(ctx, "ch", session, []string{"analytics"}))

	before := time.Now().UTC().Add(-time.Minute)
	target, err := session.Snapshot(ctx, []string{"analytics"})
	require.NoError(t, err)

	events, ok := target.Get(schema.NewIdentity("analytics", "events", schema.KindTable))
	require.True(t, ok)
	require.True(t, events.LastModified.After(before))

	desired := *events
	desired.Body = "CREATE TABLE analytics.events (`id` UInt64, `name` String) ENGINE = MergeTree ORDER BY id"

	op := schema.NewReplace(events, &desired, target.AlterSyntax, false)
	require.Equal(t, []string{"ALTER TABLE `analytics`.`events` ADD COLUMN `name` String"}, op.Statements)

	for _, stmt := range op.Statements {
		require.NoError(t, session.Execute(ctx, stmt))
	}
	for _, stmt := range op.Inverse.Statements {
		require.NoError(t, session.Execute(ctx, stmt))
	}

	after, err := session.Snapshot(ctx, []string{"analytics"})
	require.NoError(t, err)
	restored, _ := after.Get(events.Identity)
	require.Equal(t, events.Normalized(), restored.Normalized())
}

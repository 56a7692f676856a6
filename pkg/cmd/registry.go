package cmd

import (
	"github.com/pseudomuto/leaf/pkg/clickhouse"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/mysql"
	"github.com/pseudomuto/leaf/pkg/postgres"
	"github.com/pseudomuto/leaf/pkg/sqlite"
)

// newRegistry returns a registry with every supported driver.
func newRegistry() *connector.Registry {
	r := connector.NewRegistry()
	r.Register("clickhouse", clickhouse.Open)
	r.Register("postgres", postgres.Open)
	r.Register("mysql", mysql.Open)
	r.Register("sqlite", sqlite.Open)
	return r
}

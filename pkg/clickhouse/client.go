package clickhouse

import (
	"context"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
)

var _ connector.Session = (*Client)(nil)

type (
	// TLSSettings points at the PEM files used for mTLS connections.
	TLSSettings struct {
		CertFile string
		KeyFile  string
		CAFile   string
	}

	// ClientOptions holds connection settings that are not part of the DSN.
	ClientOptions struct {
		Username string
		Password string
		TLSSettings
	}

	// Client is a ClickHouse connection implementing connector.Session.
	Client struct {
		conn conn
	}

	// conn is the subset of driver.Conn the client uses.
	conn interface {
		Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
		Exec(ctx context.Context, query string, args ...any) error
		Close() error
	}
)

// Open is the connector.Opener for the clickhouse driver.
//
// The connection string is either "host:port" or a clickhouse:// URL. URL
// query parameters cert_file, key_file and ca_file enable mTLS and are removed
// before the URL is handed to the driver.
func Open(ctx context.Context, c connector.Connection) (connector.Session, error) {
	dsn, tlsSettings, err := splitTLSParams(c.ConnectionString)
	if err != nil {
		return nil, err
	}

	return NewClient(ctx, dsn, ClientOptions{
		Username:    c.Username,
		Password:    c.Password,
		TLSSettings: tlsSettings,
	})
}

// NewClient connects to ClickHouse and verifies the connection with a ping.
//
// Example:
//
//	client, err := clickhouse.NewClient(ctx, "localhost:9000", clickhouse.ClientOptions{})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
func NewClient(ctx context.Context, dsn string, opts ClientOptions) (*Client, error) {
	options, err := clientOptions(dsn, opts)
	if err != nil {
		return nil, err
	}

	ch, err := clickhouse.Open(options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	if err := ch.Ping(ctx); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	return &Client{conn: ch}, nil
}

func clientOptions(dsn string, opts ClientOptions) (*clickhouse.Options, error) {
	options := &clickhouse.Options{Addr: []string{dsn}}
	if strings.Contains(dsn, "://") {
		parsed, err := clickhouse.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "invalid clickhouse DSN")
		}
		options = parsed
	}

	if opts.Username != "" {
		options.Auth.Username = opts.Username
	}
	if opts.Password != "" {
		options.Auth.Password = opts.Password
	}

	if opts.CertFile != "" {
		tlsConfig, err := GetTLSConfig(opts)
		if err != nil {
			return nil, err
		}
		options.TLS = tlsConfig
	}

	return options, nil
}

// splitTLSParams removes cert_file, key_file and ca_file from a DSN URL and
// returns them as TLSSettings. Plain host:port DSNs are returned unchanged.
func splitTLSParams(dsn string) (string, TLSSettings, error) {
	if !strings.Contains(dsn, "://") {
		return dsn, TLSSettings{}, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", TLSSettings{}, errors.Wrap(err, "invalid clickhouse DSN")
	}

	q := u.Query()
	settings := TLSSettings{
		CertFile: q.Get("cert_file"),
		KeyFile:  q.Get("key_file"),
		CAFile:   q.Get("ca_file"),
	}
	q.Del("cert_file")
	q.Del("key_file")
	q.Del("ca_file")
	u.RawQuery = q.Encode()

	return u.String(), settings, nil
}

// Execute runs ddl as a single statement.
func (c *Client) Execute(ctx context.Context, ddl string) error {
	return c.conn.Exec(ctx, ddl)
}

// Close closes the ClickHouse connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

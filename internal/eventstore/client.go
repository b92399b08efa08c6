package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver
)

// Client provides access to the Snowflake event warehouse.
type Client struct {
	config Config
	db     *sql.DB
}

// NewClient creates a new Snowflake event store client.
func NewClient(cfg Config) (*Client, error) {
	// Build DSN (Data Source Name)
	// Format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)

	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	// Bulk inserts hold connections longer than point queries do, so
	// allow a slightly deeper pool.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{
		config: cfg,
		db:     db,
	}, nil
}

// newClientWithDB wires an existing *sql.DB; used by tests with sqlmock.
func newClientWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Package clickhouse implements the historical-load-row store spec.md
// §1 names as an out-of-scope collaborator ("historical load rows") and
// §6's persisted serverLoad artifact. It is grounded in the teacher's
// internal/clickhouse/client.go (Config/NewClient connection shape) and
// internal/clickhouse/ingester.go (the batch-queue-plus-flush-ticker
// ingestion loop), narrowed from the teacher's full chat/connect/damage
// event taxonomy to the single server_load table this spec needs.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	chdriver "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
)

// Config holds the ClickHouse connection parameters, identical in shape
// to the teacher's clickhouse.Config.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Client wraps a ClickHouse *sql.DB connection, grounded on
// internal/clickhouse/client.go's Client.
type Client struct {
	conn *sql.DB
}

// NewClient opens and pings a ClickHouse connection.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}

	options := &chdriver.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: chdriver.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: chdriver.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 30 * time.Second,
	}

	conn := chdriver.OpenDB(options)
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("clickhouse: connect: %w", err)
	}

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).Msg("connected to clickhouse")

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the server_load table if it does not already
// exist, grounded on the teacher's own migration-on-startup convention
// for ClickHouse (internal/clickhouse/migrations.go).
func (c *Client) EnsureSchema(ctx context.Context) error {
	_, err := c.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS server_load (
			server_id       Int32,
			timestamp       DateTime,
			active_players  Int32,
			min_players     Int32,
			max_players     Int32,
			map             String,
			uptime          String,
			fps             String
		) ENGINE = MergeTree()
		ORDER BY (server_id, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("clickhouse: ensure server_load schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

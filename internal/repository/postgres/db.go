// Package postgres implements the relational collaborators spec.md §1
// treats as out of scope ("the relational store for server records,
// credentials, historical load rows, and player identity") and §6 names
// as CredentialsRepo, ServerRepo, and ServerConfigRepo. It is grounded in
// the teacher's db package (Executor interface, PostgresDSN/Migrate shape
// in db/db.go and internal/db/migrations.go) and its squirrel-based
// query style in internal/core/server.go.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Executor is an interface that wraps methods for executing SQL queries
// via sql.DB or sql.Tx, identical in shape to the teacher's db.Executor.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// psql is the Dollar-placeholder squirrel statement builder every query
// in this package starts from, matching internal/core/server.go's usage.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Config holds the Postgres connection parameters.
type Config struct {
	Host string
	Port int
	Name string
	User string
	Pass string
}

// DSN builds a postgres:// connection string, grounded on db.PostgresDSN.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.User, c.Pass, c.Host, c.Port, c.Name)
}

// Open connects to Postgres and verifies the connection with a ping.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

type migrationsLogger struct{ verbose bool }

func (ml *migrationsLogger) Printf(format string, v ...any) { log.Printf(format, v...) }
func (ml *migrationsLogger) Verbose() bool                  { return ml.verbose }

// Migrate applies every embedded migration up to the latest version,
// grounded on internal/db/migrations.go's Migrate.
func Migrate(db *sql.DB, verbose bool) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: create driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: create source driver: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: create migrate instance: %w", err)
	}
	m.Log = &migrationsLogger{verbose: verbose}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
)

// ConfigRepo satisfies commandresolver.ConfigRepo, per spec.md §6's
// ServerConfigRepo.getServerConfig/getModDefault/getServerConfigDefault
// trio, each returning ("", false) when absent.
type ConfigRepo struct {
	db Executor
}

// NewConfigRepo builds a ConfigRepo over db.
func NewConfigRepo(db Executor) *ConfigRepo {
	return &ConfigRepo{db: db}
}

func (r *ConfigRepo) lookup(ctx context.Context, table string, where squirrel.Eq, valueCol string) (string, bool) {
	sqlStr, args, err := psql.Select(valueCol).From(table).Where(where).ToSql()
	if err != nil {
		return "", false
	}

	var value string
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", false
	case err != nil:
		return "", false
	default:
		return value, true
	}
}

// GetServerConfig is layer (1) of spec.md §4.5's fallback chain.
func (r *ConfigRepo) GetServerConfig(ctx context.Context, serverID int, key string) (string, bool) {
	return r.lookup(ctx, "server_configs", squirrel.Eq{"server_id": serverID, "key": key}, "value")
}

// GetModDefault is layer (2) of spec.md §4.5's fallback chain.
func (r *ConfigRepo) GetModDefault(ctx context.Context, game, key string) (string, bool) {
	return r.lookup(ctx, "mod_defaults", squirrel.Eq{"game_tag": game, "key": key}, "value")
}

// GetServerConfigDefault is layer (3) of spec.md §4.5's fallback chain.
func (r *ConfigRepo) GetServerConfigDefault(ctx context.Context, key string) (string, bool) {
	return r.lookup(ctx, "config_defaults", squirrel.Eq{"key": key}, "value")
}

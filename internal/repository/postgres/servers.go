package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

// ServerRepo satisfies scheduler.ServerRepo, eventbridge.ServerRepo, and
// commandresolver.GameLookup: the three server-metadata seams spec.md §6
// names as ServerRepo.findActiveServersWithRcon, ServerRepo.hasRconCredentials,
// and ServerRepo.findById (the game-tag lookup the resolver needs).
type ServerRepo struct {
	db Executor
}

// NewServerRepo builds a ServerRepo over db.
func NewServerRepo(db Executor) *ServerRepo {
	return &ServerRepo{db: db}
}

// FindActiveServersWithRcon satisfies scheduler.ServerRepo, per spec.md §6.
func (r *ServerRepo) FindActiveServersWithRcon(ctx context.Context) ([]models.ServerInfo, error) {
	sqlStr, args, err := psql.Select(
		"s.id", "s.name", "s.address", "s.game_tag", "s.tags",
		"COALESCE(st.players, 0)", "COALESCE(st.max_players, 0)",
	).
		From("servers s").
		LeftJoin("server_status st ON st.server_id = s.id").
		Join("server_credentials c ON c.server_id = s.id").
		Where(squirrel.Eq{"s.active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build findActiveServersWithRcon query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: findActiveServersWithRcon: %w", err)
	}
	defer rows.Close()

	var servers []models.ServerInfo
	for rows.Next() {
		var info models.ServerInfo
		var tags []string
		if err := rows.Scan(&info.ServerID, &info.Name, &info.Address, &info.GameTag, pq.Array(&tags), &info.Players, &info.MaxPlayers); err != nil {
			return nil, fmt.Errorf("postgres: scan server row: %w", err)
		}
		info.Tags = tags
		info.HasRcon = true
		servers = append(servers, info)
	}
	return servers, rows.Err()
}

// HasRconCredentials satisfies eventbridge.ServerRepo, per spec.md §6.
func (r *ServerRepo) HasRconCredentials(ctx context.Context, serverID int) (bool, error) {
	sqlStr, args, err := psql.Select("1").From("server_credentials").Where(squirrel.Eq{"server_id": serverID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("postgres: build hasRconCredentials query: %w", err)
	}

	var dummy int
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&dummy)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("postgres: hasRconCredentials: %w", err)
	default:
		return true, nil
	}
}

// GameTagFor satisfies commandresolver.GameLookup, per spec.md §4.5's
// "mod/game-specific default" resolution layer.
func (r *ServerRepo) GameTagFor(serverID int) string {
	sqlStr, args, err := psql.Select("game_tag").From("servers").Where(squirrel.Eq{"id": serverID}).ToSql()
	if err != nil {
		return ""
	}

	var tag string
	if err := r.db.QueryRowContext(context.Background(), sqlStr, args...).Scan(&tag); err != nil {
		return ""
	}
	return tag
}

// ServerName satisfies alerting.ServerNamer.
func (r *ServerRepo) ServerName(serverID int) (string, bool) {
	sqlStr, args, err := psql.Select("name").From("servers").Where(squirrel.Eq{"id": serverID}).ToSql()
	if err != nil {
		return "", false
	}

	var name string
	if err := r.db.QueryRowContext(context.Background(), sqlStr, args...).Scan(&name); err != nil {
		return "", false
	}
	return name, true
}

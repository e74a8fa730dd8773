package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v5"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

// StatusRepo satisfies executors.StatusWriter, per spec.md §6's
// CredentialsRepo.updateServerStatus write-through collaborator.
// Optional ServerStatus fields (Hostname/Version/CPU/RealPlayerCount/
// BotCount) are stored with guregu/null rather than zero-valued, matching
// the teacher's nullable-column convention in internal/models/session.go.
type StatusRepo struct {
	db Executor
}

// NewStatusRepo builds a StatusRepo over db.
func NewStatusRepo(db Executor) *StatusRepo {
	return &StatusRepo{db: db}
}

// UpdateServerStatus satisfies executors.StatusWriter by upserting the
// latest parsed ServerStatus for serverID.
func (r *StatusRepo) UpdateServerStatus(ctx context.Context, serverID int, status models.ServerStatus) error {
	hostname := null.NewString(status.Hostname, status.Hostname != "")
	version := null.NewString(status.Version, status.Version != "")
	cpu := null.NewFloat(status.CPU, status.CPU != 0)
	realPlayers := null.NewInt(int64(status.RealPlayerCount), status.RealPlayerCount != 0)
	bots := null.NewInt(int64(status.BotCount), status.BotCount != 0)

	timestamp := status.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO server_status (server_id, map, players, max_players, uptime_seconds, fps, hostname, version, cpu, real_player_count, bot_count, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (server_id) DO UPDATE SET
			map = EXCLUDED.map,
			players = EXCLUDED.players,
			max_players = EXCLUDED.max_players,
			uptime_seconds = EXCLUDED.uptime_seconds,
			fps = EXCLUDED.fps,
			hostname = EXCLUDED.hostname,
			version = EXCLUDED.version,
			cpu = EXCLUDED.cpu,
			real_player_count = EXCLUDED.real_player_count,
			bot_count = EXCLUDED.bot_count,
			observed_at = EXCLUDED.observed_at
	`, serverID, status.Map, status.Players, status.MaxPlayers, status.Uptime, status.FPS,
		hostname, version, cpu, realPlayers, bots, timestamp)
	if err != nil {
		return fmt.Errorf("postgres: updateServerStatus for server %d: %w", serverID, err)
	}
	return nil
}

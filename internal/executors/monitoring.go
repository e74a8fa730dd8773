package executors

import (
	"context"
	"strconv"
	"strings"

	"github.com/leighmacdonald/steamid/v3/steamid"
	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/rconerrors"
	"github.com/codycody31/rcon-sentinel/internal/sessionregistry"
	"github.com/codycody31/rcon-sentinel/internal/statusparser"
)

const statusCommand = "status"

// StatusWriter is the out-of-scope CredentialsRepo.updateServerStatus
// collaborator from spec.md §6.
type StatusWriter interface {
	UpdateServerStatus(ctx context.Context, serverID int, status models.ServerStatus) error
}

// LoadHistoryWriter persists the serverLoad row spec.md §6 names as a
// persisted artifact.
type LoadHistoryWriter interface {
	WriteServerLoad(ctx context.Context, row models.ServerLoadRow) error
}

// SessionSyncer is the consumed SessionSyncService.synchronizeServerSessions
// boundary from spec.md §6; it runs after the in-memory registry has
// already been brought in line with the parsed player list, giving the
// (out of scope) persistence layer a chance to mirror it.
type SessionSyncer interface {
	SynchronizeServerSessions(ctx context.Context, serverID int) (int, error)
}

// StatusEnricher is the consumed ServerStatusEnricher boundary from
// spec.md §6.
type StatusEnricher interface {
	EnrichServerStatus(ctx context.Context, serverID int) error
}

// MonitoringExecutor implements the "server-monitoring" scheduled command:
// connect (if needed) -> status -> parse -> write load history ->
// synchronize sessions, gated by the retry controller. Grounded in
// internal/rcon_manager/rcon_manager.go's collectServerInfo/
// processShowServerInfoResponse pair (periodic probe -> parse -> publish),
// generalized from Squad's JSON ShowServerInfo blob to the engine-agnostic
// `status` text this spec parses.
type MonitoringExecutor struct {
	Rcon       RconExecutor
	Retry      RetryController
	Sessions   *sessionregistry.Registry
	StatusRepo StatusWriter
	LoadWriter LoadHistoryWriter
	Syncer     SessionSyncer  // optional
	Enricher   StatusEnricher // optional
}

func (e *MonitoringExecutor) Type() models.CommandKind { return models.CommandKindServerMonitoring }

// Validate accepts every server-monitoring schedule: it carries no
// command-specific params to check.
func (e *MonitoringExecutor) Validate(schedule models.ScheduledCommand) bool {
	return schedule.Command.Type == models.CommandKindServerMonitoring
}

// Execute runs one monitoring pass against ec.Server, per spec.md §4.8.
func (e *MonitoringExecutor) Execute(ctx context.Context, ec ExecutionContext) (ExecutionOutcome, error) {
	serverID := ec.Server.ServerID

	if !e.Retry.ShouldRetry(serverID) {
		return ExecutionOutcome{}, nil
	}

	if !e.Rcon.IsConnected(serverID) {
		if err := e.Rcon.Connect(ctx, serverID); err != nil {
			e.fail(ctx, serverID, err)
			return ExecutionOutcome{}, nil
		}
	}

	body, err := e.Rcon.Execute(ctx, serverID, statusCommand)
	if err != nil {
		e.fail(ctx, serverID, err)
		return ExecutionOutcome{}, nil
	}

	status := statusparser.Parse(body)

	if e.StatusRepo != nil {
		if err := e.StatusRepo.UpdateServerStatus(ctx, serverID, status); err != nil {
			log.Warn().Int("serverID", serverID).Err(err).Msg("monitoring: failed to write server status")
		}
	}
	if e.LoadWriter != nil {
		if err := e.LoadWriter.WriteServerLoad(ctx, models.NewServerLoadRow(serverID, status)); err != nil {
			log.Warn().Int("serverID", serverID).Err(err).Msg("monitoring: failed to write load history row")
		}
	}

	e.synchronizeSessions(ctx, serverID, status)

	if e.Enricher != nil {
		if err := e.Enricher.EnrichServerStatus(ctx, serverID); err != nil {
			log.Warn().Int("serverID", serverID).Err(err).Msg("monitoring: status enrichment failed")
		}
	}

	e.Retry.ResetFailureState(serverID)

	return ExecutionOutcome{ServersProcessed: 1, CommandsSent: 1}, nil
}

// fail converts a transport/command error into a retry-controller failure
// record rather than letting it propagate out of the schedule callback,
// per spec.md §7's propagation policy, then attempts disconnect, swallowing
// disconnect errors.
func (e *MonitoringExecutor) fail(ctx context.Context, serverID int, err error) {
	state := e.Retry.RecordFailure(serverID)
	log.Warn().
		Int("serverID", serverID).
		Err(err).
		Str("status", string(state.Status)).
		Time("nextRetryAt", state.NextRetryAt).
		Msg("monitoring: status probe failed")

	// Disconnect is idempotent and never errors (spec.md §4.3); any
	// disconnect-time problem is already logged by the rcon package itself.
	e.Rcon.Disconnect(serverID)
}

// synchronizeSessions brings the in-memory registry in line with the
// parsed player list: creates/refreshes every present player and removes
// sessions for players no longer listed, per spec.md §4.6.
func (e *MonitoringExecutor) synchronizeSessions(ctx context.Context, serverID int, status models.ServerStatus) {
	present := make(map[string]struct{}, len(status.PlayerList))

	for _, entry := range status.PlayerList {
		gameUserID := strings.TrimSpace(entry.UserID)
		if gameUserID == "" {
			continue
		}
		present[gameUserID] = struct{}{}

		e.Sessions.Create(models.PlayerSession{
			ServerID:   serverID,
			GameUserID: gameUserID,
			SteamID:    normalizeSteamID(entry.UniqueID),
			PlayerName: entry.Name,
			IsBot:      entry.IsBot,
		})
	}

	for _, session := range e.Sessions.ListByServer(serverID) {
		if _, ok := present[session.GameUserID]; !ok {
			e.Sessions.Delete(serverID, session.GameUserID)
		}
	}

	if e.Syncer != nil {
		if _, err := e.Syncer.SynchronizeServerSessions(ctx, serverID); err != nil {
			log.Warn().Int("serverID", serverID).Err(err).Msg("monitoring: session sync service call failed")
		}
	}
}

// ConnectToServerImmediately is the event-bridge seam from spec.md §4.8:
// gated by hasRconCredentials and the retry controller, and only enriches/
// syncs sessions if the connection was actually newly established (as
// opposed to already live).
func (e *MonitoringExecutor) ConnectToServerImmediately(ctx context.Context, serverID int, hasRconCredentials bool) error {
	if !hasRconCredentials {
		return nil
	}
	if !e.Retry.ShouldRetry(serverID) {
		return nil
	}

	alreadyConnected := e.Rcon.IsConnected(serverID)
	if alreadyConnected {
		return nil
	}

	if err := e.Rcon.Connect(ctx, serverID); err != nil {
		e.fail(ctx, serverID, err)
		return err
	}

	body, err := e.Rcon.Execute(ctx, serverID, statusCommand)
	if err != nil {
		e.fail(ctx, serverID, err)
		return err
	}

	status := statusparser.Parse(body)
	e.synchronizeSessions(ctx, serverID, status)

	if e.Enricher != nil {
		if err := e.Enricher.EnrichServerStatus(ctx, serverID); err != nil {
			log.Warn().Int("serverID", serverID).Err(err).Msg("monitoring: status enrichment failed")
		}
	}

	e.Retry.ResetFailureState(serverID)
	return nil
}

// normalizeSteamID canonicalizes a status line's uniqueid field to a
// SteamID64 string when it parses as one, falling back to the raw token
// for bot/LAN placeholders (e.g. "BOT", "STEAM_ID_LAN") that steamid.New
// cannot resolve.
func normalizeSteamID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	sid := steamid.New(raw)
	if sid.Valid() {
		return strconv.FormatInt(sid.Int64(), 10)
	}
	return raw
}

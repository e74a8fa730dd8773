package executors

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

// resolverFunc adapts commandresolver.Resolver.GetCommand's concrete
// (string, commandresolver.Capabilities) return into the narrower shape
// StatsProbeExecutor depends on, so this package never imports
// commandresolver directly (it would otherwise need its exported
// Capabilities type just to read one field).
type resolverFunc func(ctx context.Context, serverID int, kind string) string

// StatsProbeExecutor implements the "stats-probe" scheduled command the
// overview names alongside announcements: resolve the schedule's logical
// stats kind to a concrete per-server command via the command resolver,
// then execute it against every connected, RCON-capable server. Grounded
// in the same per-server dispatch loop as MessageExecutor.Execute,
// generalized to resolve its command string dynamically instead of
// building it from a fixed template.
type StatsProbeExecutor struct {
	Rcon     RconExecutor
	Resolver resolverFunc
}

// NewStatsProbeExecutor builds a StatsProbeExecutor whose command strings
// come from resolver's GetCommand, narrowed to the (string) it needs.
func NewStatsProbeExecutor(rcon RconExecutor, resolver func(ctx context.Context, serverID int, kind string) (string, any)) *StatsProbeExecutor {
	return &StatsProbeExecutor{
		Rcon: rcon,
		Resolver: func(ctx context.Context, serverID int, kind string) string {
			command, _ := resolver(ctx, serverID, kind)
			return command
		},
	}
}

func (e *StatsProbeExecutor) Type() models.CommandKind { return models.CommandKindStatsProbe }

// Validate rejects a stats-probe schedule with no configured kind.
func (e *StatsProbeExecutor) Validate(schedule models.ScheduledCommand) bool {
	if schedule.Command.Type != models.CommandKindStatsProbe {
		return false
	}
	return strings.TrimSpace(schedule.Command.Stats.Kind) != ""
}

// Execute resolves and runs the probe command against ec.Server, counting
// the server as processed regardless of outcome and as a command sent only
// on a successful RCON execution.
func (e *StatsProbeExecutor) Execute(ctx context.Context, ec ExecutionContext) (ExecutionOutcome, error) {
	serverID := ec.Server.ServerID
	outcome := ExecutionOutcome{ServersProcessed: 1}

	if !e.Rcon.IsConnected(serverID) {
		return outcome, nil
	}

	command := e.Resolver(ctx, serverID, ec.Schedule.Command.Stats.Kind)
	if strings.TrimSpace(command) == "" {
		return outcome, nil
	}

	if _, err := e.Rcon.Execute(ctx, serverID, command); err != nil {
		log.Warn().Int("serverID", serverID).Str("kind", ec.Schedule.Command.Stats.Kind).Err(err).Msg("stats-probe: send failed")
		return outcome, nil
	}

	outcome.CommandsSent = 1
	return outcome, nil
}

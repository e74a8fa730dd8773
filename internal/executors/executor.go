// Package executors implements the scheduled-command handlers from
// spec.md §4.8: server-monitoring (status enrichment + session sync),
// server-message (announcements) and stats-probe. All three satisfy the
// Executor capability
// interface the scheduler dispatches by type string — a plain interface
// in place of the "inheritance of executor base class" device spec.md §9
// calls out as a code-sharing artifact of the original implementation.
package executors

import (
	"context"

	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/retrycontroller"
)

// ExecutionContext is what the scheduler hands an Executor for one
// (schedule, server) pairing, per spec.md §4.9's executeOnServer flow.
type ExecutionContext struct {
	Schedule models.ScheduledCommand
	Server   models.ServerInfo
}

// ExecutionOutcome is the per-server tally an Executor reports back; the
// scheduler folds these into a ScheduleExecutionResult.
type ExecutionOutcome struct {
	ServersProcessed int
	CommandsSent     int
}

// Executor is the {execute, validate, getType} capability contract from
// spec.md §4.8.
type Executor interface {
	Execute(ctx context.Context, ec ExecutionContext) (ExecutionOutcome, error)
	Validate(schedule models.ScheduledCommand) bool
	Type() models.CommandKind
}

// RconExecutor is the subset of internal/rcon.Service the executors in
// this package depend on.
type RconExecutor interface {
	Connect(ctx context.Context, serverID int) error
	Execute(ctx context.Context, serverID int, command string) (string, error)
	IsConnected(serverID int) bool
	Disconnect(serverID int)
}

// RetryController is the subset of internal/retrycontroller.Controller the
// monitoring executor consults, per spec.md §4.8.
type RetryController interface {
	ShouldRetry(serverID int) bool
	RecordFailure(serverID int) retrycontroller.State
	ResetFailureState(serverID int)
}

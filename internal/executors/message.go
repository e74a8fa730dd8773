package executors

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

const (
	defaultMessageColor = "00FF00"
	maxMessageLength    = 200
)

// MessageExecutor implements the "server-message" scheduled command from
// spec.md §4.8: build a wire command from {type, color, message}, replace
// placeholders, and send it to a connected server. Grounded in the same
// command-string-building shape as internal/rcon_manager/rcon_manager.go's
// ExecuteCommandWithOptions, generalized from Squad's fixed broadcast
// command to the three hlx_* message families this spec names.
type MessageExecutor struct {
	Rcon RconExecutor
}

func (e *MessageExecutor) Type() models.CommandKind { return models.CommandKindServerMessage }

// Validate rejects invalid message types, missing/empty messages, and
// messages longer than 200 characters, per spec.md §4.8.
func (e *MessageExecutor) Validate(schedule models.ScheduledCommand) bool {
	if schedule.Command.Type != models.CommandKindServerMessage {
		return false
	}

	cfg := schedule.Command.Message
	switch cfg.Type {
	case models.MessageTypeCSay, models.MessageTypeTSay, models.MessageTypeTypeHUD:
	default:
		return false
	}

	message := strings.TrimSpace(cfg.Message)
	if message == "" || len(cfg.Message) > maxMessageLength {
		return false
	}

	return true
}

// Execute sends one announcement to ec.Server, per spec.md §4.8: if not
// connected, the server is counted as processed but nothing is sent; a
// send failure is logged and also does not count as a command sent.
func (e *MessageExecutor) Execute(ctx context.Context, ec ExecutionContext) (ExecutionOutcome, error) {
	serverID := ec.Server.ServerID
	outcome := ExecutionOutcome{ServersProcessed: 1}

	if !e.Rcon.IsConnected(serverID) {
		return outcome, nil
	}

	command := buildMessageCommand(ec.Schedule.Command.Message, ec.Server)

	if _, err := e.Rcon.Execute(ctx, serverID, command); err != nil {
		log.Warn().Int("serverID", serverID).Err(err).Msg("server-message: send failed")
		return outcome, nil
	}

	outcome.CommandsSent = 1
	return outcome, nil
}

// buildMessageCommand renders "<type> <color> <message>" with placeholders
// for {server.name} and {server.serverId} substituted, per spec.md §4.8.
func buildMessageCommand(cfg models.ServerMessageConfig, server models.ServerInfo) string {
	color := cfg.Color
	if strings.TrimSpace(color) == "" {
		color = defaultMessageColor
	}

	message := strings.NewReplacer(
		"{server.name}", server.Name,
		"{server.serverId}", strconv.Itoa(server.ServerID),
	).Replace(cfg.Message)

	return string(cfg.Type) + " " + color + " " + message
}

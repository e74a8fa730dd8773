package executors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

func messageSchedule(cfg models.ServerMessageConfig) models.ScheduledCommand {
	return models.ScheduledCommand{
		ID:      "announce-1",
		Command: models.ScheduledCommandPayload{Type: models.CommandKindServerMessage, Message: cfg},
	}
}

func TestMessageExecutorType(t *testing.T) {
	e := &MessageExecutor{}
	if e.Type() != models.CommandKindServerMessage {
		t.Errorf("Type() = %q, want %q", e.Type(), models.CommandKindServerMessage)
	}
}

func TestMessageExecutorValidate(t *testing.T) {
	e := &MessageExecutor{}

	valid := messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeCSay, Message: "hello"})
	if !e.Validate(valid) {
		t.Error("expected a valid csay schedule to validate")
	}

	if e.Validate(messageSchedule(models.ServerMessageConfig{Type: "bogus_type", Message: "hello"})) {
		t.Error("expected an unknown message type to fail validation")
	}
	if e.Validate(messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeTSay, Message: ""})) {
		t.Error("expected an empty message to fail validation")
	}
	if e.Validate(messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeTSay, Message: "   "})) {
		t.Error("expected a whitespace-only message to fail validation")
	}
	if e.Validate(messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeTypeHUD, Message: strings.Repeat("x", 201)})) {
		t.Error("expected a message over 200 characters to fail validation")
	}
	if e.Validate(models.ScheduledCommand{Command: models.ScheduledCommandPayload{Type: models.CommandKindServerMonitoring}}) {
		t.Error("expected a non-server-message schedule to fail validation")
	}
}

func TestMessageExecutorExecuteSkipsDisconnectedServer(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{}}
	e := &MessageExecutor{Rcon: rcon}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeCSay, Message: "hi"}),
		Server:   models.ServerInfo{ServerID: 3, Name: "Server 3"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.ServersProcessed != 1 || outcome.CommandsSent != 0 {
		t.Errorf("outcome = %+v, want {ServersProcessed:1 CommandsSent:0}", outcome)
	}
	if len(rcon.executed) != 0 {
		t.Errorf("expected no commands sent to a disconnected server, got %v", rcon.executed)
	}
}

func TestMessageExecutorExecuteSendsBuiltCommandWithPlaceholders(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{3: true}}
	e := &MessageExecutor{Rcon: rcon}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: messageSchedule(models.ServerMessageConfig{
			Type:    models.MessageTypeCSay,
			Message: "welcome to {server.name} (#{server.serverId})",
		}),
		Server: models.ServerInfo{ServerID: 3, Name: "Alpha"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.ServersProcessed != 1 || outcome.CommandsSent != 1 {
		t.Errorf("outcome = %+v, want {ServersProcessed:1 CommandsSent:1}", outcome)
	}

	want := "hlx_csay 00FF00 welcome to Alpha (#3)"
	if len(rcon.executed) != 1 || rcon.executed[0] != want {
		t.Errorf("executed = %v, want [%q]", rcon.executed, want)
	}
}

func TestMessageExecutorExecuteUsesConfiguredColor(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{3: true}}
	e := &MessageExecutor{Rcon: rcon}

	_, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeTSay, Color: "FF0000", Message: "alert"}),
		Server:   models.ServerInfo{ServerID: 3, Name: "Alpha"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := "hlx_tsay FF0000 alert"
	if len(rcon.executed) != 1 || rcon.executed[0] != want {
		t.Errorf("executed = %v, want [%q]", rcon.executed, want)
	}
}

func TestMessageExecutorExecuteHandlesSendFailure(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{3: true}, executeErr: errors.New("connection reset")}
	e := &MessageExecutor{Rcon: rcon}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: messageSchedule(models.ServerMessageConfig{Type: models.MessageTypeCSay, Message: "hi"}),
		Server:   models.ServerInfo{ServerID: 3, Name: "Alpha"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.ServersProcessed != 1 {
		t.Errorf("ServersProcessed = %d, want 1 even on send failure", outcome.ServersProcessed)
	}
	if outcome.CommandsSent != 0 {
		t.Errorf("CommandsSent = %d, want 0 on send failure", outcome.CommandsSent)
	}
}

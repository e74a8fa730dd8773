package executors

import (
	"context"
	"errors"
	"testing"

	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/retrycontroller"
	"github.com/codycody31/rcon-sentinel/internal/sessionregistry"
)

// fakeRetryController is a RetryController test double recording every
// call it receives.
type fakeRetryController struct {
	shouldRetry   map[int]bool
	failures      []int
	resets        []int
	failureResult retrycontroller.State
}

func (f *fakeRetryController) ShouldRetry(serverID int) bool {
	if f.shouldRetry == nil {
		return true
	}
	v, ok := f.shouldRetry[serverID]
	return !ok || v
}

func (f *fakeRetryController) RecordFailure(serverID int) retrycontroller.State {
	f.failures = append(f.failures, serverID)
	return f.failureResult
}

func (f *fakeRetryController) ResetFailureState(serverID int) {
	f.resets = append(f.resets, serverID)
}

func monitoringSchedule() models.ScheduledCommand {
	return models.ScheduledCommand{
		ID:      "monitor-1",
		Command: models.ScheduledCommandPayload{Type: models.CommandKindServerMonitoring},
	}
}

func TestMonitoringExecutorType(t *testing.T) {
	e := &MonitoringExecutor{}
	if e.Type() != models.CommandKindServerMonitoring {
		t.Errorf("Type() = %q, want %q", e.Type(), models.CommandKindServerMonitoring)
	}
}

func TestMonitoringExecutorValidate(t *testing.T) {
	e := &MonitoringExecutor{}
	if !e.Validate(monitoringSchedule()) {
		t.Error("expected a server-monitoring schedule to validate")
	}
	if e.Validate(models.ScheduledCommand{Command: models.ScheduledCommandPayload{Type: models.CommandKindServerMessage}}) {
		t.Error("expected a non-server-monitoring schedule to fail validation")
	}
}

func TestMonitoringExecutorExecuteSkipsWhenRetryControllerSaysNo(t *testing.T) {
	rcon := &fakeRcon{}
	retry := &fakeRetryController{shouldRetry: map[int]bool{9: false}}
	e := &MonitoringExecutor{Rcon: rcon, Retry: retry, Sessions: sessionregistry.New()}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: monitoringSchedule(),
		Server:   models.ServerInfo{ServerID: 9},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome != (ExecutionOutcome{}) {
		t.Errorf("outcome = %+v, want zero value", outcome)
	}
	if rcon.connectCalls != 0 {
		t.Error("expected Connect not to be called when the retry controller says not to retry")
	}
}

func TestMonitoringExecutorExecuteConnectsParsesAndSyncsSessions(t *testing.T) {
	body := "hostname: Test Server\n" +
		"map     : de_dust2\n" +
		"players : 2 (32 max)\n" +
		"uptime  : 1:02:03\n" +
		"fps     : 66.6\n" +
		"# 1 \"Alice\" STEAM_0:0:11111 10:00 40 0 active\n" +
		"# 2 \"BotCity\" BOT 05:00 0 0 active\n"

	rcon := &fakeRcon{connected: map[int]bool{}, executeBody: body}
	retry := &fakeRetryController{}
	sessions := sessionregistry.New()
	e := &MonitoringExecutor{Rcon: rcon, Retry: retry, Sessions: sessions}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: monitoringSchedule(),
		Server:   models.ServerInfo{ServerID: 9},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.ServersProcessed != 1 || outcome.CommandsSent != 1 {
		t.Errorf("outcome = %+v, want {ServersProcessed:1 CommandsSent:1}", outcome)
	}
	if rcon.connectCalls != 1 {
		t.Errorf("connectCalls = %d, want 1 (server started disconnected)", rcon.connectCalls)
	}
	if len(rcon.executed) != 1 || rcon.executed[0] != statusCommand {
		t.Errorf("executed = %v, want [%q]", rcon.executed, statusCommand)
	}

	alice, ok := sessions.GetByGameUserID(9, "1")
	if !ok {
		t.Fatal("expected a session for game user 1 to be created from the parsed player list")
	}
	if alice.PlayerName != "Alice" || alice.IsBot {
		t.Errorf("alice session = %+v, want PlayerName Alice, IsBot false", alice)
	}

	bot, ok := sessions.GetByGameUserID(9, "2")
	if !ok || !bot.IsBot {
		t.Errorf("expected a bot session for game user 2, got %+v ok=%v", bot, ok)
	}

	if len(retry.resets) != 1 || retry.resets[0] != 9 {
		t.Errorf("resets = %v, want [9]", retry.resets)
	}
	if len(retry.failures) != 0 {
		t.Errorf("failures = %v, want none on a successful probe", retry.failures)
	}
}

func TestMonitoringExecutorExecuteRecordsFailureAndDisconnectsOnConnectError(t *testing.T) {
	rcon := &fakeRcon{connectErr: errors.New("connection refused")}
	retry := &fakeRetryController{}
	e := &MonitoringExecutor{Rcon: rcon, Retry: retry, Sessions: sessionregistry.New()}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: monitoringSchedule(),
		Server:   models.ServerInfo{ServerID: 9},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v, want nil (failures are recorded, not propagated)", err)
	}
	if outcome != (ExecutionOutcome{}) {
		t.Errorf("outcome = %+v, want zero value on connect failure", outcome)
	}
	if len(retry.failures) != 1 || retry.failures[0] != 9 {
		t.Errorf("failures = %v, want [9]", retry.failures)
	}
	if len(rcon.disconnected) != 1 || rcon.disconnected[0] != 9 {
		t.Errorf("disconnected = %v, want [9]", rcon.disconnected)
	}
}

func TestMonitoringExecutorExecuteRecordsFailureOnStatusCommandError(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{9: true}, executeErr: errors.New("timeout")}
	retry := &fakeRetryController{}
	e := &MonitoringExecutor{Rcon: rcon, Retry: retry, Sessions: sessionregistry.New()}

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: monitoringSchedule(),
		Server:   models.ServerInfo{ServerID: 9},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v, want nil", err)
	}
	if outcome != (ExecutionOutcome{}) {
		t.Errorf("outcome = %+v, want zero value on status command failure", outcome)
	}
	if len(retry.failures) != 1 || retry.failures[0] != 9 {
		t.Errorf("failures = %v, want [9]", retry.failures)
	}
	if len(retry.resets) != 0 {
		t.Error("expected no reset on a failed status probe")
	}
}

func TestMonitoringExecutorSynchronizeSessionsRemovesStaleSessions(t *testing.T) {
	sessions := sessionregistry.New()
	sessions.Create(models.PlayerSession{ServerID: 9, GameUserID: "99", PlayerName: "Ghost"})

	rcon := &fakeRcon{connected: map[int]bool{9: true}, executeBody: "players : 0 (32 max)\n"}
	retry := &fakeRetryController{}
	e := &MonitoringExecutor{Rcon: rcon, Retry: retry, Sessions: sessions}

	if _, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: monitoringSchedule(),
		Server:   models.ServerInfo{ServerID: 9},
	}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if _, ok := sessions.GetByGameUserID(9, "99"); ok {
		t.Error("expected the stale session (not in the new player list) to be removed")
	}
}

package executors

import (
	"context"
	"errors"
	"testing"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

type fakeRcon struct {
	connected    map[int]bool
	executed     []string
	executeErr   error
	connectErr   error
	executeBody  string
	lastServerID int
	connectCalls int
	disconnected []int
}

func (f *fakeRcon) Connect(ctx context.Context, serverID int) error {
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.connected == nil {
		f.connected = make(map[int]bool)
	}
	f.connected[serverID] = true
	return nil
}

func (f *fakeRcon) Execute(ctx context.Context, serverID int, command string) (string, error) {
	f.lastServerID = serverID
	if f.executeErr != nil {
		return "", f.executeErr
	}
	f.executed = append(f.executed, command)
	return f.executeBody, nil
}

func (f *fakeRcon) IsConnected(serverID int) bool { return f.connected[serverID] }

func (f *fakeRcon) Disconnect(serverID int) {
	f.disconnected = append(f.disconnected, serverID)
	delete(f.connected, serverID)
}

func schedule(kind string) models.ScheduledCommand {
	return models.ScheduledCommand{
		ID:      "probe-1",
		Command: models.ScheduledCommandPayload{Type: models.CommandKindStatsProbe, Stats: models.StatsProbeConfig{Kind: kind}},
	}
}

func TestStatsProbeExecutorValidate(t *testing.T) {
	e := NewStatsProbeExecutor(&fakeRcon{}, func(ctx context.Context, serverID int, kind string) (string, any) {
		return "", nil
	})

	if !e.Validate(schedule("playerstats")) {
		t.Error("expected a schedule with a non-empty stats kind to validate")
	}
	if e.Validate(schedule("")) {
		t.Error("expected a schedule with an empty stats kind to fail validation")
	}
	if e.Validate(models.ScheduledCommand{Command: models.ScheduledCommandPayload{Type: models.CommandKindServerMessage}}) {
		t.Error("expected a non-stats-probe schedule to fail validation")
	}
}

func TestStatsProbeExecutorType(t *testing.T) {
	e := NewStatsProbeExecutor(&fakeRcon{}, nil)
	if e.Type() != models.CommandKindStatsProbe {
		t.Errorf("Type() = %q, want %q", e.Type(), models.CommandKindStatsProbe)
	}
}

func TestStatsProbeExecutorExecuteSkipsDisconnectedServer(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{}}
	e := NewStatsProbeExecutor(rcon, func(ctx context.Context, serverID int, kind string) (string, any) {
		t.Fatal("resolver should not be called for a disconnected server")
		return "", nil
	})

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: schedule("playerstats"),
		Server:   models.ServerInfo{ServerID: 7},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.ServersProcessed != 1 || outcome.CommandsSent != 0 {
		t.Errorf("outcome = %+v, want {ServersProcessed:1 CommandsSent:0}", outcome)
	}
}

func TestStatsProbeExecutorExecuteSendsResolvedCommand(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{7: true}}
	e := NewStatsProbeExecutor(rcon, func(ctx context.Context, serverID int, kind string) (string, any) {
		if serverID != 7 || kind != "playerstats" {
			t.Fatalf("resolver called with (%d, %q)", serverID, kind)
		}
		return "hlx_playerstats", struct{}{}
	})

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: schedule("playerstats"),
		Server:   models.ServerInfo{ServerID: 7},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.ServersProcessed != 1 || outcome.CommandsSent != 1 {
		t.Errorf("outcome = %+v, want {ServersProcessed:1 CommandsSent:1}", outcome)
	}
	if len(rcon.executed) != 1 || rcon.executed[0] != "hlx_playerstats" {
		t.Errorf("executed = %v, want [hlx_playerstats]", rcon.executed)
	}
}

func TestStatsProbeExecutorExecuteHandlesSendFailure(t *testing.T) {
	rcon := &fakeRcon{connected: map[int]bool{7: true}, executeErr: errors.New("connection reset")}
	e := NewStatsProbeExecutor(rcon, func(ctx context.Context, serverID int, kind string) (string, any) {
		return "hlx_playerstats", nil
	})

	outcome, err := e.Execute(context.Background(), ExecutionContext{
		Schedule: schedule("playerstats"),
		Server:   models.ServerInfo{ServerID: 7},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.CommandsSent != 0 {
		t.Errorf("CommandsSent = %d, want 0 on send failure", outcome.CommandsSent)
	}
}

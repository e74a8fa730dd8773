package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

func writeSchedulesFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedules.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write schedules file: %v", err)
	}
	return path
}

func TestLoadSchedulesParsesValidEntries(t *testing.T) {
	path := writeSchedulesFile(t, `[
		{
			"id": "announce-welcome",
			"name": "Welcome announcement",
			"cronExpression": "*/5 * * * *",
			"enabled": true,
			"command": {"type": "server-message", "message": {"type": "hlx_csay", "color": "green", "message": "hi"}},
			"serverFilter": {"serverIds": [1, 2], "tags": ["eu"]}
		},
		{
			"id": "probe-stats",
			"name": "Player stats probe",
			"cronExpression": "0 * * * *",
			"enabled": true,
			"command": {"type": "stats-probe", "stats": {"kind": "playerstats"}}
		}
	]`)

	schedules, errs := LoadSchedules(path)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(schedules) != 2 {
		t.Fatalf("got %d schedules, want 2", len(schedules))
	}

	first := schedules[0]
	if first.ID != "announce-welcome" || first.Command.Type != models.CommandKindServerMessage {
		t.Errorf("first schedule = %+v", first)
	}
	if first.Command.Message.Message != "hi" {
		t.Errorf("first.Command.Message.Message = %q, want hi", first.Command.Message.Message)
	}
	if first.ServerFilter == nil || len(first.ServerFilter.ServerIDs) != 2 {
		t.Fatalf("first.ServerFilter = %+v, want 2 server ids", first.ServerFilter)
	}
	if _, ok := first.ServerFilter.ServerIDs[1]; !ok {
		t.Error("expected server id 1 in filter")
	}

	second := schedules[1]
	if second.Command.Type != models.CommandKindStatsProbe || second.Command.Stats.Kind != "playerstats" {
		t.Errorf("second schedule = %+v", second)
	}
}

func TestLoadSchedulesSkipsInvalidEntriesButKeepsValidOnes(t *testing.T) {
	path := writeSchedulesFile(t, `[
		{"id": "", "name": "missing id", "cronExpression": "* * * * *", "command": {"type": "server-message"}},
		{"id": "bad-type", "name": "bad type", "cronExpression": "* * * * *", "command": {"type": "not-a-real-kind"}},
		{"id": "good", "name": "good one", "cronExpression": "* * * * *", "command": {"type": "server-monitoring"}}
	]`)

	schedules, errs := LoadSchedules(path)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if len(schedules) != 1 || schedules[0].ID != "good" {
		t.Fatalf("schedules = %+v, want only the 'good' entry", schedules)
	}
}

func TestLoadSchedulesReturnsErrorForMissingFile(t *testing.T) {
	_, errs := LoadSchedules(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
}

func TestLoadSchedulesReturnsErrorForMalformedJSON(t *testing.T) {
	path := writeSchedulesFile(t, `not valid json`)

	_, errs := LoadSchedules(path)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
}

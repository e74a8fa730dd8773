package statusparser

import "testing"

func TestParseGoldSourceStyle(t *testing.T) {
	body := `hostname: My Counter-Strike Server
map: de_dust2
players : 3 (32 max)
uptime : 1:02:03
fps: 500.5
# userid name uniqueid connected ping loss state
#  2 "Alice" STEAM_0:1:111 10:00 50 0 active
#  3 "BotOne" BOT 05:00 0 0 active
`
	status := Parse(body)

	if status.Hostname != "My Counter-Strike Server" {
		t.Fatalf("hostname = %q", status.Hostname)
	}
	if status.Map != "de_dust2" {
		t.Fatalf("map = %q", status.Map)
	}
	if status.Players != 3 || status.MaxPlayers != 32 {
		t.Fatalf("players/max = %d/%d", status.Players, status.MaxPlayers)
	}
	if status.Uptime != 3723 {
		t.Fatalf("uptime = %d, want 3723", status.Uptime)
	}
	if status.FPS != 500.5 {
		t.Fatalf("fps = %v", status.FPS)
	}
	if len(status.PlayerList) != 2 {
		t.Fatalf("playerList len = %d, want 2", len(status.PlayerList))
	}
	if status.BotCount != 1 || status.RealPlayerCount != 1 {
		t.Fatalf("bot/real = %d/%d", status.BotCount, status.RealPlayerCount)
	}
}

func TestParseSourceStyle(t *testing.T) {
	body := `Server Name: My Source Server
Map: de_inferno
Players: 5/24
Version: 1.2.3
`
	status := Parse(body)

	if status.Hostname != "My Source Server" {
		t.Fatalf("hostname = %q", status.Hostname)
	}
	if status.Map != "de_inferno" {
		t.Fatalf("map = %q", status.Map)
	}
	if status.Players != 5 || status.MaxPlayers != 24 {
		t.Fatalf("players/max = %d/%d", status.Players, status.MaxPlayers)
	}
	if status.Version != "1.2.3" {
		t.Fatalf("version = %q", status.Version)
	}
}

func TestParseUnparseableDefaults(t *testing.T) {
	status := Parse("garbage output with no recognizable fields")

	if status.Map != "unknown" {
		t.Fatalf("map = %q, want unknown", status.Map)
	}
	if status.Players != 0 || status.MaxPlayers != 0 || status.Uptime != 0 || status.FPS != 0 {
		t.Fatalf("expected all numeric fields zero, got %+v", status)
	}
}

func TestRealPlayerCountOrPlayersPrefersPlayerList(t *testing.T) {
	body := `players : 3 (32 max)
#  2 "Alice" STEAM_0:1:111 10:00 50 0 active
`
	status := Parse(body)
	if got := status.RealPlayerCountOrPlayers(); got != status.RealPlayerCount {
		t.Fatalf("RealPlayerCountOrPlayers() = %d, want realPlayerCount %d", got, status.RealPlayerCount)
	}
}

func TestRealPlayerCountOrPlayersFallsBackWithoutPlayerList(t *testing.T) {
	body := `players : 3 (32 max)
`
	status := Parse(body)
	if got := status.RealPlayerCountOrPlayers(); got != status.Players {
		t.Fatalf("RealPlayerCountOrPlayers() = %d, want players %d", got, status.Players)
	}
}

func TestParsePlainUptimeSeconds(t *testing.T) {
	status := Parse("uptime : 7200\n")
	if status.Uptime != 7200 {
		t.Fatalf("uptime = %d, want 7200", status.Uptime)
	}
}

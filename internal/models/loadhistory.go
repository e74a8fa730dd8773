package models

import "fmt"

// ServerLoadRow is the persisted-artifact shape from spec.md §6: one row
// per successful status capture, written to the (out of scope) historical
// load store.
type ServerLoadRow struct {
	ServerID      int
	Timestamp     int64 // Unix seconds
	ActivePlayers int
	MinPlayers    int
	MaxPlayers    int
	Map           string
	Uptime        string
	FPS           string
}

// NewServerLoadRow builds the persisted row from a parsed ServerStatus,
// applying the activePlayers/minPlayers = realPlayerCount-or-players rule.
func NewServerLoadRow(serverID int, status ServerStatus) ServerLoadRow {
	count := status.RealPlayerCountOrPlayers()
	h := status.Uptime / 3600
	m := (status.Uptime % 3600) / 60
	s := status.Uptime % 60

	return ServerLoadRow{
		ServerID:      serverID,
		Timestamp:     status.Timestamp.Unix(),
		ActivePlayers: count,
		MinPlayers:    count,
		MaxPlayers:    status.MaxPlayers,
		Map:           status.Map,
		Uptime:        fmt.Sprintf("%d:%02d:%02d", h, m, s),
		FPS:           fmt.Sprintf("%.1f", status.FPS),
	}
}

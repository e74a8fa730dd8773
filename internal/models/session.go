package models

import "time"

// PlayerSession is a live in-memory record of a player currently present on
// a server, scoped by (ServerID, GameUserID).
type PlayerSession struct {
	ServerID         int
	GameUserID       string
	DatabasePlayerID string
	SteamID          string
	PlayerName       string
	IsBot            bool
	ConnectedAt      time.Time
	LastSeen         time.Time
}

// SessionKey is the composite primary key of a PlayerSession.
type SessionKey struct {
	ServerID   int
	GameUserID string
}

// SessionPatch carries the mutable fields accepted by Registry.Update.
type SessionPatch struct {
	PlayerName *string
	LastSeen   *time.Time
}

// SessionStats mirrors Registry.GetStats' output contract.
type SessionStats struct {
	TotalSessions      int
	ServerSessions     map[int]int
	BotSessions        int
	RealPlayerSessions int
}

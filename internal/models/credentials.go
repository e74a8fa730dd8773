package models

import (
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

// GameEngine identifies which RCON wire protocol a server speaks.
type GameEngine string

const (
	EngineGoldSource GameEngine = "GOLDSRC"
	EngineSource     GameEngine = "SOURCE"
	EngineSource2009 GameEngine = "SOURCE_2009"
)

// RconCredentials is what CredentialsRepo hands back for a server. It is
// never cached across failures — the RCON service re-resolves it on every
// connect attempt.
type RconCredentials struct {
	ServerID     int
	Address      string
	Port         int
	RconPassword string
	GameEngine   GameEngine
}

var fold = cases.Fold()

// ClassifyGameEngine derives the wire protocol family from a free-form game
// tag. Matching is case-insensitive via Unicode case folding rather than
// strings.ToLower, since tags are operator-supplied and not guaranteed ASCII.
func ClassifyGameEngine(gameTag string) GameEngine {
	tag := fold.String(strings.TrimSpace(gameTag))

	switch {
	case strings.HasPrefix(tag, "cs_"), strings.Contains(tag, "cstrike"):
		return EngineGoldSource
	case strings.HasPrefix(tag, "l4d"),
		strings.HasPrefix(tag, "portal"),
		tag == "ep2",
		tag == "dod:s":
		return EngineSource2009
	default:
		log.Warn().Str("gameTag", gameTag).Msg("unrecognized game tag, classifying as SOURCE")
		return EngineSource
	}
}

// Valid reports whether the fields required to attempt an RCON
// connection are present. It does not validate reachability.
func (c RconCredentials) Valid() bool {
	return c.Address != "" && c.Port > 0 && c.Port <= 65535 && c.RconPassword != ""
}

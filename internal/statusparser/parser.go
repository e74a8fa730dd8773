// Package statusparser converts the raw text body of a `status` RCON
// command into a typed models.ServerStatus, tolerating both GoldSource
// and Source-style formats per spec.md §4.7. Grounded on the regex-driven
// line parsers in squad-rcon-go/internal/parser/listPlayers.go, adapted
// from Squad's player-list shape to the looser, engine-agnostic `status`
// grammar this spec requires.
package statusparser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/codycody31/rcon-sentinel/internal/models"
)

var fold = cases.Fold()

var (
	hostnameRe  = regexp.MustCompile(`(?i)^(?:hostname|server name)\s*:\s*(.+)$`)
	mapRe       = regexp.MustCompile(`(?i)^map\s*:\s*([^\s]+)`)
	versionRe   = regexp.MustCompile(`(?i)^version\s*:\s*(.+)$`)
	fpsRe       = regexp.MustCompile(`(?i)^fps\s*:\s*([0-9.]+)`)
	cpuRe       = regexp.MustCompile(`(?i)^cpu\s*:\s*([0-9.]+)`)
	uptimeHMSRe = regexp.MustCompile(`(?i)^uptime\s*:\s*(\d+):(\d+):(\d+)`)
	uptimeIntRe = regexp.MustCompile(`(?i)^uptime\s*:\s*(\d+)`)

	// "players : 5 (32 max)" (GoldSource) and "Players: 5/32" (Source).
	playersParenRe = regexp.MustCompile(`(?i)^players\s*:\s*(\d+)\s*\((\d+)\s*max\)`)
	playersSlashRe = regexp.MustCompile(`(?i)^players\s*:\s*(\d+)\s*/\s*(\d+)`)

	// `# <userid> "<name>" <uniqueid> <time> <ping> <loss> <state>`
	playerLineRe = regexp.MustCompile(`^#\s*(\d+)\s+"([^"]*)"\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(.*)$`)
)

// Parse converts a `status` command's raw body into a ServerStatus. Fields
// it cannot find default per spec.md §4.7: map="unknown", numeric
// fields=0.
func Parse(body string) models.ServerStatus {
	status := models.ServerStatus{Map: "unknown"}

	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := hostnameRe.FindStringSubmatch(trimmed); m != nil {
			status.Hostname = strings.TrimSpace(m[1])
			continue
		}
		if m := mapRe.FindStringSubmatch(trimmed); m != nil {
			status.Map = m[1]
			continue
		}
		if m := versionRe.FindStringSubmatch(trimmed); m != nil {
			status.Version = strings.TrimSpace(m[1])
			continue
		}
		if m := fpsRe.FindStringSubmatch(trimmed); m != nil {
			status.FPS = parseFloat(m[1])
			continue
		}
		if m := cpuRe.FindStringSubmatch(trimmed); m != nil {
			status.CPU = parseFloat(m[1])
			continue
		}
		if m := uptimeHMSRe.FindStringSubmatch(trimmed); m != nil {
			h := parseInt(m[1])
			mm := parseInt(m[2])
			s := parseInt(m[3])
			status.Uptime = h*3600 + mm*60 + s
			continue
		}
		if m := uptimeIntRe.FindStringSubmatch(trimmed); m != nil {
			status.Uptime = parseInt(m[1])
			continue
		}
		if m := playersParenRe.FindStringSubmatch(trimmed); m != nil {
			status.Players = parseInt(m[1])
			status.MaxPlayers = parseInt(m[2])
			continue
		}
		if m := playersSlashRe.FindStringSubmatch(trimmed); m != nil {
			status.Players = parseInt(m[1])
			status.MaxPlayers = parseInt(m[2])
			continue
		}
		if m := playerLineRe.FindStringSubmatch(trimmed); m != nil {
			entry := models.PlayerListEntry{
				UserID:   m[1],
				Name:     m[2],
				UniqueID: m[3],
				Time:     m[4],
				Ping:     m[5],
				Loss:     m[6],
				State:    strings.TrimSpace(m[7]),
			}
			entry.IsBot = strings.Contains(fold.String(entry.State), fold.String("BOT")) ||
				fold.String(entry.UniqueID) == fold.String("BOT")
			status.PlayerList = append(status.PlayerList, entry)
			if entry.IsBot {
				status.BotCount++
			} else {
				status.RealPlayerCount++
			}
			continue
		}
	}

	return status
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

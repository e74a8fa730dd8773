// Package alerting posts a Discord notification when a server's retry
// state transitions into or out of DORMANT, the notification surface
// spec.md's domain-stack expansion names for internal/retrycontroller's
// transition hook. It is grounded in
// internal/extensions/discord_admin_broadcast/discord_admin_broadcast.go's
// embed-then-ChannelMessageSendComplex shape, adapted from a single fixed
// broadcast embed to a two-color (dormant/recovered) status embed keyed
// off internal/retrycontroller.Status.
package alerting

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/codycody31/rcon-sentinel/internal/retrycontroller"
)

const (
	colorDormant   = 15158332 // red
	colorRecovered = 3066993  // green
)

// ServerNamer resolves a human-readable name for a transition embed.
// Best-effort: a lookup failure degrades to the bare serverId rather than
// blocking the notification.
type ServerNamer interface {
	ServerName(serverID int) (string, bool)
}

// DiscordNotifier posts retry-controller transitions to a single Discord
// channel via a bot session, grounded on the teacher's DiscordConnector.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
	names     ServerNamer
}

// NewDiscordNotifier opens a bot session for token and binds it to
// channelID. names may be nil, in which case embeds fall back to the bare
// server ID.
func NewDiscordNotifier(token, channelID string, names ServerNamer) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("alerting: create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("alerting: open discord session: %w", err)
	}

	return &DiscordNotifier{session: session, channelID: channelID, names: names}, nil
}

// Close shuts down the underlying Discord session.
func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}

// OnTransition is the retrycontroller.Config.OnTransition hook: it posts
// an embed only for the transitions operators actually care about —
// entering or leaving DORMANT — and ignores the intermediate
// HEALTHY<->BACKING_OFF churn.
func (n *DiscordNotifier) OnTransition(serverID int, from, to retrycontroller.Status) {
	if to != retrycontroller.StatusDormant && from != retrycontroller.StatusDormant {
		return
	}

	name := fmt.Sprintf("server %d", serverID)
	if n.names != nil {
		if resolved, ok := n.names.ServerName(serverID); ok && resolved != "" {
			name = resolved
		}
	}

	title := "Server marked dormant"
	color := colorDormant
	if to == retrycontroller.StatusHealthy {
		title = "Server recovered"
		color = colorRecovered
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Server", Value: name, Inline: false},
			{Name: "Previous status", Value: string(from), Inline: true},
			{Name: "Current status", Value: string(to), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := n.session.ChannelMessageSendComplex(n.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	}); err != nil {
		log.Warn().Int("serverId", serverID).Err(err).Msg("alerting: failed to post discord transition notice")
	}
}

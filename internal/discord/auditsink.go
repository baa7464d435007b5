package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/registry"
)

// Send mirrors an audit event into the configured audit channel. The file
// trail is authoritative; this is a staff convenience and failures are only
// logged.
func (b *Bot) Send(e registry.AuditEvent) {
	if b.cfg.AuditChannelID == "" || b.dg == nil {
		return
	}

	var sb strings.Builder
	if e.RegID != 0 {
		fmt.Fprintf(&sb, "Registration: `#%d`\n", e.RegID)
	}
	if e.LobbyKey != "" {
		fmt.Fprintf(&sb, "Lobby: `%s`\n", e.LobbyKey)
	}
	if e.Team != "" {
		fmt.Fprintf(&sb, "Team: **%s**\n", e.Team)
	}
	if e.LeaderID != "" {
		fmt.Fprintf(&sb, "Leader: <@%s>\n", e.LeaderID)
	}
	if e.Actor != "" {
		fmt.Fprintf(&sb, "Actor: <@%s>\n", e.Actor)
	}
	if e.Detail != "" {
		fmt.Fprintf(&sb, "Detail: %s\n", e.Detail)
	}

	embed := &discordgo.MessageEmbed{
		Title:       strings.ReplaceAll(e.Name, "_", " "),
		Description: sb.String(),
		Color:       auditColor(e.Name),
	}
	if _, err := b.dg.ChannelMessageSendEmbed(b.cfg.AuditChannelID, embed); err != nil {
		b.log.Debug().Err(err).Str("event", e.Name).Msg("audit mirror failed")
	}
}

func auditColor(event string) int {
	switch event {
	case "payment_verified":
		return 0x2ecc71
	case "payment_rejected", "payment_timeout", "auto_blacklist", "blacklist_added":
		return 0xe74c3c
	case "slot_cancelled", "registration_expired":
		return 0x95a5a6
	default:
		return 0x3498db
	}
}

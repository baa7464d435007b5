package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/registry"
)

// Board messages are sent once per lobby day and edited thereafter; refreshes
// triggered by state transitions bypass the periodic throttle so the counts
// players see never lag a confirmation.
const boardRefreshEvery = 15 * time.Minute

// RefreshBoards redraws the slot-count embed in the registration channel and
// the roster embed in the room channel.
func (b *Bot) RefreshBoards(ctx context.Context, lobbyKey string) {
	lobby, ok := b.lobbies[lobbyKey]
	if !ok || b.dg == nil {
		return
	}

	b.mu.Lock()
	rt := b.runtime[lobbyKey]
	rt.lastSlotRefresh = time.Now()
	slotMsgID := rt.slotMessageID
	rosterMsgID := rt.rosterMessageID
	b.mu.Unlock()

	if lobby.ChannelID != "" {
		newID := b.upsertEmbed(lobby.ChannelID, slotMsgID, b.slotEmbed(lobby.Key, lobby.Label))
		if newID != slotMsgID {
			b.mu.Lock()
			b.runtime[lobbyKey].slotMessageID = newID
			b.mu.Unlock()
		}
	}
	if lobby.RoomChannelID != "" {
		newID := b.upsertEmbed(lobby.RoomChannelID, rosterMsgID, b.rosterEmbed(lobby.Key, lobby.Label))
		if newID != rosterMsgID {
			b.mu.Lock()
			b.runtime[lobbyKey].rosterMessageID = newID
			b.mu.Unlock()
		}
	}
}

// upsertEmbed edits the remembered message or sends a fresh one when there is
// no handle yet or the old message was deleted out from under us.
func (b *Bot) upsertEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) string {
	if messageID != "" {
		if _, err := b.dg.ChannelMessageEditEmbed(channelID, messageID, embed); err == nil {
			return messageID
		}
	}
	msg, err := b.dg.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		b.log.Debug().Err(err).Str("channel", channelID).Msg("board send failed")
		return messageID
	}
	return msg.ID
}

// slotEmbed shows reserved versus total slots and the per-type confirmed
// counts for one lobby.
func (b *Bot) slotEmbed(lobbyKey, label string) *discordgo.MessageEmbed {
	reserved := b.store.ReservedCount(lobbyKey)
	confirmed := b.store.ConfirmedCount(lobbyKey)

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d / %d** slots reserved, **%d** confirmed\n\n", reserved, b.cfg.LobbyCapacity, confirmed)
	for _, mt := range b.sortedTypes() {
		fmt.Fprintf(&sb, "• %s: **%d** confirmed\n", mt.Label, b.store.ConfirmedCountByType(lobbyKey, mt.Key))
	}
	if reserved >= b.cfg.LobbyCapacity {
		sb.WriteString("\n**Lobby full.**")
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s — slot status", label),
		Description: sb.String(),
		Color:       0x3498db,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Updated " + time.Now().Format("15:04:05")},
	}
}

// rosterEmbed lists the confirmed squads for the room channel.
func (b *Bot) rosterEmbed(lobbyKey, label string) *discordgo.MessageEmbed {
	regs := b.store.Query(lobbyKey, "", registry.StatusConfirmed)

	var sb strings.Builder
	if len(regs) == 0 {
		sb.WriteString("No confirmed squads yet.")
	}
	for i, reg := range regs {
		mt := b.types[reg.MatchType]
		fmt.Fprintf(&sb, "%d. **%s** — %s (leader <@%s>)\n", i+1, reg.TeamName, mt.Label, reg.LeaderID)
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s — confirmed roster", label),
		Description: sb.String(),
		Color:       0x2ecc71,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Updated " + time.Now().Format("15:04:05")},
	}
}

// runBoardRefresher keeps boards from going stale between transitions.
func (b *Bot) runBoardRefresher(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for key := range b.lobbies {
			b.mu.Lock()
			rt := b.runtime[key]
			due := rt.active && time.Since(rt.lastSlotRefresh) >= boardRefreshEvery
			b.mu.Unlock()
			if due {
				b.RefreshBoards(ctx, key)
			}
		}
	}
}

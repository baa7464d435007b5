package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/config"
	"github.com/ssesports/scrims-bot/internal/registry"
)

// Registration opens one hour before match time and closes at match time.
const registrationLead = time.Hour

// runLobbyScheduler walks the clock once a minute and opens or closes each
// lobby at its scheduled boundary. Open and close are idempotent so a restart
// mid-window converges on the right state at the next tick.
func (b *Bot) runLobbyScheduler(ctx context.Context) {
	loc, err := b.cfg.Location()
	if err != nil {
		b.log.Error().Err(err).Str("tz", b.cfg.Timezone).Msg("timezone load failed, scheduler disabled")
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().In(loc)
		for key, lobby := range b.lobbies {
			open := withinRegistrationWindow(now, lobby)
			if open == b.lobbyActive(key) {
				continue
			}
			if open {
				if err := b.OpenLobby(ctx, key); err != nil {
					b.log.Warn().Err(err).Str("lobby", key).Msg("scheduled open failed")
				}
			} else {
				if err := b.CloseLobby(ctx, key); err != nil {
					b.log.Warn().Err(err).Str("lobby", key).Msg("scheduled close failed")
				}
			}
		}
	}
}

// withinRegistrationWindow reports whether now falls in [match-1h, match) for
// the next occurrence of the lobby's match time. Rolling the match forward a
// day handles the midnight lobby, whose window starts the previous evening.
func withinRegistrationWindow(now time.Time, lobby config.Lobby) bool {
	match := time.Date(now.Year(), now.Month(), now.Day(), lobby.MatchHour, lobby.MatchMinute, 0, 0, now.Location())
	if !now.Before(match) {
		match = match.AddDate(0, 0, 1)
	}
	openAt := match.Add(-registrationLead)
	return !now.Before(openAt) && now.Before(match)
}

// OpenLobby unlocks the registration channel, posts the registration panel
// and marks the lobby active. Also reachable from $post_lobbies and the
// dashboard.
func (b *Bot) OpenLobby(ctx context.Context, key string) error {
	lobby, ok := b.lobbies[key]
	if !ok || b.dg == nil {
		return registry.ErrNotFound
	}
	if b.lobbyActive(key) {
		return nil
	}
	b.setLobbyActive(key, true)

	if lobby.ChannelID != "" {
		// Guild id doubles as the @everyone role id.
		err := b.dg.ChannelPermissionSet(lobby.ChannelID, b.cfg.GuildID,
			discordgo.PermissionOverwriteTypeRole,
			discordgo.PermissionSendMessages, 0)
		if err != nil {
			b.log.Warn().Err(err).Str("channel", lobby.ChannelID).Msg("channel unlock failed")
		}

		embed := &discordgo.MessageEmbed{
			Title: fmt.Sprintf("%s Scrims — registration open", lobby.Label),
			Description: b.lobbyMenuText(lobby.Label) +
				"\nTo register, send one message mentioning your **4 squad members**. " +
				"The sender is the squad leader and completes payment in DM.\n" +
				"Registration closes at match time.",
			Color: 0x9b59b6,
		}
		if _, err := b.dg.ChannelMessageSendEmbed(lobby.ChannelID, embed); err != nil {
			b.log.Warn().Err(err).Str("channel", lobby.ChannelID).Msg("panel post failed")
		}
	}

	b.RefreshBoards(ctx, key)
	b.trail.Record(registry.AuditEvent{Name: "lobby_opened", LobbyKey: key})
	b.log.Info().Str("lobby", key).Msg("lobby opened")
	return nil
}

// CloseLobby locks the registration channel and marks the lobby inactive.
// Live registrations continue through their own timers.
func (b *Bot) CloseLobby(ctx context.Context, key string) error {
	lobby, ok := b.lobbies[key]
	if !ok || b.dg == nil {
		return registry.ErrNotFound
	}
	if !b.lobbyActive(key) {
		return nil
	}
	b.setLobbyActive(key, false)

	if lobby.ChannelID != "" {
		err := b.dg.ChannelPermissionSet(lobby.ChannelID, b.cfg.GuildID,
			discordgo.PermissionOverwriteTypeRole,
			0, discordgo.PermissionSendMessages)
		if err != nil {
			b.log.Warn().Err(err).Str("channel", lobby.ChannelID).Msg("channel lock failed")
		}

		confirmed := b.store.ConfirmedCount(key)
		embed := &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("%s Scrims — registration closed", lobby.Label),
			Description: fmt.Sprintf("Registration is closed with **%d** confirmed squads. See you at the next lobby!", confirmed),
			Color:       0x95a5a6,
		}
		if _, err := b.dg.ChannelMessageSendEmbed(lobby.ChannelID, embed); err != nil {
			b.log.Warn().Err(err).Str("channel", lobby.ChannelID).Msg("close notice failed")
		}
	}

	b.RefreshBoards(ctx, key)
	b.trail.Record(registry.AuditEvent{Name: "lobby_closed", LobbyKey: key})
	b.log.Info().Str("lobby", key).Msg("lobby closed")
	return nil
}

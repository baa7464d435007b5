package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/config"
	"github.com/ssesports/scrims-bot/internal/registry"
)

// GrantLobbyAccess runs the confirmation grant sequence: resolve or create
// the (lobby, match type) role, hand it to all four players, open the room
// channel to that role and post the squad card. Each step is attempted even
// if an earlier one failed for some players; the first error is reported but
// the sequence is safe to re-run.
func (b *Bot) GrantLobbyAccess(ctx context.Context, reg *registry.Registration) error {
	lobby := b.lobbies[reg.LobbyKey]
	mt := b.types[reg.MatchType]

	role, err := b.findOrCreateRole(roleName(lobby.Label, mt.Label))
	if err != nil {
		return err
	}

	var firstErr error
	for _, playerID := range reg.PlayerIDs {
		if err := b.dg.GuildMemberRoleAdd(b.cfg.GuildID, playerID, role.ID); err != nil {
			b.log.Warn().Err(err).Str("player", playerID).Str("role", role.Name).Msg("role grant failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("grant role to %s: %w", playerID, err)
			}
		}
	}

	if lobby.RoomChannelID != "" {
		err := b.dg.ChannelPermissionSet(lobby.RoomChannelID, role.ID,
			discordgo.PermissionOverwriteTypeRole,
			discordgo.PermissionViewChannel|discordgo.PermissionReadMessageHistory, 0)
		if err != nil {
			b.log.Warn().Err(err).Str("channel", lobby.RoomChannelID).Msg("room overwrite failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("open room channel: %w", err)
			}
		}
		b.postSquadCard(lobby, mt, reg)
	}

	return firstErr
}

// findOrCreateRole is idempotent so repeat grants for the same lobby and type
// reuse one role instead of stacking duplicates.
func (b *Bot) findOrCreateRole(name string) (*discordgo.Role, error) {
	roles, err := b.dg.GuildRoles(b.cfg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return role, nil
		}
	}

	mentionable := true
	role, err := b.dg.GuildRoleCreate(b.cfg.GuildID, &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	})
	if err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	return role, nil
}

// postSquadCard publishes the confirmed squad in the room channel.
func (b *Bot) postSquadCard(lobby config.Lobby, mt registry.MatchType, reg *registry.Registration) {
	mentions := make([]string, 0, registry.SquadSize)
	for _, id := range reg.PlayerIDs {
		mentions = append(mentions, "<@"+id+">")
	}
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s — slot confirmed", reg.TeamName),
		Description: fmt.Sprintf(
			"Lobby: **%s — %s**\nLeader: <@%s>\nSquad: %s",
			lobby.Label, mt.Label, reg.LeaderID, strings.Join(mentions, " ")),
		Color: 0x2ecc71,
	}
	if _, err := b.dg.ChannelMessageSendEmbed(lobby.RoomChannelID, embed); err != nil {
		b.log.Warn().Err(err).Str("channel", lobby.RoomChannelID).Msg("squad card failed")
	}
}

func roleName(lobbyLabel, typeLabel string) string {
	return fmt.Sprintf("Scrims %s %s", lobbyLabel, typeLabel)
}

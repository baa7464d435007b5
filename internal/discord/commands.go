package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/registry"
)

// handleStaffCommand dispatches $-prefixed management commands. Every command
// is gated on Manage Server; non-staff invocations are ignored silently.
func (b *Bot) handleStaffCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !b.isStaff(m.Author.ID, m.ChannelID) {
		return
	}

	fields := strings.Fields(m.Content)
	if len(fields) == 0 {
		return
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	ctx := context.Background()

	switch cmd {
	case "$markpaid":
		b.cmdMarkPaid(ctx, m, args)
	case "$cancel_slot":
		b.cmdCancelSlot(ctx, m, args)
	case "$blacklist":
		b.cmdBlacklist(ctx, m, args)
	case "$post_lobbies":
		b.cmdPostLobbies(ctx, m, args)
	case "$close_lobby":
		b.cmdCloseLobby(ctx, m, args)
	}
}

// $markpaid <team name> confirms a payment_pending registration by team name,
// the fallback when the reaction flow is unavailable.
func (b *Bot) cmdMarkPaid(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	team := strings.Join(args, " ")
	if team == "" {
		b.replyTemp(m.ChannelID, m.Reference(), "Usage: `$markpaid <team name>`")
		return
	}

	reg, ok := b.store.FindByTeam(team)
	if !ok {
		b.replyTemp(m.ChannelID, m.Reference(), fmt.Sprintf("No live registration for **%s**.", team))
		return
	}

	err := b.engine.Confirm(ctx, reg.ID, m.Author.ID, "command")
	switch {
	case err == nil:
		b.react(m.ChannelID, m.ID, reactAccepted)
		b.NotifyLeader(ctx, reg.LeaderID,
			fmt.Sprintf("Payment verified for **%s**. Your slot is confirmed.", reg.TeamName))
	case errors.Is(err, registry.ErrAlreadyConfirmed):
		b.replyTemp(m.ChannelID, m.Reference(), fmt.Sprintf("**%s** is already confirmed.", reg.TeamName))
	default:
		b.replyTemp(m.ChannelID, m.Reference(),
			fmt.Sprintf("**%s** is not awaiting payment (still choosing a match type?).", reg.TeamName))
	}
}

// $cancel_slot <team name> removes a registration in any state.
func (b *Bot) cmdCancelSlot(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	team := strings.Join(args, " ")
	if team == "" {
		b.replyTemp(m.ChannelID, m.Reference(), "Usage: `$cancel_slot <team name>`")
		return
	}

	reg, ok := b.store.FindByTeam(team)
	if !ok {
		b.replyTemp(m.ChannelID, m.Reference(), fmt.Sprintf("No live registration for **%s**.", team))
		return
	}
	if err := b.engine.Cancel(ctx, reg.ID, m.Author.ID); err != nil {
		b.replyTemp(m.ChannelID, m.Reference(), "Cancellation failed, the slot may already be gone.")
		return
	}
	b.react(m.ChannelID, m.ID, reactAccepted)
	b.NotifyLeader(ctx, reg.LeaderID,
		fmt.Sprintf("Your slot for **%s** was cancelled by management.", reg.TeamName))
}

// $blacklist add <@user|id> [reason...] | remove <@user|id> | list
func (b *Bot) cmdBlacklist(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.replyTemp(m.ChannelID, m.Reference(), "Usage: `$blacklist add|remove|list ...`")
		return
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 2 {
			b.replyTemp(m.ChannelID, m.Reference(), "Usage: `$blacklist add <@user> [reason]`")
			return
		}
		id := mentionID(args[1])
		reason := "Manual"
		if len(args) > 2 {
			reason = strings.Join(args[2:], " ")
		}
		b.state.Add(id, "", reason)
		b.trail.Record(registry.AuditEvent{
			Name: "blacklist_added", LeaderID: id, Actor: m.Author.ID, Detail: reason,
		})
		b.react(m.ChannelID, m.ID, reactAccepted)
	case "remove":
		if len(args) < 2 {
			b.replyTemp(m.ChannelID, m.Reference(), "Usage: `$blacklist remove <@user>`")
			return
		}
		id := mentionID(args[1])
		if !b.state.RemoveLeader(id) {
			b.replyTemp(m.ChannelID, m.Reference(), "That user is not blacklisted.")
			return
		}
		b.trail.Record(registry.AuditEvent{
			Name: "blacklist_removed", LeaderID: id, Actor: m.Author.ID,
		})
		b.react(m.ChannelID, m.ID, reactAccepted)
	case "list":
		entries := b.state.Entries()
		if len(entries) == 0 {
			b.replyTemp(m.ChannelID, m.Reference(), "Blacklist is empty.")
			return
		}
		var sb strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&sb, "• <@%s>", e.LeaderID)
			if e.Team != "" {
				fmt.Fprintf(&sb, " (%s)", e.Team)
			}
			fmt.Fprintf(&sb, " — %s\n", e.Reason)
		}
		embed := &discordgo.MessageEmbed{Title: "Blacklist", Description: sb.String(), Color: 0x2c3e50}
		if _, err := b.dg.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
			b.log.Debug().Err(err).Msg("blacklist list failed")
		}
	default:
		b.replyTemp(m.ChannelID, m.Reference(), "Usage: `$blacklist add|remove|list ...`")
	}
}

// $post_lobbies [key] opens registration out of schedule.
func (b *Bot) cmdPostLobbies(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	keys := b.lobbyKeysFromArgs(args)
	if keys == nil {
		b.replyTemp(m.ChannelID, m.Reference(), "Unknown lobby. Keys: "+strings.Join(b.lobbyKeys(), ", "))
		return
	}
	for _, key := range keys {
		if err := b.OpenLobby(ctx, key); err != nil {
			b.log.Warn().Err(err).Str("lobby", key).Msg("manual open failed")
		}
	}
	b.react(m.ChannelID, m.ID, reactAccepted)
}

// $close_lobby [key] closes registration out of schedule.
func (b *Bot) cmdCloseLobby(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	keys := b.lobbyKeysFromArgs(args)
	if keys == nil {
		b.replyTemp(m.ChannelID, m.Reference(), "Unknown lobby. Keys: "+strings.Join(b.lobbyKeys(), ", "))
		return
	}
	for _, key := range keys {
		if err := b.CloseLobby(ctx, key); err != nil {
			b.log.Warn().Err(err).Str("lobby", key).Msg("manual close failed")
		}
	}
	b.react(m.ChannelID, m.ID, reactAccepted)
}

// lobbyKeysFromArgs resolves command args to lobby keys: no args means every
// lobby, a bad key means nil.
func (b *Bot) lobbyKeysFromArgs(args []string) []string {
	if len(args) == 0 {
		return b.lobbyKeys()
	}
	var keys []string
	for _, arg := range args {
		key := strings.ToLower(arg)
		if _, ok := b.lobbies[key]; !ok {
			return nil
		}
		keys = append(keys, key)
	}
	return keys
}

func (b *Bot) lobbyKeys() []string {
	keys := make([]string, 0, len(b.lobbies))
	for key := range b.lobbies {
		keys = append(keys, key)
	}
	return keys
}

// mentionID strips <@...> decoration from a mention, or returns the raw id.
func mentionID(s string) string {
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSuffix(s, ">")
}

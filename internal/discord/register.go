package discord

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/registry"
)

const (
	reactAccepted = "✅"
	reactDenied   = "❌"
)

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	// DMs carry payment proofs.
	if m.GuildID == "" {
		b.handleProofMessage(s, m)
		return
	}

	if strings.HasPrefix(m.Content, "$") {
		b.handleStaffCommand(s, m)
		return
	}

	b.handleSquadMessage(s, m)
}

// handleSquadMessage is the registration entry point: a message with exactly
// four mentions in an open lobby channel.
func (b *Bot) handleSquadMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	lobby, ok := b.lobbyForChannel(m.ChannelID)
	if !ok {
		return
	}
	if !b.lobbyActive(lobby.Key) {
		return
	}

	if !b.allowSubmission(m.Author.ID) {
		b.react(m.ChannelID, m.ID, reactDenied)
		return
	}

	if len(m.Mentions) != registry.SquadSize {
		b.react(m.ChannelID, m.ID, reactDenied)
		b.replyTemp(m.ChannelID, m.Reference(),
			"**Invalid registration.** Mention exactly 4 squad members; the leader is the sender.")
		return
	}

	playerIDs := make([]string, 0, registry.SquadSize)
	for _, u := range m.Mentions {
		playerIDs = append(playerIDs, u.ID)
	}
	teamName := "Team-" + displayName(m.Author)

	ctx := context.Background()
	_, err := b.engine.Submit(ctx, m.ID, lobby.Key, teamName, m.Author.ID, playerIDs)
	switch {
	case err == nil:
		b.react(m.ChannelID, m.ID, reactAccepted)
		b.replyTemp(m.ChannelID, m.Reference(),
			"**Registration accepted.** Check the leader's DM to continue.")
	case errors.Is(err, registry.ErrValidation):
		b.react(m.ChannelID, m.ID, reactDenied)
		b.replyTemp(m.ChannelID, m.Reference(),
			"**Invalid registration.** Mention exactly 4 distinct squad members.")
	case errors.Is(err, registry.ErrBlacklisted):
		b.react(m.ChannelID, m.ID, reactDenied)
		b.replyTemp(m.ChannelID, m.Reference(),
			"**Registration denied.** You are blacklisted; contact management if this is a mistake.")
	case errors.Is(err, registry.ErrDuplicate):
		b.react(m.ChannelID, m.ID, reactDenied)
		b.replyTemp(m.ChannelID, m.Reference(),
			"**Duplicate registration.** One or more players are already registered in this lobby.")
	case errors.Is(err, registry.ErrDeliveryFailed):
		b.react(m.ChannelID, m.ID, reactDenied)
		b.replyTemp(m.ChannelID, m.Reference(),
			"**DM failed.** Enable direct messages (Server Settings → Privacy), then register again.")
	default:
		b.log.Error().Err(err).Str("team", teamName).Msg("submission failed")
	}
}

func (b *Bot) lobbyActive(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runtime[key].active
}

func (b *Bot) setLobbyActive(key string, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runtime[key].active = active
}

func (b *Bot) react(channelID, messageID, emoji string) {
	if err := b.dg.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		b.log.Debug().Err(err).Msg("reaction failed")
	}
}

// replyTemp posts a short-lived reply and deletes it after a few seconds to
// keep lobby channels readable.
func (b *Bot) replyTemp(channelID string, ref *discordgo.MessageReference, content string) {
	msg, err := b.dg.ChannelMessageSendReply(channelID, content, ref)
	if err != nil {
		b.log.Debug().Err(err).Msg("reply failed")
		return
	}
	go func() {
		timer := time.NewTimer(8 * time.Second)
		defer timer.Stop()
		<-timer.C
		_ = b.dg.ChannelMessageDelete(channelID, msg.ID)
	}()
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/registry"
)

// handleProofMessage takes a payment screenshot DM'd by a leader and forwards
// it to the staff verification channel for a reaction verdict. The proof is
// matched to the leader's most recent payment_pending registration.
func (b *Bot) handleProofMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if len(m.Attachments) == 0 {
		return
	}
	if !strings.Contains(strings.ToLower(m.Content), "paid") {
		b.NotifyLeader(context.Background(), m.Author.ID,
			"Attach your payment screenshot and include the word `paid` in the same message.")
		return
	}

	reg, ok := b.store.LatestByLeader(m.Author.ID, registry.StatusPaymentPending)
	if !ok {
		b.NotifyLeader(context.Background(), m.Author.ID,
			"No registration is awaiting payment for you. Your slot may have timed out; register again.")
		return
	}

	if b.cfg.StaffChannelID == "" {
		b.log.Warn().Msg("no staff verification channel configured, proof dropped")
		return
	}

	lobby := b.lobbies[reg.LobbyKey]
	mt := b.types[reg.MatchType]
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Payment proof — %s", reg.TeamName),
		Description: fmt.Sprintf(
			"Lobby: **%s — %s**\nEntry fee: **₹%d**\nLeader: <@%s>\nRegistration: `#%d`\n\nReact %s to verify or %s to reject.",
			lobby.Label, mt.Label, reg.EntryFee, reg.LeaderID, reg.ID, reactAccepted, reactDenied),
		Image: &discordgo.MessageEmbedImage{URL: m.Attachments[0].URL},
		Color: 0xf1c40f,
	}

	msg, err := b.dg.ChannelMessageSendEmbed(b.cfg.StaffChannelID, embed)
	if err != nil {
		b.log.Error().Err(err).Int64("reg_id", reg.ID).Msg("proof forward failed")
		return
	}
	b.rememberProof(msg.ID, reg.ID)
	b.react(b.cfg.StaffChannelID, msg.ID, reactAccepted)
	b.react(b.cfg.StaffChannelID, msg.ID, reactDenied)

	b.NotifyLeader(context.Background(), m.Author.ID,
		"Payment proof received. Management will verify it shortly.")
	b.trail.Record(registry.AuditEvent{
		Name: "proof_submitted", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
	})
}

// onMessageReactionAdd is the staff verdict path: ✅ or ❌ on a forwarded
// proof message in the verification channel confirms or rejects the slot.
func (b *Bot) onMessageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.ChannelID != b.cfg.StaffChannelID || b.cfg.StaffChannelID == "" {
		return
	}
	if r.UserID == s.State.User.ID {
		return
	}
	if r.Emoji.Name != reactAccepted && r.Emoji.Name != reactDenied {
		return
	}

	regID, ok := b.peekProof(r.MessageID)
	if !ok {
		return
	}
	if !b.isStaff(r.UserID, r.ChannelID) {
		return
	}

	ctx := context.Background()
	switch r.Emoji.Name {
	case reactAccepted:
		err := b.engine.Confirm(ctx, regID, r.UserID, "reaction")
		if err != nil {
			if errors.Is(err, registry.ErrAlreadyConfirmed) {
				return
			}
			b.log.Warn().Err(err).Int64("reg_id", regID).Msg("confirm failed")
			b.replyTemp(r.ChannelID, nil, "That registration is no longer awaiting payment.")
			return
		}
		b.takeProof(r.MessageID)
		if reg, found := b.store.Get(regID); found {
			b.NotifyLeader(ctx, reg.LeaderID,
				fmt.Sprintf("Payment verified for **%s**. Your slot is confirmed; room details will appear in the lobby room channel.", reg.TeamName))
		}
	case reactDenied:
		if err := b.engine.Reject(ctx, regID, r.UserID); err != nil {
			b.log.Warn().Err(err).Int64("reg_id", regID).Msg("reject failed")
			return
		}
		b.takeProof(r.MessageID)
	}
}

package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ssesports/scrims-bot/internal/registry"
)

// Component custom ids carry the registration id so a button press can be
// routed without any session state: scrims:type:<regID>:<typeKey> and
// scrims:fee:<regID>:<typeKey>:<fee>.
const customIDPrefix = "scrims"

// OpenPrivateFlow DMs the leader the match-type menu. An error here rolls the
// registration back in the engine.
func (b *Bot) OpenPrivateFlow(ctx context.Context, reg *registry.Registration) error {
	ch, err := b.dg.UserChannelCreate(reg.LeaderID)
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}

	lobby := b.lobbies[reg.LobbyKey]
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Scrims — choose your match type", lobby.Label),
		Description: b.lobbyMenuText(lobby.Label) + "\n\n**Choose your lobby type to continue.**",
		Color:       0x9b59b6,
	}

	buttons := make([]discordgo.MessageComponent, 0, len(b.types))
	for _, mt := range b.sortedTypes() {
		buttons = append(buttons, discordgo.Button{
			Label:    mt.Label,
			Style:    discordgo.PrimaryButton,
			CustomID: fmt.Sprintf("%s:type:%d:%s", customIDPrefix, reg.ID, mt.Key),
		})
	}

	_, err = b.dg.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
	})
	if err != nil {
		return fmt.Errorf("send dm: %w", err)
	}

	b.trail.Record(registry.AuditEvent{
		Name: "dm_flow_opened", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
	})
	return nil
}

// SendPaymentInstructions DMs the payment rules and QR once a slot is
// reserved. An error here rolls the reservation back.
func (b *Bot) SendPaymentInstructions(ctx context.Context, reg *registry.Registration) error {
	ch, err := b.dg.UserChannelCreate(reg.LeaderID)
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}

	lobby := b.lobbies[reg.LobbyKey]
	mt := b.types[reg.MatchType]
	embed := &discordgo.MessageEmbed{
		Title: "Payment required",
		Description: fmt.Sprintf(
			"Lobby: **%s — %s**\nEntry fee: **₹%d**\n\n"+
				"Pay with the QR below within %s.\n"+
				"After paying, send your **payment screenshot** here and type `paid` in the same message.\n"+
				"Fake or delayed payments lead to a permanent blacklist.",
			lobby.Label, mt.Label, reg.EntryFee, b.cfg.PaymentTimeout),
		Color: 0xe74c3c,
	}
	if b.cfg.PaymentQRURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: b.cfg.PaymentQRURL}
	}

	if _, err := b.dg.ChannelMessageSendEmbed(ch.ID, embed); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// NotifyLeader sends a best-effort DM.
func (b *Bot) NotifyLeader(ctx context.Context, leaderID, message string) {
	ch, err := b.dg.UserChannelCreate(leaderID)
	if err != nil {
		b.log.Debug().Err(err).Str("leader", leaderID).Msg("notify failed")
		return
	}
	if _, err := b.dg.ChannelMessageSend(ch.ID, message); err != nil {
		b.log.Debug().Err(err).Str("leader", leaderID).Msg("notify failed")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	parts := strings.Split(i.MessageComponentData().CustomID, ":")
	if len(parts) < 4 || parts[0] != customIDPrefix {
		return
	}

	regID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return
	}

	ctx := context.Background()
	switch parts[1] {
	case "type":
		b.handleTypeChoice(ctx, i, regID, parts[3])
	case "fee":
		if len(parts) != 5 {
			return
		}
		fee, err := strconv.Atoi(parts[4])
		if err != nil {
			return
		}
		b.handleFeeChoice(ctx, i, regID, parts[3], fee)
	}
}

func (b *Bot) handleTypeChoice(ctx context.Context, i *discordgo.InteractionCreate, regID int64, typeKey string) {
	fees, reserved, err := b.engine.ChooseMatchType(ctx, regID, typeKey)
	if err != nil {
		b.respondEphemeral(i, b.choiceErrorText(err))
		return
	}
	if reserved {
		b.respondEphemeral(i, "Slot reserved. Payment instructions have been sent — check this DM.")
		return
	}

	buttons := make([]discordgo.MessageComponent, 0, len(fees))
	for _, fee := range fees {
		buttons = append(buttons, discordgo.Button{
			Label:    fmt.Sprintf("₹%d", fee),
			Style:    discordgo.SecondaryButton,
			CustomID: fmt.Sprintf("%s:fee:%d:%s:%d", customIDPrefix, regID, typeKey, fee),
		})
	}
	b.respond(i, &discordgo.InteractionResponseData{
		Content:    "Choose your entry fee:",
		Flags:      discordgo.MessageFlagsEphemeral,
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}},
	})
}

func (b *Bot) handleFeeChoice(ctx context.Context, i *discordgo.InteractionCreate, regID int64, typeKey string, fee int) {
	if err := b.engine.ChooseFee(ctx, regID, typeKey, fee); err != nil {
		b.respondEphemeral(i, b.choiceErrorText(err))
		return
	}
	b.respondEphemeral(i, "Slot reserved. Payment instructions have been sent — check this DM.")
}

func (b *Bot) choiceErrorText(err error) string {
	switch {
	case errors.Is(err, registry.ErrCapacityFull):
		return "All slots are full for this selection. You may try a different match type."
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrStaleTrigger):
		return "Registration not found or already processed."
	case errors.Is(err, registry.ErrAlreadyConfirmed):
		return "This registration is already confirmed."
	case errors.Is(err, registry.ErrDeliveryFailed):
		return "Could not DM you the payment instructions; the registration was cancelled. Enable DMs and register again."
	case errors.Is(err, registry.ErrUnknownMatchType), errors.Is(err, registry.ErrInvalidFee):
		return "That option is not available."
	default:
		return "Something went wrong, please contact staff."
	}
}

func (b *Bot) respond(i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := b.dg.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Debug().Err(err).Msg("interaction respond failed")
	}
}

func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	b.respond(i, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

func (b *Bot) sortedTypes() []registry.MatchType {
	out := make([]registry.MatchType, 0, len(b.types))
	for _, mt := range b.types {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (b *Bot) lobbyMenuText(label string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s lobby** — daily paid scrims\n", label)
	for _, mt := range b.sortedTypes() {
		fees := make([]string, 0, len(mt.Fees))
		for _, f := range mt.Fees {
			fees = append(fees, fmt.Sprintf("₹%d", f))
		}
		fmt.Fprintf(&sb, "• **%s** — entry %s\n", mt.Label, strings.Join(fees, " / "))
	}
	return sb.String()
}

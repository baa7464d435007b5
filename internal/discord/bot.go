package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ssesports/scrims-bot/internal/audit"
	"github.com/ssesports/scrims-bot/internal/config"
	"github.com/ssesports/scrims-bot/internal/registry"
	"github.com/ssesports/scrims-bot/internal/storage"
)

// Bot is the guild-facing adapter: it turns platform events (squad messages,
// DM buttons, proof uploads, staff reactions and commands) into engine calls,
// and implements the engine's Messenger/AccessGranter/BoardUpdater contracts
// on top of the Discord API.
type Bot struct {
	dg     *discordgo.Session
	cfg    *config.Config
	engine *registry.Engine
	store  *registry.Store
	state  *storage.Storage
	trail  *audit.Log
	log    zerolog.Logger

	lobbies        map[string]config.Lobby // by key
	lobbyByChannel map[string]string       // registration channel id -> lobby key
	types          map[string]registry.MatchType

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter // per-leader submission throttle

	mu      sync.Mutex
	runtime map[string]*lobbyRuntime
	proofs  map[string]int64 // staff verification message id -> reg id
}

// lobbyRuntime is the per-lobby mutable display state: whether registration
// is open and the remembered handles of the two board messages (created once,
// edited thereafter).
type lobbyRuntime struct {
	active          bool
	slotMessageID   string
	rosterMessageID string
	lastSlotRefresh time.Time
}

func NewBot(cfg *config.Config, store *registry.Store, state *storage.Storage, trail *audit.Log, log zerolog.Logger) *Bot {
	b := &Bot{
		cfg:            cfg,
		store:          store,
		state:          state,
		trail:          trail,
		log:            log.With().Str("component", "discord").Logger(),
		lobbies:        make(map[string]config.Lobby),
		lobbyByChannel: make(map[string]string),
		types:          make(map[string]registry.MatchType),
		limiters:       make(map[string]*rate.Limiter),
		runtime:        make(map[string]*lobbyRuntime),
		proofs:         make(map[string]int64),
	}
	for _, lobby := range cfg.Lobbies() {
		b.lobbies[lobby.Key] = lobby
		if lobby.ChannelID != "" {
			b.lobbyByChannel[lobby.ChannelID] = lobby.Key
		}
		b.runtime[lobby.Key] = &lobbyRuntime{}
	}
	for _, mt := range cfg.MatchTypes() {
		b.types[mt.Key] = mt
	}
	return b
}

// SetEngine wires the lifecycle engine in after construction; the engine and
// the bot reference each other.
func (b *Bot) SetEngine(e *registry.Engine) { b.engine = e }

// Run opens the gateway session and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	b.dg = dg

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onMessageReactionAdd)
	dg.AddHandler(b.onInteractionCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer dg.Close()

	go b.runLobbyScheduler(ctx)
	go b.runBoardRefresher(ctx)

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Msg("gateway ready")
	for key := range b.lobbies {
		b.RefreshBoards(context.Background(), key)
	}
	b.trail.Record(registry.AuditEvent{Name: "bot_online"})
}

func (b *Bot) lobbyForChannel(channelID string) (config.Lobby, bool) {
	key, ok := b.lobbyByChannel[channelID]
	if !ok {
		return config.Lobby{}, false
	}
	return b.lobbies[key], true
}

// allowSubmission enforces the per-leader submission throttle.
func (b *Bot) allowSubmission(leaderID string) bool {
	b.limitersMu.Lock()
	defer b.limitersMu.Unlock()
	lim, ok := b.limiters[leaderID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(b.cfg.SubmitEvery), b.cfg.SubmitBurst)
		b.limiters[leaderID] = lim
	}
	return lim.Allow()
}

// isStaff reports whether the user holds Manage Server in the channel. The
// engine trusts this boolean; it performs no access control of its own.
func (b *Bot) isStaff(userID, channelID string) bool {
	perms, err := b.dg.UserChannelPermissions(userID, channelID)
	if err != nil {
		b.log.Warn().Err(err).Str("user", userID).Msg("permission lookup failed")
		return false
	}
	return perms&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
}

func (b *Bot) rememberProof(messageID string, regID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proofs[messageID] = regID
}

func (b *Bot) takeProof(messageID string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.proofs[messageID]
	if ok {
		delete(b.proofs, messageID)
	}
	return id, ok
}

func (b *Bot) peekProof(messageID string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.proofs[messageID]
	return id, ok
}

package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BlacklistReasonTimeout is the persisted reason for timeout auto-blacklists.
const BlacklistReasonTimeout = "Payment Timeout"

// Messenger delivers the private leg of the flow. A failed OpenPrivateFlow or
// SendPaymentInstructions rolls the registration back; NotifyLeader is
// fire-and-forget.
type Messenger interface {
	OpenPrivateFlow(ctx context.Context, reg *Registration) error
	SendPaymentInstructions(ctx context.Context, reg *Registration) error
	NotifyLeader(ctx context.Context, leaderID, message string)
}

// AccessGranter performs the external grant on confirmation: resolve or
// create the access group for (lobby, match type), grant it to all four
// players, and publish the squad card. It must tolerate repeat grants.
type AccessGranter interface {
	GrantLobbyAccess(ctx context.Context, reg *Registration) error
}

// BoardUpdater refreshes the slot-count and roster displays for a lobby.
type BoardUpdater interface {
	RefreshBoards(ctx context.Context, lobbyKey string)
}

// Blacklist is consulted at submission and appended to on payment timeout.
type Blacklist interface {
	Contains(leaderID string) bool
	Add(leaderID, team, reason string)
}

// AuditEvent is the durable trace of a lifecycle step.
type AuditEvent struct {
	Name     string `json:"event"`
	RegID    int64  `json:"reg_id,omitempty"`
	LobbyKey string `json:"lobby_key,omitempty"`
	Team     string `json:"team,omitempty"`
	LeaderID string `json:"leader_id,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Auditor records lifecycle events. Recording must not fail the transition.
type Auditor interface {
	Record(e AuditEvent)
}

// Collaborators are the external surfaces the engine drives. The engine
// trusts that any staff-gated entry point (confirm, reject, cancel) has
// already passed the caller through an authorization check.
type Collaborators struct {
	Messenger Messenger
	Access    AccessGranter
	Boards    BoardUpdater
	Blacklist Blacklist
	Audit     Auditor
}

// Options carries the tunable lifecycle constants.
type Options struct {
	PendingExpiry       time.Duration // pending -> expired
	PaymentTimeout      time.Duration // payment_pending -> payment_timeout
	LobbyCapacity       int           // reserved ceiling per lobby
	TypeCapacity        int           // confirmed ceiling per match type
	EnforceTypeCapacity bool          // the advertised 12/type, off by default
	AutoBlacklist       bool          // blacklist leaders on payment timeout
}

// Engine is the lifecycle state machine. Every transition commits through a
// store primitive that checks and sets status in one synchronous critical
// section; the first trigger to commit wins and later ones observe the new
// status and back off.
type Engine struct {
	store  *Store
	timers *Timers
	opts   Options
	types  map[string]MatchType
	ext    Collaborators
	log    zerolog.Logger
}

func NewEngine(store *Store, timers *Timers, opts Options, types []MatchType, ext Collaborators, log zerolog.Logger) *Engine {
	tm := make(map[string]MatchType, len(types))
	for _, t := range types {
		tm[t.Key] = t
	}
	return &Engine{
		store:  store,
		timers: timers,
		opts:   opts,
		types:  tm,
		ext:    ext,
		log:    log.With().Str("component", "engine").Logger(),
	}
}

// Store exposes the read-only query surface for boards and the dashboard.
func (e *Engine) Store() *Store { return e.store }

// MatchTypes returns the configured tiers.
func (e *Engine) MatchTypes() []MatchType {
	out := make([]MatchType, 0, len(e.types))
	for _, t := range e.types {
		out = append(out, t)
	}
	return out
}

// Submit takes a validated squad message and creates a pending registration:
// exactly four distinct players, leader not blacklisted, no duplicate squad.
// On success the expiry timer is armed and the private flow opened; if the
// leader cannot be reached the registration is rolled back entirely.
func (e *Engine) Submit(ctx context.Context, messageID, lobbyKey, teamName, leaderID string, playerIDs []string) (*Registration, error) {
	players, ok := distinctPlayers(playerIDs)
	if !ok {
		return nil, ErrValidation
	}
	if e.ext.Blacklist.Contains(leaderID) {
		return nil, ErrBlacklisted
	}

	reg, err := e.store.Create(Draft{
		MessageID: messageID,
		LobbyKey:  lobbyKey,
		TeamName:  teamName,
		LeaderID:  leaderID,
		PlayerIDs: players,
	})
	if err != nil {
		return nil, err
	}

	e.timers.Arm(reg.ID, PhaseExpiry, e.opts.PendingExpiry, func() {
		e.expirePending(reg.ID)
	})

	if err := e.ext.Messenger.OpenPrivateFlow(ctx, reg); err != nil {
		// Equivalent to never created: remove and disarm, no audit noise
		// beyond the warning.
		e.timers.DisarmAll(reg.ID)
		e.store.RemoveIf(reg.ID, StatusPending)
		e.log.Warn().Int64("reg_id", reg.ID).Err(err).Msg("private flow failed, registration rolled back")
		return nil, ErrDeliveryFailed
	}

	e.ext.Audit.Record(AuditEvent{
		Name: "registration_submitted", RegID: reg.ID,
		LobbyKey: lobbyKey, Team: teamName, LeaderID: leaderID,
	})
	e.log.Info().Int64("reg_id", reg.ID).Str("lobby", lobbyKey).Str("team", teamName).Msg("registration submitted")
	return reg, nil
}

// ChooseMatchType handles the leader's tier selection. A single-fee type
// reserves the slot immediately; a multi-fee type returns the options and
// leaves the registration pending with no timer change.
func (e *Engine) ChooseMatchType(ctx context.Context, id int64, typeKey string) (fees []int, reserved bool, err error) {
	mt, ok := e.types[typeKey]
	if !ok {
		return nil, false, ErrUnknownMatchType
	}

	if len(mt.Fees) == 1 {
		if err := e.reserve(ctx, id, mt, mt.Fees[0]); err != nil {
			return nil, false, err
		}
		return mt.Fees, true, nil
	}

	if err := e.store.SetMatchType(id, typeKey); err != nil {
		return nil, false, err
	}
	return mt.Fees, false, nil
}

// ChooseFee completes a multi-fee selection and reserves the slot.
func (e *Engine) ChooseFee(ctx context.Context, id int64, typeKey string, fee int) error {
	mt, ok := e.types[typeKey]
	if !ok {
		return ErrUnknownMatchType
	}
	if !mt.HasFee(fee) {
		return ErrInvalidFee
	}
	return e.reserve(ctx, id, mt, fee)
}

// reserve is the pending -> payment_pending transition: capacity guard and
// commit happen atomically in the store, then the payment timer replaces the
// expiry timer and payment instructions go out. Undeliverable instructions
// roll the registration back, mirroring the submission rule.
func (e *Engine) reserve(ctx context.Context, id int64, mt MatchType, fee int) error {
	typeLimit := 0
	if e.opts.EnforceTypeCapacity {
		typeLimit = e.opts.TypeCapacity
	}

	reg, err := e.store.Reserve(id, mt.Key, fee, e.opts.LobbyCapacity, typeLimit)
	if err != nil {
		return err
	}

	e.timers.Disarm(id, PhaseExpiry)
	e.timers.Arm(id, PhasePayment, e.opts.PaymentTimeout, func() {
		e.paymentTimeout(id)
	})

	if err := e.ext.Messenger.SendPaymentInstructions(ctx, reg); err != nil {
		e.timers.DisarmAll(id)
		e.store.RemoveIf(id, StatusPaymentPending)
		e.log.Warn().Int64("reg_id", id).Err(err).Msg("payment instructions failed, registration rolled back")
		return ErrDeliveryFailed
	}

	e.ext.Audit.Record(AuditEvent{
		Name: "payment_pending", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
	})
	e.ext.Boards.RefreshBoards(ctx, reg.LobbyKey)
	return nil
}

// Confirm is the approval path shared by staff reactions, the $markpaid
// command and the dashboard. The status commit is authoritative; every
// downstream side effect is best-effort and never rolls it back. Repeat
// confirms are a detectable no-op (ErrAlreadyConfirmed) so the grant
// sequence and audit record happen exactly once.
func (e *Engine) Confirm(ctx context.Context, id int64, actor, source string) error {
	e.timers.Disarm(id, PhasePayment)

	reg, err := e.store.Confirm(id)
	if err != nil {
		return err
	}

	if err := e.ext.Access.GrantLobbyAccess(ctx, reg); err != nil {
		e.log.Warn().Int64("reg_id", id).Err(err).Msg("access grant incomplete")
	}
	e.ext.Boards.RefreshBoards(ctx, reg.LobbyKey)
	e.ext.Audit.Record(AuditEvent{
		Name: "payment_verified", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
		Actor: actor, Detail: source,
	})
	e.log.Info().Int64("reg_id", id).Str("source", source).Msg("registration confirmed")
	return nil
}

// Reject handles a staff rejection of payment proof: the registration is
// removed, the leader notified, no blacklist entry.
func (e *Engine) Reject(ctx context.Context, id int64, actor string) error {
	reg, ok := e.store.RemoveIf(id, StatusPaymentPending)
	if !ok {
		return ErrStaleTrigger
	}
	e.timers.DisarmAll(id)

	e.ext.Messenger.NotifyLeader(ctx, reg.LeaderID,
		"Your payment proof was rejected by management. Contact staff if you believe this is a mistake.")
	e.ext.Audit.Record(AuditEvent{
		Name: "payment_rejected", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID, Actor: actor,
	})
	e.ext.Boards.RefreshBoards(ctx, reg.LobbyKey)
	return nil
}

// Cancel removes a registration in any non-terminal state (manual staff
// action).
func (e *Engine) Cancel(ctx context.Context, id int64, actor string) error {
	reg, ok := e.store.Remove(id)
	if !ok {
		return ErrNotFound
	}
	e.timers.DisarmAll(id)

	e.ext.Audit.Record(AuditEvent{
		Name: "slot_cancelled", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID, Actor: actor,
	})
	e.ext.Boards.RefreshBoards(ctx, reg.LobbyKey)
	return nil
}

// expirePending fires when the DM flow went unanswered. The RemoveIf re-check
// is the guard: if the registration advanced or vanished meanwhile, this is a
// stale trigger and does nothing.
func (e *Engine) expirePending(id int64) {
	reg, ok := e.store.RemoveIf(id, StatusPending)
	if !ok {
		return
	}
	e.ext.Audit.Record(AuditEvent{
		Name: "registration_expired", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
		Detail: string(ReasonExpired),
	})
	e.log.Info().Int64("reg_id", id).Str("team", reg.TeamName).Msg("pending registration expired")
}

// paymentTimeout fires when no payment arrived in time. Exactly one of
// {confirm, timeout} can win for a given registration; the loser's RemoveIf
// fails and it backs off without side effects.
func (e *Engine) paymentTimeout(id int64) {
	reg, ok := e.store.RemoveIf(id, StatusPaymentPending)
	if !ok {
		return
	}

	ctx := context.Background()
	e.ext.Messenger.NotifyLeader(ctx, reg.LeaderID,
		"Your registration for "+reg.TeamName+" was cancelled: payment not received in time.")
	e.ext.Audit.Record(AuditEvent{
		Name: "payment_timeout", RegID: reg.ID,
		LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
		Detail: string(ReasonPaymentTimeout),
	})

	if e.opts.AutoBlacklist {
		e.ext.Blacklist.Add(reg.LeaderID, reg.TeamName, BlacklistReasonTimeout)
		e.ext.Audit.Record(AuditEvent{
			Name: "auto_blacklist", RegID: reg.ID,
			LobbyKey: reg.LobbyKey, Team: reg.TeamName, LeaderID: reg.LeaderID,
			Detail: BlacklistReasonTimeout,
		})
	}
	e.ext.Boards.RefreshBoards(ctx, reg.LobbyKey)
	e.log.Info().Int64("reg_id", id).Str("team", reg.TeamName).Msg("payment timed out")
}

// Shutdown cancels outstanding timers.
func (e *Engine) Shutdown() { e.timers.Stop() }

func distinctPlayers(ids []string) ([SquadSize]string, bool) {
	var out [SquadSize]string
	if len(ids) != SquadSize {
		return out, false
	}
	seen := make(map[string]struct{}, SquadSize)
	for i, id := range ids {
		if id == "" {
			return out, false
		}
		if _, dup := seen[id]; dup {
			return out, false
		}
		seen[id] = struct{}{}
		out[i] = id
	}
	return out, true
}

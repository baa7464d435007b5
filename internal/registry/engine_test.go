package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	mu      sync.Mutex
	openErr error
	payErr  error
	opened  []int64
	paid    []int64
	notices []string
}

func (f *fakeMessenger) OpenPrivateFlow(_ context.Context, reg *Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, reg.ID)
	return nil
}

func (f *fakeMessenger) SendPaymentInstructions(_ context.Context, reg *Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payErr != nil {
		return f.payErr
	}
	f.paid = append(f.paid, reg.ID)
	return nil
}

func (f *fakeMessenger) NotifyLeader(_ context.Context, leaderID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
}

type fakeAccess struct {
	mu     sync.Mutex
	err    error
	grants []int64
}

func (f *fakeAccess) GrantLobbyAccess(_ context.Context, reg *Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, reg.ID)
	return f.err
}

type fakeBoards struct {
	mu        sync.Mutex
	refreshes int
}

func (f *fakeBoards) RefreshBoards(_ context.Context, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

type fakeBlacklist struct {
	mu      sync.Mutex
	entries map[string]string // leader id -> reason
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{entries: make(map[string]string)}
}

func (f *fakeBlacklist) Contains(leaderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[leaderID]
	return ok
}

func (f *fakeBlacklist) Add(leaderID, _, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[leaderID] = reason
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (f *fakeAuditor) Record(e AuditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeAuditor) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type engineFixture struct {
	engine    *Engine
	store     *Store
	timers    *Timers
	messenger *fakeMessenger
	access    *fakeAccess
	boards    *fakeBoards
	blacklist *fakeBlacklist
	audit     *fakeAuditor
}

func newEngineFixture(t *testing.T, opts Options) *engineFixture {
	t.Helper()
	if opts.PendingExpiry == 0 {
		opts.PendingExpiry = time.Hour
	}
	if opts.PaymentTimeout == 0 {
		opts.PaymentTimeout = time.Hour
	}
	if opts.LobbyCapacity == 0 {
		opts.LobbyCapacity = 36
	}

	f := &engineFixture{
		store:     newTestStore(),
		timers:    NewTimers(),
		messenger: &fakeMessenger{},
		access:    &fakeAccess{},
		boards:    &fakeBoards{},
		blacklist: newFakeBlacklist(),
		audit:     &fakeAuditor{},
	}
	types := []MatchType{
		{Key: "special", Label: "Special", Fees: []int{55}},
		{Key: "mini", Label: "Mini", Fees: []int{25, 30}},
	}
	f.engine = NewEngine(f.store, f.timers, opts, types, Collaborators{
		Messenger: f.messenger,
		Access:    f.access,
		Boards:    f.boards,
		Blacklist: f.blacklist,
		Audit:     f.audit,
	}, zerolog.Nop())
	t.Cleanup(f.engine.Shutdown)
	return f
}

func (f *engineFixture) submit(t *testing.T, i int) *Registration {
	t.Helper()
	d := draft(i)
	reg, err := f.engine.Submit(context.Background(), d.MessageID, d.LobbyKey, d.TeamName, d.LeaderID, d.PlayerIDs[:])
	require.NoError(t, err)
	return reg
}

func TestSubmitCreatesPending(t *testing.T) {
	f := newEngineFixture(t, Options{})

	reg := f.submit(t, 1)
	got, ok := f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, []int64{reg.ID}, f.messenger.opened)
	assert.Equal(t, 1, f.audit.count("registration_submitted"))
}

func TestSubmitValidation(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, "m1", "06pm", "Team", "leader", []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrValidation, "three mentions")

	_, err = f.engine.Submit(ctx, "m2", "06pm", "Team", "leader", []string{"a", "b", "c", "a"})
	assert.ErrorIs(t, err, ErrValidation, "repeated mention")

	_, err = f.engine.Submit(ctx, "m3", "06pm", "Team", "leader", []string{"a", "b", "c", ""})
	assert.ErrorIs(t, err, ErrValidation, "empty id")

	assert.Empty(t, f.store.All(), "nothing may be created on validation failure")
}

func TestSubmitBlacklisted(t *testing.T) {
	f := newEngineFixture(t, Options{})
	f.blacklist.Add("leader-1", "", "Manual")

	d := draft(1)
	_, err := f.engine.Submit(context.Background(), d.MessageID, d.LobbyKey, d.TeamName, d.LeaderID, d.PlayerIDs[:])
	assert.ErrorIs(t, err, ErrBlacklisted)
	assert.Empty(t, f.store.All())
}

func TestSubmitDuplicate(t *testing.T) {
	f := newEngineFixture(t, Options{})
	f.submit(t, 1)

	d := draft(2)
	d.PlayerIDs[0] = "p1-3"
	_, err := f.engine.Submit(context.Background(), d.MessageID, d.LobbyKey, d.TeamName, d.LeaderID, d.PlayerIDs[:])
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSubmitRollsBackOnDeliveryFailure(t *testing.T) {
	f := newEngineFixture(t, Options{})
	f.messenger.openErr = errors.New("dms closed")

	d := draft(1)
	_, err := f.engine.Submit(context.Background(), d.MessageID, d.LobbyKey, d.TeamName, d.LeaderID, d.PlayerIDs[:])
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Empty(t, f.store.All(), "failed delivery is equivalent to never created")
	assert.Equal(t, 0, f.audit.count("registration_submitted"))
}

func TestPendingExpiry(t *testing.T) {
	f := newEngineFixture(t, Options{PendingExpiry: 20 * time.Millisecond})
	reg := f.submit(t, 1)

	assert.Eventually(t, func() bool {
		_, ok := f.store.Get(reg.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.audit.count("registration_expired"))
}

func TestSingleFeeTypeReservesImmediately(t *testing.T) {
	f := newEngineFixture(t, Options{})
	reg := f.submit(t, 1)

	fees, reserved, err := f.engine.ChooseMatchType(context.Background(), reg.ID, "special")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, []int{55}, fees)

	got, ok := f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPaymentPending, got.Status)
	assert.Equal(t, 55, got.EntryFee)
	assert.Equal(t, []int64{reg.ID}, f.messenger.paid)
	assert.Equal(t, 1, f.audit.count("payment_pending"))
}

func TestMultiFeeTypeAsksForFee(t *testing.T) {
	f := newEngineFixture(t, Options{})
	reg := f.submit(t, 1)
	ctx := context.Background()

	fees, reserved, err := f.engine.ChooseMatchType(ctx, reg.ID, "mini")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, []int{25, 30}, fees)

	got, ok := f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status, "fee sub-choice leaves the registration pending")

	require.ErrorIs(t, f.engine.ChooseFee(ctx, reg.ID, "mini", 99), ErrInvalidFee)
	require.NoError(t, f.engine.ChooseFee(ctx, reg.ID, "mini", 30))

	got, ok = f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPaymentPending, got.Status)
	assert.Equal(t, 30, got.EntryFee)
}

func TestUnknownMatchType(t *testing.T) {
	f := newEngineFixture(t, Options{})
	reg := f.submit(t, 1)

	_, _, err := f.engine.ChooseMatchType(context.Background(), reg.ID, "nope")
	assert.ErrorIs(t, err, ErrUnknownMatchType)
}

func TestCapacityFullLeavesPending(t *testing.T) {
	f := newEngineFixture(t, Options{LobbyCapacity: 1})
	ctx := context.Background()

	first := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, first.ID, "special")
	require.NoError(t, err)

	second := f.submit(t, 2)
	_, _, err = f.engine.ChooseMatchType(ctx, second.ID, "special")
	require.ErrorIs(t, err, ErrCapacityFull)

	got, ok := f.store.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status, "full lobby is retryable, not terminal")
}

func TestReserveRollsBackOnDeliveryFailure(t *testing.T) {
	f := newEngineFixture(t, Options{})
	reg := f.submit(t, 1)
	f.messenger.payErr = errors.New("dms closed")

	_, _, err := f.engine.ChooseMatchType(context.Background(), reg.ID, "special")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	_, ok := f.store.Get(reg.ID)
	assert.False(t, ok)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	require.NoError(t, f.engine.Confirm(ctx, reg.ID, "staff", "reaction"))
	assert.ErrorIs(t, f.engine.Confirm(ctx, reg.ID, "staff", "reaction"), ErrAlreadyConfirmed)

	assert.Equal(t, []int64{reg.ID}, f.access.grants, "grant sequence runs exactly once")
	assert.Equal(t, 1, f.audit.count("payment_verified"))
}

func TestConfirmSurvivesGrantFailure(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	f.access.err = errors.New("role create failed")
	require.NoError(t, f.engine.Confirm(ctx, reg.ID, "staff", "reaction"),
		"side-effect failures never roll back the status commit")

	got, ok := f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, 1, f.audit.count("payment_verified"))
}

func TestRejectRemovesWithoutBlacklist(t *testing.T) {
	f := newEngineFixture(t, Options{AutoBlacklist: true})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	require.NoError(t, f.engine.Reject(ctx, reg.ID, "staff"))
	_, ok := f.store.Get(reg.ID)
	assert.False(t, ok)
	assert.False(t, f.blacklist.Contains(reg.LeaderID), "rejection never blacklists")
	assert.Equal(t, 1, f.audit.count("payment_rejected"))

	assert.ErrorIs(t, f.engine.Reject(ctx, reg.ID, "staff"), ErrStaleTrigger)
}

func TestCancelAnyState(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	reg := f.submit(t, 1)

	require.NoError(t, f.engine.Cancel(ctx, reg.ID, "staff"))
	_, ok := f.store.Get(reg.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, f.audit.count("slot_cancelled"))

	assert.ErrorIs(t, f.engine.Cancel(ctx, reg.ID, "staff"), ErrNotFound)
}

func TestPaymentTimeoutBlacklists(t *testing.T) {
	f := newEngineFixture(t, Options{PaymentTimeout: 20 * time.Millisecond, AutoBlacklist: true})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := f.store.Get(reg.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.True(t, f.blacklist.Contains(reg.LeaderID))
	f.blacklist.mu.Lock()
	assert.Equal(t, BlacklistReasonTimeout, f.blacklist.entries[reg.LeaderID])
	f.blacklist.mu.Unlock()
	assert.Equal(t, 1, f.audit.count("payment_timeout"))
	assert.Equal(t, 1, f.audit.count("auto_blacklist"))
}

func TestPaymentTimeoutWithoutAutoBlacklist(t *testing.T) {
	f := newEngineFixture(t, Options{PaymentTimeout: 20 * time.Millisecond, AutoBlacklist: false})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := f.store.Get(reg.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.blacklist.Contains(reg.LeaderID))
	assert.Equal(t, 0, f.audit.count("auto_blacklist"))
}

func TestConfirmBeatsTimeout(t *testing.T) {
	f := newEngineFixture(t, Options{AutoBlacklist: true})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	require.NoError(t, f.engine.Confirm(ctx, reg.ID, "staff", "reaction"))
	// A stale timeout trigger after the confirm commit takes no action.
	f.engine.paymentTimeout(reg.ID)

	got, ok := f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.False(t, f.blacklist.Contains(reg.LeaderID))
	assert.Equal(t, 0, f.audit.count("payment_timeout"))
}

func TestTimeoutBeatsConfirm(t *testing.T) {
	f := newEngineFixture(t, Options{AutoBlacklist: true})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	f.engine.paymentTimeout(reg.ID)
	err = f.engine.Confirm(ctx, reg.ID, "staff", "reaction")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.access.grants, "losing confirm must not run the grant sequence")
	assert.Equal(t, 1, f.audit.count("payment_timeout"))
	assert.Equal(t, 0, f.audit.count("payment_verified"))
}

func TestStaleExpiryAfterReservation(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	reg := f.submit(t, 1)
	_, _, err := f.engine.ChooseMatchType(ctx, reg.ID, "special")
	require.NoError(t, err)

	// A late expiry trigger sees payment_pending and backs off.
	f.engine.expirePending(reg.ID)

	got, ok := f.store.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPaymentPending, got.Status)
	assert.Equal(t, 0, f.audit.count("registration_expired"))
}

package registry

import (
	"strings"
	"sync"
	"time"
)

// Counter hands out the next registration id. Implementations persist the
// increment best-effort; it is always invoked inside the store's critical
// section so concurrent creations can never share an id.
type Counter interface {
	Next() int64
}

// Draft is the validated input for a new registration.
type Draft struct {
	MessageID string
	LobbyKey  string
	TeamName  string
	LeaderID  string
	PlayerIDs [SquadSize]string
	CreatedAt time.Time
}

// Store owns every live registration and its indices. All guard checks and
// transition commits run under a single mutex and never suspend, so the
// guard-and-commit step of each transition is atomic. The live set stays
// small (at most one lobby day of squads), so the scans below are O(n) over
// a few dozen entries.
type Store struct {
	mu        sync.Mutex
	byID      map[int64]*Registration
	byMessage map[string]*Registration
	counter   Counter

	grace time.Duration // duplicate-detection grace for stale pending rows
}

func NewStore(counter Counter, duplicateGrace time.Duration) *Store {
	return &Store{
		byID:      make(map[int64]*Registration),
		byMessage: make(map[string]*Registration),
		counter:   counter,
		grace:     duplicateGrace,
	}
}

// Create assigns an id and inserts a pending registration, vetoing duplicates
// in the same critical section so two racing submissions cannot both slip past
// the scan.
func (s *Store) Create(d Draft) (*Registration, error) {
	now := d.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDuplicateLocked(d.LobbyKey, d.TeamName, d.PlayerIDs[:], now) {
		return nil, ErrDuplicate
	}

	reg := &Registration{
		ID:        s.counter.Next(),
		MessageID: d.MessageID,
		LobbyKey:  d.LobbyKey,
		TeamName:  d.TeamName,
		LeaderID:  d.LeaderID,
		PlayerIDs: d.PlayerIDs,
		Status:    StatusPending,
		CreatedAt: now,
	}
	s.byID[reg.ID] = reg
	s.byMessage[reg.MessageID] = reg
	return reg.clone(), nil
}

func (s *Store) Get(id int64) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return reg.clone(), true
}

func (s *Store) GetByMessage(messageID string) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byMessage[messageID]
	if !ok {
		return nil, false
	}
	return reg.clone(), true
}

// Query returns copies of registrations matching the filters. Empty matchType
// matches all types; no statuses matches all statuses. Order is unspecified.
func (s *Store) Query(lobbyKey, matchType string, statuses ...Status) []*Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Registration
	for _, reg := range s.byID {
		if reg.LobbyKey != lobbyKey {
			continue
		}
		if matchType != "" && reg.MatchType != matchType {
			continue
		}
		if len(statuses) > 0 && !statusIn(reg.Status, statuses) {
			continue
		}
		out = append(out, reg.clone())
	}
	return out
}

// All returns a copy of every live registration, for the dashboard.
func (s *Store) All() []*Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Registration, 0, len(s.byID))
	for _, reg := range s.byID {
		out = append(out, reg.clone())
	}
	return out
}

// FindByTeam locates a live registration by case-insensitive team name across
// all lobbies, the lookup staff commands use.
func (s *Store) FindByTeam(teamName string) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.byID {
		if strings.EqualFold(reg.TeamName, teamName) {
			return reg.clone(), true
		}
	}
	return nil, false
}

// LatestByLeader returns the most recently created registration for a leader
// in the given status, used to match a payment-proof DM to its registration.
func (s *Store) LatestByLeader(leaderID string, status Status) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Registration
	for _, reg := range s.byID {
		if reg.LeaderID != leaderID || reg.Status != status {
			continue
		}
		if best == nil || reg.CreatedAt.After(best.CreatedAt) {
			best = reg
		}
	}
	if best == nil {
		return nil, false
	}
	return best.clone(), true
}

// Remove deletes a registration regardless of status. Returns the removed
// record, or false if it was already gone.
func (s *Store) Remove(id int64) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// RemoveIf deletes the registration only if it is still in the expected
// status. This is the commit step for every terminal-removal trigger: of two
// racing triggers, exactly one observes the expected status and wins.
func (s *Store) RemoveIf(id int64, expect Status) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byID[id]
	if !ok || reg.Status != expect {
		return nil, false
	}
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id int64) (*Registration, bool) {
	reg, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	delete(s.byMessage, reg.MessageID)
	return reg.clone(), true
}

// SetMatchType records the selected type on a still-pending registration.
// It does not reserve capacity; that happens in Reserve.
func (s *Store) SetMatchType(id int64, matchType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if reg.Status != StatusPending {
		return ErrStaleTrigger
	}
	reg.MatchType = matchType
	return nil
}

// Reserve is the fee-selection commit: under one lock it re-checks that the
// registration is still pending, that the lobby ceiling (and optionally the
// per-type ceiling) holds, and moves it to payment_pending with the chosen
// fee. A full lobby leaves the registration pending; the condition is
// retryable with a different type.
func (s *Store) Reserve(id int64, matchType string, fee, lobbyLimit, typeLimit int) (*Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch reg.Status {
	case StatusPending:
	case StatusConfirmed:
		return nil, ErrAlreadyConfirmed
	default:
		return nil, ErrStaleTrigger
	}

	if s.reservedCountLocked(reg.LobbyKey) >= lobbyLimit {
		return nil, ErrCapacityFull
	}
	if typeLimit > 0 && s.confirmedByTypeLocked(reg.LobbyKey, matchType) >= typeLimit {
		return nil, ErrCapacityFull
	}

	reg.MatchType = matchType
	reg.EntryFee = fee
	reg.Status = StatusPaymentPending
	return reg.clone(), nil
}

// Confirm is the approval commit: payment_pending moves to confirmed. A
// repeat call reports ErrAlreadyConfirmed so callers can short-circuit
// instead of re-running the grant sequence.
func (s *Store) Confirm(id int64) (*Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch reg.Status {
	case StatusPaymentPending:
		reg.Status = StatusConfirmed
		return reg.clone(), nil
	case StatusConfirmed:
		return nil, ErrAlreadyConfirmed
	default:
		return nil, ErrStaleTrigger
	}
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// /internal/storage/storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keshon/datastore"
	"github.com/rs/zerolog"
)

const (
	counterKey   = "reg_counter"
	blacklistKey = "blacklist"
)

// BlacklistEntry is one persisted blacklist record, keyed by leader id.
type BlacklistEntry struct {
	LeaderID  string    `json:"leader_id"`
	Team      string    `json:"team,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Storage is the persistence gateway: the registration id counter and the
// blacklist snapshot, backed by a JSON-file datastore. Registration records
// themselves are volatile by design and never touch disk. Durability is
// best-effort: a failed flush is logged and the in-memory mutation stands.
type Storage struct {
	ds  *datastore.DataStore
	log zerolog.Logger

	mu        sync.Mutex
	counter   int64
	blacklist map[string]BlacklistEntry
}

func New(filePath string, log zerolog.Logger) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}

	s := &Storage{
		ds:        ds,
		log:       log.With().Str("component", "storage").Logger(),
		blacklist: make(map[string]BlacklistEntry),
	}
	s.load()
	return s, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func (s *Storage) load() {
	if raw, ok := s.ds.Get(counterKey); ok {
		// JSON numbers decode as float64.
		if f, ok := raw.(float64); ok {
			s.counter = int64(f)
		}
	}
	if raw, ok := s.ds.Get(blacklistKey); ok {
		jsonData, err := json.Marshal(raw)
		if err == nil {
			var entries map[string]BlacklistEntry
			if err := json.Unmarshal(jsonData, &entries); err == nil && entries != nil {
				s.blacklist = entries
			}
		}
	}
	s.log.Info().Int64("counter", s.counter).Int("blacklisted", len(s.blacklist)).Msg("state loaded")
}

// Next hands out the next registration id. Called under the registration
// store's lock, so ids are never duplicated. The flush runs off the critical
// path: the caller's guard-and-commit section must not block on disk.
func (s *Storage) Next() int64 {
	s.mu.Lock()
	s.counter++
	n := s.counter
	s.ds.Add(counterKey, n)
	s.mu.Unlock()

	go s.flush()
	return n
}

// Counter returns the last assigned id.
func (s *Storage) Counter() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Contains reports whether a leader is blacklisted.
func (s *Storage) Contains(leaderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blacklist[leaderID]
	return ok
}

// Add inserts or overwrites a blacklist entry and flushes.
func (s *Storage) Add(leaderID, team, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[leaderID] = BlacklistEntry{
		LeaderID:  leaderID,
		Team:      team,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	s.ds.Add(blacklistKey, s.blacklist)
	s.flushLocked()
}

// RemoveLeader deletes a blacklist entry by leader id.
func (s *Storage) RemoveLeader(leaderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[leaderID]; !ok {
		return false
	}
	delete(s.blacklist, leaderID)
	s.ds.Add(blacklistKey, s.blacklist)
	s.flushLocked()
	return true
}

// RemoveTeam deletes a blacklist entry by the team it was recorded under.
func (s *Storage) RemoveTeam(team string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.blacklist {
		if strings.EqualFold(entry.Team, team) {
			delete(s.blacklist, key)
			s.ds.Add(blacklistKey, s.blacklist)
			s.flushLocked()
			return true
		}
	}
	return false
}

// Entries returns the blacklist sorted by creation time.
func (s *Storage) Entries() []BlacklistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BlacklistEntry, 0, len(s.blacklist))
	for _, entry := range s.blacklist {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Storage) flushLocked() {
	if err := s.ds.SaveToFile(); err != nil {
		s.log.Error().Err(err).Msg("state flush failed")
	}
}

func (s *Storage) flush() {
	if err := s.ds.SaveToFile(); err != nil {
		s.log.Error().Err(err).Msg("state flush failed")
	}
}

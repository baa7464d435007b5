package registry

import (
	"strings"
	"time"
)

// IsDuplicate reports whether a candidate squad collides with a live
// registration in the same lobby: case-insensitive team-name match or any
// shared player. Pending entries older than the grace window are skipped, so
// a dead DM flow cannot block a slot forever.
func (s *Store) IsDuplicate(lobbyKey, teamName string, playerIDs []string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDuplicateLocked(lobbyKey, teamName, playerIDs, now)
}

func (s *Store) isDuplicateLocked(lobbyKey, teamName string, playerIDs []string, now time.Time) bool {
	for _, reg := range s.byID {
		if reg.LobbyKey != lobbyKey {
			continue
		}
		// A pending entry past the grace window is treated as abandoned even
		// if the expiry reaper has not collected it yet.
		if reg.Status == StatusPending && now.Sub(reg.CreatedAt) > s.grace {
			continue
		}
		if strings.EqualFold(reg.TeamName, teamName) {
			return true
		}
		for _, pid := range playerIDs {
			for _, existing := range reg.PlayerIDs {
				if pid == existing {
					return true
				}
			}
		}
	}
	return false
}

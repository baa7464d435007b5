package registry

// Capacity queries are read-only over the live set. The reserved count is
// what the lobby ceiling is enforced against: a slot is held from the moment
// a fee is chosen (payment_pending), not at squad submission, so abandoned
// DM flows never starve the lobby.

// ReservedCount is the number of slots held in a lobby: payment_pending plus
// confirmed.
func (s *Store) ReservedCount(lobbyKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservedCountLocked(lobbyKey)
}

// ConfirmedCount is the number of confirmed squads in a lobby.
func (s *Store) ConfirmedCount(lobbyKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, reg := range s.byID {
		if reg.LobbyKey == lobbyKey && reg.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

// ConfirmedCountByType is the number of confirmed squads for one match type.
func (s *Store) ConfirmedCountByType(lobbyKey, matchType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmedByTypeLocked(lobbyKey, matchType)
}

func (s *Store) reservedCountLocked(lobbyKey string) int {
	n := 0
	for _, reg := range s.byID {
		if reg.LobbyKey != lobbyKey {
			continue
		}
		if reg.Status == StatusPaymentPending || reg.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

func (s *Store) confirmedByTypeLocked(lobbyKey, matchType string) int {
	n := 0
	for _, reg := range s.byID {
		if reg.LobbyKey == lobbyKey && reg.MatchType == matchType && reg.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqCounter struct{ n int64 }

func (c *seqCounter) Next() int64 { return atomic.AddInt64(&c.n, 1) }

func newTestStore() *Store {
	return NewStore(&seqCounter{}, 10*time.Minute)
}

func draft(i int) Draft {
	return Draft{
		MessageID: fmt.Sprintf("msg-%d", i),
		LobbyKey:  "06pm",
		TeamName:  fmt.Sprintf("Team-%d", i),
		LeaderID:  fmt.Sprintf("leader-%d", i),
		PlayerIDs: [SquadSize]string{
			fmt.Sprintf("p%d-1", i), fmt.Sprintf("p%d-2", i),
			fmt.Sprintf("p%d-3", i), fmt.Sprintf("p%d-4", i),
		},
	}
}

func TestCreateAssignsDistinctIDs(t *testing.T) {
	s := newTestStore()

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := s.Create(draft(i))
			require.NoError(t, err)
			ids <- reg.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestGetReturnsCopies(t *testing.T) {
	s := newTestStore()
	reg, err := s.Create(draft(1))
	require.NoError(t, err)

	reg.TeamName = "mutated"
	got, ok := s.Get(reg.ID)
	require.True(t, ok)
	assert.Equal(t, "Team-1", got.TeamName)
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore()
	a, err := s.Create(draft(1))
	require.NoError(t, err)
	_, err = s.Create(draft(2))
	require.NoError(t, err)

	_, err = s.Reserve(a.ID, "mini", 25, 36, 0)
	require.NoError(t, err)

	assert.Len(t, s.Query("06pm", ""), 2)
	assert.Len(t, s.Query("06pm", "", StatusPaymentPending), 1)
	assert.Len(t, s.Query("06pm", "mini", StatusPaymentPending), 1)
	assert.Len(t, s.Query("06pm", "mega", StatusPaymentPending), 0)
	assert.Len(t, s.Query("12pm", ""), 0)
}

func TestFindByTeamIsCaseInsensitive(t *testing.T) {
	s := newTestStore()
	reg, err := s.Create(draft(7))
	require.NoError(t, err)

	got, ok := s.FindByTeam("team-7")
	require.True(t, ok)
	assert.Equal(t, reg.ID, got.ID)

	_, ok = s.FindByTeam("team-8")
	assert.False(t, ok)
}

func TestLatestByLeaderPicksNewest(t *testing.T) {
	s := newTestStore()

	old := draft(1)
	old.LeaderID = "leader"
	old.CreatedAt = time.Now().Add(-time.Hour)
	first, err := s.Create(old)
	require.NoError(t, err)

	recent := draft(2)
	recent.LeaderID = "leader"
	second, err := s.Create(recent)
	require.NoError(t, err)

	_, err = s.Reserve(first.ID, "mini", 25, 36, 0)
	require.NoError(t, err)
	_, err = s.Reserve(second.ID, "mini", 25, 36, 0)
	require.NoError(t, err)

	got, ok := s.LatestByLeader("leader", StatusPaymentPending)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestRemoveIfRequiresExpectedStatus(t *testing.T) {
	s := newTestStore()
	reg, err := s.Create(draft(1))
	require.NoError(t, err)

	_, ok := s.RemoveIf(reg.ID, StatusPaymentPending)
	assert.False(t, ok, "pending registration must not be removed as payment_pending")

	_, ok = s.RemoveIf(reg.ID, StatusPending)
	assert.True(t, ok)

	_, ok = s.RemoveIf(reg.ID, StatusPending)
	assert.False(t, ok, "second removal must lose")

	_, ok = s.Get(reg.ID)
	assert.False(t, ok)
	_, ok = s.GetByMessage(reg.MessageID)
	assert.False(t, ok)
}

func TestReserveEnforcesLobbyCeiling(t *testing.T) {
	s := newTestStore()
	const limit = 3

	var regs []*Registration
	for i := 0; i < limit+2; i++ {
		reg, err := s.Create(draft(i))
		require.NoError(t, err)
		regs = append(regs, reg)
	}

	var wg sync.WaitGroup
	var reserved, full int64
	for _, reg := range regs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.Reserve(id, "mini", 25, limit, 0)
			switch {
			case err == nil:
				atomic.AddInt64(&reserved, 1)
			case err == ErrCapacityFull:
				atomic.AddInt64(&full, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(reg.ID)
	}
	wg.Wait()

	assert.EqualValues(t, limit, reserved)
	assert.EqualValues(t, 2, full)
	assert.Equal(t, limit, s.ReservedCount("06pm"))
}

func TestReserveLeavesFullLobbyPending(t *testing.T) {
	s := newTestStore()
	a, err := s.Create(draft(1))
	require.NoError(t, err)
	_, err = s.Reserve(a.ID, "mini", 25, 1, 0)
	require.NoError(t, err)

	b, err := s.Create(draft(2))
	require.NoError(t, err)
	_, err = s.Reserve(b.ID, "mini", 25, 1, 0)
	require.ErrorIs(t, err, ErrCapacityFull)

	got, ok := s.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
}

func TestReserveTypeCeiling(t *testing.T) {
	s := newTestStore()

	a, err := s.Create(draft(1))
	require.NoError(t, err)
	_, err = s.Reserve(a.ID, "mini", 25, 36, 1)
	require.NoError(t, err)
	_, err = s.Confirm(a.ID)
	require.NoError(t, err)

	b, err := s.Create(draft(2))
	require.NoError(t, err)
	_, err = s.Reserve(b.ID, "mini", 25, 36, 1)
	assert.ErrorIs(t, err, ErrCapacityFull)

	// A different type still has room.
	_, err = s.Reserve(b.ID, "mega", 35, 36, 1)
	assert.NoError(t, err)
}

func TestConfirmTransitions(t *testing.T) {
	s := newTestStore()
	reg, err := s.Create(draft(1))
	require.NoError(t, err)

	_, err = s.Confirm(reg.ID)
	assert.ErrorIs(t, err, ErrStaleTrigger, "pending cannot confirm directly")

	_, err = s.Reserve(reg.ID, "mini", 25, 36, 0)
	require.NoError(t, err)

	got, err := s.Confirm(reg.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	_, err = s.Confirm(reg.ID)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)

	_, err = s.Confirm(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetMatchTypePendingOnly(t *testing.T) {
	s := newTestStore()
	reg, err := s.Create(draft(1))
	require.NoError(t, err)

	require.NoError(t, s.SetMatchType(reg.ID, "mega"))

	_, err = s.Reserve(reg.ID, "mega", 35, 36, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetMatchType(reg.ID, "mini"), ErrStaleTrigger)
	assert.ErrorIs(t, s.SetMatchType(999, "mini"), ErrNotFound)
}

func TestReserveConfirmedRegistration(t *testing.T) {
	s := newTestStore()
	reg, err := s.Create(draft(1))
	require.NoError(t, err)
	_, err = s.Reserve(reg.ID, "mini", 25, 36, 0)
	require.NoError(t, err)
	_, err = s.Confirm(reg.ID)
	require.NoError(t, err)

	_, err = s.Reserve(reg.ID, "mini", 25, 36, 0)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

package duel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

func newTestRegistry() (*LobbyRegistry, *clock.Mock) {
	mock := clock.NewMock()
	timers := NewTimerService(mock, func(TimerToken) {}, nil)
	return NewLobbyRegistry(DefaultRules(), mock, timers), mock
}

func TestLobbyRegistry_CreateValidation(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Create("alice", mustStake(t, "0.05", "LORDS"), FactionWizard, 5*time.Minute)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidStake))

	_, err = r.Create("alice", mustStake(t, "1", "LORDS"), Faction(9), 5*time.Minute)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidFaction))

	_, err = r.Create("alice", mustStake(t, "1", "LORDS"), FactionWizard, 42*time.Second)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidWait))

	_, err = r.Create("", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))

	assert.Equal(t, 0, r.OpenCount())
}

func TestLobbyRegistry_JoinRules(t *testing.T) {
	r, _ := newTestRegistry()
	lobby, err := r.Create("alice", mustStake(t, "1", "ETH"), FactionPuppet, 10*time.Minute)
	require.NoError(t, err)
	id := lobby.snapshot().ID

	_, err = r.Join("missing", "bob")
	assert.True(t, apperrors.Is(err, apperrors.ErrLobbyNotFound))

	_, err = r.Join(id, "alice")
	assert.True(t, apperrors.Is(err, apperrors.ErrSelfJoinForbidden))

	joined, err := r.Join(id, "bob")
	require.NoError(t, err)
	snap := joined.snapshot()
	assert.Equal(t, LobbyMatched, snap.State)
	assert.Equal(t, "bob", snap.JoinerID)
	assert.NotEmpty(t, snap.MatchID)

	_, err = r.Join(id, "carol")
	assert.True(t, apperrors.Is(err, apperrors.ErrLobbyAlreadyMatched))

	_, ok := r.Expire(id)
	assert.False(t, ok, "已匹配的大厅不会过期")
	assert.Equal(t, 0, r.OpenCount())
}

func TestLobbyRegistry_Cancel(t *testing.T) {
	r, _ := newTestRegistry()
	lobby, err := r.Create("alice", mustStake(t, "1", "ETH"), FactionWizard, 5*time.Minute)
	require.NoError(t, err)
	id := lobby.snapshot().ID

	_, err = r.Cancel(id, "mallory")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotLobbyCreator))

	cancelled, err := r.Cancel(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, LobbyCancelled, cancelled.snapshot().State)

	_, err = r.Cancel(id, "alice")
	assert.True(t, apperrors.Is(err, apperrors.ErrLobbyCancelled))

	_, err = r.Join(id, "bob")
	assert.True(t, apperrors.Is(err, apperrors.ErrLobbyCancelled))
}

func TestLobbyRegistry_JoinExpireRace(t *testing.T) {
	r, _ := newTestRegistry()

	for i := 0; i < 200; i++ {
		lobby, err := r.Create("alice", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
		require.NoError(t, err)
		id := lobby.snapshot().ID

		var joined, expired atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := r.Join(id, "bob"); err == nil {
				joined.Add(1)
			} else {
				assert.True(t, apperrors.Is(err, apperrors.ErrLobbyExpired))
			}
		}()
		go func() {
			defer wg.Done()
			if _, ok := r.Expire(id); ok {
				expired.Add(1)
			}
		}()
		wg.Wait()

		assert.Equal(t, int32(1), joined.Load()+expired.Load(), "加入与过期只能有一个成功")
	}
	assert.Equal(t, 0, r.OpenCount())
}

func TestLobbyRegistry_ConcurrentJoin(t *testing.T) {
	r, _ := newTestRegistry()
	lobby, err := r.Create("alice", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
	require.NoError(t, err)
	id := lobby.snapshot().ID

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := r.Join(id, "joiner-"+string(rune('a'+n))); err == nil {
				success.Add(1)
			} else {
				assert.True(t, apperrors.Is(err, apperrors.ErrLobbyAlreadyMatched))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), success.Load())
}

func TestLobbyRegistry_ListOpen(t *testing.T) {
	r, mock := newTestRegistry()

	first, err := r.Create("alice", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = r.Create("bob", mustStake(t, "2", "ETH"), FactionPuppet, 5*time.Minute)
	require.NoError(t, err)
	mock.Add(time.Second)
	third, err := r.Create("carol", mustStake(t, "3", "LORDS"), FactionWizard, 5*time.Minute)
	require.NoError(t, err)

	all := r.ListOpen("")
	require.Len(t, all, 3)
	assert.Equal(t, first.snapshot().ID, all[0].ID, "按创建时间排序")

	lords := r.ListOpen("lords")
	require.Len(t, lords, 2)
	assert.Equal(t, third.snapshot().ID, lords[1].ID)

	_, err = r.Cancel(first.snapshot().ID, "alice")
	require.NoError(t, err)
	assert.Len(t, r.ListOpen("LORDS"), 1)
}

func TestLobbyRegistry_MaxLobbies(t *testing.T) {
	mock := clock.NewMock()
	rules := DefaultRules()
	rules.MaxLobbies = 1
	r := NewLobbyRegistry(rules, mock, NewTimerService(mock, func(TimerToken) {}, nil))

	_, err := r.Create("alice", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
	require.NoError(t, err)
	_, err = r.Create("bob", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
	assert.True(t, apperrors.Is(err, apperrors.ErrPermissionDenied))
}

func TestLobbyRegistry_MaxLobbiesConcurrentCreate(t *testing.T) {
	mock := clock.NewMock()
	rules := DefaultRules()
	rules.MaxLobbies = 5
	r := NewLobbyRegistry(rules, mock, NewTimerService(mock, func(TimerToken) {}, nil))
	stake := mustStake(t, "1", "LORDS")

	var (
		wg      sync.WaitGroup
		created atomic.Int32
		denied  atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Create(fmt.Sprintf("player-%d", i), stake, FactionWizard, 5*time.Minute)
			if err == nil {
				created.Add(1)
				return
			}
			if apperrors.Is(err, apperrors.ErrPermissionDenied) {
				denied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(5), created.Load())
	assert.Equal(t, int32(45), denied.Load())
	assert.Equal(t, 5, r.OpenCount())
	assert.Len(t, r.ListOpen("LORDS"), 5)
}

func TestLobbyRegistry_EvictOnlyClosed(t *testing.T) {
	r, _ := newTestRegistry()
	lobby, err := r.Create("alice", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
	require.NoError(t, err)
	id := lobby.snapshot().ID

	assert.False(t, r.Evict(id))
	_, err = r.Cancel(id, "alice")
	require.NoError(t, err)
	assert.True(t, r.Evict(id))

	_, ok := r.Get(id)
	assert.False(t, ok)
}

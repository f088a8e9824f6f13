package duel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// eventRecorder 记录发布的事件
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) count(t EventType) int {
	return len(r.ofType(t))
}

// settleRecorder 记录结算请求
type settleRecorder struct {
	mu   sync.Mutex
	reqs []SettlementRequest
}

func (s *settleRecorder) Settle(ctx context.Context, req SettlementRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *settleRecorder) all() []SettlementRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SettlementRequest(nil), s.reqs...)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	clock   *clock.Mock
	engine  *Engine
	events  *eventRecorder
	settled *settleRecorder
	archive *MemoryArchive
}

// newFixture 使用模拟时钟的引擎，自动出招固定为石头
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		clock:   mock,
		events:  &eventRecorder{},
		settled: &settleRecorder{},
		archive: NewMemoryArchive(),
	}
	base := []Option{
		WithClock(mock),
		WithEventSink(f.events),
		WithSettler(f.settled),
		WithArchive(f.archive),
		WithRandom(func(int) int { return 0 }),
	}
	engine, err := NewEngine(DefaultRules(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

// advance 推进模拟时钟；截止回调异步执行，断言需配合 eventually
func (f *fixture) advance(d time.Duration) {
	f.clock.Add(d)
}

func (f *fixture) eventually(cond func() bool, msg string) {
	f.t.Helper()
	require.Eventually(f.t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func (f *fixture) matchState(matchID string) MatchState {
	snap, err := f.engine.GetMatch(f.ctx, matchID)
	require.NoError(f.t, err)
	return snap.State
}

func (f *fixture) lobby(creator string, amount string) LobbySnapshot {
	f.t.Helper()
	lobby, err := f.engine.CreateLobby(f.ctx, creator, mustStake(f.t, amount, "LORDS"), FactionWizard, 5*time.Minute)
	require.NoError(f.t, err)
	return lobby
}

// startMatch 创建大厅并由 bob 加入
func (f *fixture) startMatch() MatchSnapshot {
	f.t.Helper()
	lobby := f.lobby("alice", "2.5")
	match, err := f.engine.JoinLobby(f.ctx, lobby.ID, "bob")
	require.NoError(f.t, err)
	return match
}

// play 双方提交承诺并揭示
func (f *fixture) play(matchID string, moveA, moveB Move) MatchSnapshot {
	f.t.Helper()
	ca, na := mustCommit(f.t, moveA)
	cb, nb := mustCommit(f.t, moveB)
	_, err := f.engine.SubmitMoveCommit(f.ctx, matchID, "alice", ca)
	require.NoError(f.t, err)
	_, err = f.engine.SubmitMoveCommit(f.ctx, matchID, "bob", cb)
	require.NoError(f.t, err)
	_, err = f.engine.RevealMove(f.ctx, matchID, "alice", moveA, na)
	require.NoError(f.t, err)
	snap, err := f.engine.RevealMove(f.ctx, matchID, "bob", moveB, nb)
	require.NoError(f.t, err)
	return snap
}

func mustStake(t *testing.T, amount, currency string) Stake {
	t.Helper()
	s, err := NewStake(amount, currency)
	require.NoError(t, err)
	return s
}

func mustCommit(t *testing.T, move Move) (commitment, nonce string) {
	t.Helper()
	nonce, err := NewNonce()
	require.NoError(t, err)
	commitment, err = Commit(move, nonce)
	require.NoError(t, err)
	return commitment, nonce
}

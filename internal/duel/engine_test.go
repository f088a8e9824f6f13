package duel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// EngineTestSuite 引擎端到端流程测试
type EngineTestSuite struct {
	suite.Suite
	f *fixture
}

func (s *EngineTestSuite) SetupTest() {
	s.f = newFixture(s.T())
}

// 无人加入，等待时长到期后大厅过期
func (s *EngineTestSuite) TestLobbyExpiresWithoutJoin() {
	f := s.f
	lobby, err := f.engine.CreateLobby(f.ctx, "alice", mustStake(s.T(), "2.5", "LORDS"), FactionWizard, 300*time.Second)
	s.Require().NoError(err)
	s.Equal(LobbyOpen, lobby.State)
	s.Equal(int64(300), lobby.MaxWaitSeconds())

	f.advance(299 * time.Second)
	time.Sleep(20 * time.Millisecond)
	s.Equal(0, f.events.count(EventLobbyExpired))

	f.advance(time.Second)
	f.eventually(func() bool { return f.events.count(EventLobbyExpired) == 1 }, "应发出 lobby_expired")

	expired := f.events.ofType(EventLobbyExpired)[0]
	s.Equal([]string{"alice"}, expired.Recipients)
	s.Equal(LobbyExpiredData{LobbyID: lobby.ID}, expired.Data)

	got, err := f.engine.GetLobby(f.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Equal(LobbyExpired, got.State)

	_, err = f.engine.JoinLobby(f.ctx, lobby.ID, "bob")
	s.True(apperrors.Is(err, apperrors.ErrLobbyExpired))
	s.Equal(0, f.events.count(EventMatchStarted))
	s.Equal(0, f.engine.Stats().LiveMatches)
}

// 加入后双方出招，石头克火
func (s *EngineTestSuite) TestJoinCommitRevealRockBeatsFire() {
	f := s.f
	lobby := f.lobby("alice", "2.5")

	f.advance(30 * time.Second)
	match, err := f.engine.JoinLobby(f.ctx, lobby.ID, "bob")
	s.Require().NoError(err)
	s.Equal(MatchAwaitingMoves, match.State)
	s.Equal([2]string{"alice", "bob"}, match.Players)
	s.Equal(FactionWizard, match.Slots[0].Faction)
	s.Equal(FactionPuppet, match.Slots[1].Faction)
	s.Equal(1, f.events.count(EventMatchStarted))

	started := f.events.ofType(EventMatchStarted)[0].Data.(MatchStartedData)
	s.Equal(match.ID, started.MatchID)
	s.True(started.Stake.Amount.Equal(lobby.Stake.Amount))

	joined, err := f.engine.GetLobby(f.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Equal(LobbyMatched, joined.State)
	s.Equal(match.ID, joined.MatchID)

	f.advance(10 * time.Second)
	resolved := f.play(match.ID, MoveRock, MoveFire)

	s.Equal(MatchResolved, resolved.State)
	s.Require().NotNil(resolved.Outcome)
	s.Equal(WinnerA, resolved.Outcome.Winner)
	s.Equal("alice", resolved.Outcome.WinnerID)
	s.Equal(MoveRock, resolved.Outcome.MoveA)
	s.Equal(MoveFire, resolved.Outcome.MoveB)

	s.Equal(1, f.events.count(EventOutcomeResolved))
	s.Equal(2, f.events.count(EventMoveCommitted))
	s.Equal(1, f.events.count(EventRevealRequested))

	reqs := f.settled.all()
	s.Require().Len(reqs, 1)
	s.Equal(match.ID, reqs[0].MatchID)
	s.Equal(WinnerA, reqs[0].Winner)
	s.Equal("4.975", reqs[0].PayoutA.String())
	s.True(reqs[0].PayoutB.IsZero())
	s.Equal("2.5", reqs[0].NetTransfer().String())
}

// 一方未在截止前提交，自动出招后对局仍能结算
func (s *EngineTestSuite) TestMoveDeadlineAutoCommits() {
	f := s.f
	match := f.startMatch()

	f.advance(5 * time.Second)
	commitment, nonce := mustCommit(s.T(), MovePaper)
	_, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", commitment)
	s.Require().NoError(err)

	f.advance(15 * time.Second)
	f.eventually(func() bool { return f.events.count(EventMoveDeadlineApproaching) == 1 }, "应发出截止提醒")
	warning := f.events.ofType(EventMoveDeadlineApproaching)[0].Data.(MoveDeadlineApproachingData)
	s.Equal(10, warning.SecondsLeft)

	f.advance(10 * time.Second)
	f.eventually(func() bool { return f.matchState(match.ID) == MatchRevealing }, "截止后进入揭示阶段")

	s.Equal(1, f.events.count(EventMoveAutoCommitted))
	auto := f.events.ofType(EventMoveAutoCommitted)[0].Data.(MoveCommittedData)
	s.Equal("bob", auto.PlayerID)
	s.True(auto.Auto)

	snap, err := f.engine.GetMatch(f.ctx, match.ID)
	s.Require().NoError(err)
	s.True(snap.Slots[1].Auto)
	s.True(snap.Slots[1].Revealed(), "自动出招立即揭示")
	s.Contains(AllMoves[:], snap.Slots[1].Move)
	s.True(VerifyReveal(snap.Slots[1].Commitment, snap.Slots[1].Move, snap.Slots[1].Nonce))

	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "bob", commitment)
	s.True(apperrors.Is(err, apperrors.ErrMoveAlreadyCommitted))

	resolved, err := f.engine.RevealMove(f.ctx, match.ID, "alice", MovePaper, nonce)
	s.Require().NoError(err)
	s.Equal(MatchResolved, resolved.State)
	s.Equal(WinnerA, resolved.Outcome.Winner, "布克石头")
	s.Len(f.settled.all(), 1)
}

// 双方都未提交，自动出招后直接结算
func (s *EngineTestSuite) TestNobodyCommitsResolvesImmediately() {
	f := s.f
	match := f.startMatch()

	f.advance(30 * time.Second)
	f.eventually(func() bool { return f.matchState(match.ID) == MatchResolved }, "双方自动出招后立即结算")

	s.Equal(2, f.events.count(EventMoveAutoCommitted))
	s.Equal(0, f.events.count(EventRevealRequested))
	snap, _ := f.engine.GetMatch(f.ctx, match.ID)
	s.Equal(WinnerTie, snap.Outcome.Winner)
	s.Len(f.settled.all(), 1)
}

// 双方都出布，平局且没有净转账
func (s *EngineTestSuite) TestTieCarriesNoNetTransfer() {
	f := s.f
	match := f.startMatch()
	resolved := f.play(match.ID, MovePaper, MovePaper)

	s.Equal(WinnerTie, resolved.Outcome.Winner)
	s.Empty(resolved.Outcome.WinnerID)

	reqs := f.settled.all()
	s.Require().Len(reqs, 1)
	s.True(reqs[0].NetTransfer().IsZero())
	s.True(reqs[0].Fee.IsZero())
	s.True(reqs[0].PayoutA.Equal(reqs[0].Stake.Amount))
	s.True(reqs[0].PayoutB.Equal(reqs[0].Stake.Amount))
}

// 输家发起再战，对手在窗口内接受
func (s *EngineTestSuite) TestRematchAccepted() {
	f := s.f
	match := f.startMatch()
	f.play(match.ID, MoveRock, MovePaper)

	offer, err := f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.Require().NoError(err)
	s.Equal(OfferPending, offer.State)
	s.Equal("bob", offer.Recipient)
	s.Equal(1, f.events.count(EventRematchOffered))

	f.advance(30 * time.Second)
	responded, err := f.engine.RespondRematch(f.ctx, offer.ID, "bob", true)
	s.Require().NoError(err)
	s.Equal(OfferAccepted, responded.State)
	s.NotEmpty(responded.NewMatchID)

	next, err := f.engine.GetMatch(f.ctx, responded.NewMatchID)
	s.Require().NoError(err)
	s.NotEqual(match.ID, next.ID)
	s.Equal(match.Players, next.Players)
	s.True(next.Stake.Amount.Equal(match.Stake.Amount))
	s.Equal(match.Stake.Currency, next.Stake.Currency)
	s.Equal(2, next.Round)
	s.Equal(match.ID, next.SourceMatchID)
	s.Equal(MatchAwaitingMoves, next.State)
	s.Equal(2, f.events.count(EventMatchStarted))

	settled := f.events.ofType(EventRematchSettled)
	s.Require().Len(settled, 1)
	s.True(settled[0].Data.(RematchSettledData).Accepted)

	_, err = f.engine.RespondRematch(f.ctx, offer.ID, "bob", false)
	s.True(apperrors.Is(err, apperrors.ErrOfferAlreadyResolved))
}

// 窗口内无人回应，邀请过期且不创建新对局
func (s *EngineTestSuite) TestRematchExpires() {
	f := s.f
	match := f.startMatch()
	f.play(match.ID, MoveRock, MovePaper)
	live := f.engine.Stats().LiveMatches

	offer, err := f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.Require().NoError(err)

	f.advance(60 * time.Second)
	f.eventually(func() bool { return f.events.count(EventRematchSettled) == 1 }, "邀请过期")

	data := f.events.ofType(EventRematchSettled)[0].Data.(RematchSettledData)
	s.False(data.Accepted)
	s.Equal(OfferExpired, data.State)
	s.Empty(data.NewMatchID)

	got, err := f.engine.GetOffer(f.ctx, offer.ID)
	s.Require().NoError(err)
	s.Equal(OfferExpired, got.State)
	s.Equal(live, f.engine.Stats().LiveMatches)
	s.Equal(1, f.events.count(EventMatchStarted))

	_, err = f.engine.RespondRematch(f.ctx, offer.ID, "bob", true)
	s.True(apperrors.Is(err, apperrors.ErrOfferAlreadyResolved))
}

func (s *EngineTestSuite) TestRematchDeclined() {
	f := s.f
	match := f.startMatch()
	f.play(match.ID, MoveFire, MovePaper)

	offer, err := f.engine.RequestRematch(f.ctx, match.ID, "bob")
	s.Require().NoError(err)

	_, err = f.engine.RespondRematch(f.ctx, offer.ID, "bob", true)
	s.True(apperrors.Is(err, apperrors.ErrNotOfferRecipient), "发起者不能回应自己的邀请")

	declined, err := f.engine.RespondRematch(f.ctx, offer.ID, "alice", false)
	s.Require().NoError(err)
	s.Equal(OfferDeclined, declined.State)
	s.Empty(declined.NewMatchID)
	s.Equal(1, f.events.count(EventMatchStarted))

	// 终态后可以再次发起
	_, err = f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.NoError(err)
}

// 同一场对局只能开启一次再战，邀请移出内存后仍然有效
func (s *EngineTestSuite) TestRematchSpawnsOnlyOnce() {
	f := s.f
	match := f.startMatch()
	f.play(match.ID, MoveRock, MovePaper)

	offer, err := f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.Require().NoError(err)
	accepted, err := f.engine.RespondRematch(f.ctx, offer.ID, "bob", true)
	s.Require().NoError(err)
	s.Require().Equal(OfferAccepted, accepted.State)

	_, err = f.engine.RequestRematch(f.ctx, match.ID, "bob")
	s.True(apperrors.Is(err, apperrors.ErrOfferAlreadyResolved))
	_, err = f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.True(apperrors.Is(err, apperrors.ErrOfferAlreadyResolved))
	s.Equal(2, f.events.count(EventMatchStarted))
	s.Equal(1, f.events.count(EventRematchOffered))

	f.advance(10 * time.Minute)
	f.eventually(func() bool {
		_, ok := f.engine.rematches.Get(offer.ID)
		return !ok
	}, "邀请移出内存")

	_, err = f.engine.RequestRematch(f.ctx, match.ID, "bob")
	s.True(apperrors.Is(err, apperrors.ErrOfferAlreadyResolved))
	s.Equal(2, f.events.count(EventMatchStarted))

	// 新对局本身仍可继续再战
	f.eventually(func() bool { return f.matchState(accepted.NewMatchID) == MatchResolved }, "新对局自动结算")
	again, err := f.engine.RequestRematch(f.ctx, accepted.NewMatchID, "bob")
	s.Require().NoError(err)
	s.Equal(3, again.Round)
}

func (s *EngineTestSuite) TestRematchPreconditions() {
	f := s.f
	match := f.startMatch()

	_, err := f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.True(apperrors.Is(err, apperrors.ErrMatchNotResolved))

	f.play(match.ID, MoveRock, MoveRock)

	_, err = f.engine.RequestRematch(f.ctx, match.ID, "mallory")
	s.True(apperrors.Is(err, apperrors.ErrNotAParticipant))

	_, err = f.engine.RequestRematch(f.ctx, match.ID, "alice")
	s.Require().NoError(err)
	_, err = f.engine.RequestRematch(f.ctx, match.ID, "bob")
	s.True(apperrors.Is(err, apperrors.ErrRematchAlreadyPending))

	_, err = f.engine.RespondRematch(f.ctx, "missing", "bob", true)
	s.True(apperrors.Is(err, apperrors.ErrOfferNotFound))
}

// 重复提交承诺被拒绝且状态不变
func (s *EngineTestSuite) TestDuplicateCommitRejected() {
	f := s.f
	match := f.startMatch()
	c1, _ := mustCommit(s.T(), MoveRock)
	c2, _ := mustCommit(s.T(), MoveFire)

	first, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", c1)
	s.Require().NoError(err)

	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", c2)
	s.True(apperrors.Is(err, apperrors.ErrMoveAlreadyCommitted))

	after, err := f.engine.GetMatch(f.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(first.Slots, after.Slots)
	s.Equal(MatchAwaitingMoves, after.State)
	s.Equal(1, f.events.count(EventMoveCommitted))
}

// 揭示内容与承诺不一致时被拒绝，对局不转换
func (s *EngineTestSuite) TestMismatchedRevealRejected() {
	f := s.f
	match := f.startMatch()
	ca, na := mustCommit(s.T(), MoveRock)
	cb, _ := mustCommit(s.T(), MoveFire)

	_, err := f.engine.RevealMove(f.ctx, match.ID, "alice", MoveRock, na)
	s.True(apperrors.Is(err, apperrors.ErrRevealNotExpected))

	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", ca)
	s.Require().NoError(err)
	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "bob", cb)
	s.Require().NoError(err)

	_, err = f.engine.RevealMove(f.ctx, match.ID, "alice", MovePaper, na)
	s.True(apperrors.Is(err, apperrors.ErrCommitRevealMismatch))

	snap, err := f.engine.GetMatch(f.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(MatchRevealing, snap.State)
	s.False(snap.Slots[0].Revealed())

	_, err = f.engine.RevealMove(f.ctx, match.ID, "alice", MoveRock, na)
	s.Require().NoError(err)
	_, err = f.engine.RevealMove(f.ctx, match.ID, "alice", MoveRock, na)
	s.True(apperrors.Is(err, apperrors.ErrMoveAlreadyRevealed))
}

// 揭示截止：未揭示一方弃权，输给合法出招
func (s *EngineTestSuite) TestRevealDeadlineForfeits() {
	f := s.f
	match := f.startMatch()
	ca, na := mustCommit(s.T(), MoveFire)
	cb, _ := mustCommit(s.T(), MoveRock)
	_, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", ca)
	s.Require().NoError(err)
	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "bob", cb)
	s.Require().NoError(err)
	_, err = f.engine.RevealMove(f.ctx, match.ID, "alice", MoveFire, na)
	s.Require().NoError(err)

	f.advance(30 * time.Second)
	f.eventually(func() bool { return f.matchState(match.ID) == MatchResolved }, "揭示截止后结算")

	snap, _ := f.engine.GetMatch(f.ctx, match.ID)
	s.True(snap.Slots[1].Forfeited)
	s.Equal(WinnerA, snap.Outcome.Winner, "火本会输给石头，但对方弃权")
	s.Equal(MoveNone, snap.Outcome.MoveB)
	s.Len(f.settled.all(), 1)

	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", ca)
	s.True(apperrors.Is(err, apperrors.ErrMoveAlreadyCommitted))
	_, err = f.engine.RevealMove(f.ctx, match.ID, "bob", MoveRock, na)
	s.True(apperrors.Is(err, apperrors.ErrMatchAlreadyResolved))
}

func (s *EngineTestSuite) TestBothForfeitTie() {
	f := s.f
	match := f.startMatch()
	ca, _ := mustCommit(s.T(), MoveFire)
	cb, _ := mustCommit(s.T(), MoveRock)
	_, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", ca)
	s.Require().NoError(err)
	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "bob", cb)
	s.Require().NoError(err)

	f.advance(30 * time.Second)
	f.eventually(func() bool { return f.matchState(match.ID) == MatchResolved }, "揭示截止后结算")

	snap, _ := f.engine.GetMatch(f.ctx, match.ID)
	s.Equal(WinnerTie, snap.Outcome.Winner)
	s.True(snap.Slots[0].Forfeited)
	s.True(snap.Slots[1].Forfeited)
}

func (s *EngineTestSuite) TestNonParticipantRejected() {
	f := s.f
	match := f.startMatch()
	c, n := mustCommit(s.T(), MoveRock)

	_, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "mallory", c)
	s.True(apperrors.Is(err, apperrors.ErrNotAParticipant))
	_, err = f.engine.RevealMove(f.ctx, match.ID, "mallory", MoveRock, n)
	s.True(apperrors.Is(err, apperrors.ErrNotAParticipant))
	_, err = f.engine.SubmitMoveCommit(f.ctx, "missing", "alice", c)
	s.True(apperrors.Is(err, apperrors.ErrMatchNotFound))
	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", "nothex")
	s.True(apperrors.Is(err, apperrors.ErrInvalidCommitment))
}

func (s *EngineTestSuite) TestCancelledLobbyCannotBeJoined() {
	f := s.f
	lobby := f.lobby("alice", "1")

	_, err := f.engine.CancelLobby(f.ctx, lobby.ID, "bob")
	s.True(apperrors.Is(err, apperrors.ErrNotLobbyCreator))

	cancelled, err := f.engine.CancelLobby(f.ctx, lobby.ID, "alice")
	s.Require().NoError(err)
	s.Equal(LobbyCancelled, cancelled.State)

	_, err = f.engine.JoinLobby(f.ctx, lobby.ID, "bob")
	s.True(apperrors.Is(err, apperrors.ErrLobbyCancelled))

	// 取消后过期定时器不再触发
	f.advance(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	s.Equal(0, f.events.count(EventLobbyExpired))
}

// 终态实体移出内存后仍可从归档查询
func (s *EngineTestSuite) TestRetentionFallsBackToArchive() {
	f := s.f
	lobby := f.lobby("alice", "1")
	match, err := f.engine.JoinLobby(f.ctx, lobby.ID, "bob")
	s.Require().NoError(err)
	f.play(match.ID, MoveRock, MoveFire)

	f.advance(10 * time.Minute)
	f.eventually(func() bool { return f.engine.Stats().LiveMatches == 0 }, "对局移出内存")
	f.eventually(func() bool {
		_, ok := f.engine.lobbies.Get(lobby.ID)
		return !ok
	}, "大厅移出内存")

	archived, err := f.engine.GetMatch(f.ctx, match.ID)
	s.Require().NoError(err)
	s.Equal(MatchResolved, archived.State)
	s.Equal(WinnerA, archived.Outcome.Winner)

	c, _ := mustCommit(s.T(), MoveRock)
	_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", c)
	s.True(apperrors.Is(err, apperrors.ErrMatchAlreadyResolved))

	_, err = f.engine.JoinLobby(f.ctx, lobby.ID, "carol")
	s.True(apperrors.Is(err, apperrors.ErrLobbyAlreadyMatched))

	offer, err := f.engine.RequestRematch(f.ctx, match.ID, "bob")
	s.Require().NoError(err)
	s.Equal(2, offer.Round)
}

func (s *EngineTestSuite) TestRedactedHidesOpponentMove() {
	f := s.f
	match := f.startMatch()
	f.advance(30 * time.Second)
	f.eventually(func() bool { return f.matchState(match.ID) == MatchResolved }, "自动出招后结算")

	// 结算前构造一个未结算快照验证隐藏逻辑
	snap, _ := f.engine.GetMatch(f.ctx, match.ID)
	snap.State = MatchRevealing
	view := snap.Redacted("alice")
	s.Equal(snap.Slots[0].Move, view.Slots[0].Move)
	s.Equal(MoveNone, view.Slots[1].Move)
	s.Empty(view.Slots[1].Nonce)
	s.NotEmpty(view.Slots[1].Commitment)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

// 同一玩家并发提交承诺只有一次成功
func TestEngine_ConcurrentCommitSinglePlayer(t *testing.T) {
	f := newFixture(t)
	match := f.startMatch()

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nonce, _ := NewNonce()
			c, _ := Commit(MoveRock, nonce)
			if _, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", c); err == nil {
				success.Add(1)
			} else {
				assert.True(t, apperrors.Is(err, apperrors.ErrMoveAlreadyCommitted))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), success.Load())
	assert.Equal(t, 1, f.events.count(EventMoveCommitted))
}

// 并发揭示与揭示截止竞争时只结算一次
func TestEngine_RevealRacesDeadlineSettlesOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		match := f.startMatch()
		ca, na := mustCommit(t, MoveRock)
		cb, nb := mustCommit(t, MoveFire)
		_, err := f.engine.SubmitMoveCommit(f.ctx, match.ID, "alice", ca)
		require.NoError(t, err)
		_, err = f.engine.SubmitMoveCommit(f.ctx, match.ID, "bob", cb)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); f.engine.RevealMove(f.ctx, match.ID, "alice", MoveRock, na) }()
		go func() { defer wg.Done(); f.engine.RevealMove(f.ctx, match.ID, "bob", MoveFire, nb) }()
		go func() { defer wg.Done(); f.advance(30 * time.Second) }()
		wg.Wait()

		f.eventually(func() bool { return f.matchState(match.ID) == MatchResolved }, "最终结算")
		time.Sleep(10 * time.Millisecond)
		assert.Len(t, f.settled.all(), 1)
		assert.Equal(t, 1, f.events.count(EventOutcomeResolved))
	}
}

func TestNewEngine_InvalidRules(t *testing.T) {
	rules := DefaultRules()
	rules.MoveTimeout = 0
	_, err := NewEngine(rules)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

// 真实时钟下出招时限极短，截止回调也能找到对局并结算
func TestEngine_ShortMoveTimeoutResolves(t *testing.T) {
	rules := DefaultRules()
	rules.MoveTimeout = time.Millisecond
	rules.WarningLead = 0

	for i := 0; i < 20; i++ {
		events := &eventRecorder{}
		engine, err := NewEngine(rules, WithEventSink(events), WithRandom(func(int) int { return 0 }))
		require.NoError(t, err)

		ctx := context.Background()
		lobby, err := engine.CreateLobby(ctx, "alice", mustStake(t, "1", "LORDS"), FactionWizard, 5*time.Minute)
		require.NoError(t, err)
		match, err := engine.JoinLobby(ctx, lobby.ID, "bob")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			snap, err := engine.GetMatch(ctx, match.ID)
			return err == nil && snap.State == MatchResolved
		}, 2*time.Second, 2*time.Millisecond, "自动出招后结算")
		assert.Equal(t, 1, events.count(EventOutcomeResolved))
		engine.Close()
	}
}

package duel

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	apperrors "github.com/wfunc/duel-game/internal/errors"
	"go.uber.org/zap"
)

// Engine 对战协调引擎，持有大厅、对局、再战三个注册表和定时器服务，
// 对外暴露表现层使用的全部操作
type Engine struct {
	rules     Rules
	clock     clock.Clock
	timers    *TimerService
	lobbies   *LobbyRegistry
	sessions  *SessionRegistry
	rematches *RematchNegotiator
	env       *sessionEnv

	sink    EventSink
	archive Archive
	settler Settler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 指定时钟（测试中使用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithEventSink 指定事件接收方
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithArchive 指定归档
func WithArchive(archive Archive) Option {
	return func(e *Engine) { e.archive = archive }
}

// WithSettler 指定结算协作方
func WithSettler(settler Settler) Option {
	return func(e *Engine) { e.settler = settler }
}

// WithLogger 指定日志器
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRandom 指定自动出招的随机源，返回 [0, n) 内的整数
func WithRandom(intn func(n int) int) Option {
	return func(e *Engine) { e.env.randIntn = intn }
}

// NewEngine 创建引擎
func NewEngine(rules Rules, opts ...Option) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		rules:   rules,
		clock:   clock.New(),
		sink:    nopSink{},
		archive: NewMemoryArchive(),
		settler: SettlerFunc(func(context.Context, SettlementRequest) error { return nil }),
		logger:  zap.NewNop(),
		env:     &sessionEnv{rules: rules, randIntn: rand.Intn},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.timers = NewTimerService(e.clock, e.handleDeadline, e.logger)
	e.env.clock = e.clock
	e.env.timers = e.timers
	e.lobbies = NewLobbyRegistry(rules, e.clock, e.timers)
	e.sessions = NewSessionRegistry()
	e.rematches = NewRematchNegotiator(rules, e.clock, e.timers)
	return e, nil
}

// Rules 当前规则
func (e *Engine) Rules() Rules { return e.rules }

// CreateLobby 创建大厅
func (e *Engine) CreateLobby(ctx context.Context, creatorID string, stake Stake, faction Faction, maxWait time.Duration) (LobbySnapshot, error) {
	lobby, err := e.lobbies.Create(creatorID, stake, faction, maxWait)
	if err != nil {
		return LobbySnapshot{}, err
	}
	e.flush(&lobby.out)

	snap := lobby.snapshot()
	e.logger.Info("大厅已创建",
		zap.String("lobby_id", snap.ID),
		zap.String("creator_id", creatorID),
		zap.String("stake", stake.String()),
		zap.Duration("max_wait", maxWait))
	return snap, nil
}

// JoinLobby 加入大厅并开始对局
func (e *Engine) JoinLobby(ctx context.Context, lobbyID, joinerID string) (MatchSnapshot, error) {
	lobby, err := e.lobbies.Join(lobbyID, joinerID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrLobbyNotFound) {
			if archived, findErr := e.archive.FindLobby(ctx, lobbyID); findErr == nil && archived.State != LobbyOpen {
				return MatchSnapshot{}, archived.State.closedError(lobbyID)
			}
		}
		return MatchSnapshot{}, err
	}
	e.flush(&lobby.out)

	l := lobby.snapshot()
	session := newMatchSession(e.env, matchParams{
		id:       l.MatchID,
		lobbyID:  l.ID,
		round:    1,
		players:  [2]string{l.CreatorID, l.JoinerID},
		factions: [2]Faction{l.Faction, l.Faction.Opposite()},
		stake:    l.Stake,
	})
	e.sessions.add(session)
	session.start()
	e.flush(&session.out)

	e.logger.Info("对局开始",
		zap.String("match_id", l.MatchID),
		zap.String("lobby_id", l.ID),
		zap.String("player_a", l.CreatorID),
		zap.String("player_b", l.JoinerID))
	return session.Snapshot(), nil
}

// CancelLobby 取消大厅
func (e *Engine) CancelLobby(ctx context.Context, lobbyID, requesterID string) (LobbySnapshot, error) {
	lobby, err := e.lobbies.Cancel(lobbyID, requesterID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrLobbyNotFound) {
			if archived, findErr := e.archive.FindLobby(ctx, lobbyID); findErr == nil && archived.State != LobbyOpen {
				if archived.CreatorID != requesterID {
					return LobbySnapshot{}, apperrors.New(apperrors.ErrNotLobbyCreator, lobbyID)
				}
				return LobbySnapshot{}, archived.State.closedError(lobbyID)
			}
		}
		return LobbySnapshot{}, err
	}
	e.flush(&lobby.out)

	e.logger.Info("大厅已取消", zap.String("lobby_id", lobbyID))
	return lobby.snapshot(), nil
}

// GetLobby 查询大厅
func (e *Engine) GetLobby(ctx context.Context, lobbyID string) (LobbySnapshot, error) {
	if snap, ok := e.lobbies.Get(lobbyID); ok {
		return snap, nil
	}
	return e.archive.FindLobby(ctx, lobbyID)
}

// ListOpenLobbies 列出开放中的大厅
func (e *Engine) ListOpenLobbies(currency string) []LobbySnapshot {
	return e.lobbies.ListOpen(currency)
}

// SubmitMoveCommit 提交出招承诺
func (e *Engine) SubmitMoveCommit(ctx context.Context, matchID, playerID, commitment string) (MatchSnapshot, error) {
	session, err := e.session(ctx, matchID)
	if err != nil {
		return MatchSnapshot{}, err
	}
	snap, err := session.Commit(playerID, commitment)
	e.flush(&session.out)
	if err != nil {
		return MatchSnapshot{}, err
	}
	return snap, nil
}

// RevealMove 揭示出招
func (e *Engine) RevealMove(ctx context.Context, matchID, playerID string, move Move, nonce string) (MatchSnapshot, error) {
	session, err := e.session(ctx, matchID)
	if err != nil {
		return MatchSnapshot{}, err
	}
	snap, err := session.Reveal(playerID, move, nonce)
	e.flush(&session.out)
	if err != nil {
		return MatchSnapshot{}, err
	}
	return snap, nil
}

// GetMatch 查询对局
func (e *Engine) GetMatch(ctx context.Context, matchID string) (MatchSnapshot, error) {
	if session, ok := e.sessions.Get(matchID); ok {
		return session.Snapshot(), nil
	}
	return e.archive.FindMatch(ctx, matchID)
}

// RequestRematch 对已结算的对局发起再战
func (e *Engine) RequestRematch(ctx context.Context, matchID, playerID string) (OfferSnapshot, error) {
	source, err := e.GetMatch(ctx, matchID)
	if err != nil {
		return OfferSnapshot{}, err
	}
	// 内存中的邀请移出后，由归档记录拦截同一对局的第二次再战
	if _, ok := source.Participant(playerID); ok && source.State == MatchResolved {
		accepted, findErr := e.archive.FindAcceptedOffer(ctx, matchID)
		switch {
		case findErr == nil:
			return OfferSnapshot{}, apperrors.Newf(apperrors.ErrOfferAlreadyResolved, "对局 %s 已通过邀请 %s 开启再战", matchID, accepted.ID)
		case !apperrors.Is(findErr, apperrors.ErrOfferNotFound):
			e.logger.Warn("查询再战记录失败", zap.String("match_id", matchID), zap.Error(findErr))
		}
	}
	offer, err := e.rematches.Offer(source, playerID)
	if err != nil {
		return OfferSnapshot{}, err
	}
	e.flush(&offer.out)

	snap := offer.snapshot()
	e.logger.Info("发起再战邀请",
		zap.String("offer_id", snap.ID),
		zap.String("source_match_id", matchID),
		zap.String("offered_by", playerID))
	return snap, nil
}

// RespondRematch 回应再战邀请，接受时创建新对局
func (e *Engine) RespondRematch(ctx context.Context, offerID, playerID string, accept bool) (OfferSnapshot, error) {
	offer, err := e.rematches.Respond(offerID, playerID, accept)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrOfferNotFound) {
			if archived, findErr := e.archive.FindOffer(ctx, offerID); findErr == nil && archived.State != OfferPending {
				return OfferSnapshot{}, apperrors.New(apperrors.ErrOfferAlreadyResolved, offerID)
			}
		}
		return OfferSnapshot{}, err
	}
	e.flush(&offer.out)

	snap := offer.snapshot()
	if snap.State == OfferAccepted {
		session := newMatchSession(e.env, matchParams{
			id:            snap.NewMatchID,
			sourceMatchID: snap.SourceMatchID,
			round:         snap.Round,
			players:       snap.Players,
			factions:      snap.Factions,
			stake:         snap.Stake,
		})
		e.sessions.add(session)
		session.start()
		e.flush(&session.out)
	}

	e.logger.Info("再战邀请已回应",
		zap.String("offer_id", offerID),
		zap.Bool("accepted", accept),
		zap.String("new_match_id", snap.NewMatchID))
	return snap, nil
}

// GetOffer 查询再战邀请
func (e *Engine) GetOffer(ctx context.Context, offerID string) (OfferSnapshot, error) {
	if snap, ok := e.rematches.Get(offerID); ok {
		return snap, nil
	}
	return e.archive.FindOffer(ctx, offerID)
}

// Stats 运行时统计
type Stats struct {
	OpenLobbies   int `json:"open_lobbies"`
	LiveMatches   int `json:"live_matches"`
	PendingTimers int `json:"pending_timers"`
}

// Stats 返回运行时统计
func (e *Engine) Stats() Stats {
	return Stats{
		OpenLobbies:   e.lobbies.OpenCount(),
		LiveMatches:   e.sessions.Len(),
		PendingTimers: e.timers.Pending(),
	}
}

// Close 停止全部定时器
func (e *Engine) Close() {
	e.timers.Stop()
	e.cancel()
}

func (e *Engine) session(ctx context.Context, matchID string) (*MatchSession, error) {
	if session, ok := e.sessions.Get(matchID); ok {
		return session, nil
	}
	// 已移出内存的对局必然已结算
	if _, err := e.archive.FindMatch(ctx, matchID); err == nil {
		return nil, apperrors.New(apperrors.ErrMatchAlreadyResolved, matchID)
	}
	return nil, apperrors.New(apperrors.ErrMatchNotFound, matchID)
}

// handleDeadline 将截止事件路由给所属的状态机
func (e *Engine) handleDeadline(token TimerToken) {
	id := token.EntityID
	switch token.Kind {
	case TimerLobbyExpiry:
		if lobby, expired := e.lobbies.Expire(id); expired {
			e.flush(&lobby.out)
			e.logger.Info("大厅已过期", zap.String("lobby_id", id))
		}
	case TimerMoveWarning, TimerMoveDeadline, TimerRevealDeadline:
		session, ok := e.sessions.Get(id)
		if !ok {
			return
		}
		switch token.Kind {
		case TimerMoveWarning:
			session.onMoveWarning()
		case TimerMoveDeadline:
			session.onMoveDeadline()
		case TimerRevealDeadline:
			session.onRevealDeadline()
		}
		e.flush(&session.out)
	case TimerRematchExpiry:
		if offer, expired := e.rematches.Expire(id); expired {
			e.flush(&offer.out)
			e.logger.Info("再战邀请已过期", zap.String("offer_id", id))
		}
	case TimerLobbyRetention:
		e.lobbies.Evict(id)
	case TimerMatchRetention:
		e.sessions.Evict(id)
	case TimerOfferRetention:
		e.rematches.Evict(id)
	}
}

func (e *Engine) flush(out *outbox) {
	out.drain(e.apply)
}

func (e *Engine) apply(item effect) {
	switch {
	case item.event != nil:
		e.logger.Debug("发布事件", zap.String("type", string(item.event.Type)), zap.Strings("recipients", item.event.Recipients))
		e.sink.Publish(*item.event)
	case item.lobby != nil:
		if err := e.archive.SaveLobby(e.ctx, *item.lobby); err != nil {
			e.logger.Error("归档大厅失败", zap.String("lobby_id", item.lobby.ID), zap.Error(err))
		}
	case item.match != nil:
		if err := e.archive.SaveMatch(e.ctx, *item.match); err != nil {
			e.logger.Error("归档对局失败", zap.String("match_id", item.match.ID), zap.Error(err))
		}
	case item.offer != nil:
		if err := e.archive.SaveOffer(e.ctx, *item.offer); err != nil {
			e.logger.Error("归档再战邀请失败", zap.String("offer_id", item.offer.ID), zap.Error(err))
		}
	case item.settle != nil:
		req := *item.settle
		if err := e.settler.Settle(e.ctx, req); err != nil {
			e.logger.Error("提交结算请求失败", zap.String("match_id", req.MatchID), zap.Error(err))
			return
		}
		e.logger.Info("结算请求已提交",
			zap.String("match_id", req.MatchID),
			zap.String("winner", req.Winner.String()),
			zap.String("payout_a", req.PayoutA.String()),
			zap.String("payout_b", req.PayoutB.String()))
	}
}

package duel

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// MatchState 对局状态
type MatchState uint8

const (
	MatchAwaitingMoves MatchState = iota + 1 // 等待双方提交承诺
	MatchRevealing                           // 等待双方揭示
	MatchResolved                            // 已结算（终态）
)

var matchStateNames = map[MatchState]string{
	MatchAwaitingMoves: "awaiting_moves",
	MatchRevealing:     "revealing",
	MatchResolved:      "resolved",
}

func (s MatchState) String() string {
	if name, ok := matchStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 实现 encoding.TextMarshaler
func (s MatchState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseMatchState 解析对局状态
func ParseMatchState(s string) (MatchState, bool) {
	for state, name := range matchStateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}

// MoveSlot 单个玩家的出招槽位。承诺一经设置不可变，
// 明文出招只设置一次且必须与承诺一致
type MoveSlot struct {
	PlayerID    string    `json:"player_id"`
	Faction     Faction   `json:"faction"`
	Commitment  string    `json:"commitment,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	Move        Move      `json:"move,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
	RevealedAt  time.Time `json:"revealed_at"`
	Auto        bool      `json:"auto"`
	Forfeited   bool      `json:"forfeited"`
}

// Committed 是否已提交承诺
func (s MoveSlot) Committed() bool { return s.Commitment != "" }

// Revealed 是否已揭示
func (s MoveSlot) Revealed() bool { return s.Move.Valid() }

// settled 已揭示或已弃权
func (s MoveSlot) settled() bool { return s.Revealed() || s.Forfeited }

// Outcome 对局结果，一经产生不可变
type Outcome struct {
	Winner     Winner    `json:"winner"`
	WinnerID   string    `json:"winner_id,omitempty"`
	MoveA      Move      `json:"move_a,omitempty"`
	MoveB      Move      `json:"move_b,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// MatchSnapshot 对局只读快照
type MatchSnapshot struct {
	ID             string      `json:"id"`
	LobbyID        string      `json:"lobby_id,omitempty"`
	SourceMatchID  string      `json:"source_match_id,omitempty"`
	Round          int         `json:"round"`
	Players        [2]string   `json:"players"`
	Stake          Stake       `json:"stake"`
	Slots          [2]MoveSlot `json:"slots"`
	State          MatchState  `json:"state"`
	MoveDeadline   time.Time   `json:"move_deadline"`
	RevealDeadline time.Time   `json:"reveal_deadline"`
	Outcome        *Outcome    `json:"outcome,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Participant 返回玩家所在槽位
func (m MatchSnapshot) Participant(playerID string) (int, bool) {
	for i, p := range m.Players {
		if p == playerID && p != "" {
			return i, true
		}
	}
	return -1, false
}

// Opponent 返回对手ID
func (m MatchSnapshot) Opponent(playerID string) string {
	idx, ok := m.Participant(playerID)
	if !ok {
		return ""
	}
	return m.Players[1-idx]
}

// Redacted 对局结算前隐藏非 viewer 槽位的明文出招和随机数
func (m MatchSnapshot) Redacted(viewer string) MatchSnapshot {
	if m.State == MatchResolved {
		return m
	}
	for i := range m.Slots {
		if m.Slots[i].PlayerID == viewer {
			continue
		}
		m.Slots[i].Move = MoveNone
		m.Slots[i].Nonce = ""
	}
	return m
}

// sessionEnv 对局共享的依赖
type sessionEnv struct {
	rules    Rules
	clock    clock.Clock
	timers   *TimerService
	randIntn func(n int) int
}

// MatchSession 单场对局状态机:
// AwaitingMoves -> Revealing -> Resolved
type MatchSession struct {
	mu     sync.Mutex
	env    *sessionEnv
	data   MatchSnapshot
	warned bool
	out    outbox
}

// matchParams 新对局参数
type matchParams struct {
	id            string
	lobbyID       string
	sourceMatchID string
	round         int
	players       [2]string
	factions      [2]Faction
	stake         Stake
}

func newMatchSession(env *sessionEnv, params matchParams) *MatchSession {
	now := env.clock.Now()
	m := &MatchSession{env: env}
	m.data = MatchSnapshot{
		ID:            params.id,
		LobbyID:       params.lobbyID,
		SourceMatchID: params.sourceMatchID,
		Round:         params.round,
		Players:       params.players,
		Stake:         params.stake,
		State:         MatchAwaitingMoves,
		MoveDeadline:  now.Add(env.rules.MoveTimeout),
		CreatedAt:     now,
	}
	for i := range m.data.Slots {
		m.data.Slots[i] = MoveSlot{PlayerID: params.players[i], Faction: params.factions[i]}
	}
	return m
}

// start 启动出招计时并发出开局事件。必须在对局登记到注册表之后调用，
// 否则截止回调找不到对局
func (m *MatchSession) start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := m.env.rules
	if lead := rules.WarningLead; lead > 0 && lead < rules.MoveTimeout {
		m.env.timers.Schedule(m.token(TimerMoveWarning), m.data.MoveDeadline.Add(-lead))
	}
	m.env.timers.Schedule(m.token(TimerMoveDeadline), m.data.MoveDeadline)

	m.emit(EventMatchStarted, MatchStartedData{
		MatchID:       m.data.ID,
		LobbyID:       m.data.LobbyID,
		SourceMatchID: m.data.SourceMatchID,
		Round:         m.data.Round,
		Players:       m.data.Players,
		Factions:      [2]Faction{m.data.Slots[0].Faction, m.data.Slots[1].Faction},
		Stake:         m.data.Stake,
		MoveDeadline:  m.data.MoveDeadline,
	}, m.data.CreatedAt)
	m.archive()
}

// Snapshot 对局快照
func (m *MatchSession) Snapshot() MatchSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Commit 提交出招承诺
func (m *MatchSession) Commit(playerID, commitment string) (MatchSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.data.Participant(playerID)
	if !ok {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrNotAParticipant, m.data.ID)
	}
	if m.data.Slots[idx].Committed() {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrMoveAlreadyCommitted, m.data.ID)
	}
	if err := m.expectState(MatchAwaitingMoves); err != nil {
		return MatchSnapshot{}, err
	}
	normalized, err := NormalizeCommitment(commitment)
	if err != nil {
		return MatchSnapshot{}, err
	}

	now := m.env.clock.Now()
	slot := &m.data.Slots[idx]
	slot.Commitment = normalized
	slot.CommittedAt = now
	m.emit(EventMoveCommitted, MoveCommittedData{MatchID: m.data.ID, PlayerID: playerID}, now)

	if m.data.Slots[0].Committed() && m.data.Slots[1].Committed() {
		m.enterRevealing(now)
	} else {
		m.archive()
	}
	return m.data, nil
}

// Reveal 揭示出招。校验失败时槽位不变，对局不转换
func (m *MatchSession) Reveal(playerID string, move Move, nonce string) (MatchSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.data.Participant(playerID)
	if !ok {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrNotAParticipant, m.data.ID)
	}
	switch m.data.State {
	case MatchResolved:
		return MatchSnapshot{}, apperrors.New(apperrors.ErrMatchAlreadyResolved, m.data.ID)
	case MatchAwaitingMoves:
		return MatchSnapshot{}, apperrors.New(apperrors.ErrRevealNotExpected, m.data.ID)
	}
	slot := &m.data.Slots[idx]
	if slot.Revealed() {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrMoveAlreadyRevealed, m.data.ID)
	}
	if !move.Valid() {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrInvalidMove, move.String())
	}
	if !VerifyReveal(slot.Commitment, move, nonce) {
		return MatchSnapshot{}, apperrors.New(apperrors.ErrCommitRevealMismatch, m.data.ID)
	}

	now := m.env.clock.Now()
	slot.Move = move
	slot.Nonce = normalizeHex(nonce)
	slot.RevealedAt = now

	if m.data.Slots[0].settled() && m.data.Slots[1].settled() {
		m.resolve(now)
	} else {
		m.archive()
	}
	return m.data, nil
}

// onMoveWarning 出招截止提醒，仅在仍有空槽位时发出一次
func (m *MatchSession) onMoveWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data.State != MatchAwaitingMoves || m.warned {
		return
	}
	if m.data.Slots[0].Committed() && m.data.Slots[1].Committed() {
		return
	}
	m.warned = true
	now := m.env.clock.Now()
	left := int(math.Ceil(m.data.MoveDeadline.Sub(now).Seconds()))
	if left < 0 {
		left = 0
	}
	m.emit(EventMoveDeadlineApproaching, MoveDeadlineApproachingData{MatchID: m.data.ID, SecondsLeft: left}, now)
}

// onMoveDeadline 出招截止：为未提交承诺的玩家随机自动出招
func (m *MatchSession) onMoveDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data.State != MatchAwaitingMoves {
		return
	}
	now := m.env.clock.Now()
	for i := range m.data.Slots {
		if !m.data.Slots[i].Committed() {
			m.autoCommit(i, now)
		}
	}
	m.enterRevealing(now)
}

// onRevealDeadline 揭示截止：未揭示的槽位判为弃权
func (m *MatchSession) onRevealDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data.State != MatchRevealing {
		return
	}
	for i := range m.data.Slots {
		if !m.data.Slots[i].Revealed() {
			m.data.Slots[i].Forfeited = true
		}
	}
	m.resolve(m.env.clock.Now())
}

// autoCommit 自动出招，引擎生成随机数并立即揭示
func (m *MatchSession) autoCommit(idx int, now time.Time) {
	slot := &m.data.Slots[idx]
	move := AllMoves[m.env.randIntn(len(AllMoves))]

	nonce, err := NewNonce()
	if err != nil {
		slot.Forfeited = true
		return
	}
	commitment, _ := Commit(move, nonce)

	slot.Commitment = commitment
	slot.Nonce = nonce
	slot.Move = move
	slot.Auto = true
	slot.CommittedAt = now
	slot.RevealedAt = now
	m.emit(EventMoveAutoCommitted, MoveCommittedData{MatchID: m.data.ID, PlayerID: slot.PlayerID, Auto: true}, now)
}

func (m *MatchSession) enterRevealing(now time.Time) {
	m.env.timers.Cancel(m.token(TimerMoveWarning))
	m.env.timers.Cancel(m.token(TimerMoveDeadline))

	m.data.State = MatchRevealing
	if m.data.Slots[0].settled() && m.data.Slots[1].settled() {
		m.resolve(now)
		return
	}

	m.data.RevealDeadline = now.Add(m.env.rules.RevealTimeout)
	m.env.timers.Schedule(m.token(TimerRevealDeadline), m.data.RevealDeadline)
	m.emit(EventRevealRequested, RevealRequestedData{MatchID: m.data.ID, RevealDeadline: m.data.RevealDeadline}, now)
	m.archive()
}

// resolve 结算，只执行一次
func (m *MatchSession) resolve(now time.Time) {
	if m.data.State == MatchResolved {
		return
	}
	m.env.timers.Cancel(m.token(TimerRevealDeadline))

	a, b := m.data.Slots[0].Move, m.data.Slots[1].Move
	if m.data.Slots[0].Forfeited {
		a = MoveNone
	}
	if m.data.Slots[1].Forfeited {
		b = MoveNone
	}
	outcome := &Outcome{
		Winner:     ResolveSlots(a, b),
		MoveA:      a,
		MoveB:      b,
		ResolvedAt: now,
	}
	switch outcome.Winner {
	case WinnerA:
		outcome.WinnerID = m.data.Players[0]
	case WinnerB:
		outcome.WinnerID = m.data.Players[1]
	}
	m.data.Outcome = outcome
	m.data.State = MatchResolved

	m.emit(EventOutcomeResolved, OutcomeResolvedData{
		MatchID: m.data.ID,
		Outcome: *outcome,
		Players: m.data.Players,
		Stake:   m.data.Stake,
	}, now)
	m.archive()

	req := newSettlementRequest(m.env.rules, m.data)
	m.out.push(effect{settle: &req})
	m.env.timers.Schedule(m.token(TimerMatchRetention), now.Add(m.env.rules.Retention))
}

func (m *MatchSession) expectState(want MatchState) error {
	if m.data.State == want {
		return nil
	}
	if m.data.State == MatchResolved {
		return apperrors.New(apperrors.ErrMatchAlreadyResolved, m.data.ID)
	}
	return apperrors.New(apperrors.ErrMatchNotAwaitingMoves, m.data.ID)
}

func (m *MatchSession) emit(t EventType, data interface{}, now time.Time) {
	m.out.push(effect{event: &Event{
		Type:       t,
		Recipients: []string{m.data.Players[0], m.data.Players[1]},
		Data:       data,
		Timestamp:  now,
	}})
}

func (m *MatchSession) archive() {
	snap := m.data
	if snap.Outcome != nil {
		o := *snap.Outcome
		snap.Outcome = &o
	}
	m.out.push(effect{match: &snap})
}

func (m *MatchSession) token(kind TimerKind) TimerToken {
	return TimerToken{Kind: kind, EntityID: m.data.ID}
}

// SessionRegistry 对局索引
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*MatchSession
}

// NewSessionRegistry 创建对局索引
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*MatchSession)}
}

func (r *SessionRegistry) add(m *MatchSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[m.data.ID] = m
}

// Get 按ID查找
func (r *SessionRegistry) Get(matchID string) (*MatchSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[matchID]
	return m, ok
}

// Evict 移出已结算的对局
func (r *SessionRegistry) Evict(matchID string) bool {
	m, ok := r.Get(matchID)
	if !ok || m.Snapshot().State != MatchResolved {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, matchID)
	return true
}

// Len 内存中的对局数量
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

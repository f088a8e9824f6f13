package duel

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// LobbyState 大厅状态
type LobbyState uint8

const (
	LobbyOpen      LobbyState = iota + 1 // 等待加入
	LobbyMatched                         // 已匹配
	LobbyExpired                         // 已过期
	LobbyCancelled                       // 已取消
)

var lobbyStateNames = map[LobbyState]string{
	LobbyOpen:      "open",
	LobbyMatched:   "matched",
	LobbyExpired:   "expired",
	LobbyCancelled: "cancelled",
}

func (s LobbyState) String() string {
	if name, ok := lobbyStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 实现 encoding.TextMarshaler
func (s LobbyState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseLobbyState 解析大厅状态
func ParseLobbyState(s string) (LobbyState, bool) {
	for state, name := range lobbyStateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}

// closedError 已离开 Open 状态的大厅对加入请求返回的错误
func (s LobbyState) closedError(lobbyID string) error {
	switch s {
	case LobbyMatched:
		return apperrors.New(apperrors.ErrLobbyAlreadyMatched, lobbyID)
	case LobbyExpired:
		return apperrors.New(apperrors.ErrLobbyExpired, lobbyID)
	case LobbyCancelled:
		return apperrors.New(apperrors.ErrLobbyCancelled, lobbyID)
	}
	return apperrors.New(apperrors.ErrLobbyNotFound, lobbyID)
}

// LobbySnapshot 大厅只读快照
type LobbySnapshot struct {
	ID        string        `json:"id"`
	CreatorID string        `json:"creator_id"`
	JoinerID  string        `json:"joiner_id,omitempty"`
	Stake     Stake         `json:"stake"`
	Faction   Faction       `json:"faction"`
	MaxWait   time.Duration `json:"-"`
	State     LobbyState    `json:"state"`
	MatchID   string        `json:"match_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	ClosedAt  time.Time     `json:"closed_at"`
}

// MaxWaitSeconds 最长等待秒数
func (l LobbySnapshot) MaxWaitSeconds() int64 {
	return int64(l.MaxWait / time.Second)
}

// Lobby 大厅，离开 Open 状态恰好一次
type Lobby struct {
	mu   sync.Mutex
	data LobbySnapshot
	out  outbox
}

func (l *Lobby) snapshot() LobbySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data
}

// close 离开 Open 状态，调用方持有锁
func (l *Lobby) close(state LobbyState, now time.Time) {
	l.data.State = state
	l.data.ClosedAt = now
	snap := l.data
	l.out.push(effect{lobby: &snap})
}

// LobbyRegistry 开放大厅注册表，只负责按ID索引，
// 每个大厅的状态转换由大厅自己的锁串行化
type LobbyRegistry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	open    atomic.Int64

	rules  Rules
	clock  clock.Clock
	timers *TimerService
}

// NewLobbyRegistry 创建大厅注册表
func NewLobbyRegistry(rules Rules, clk clock.Clock, timers *TimerService) *LobbyRegistry {
	return &LobbyRegistry{
		lobbies: make(map[string]*Lobby),
		rules:   rules,
		clock:   clk,
		timers:  timers,
	}
}

// Create 创建大厅并调度过期
func (r *LobbyRegistry) Create(creatorID string, stake Stake, faction Faction, maxWait time.Duration) (*Lobby, error) {
	if creatorID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "creator_id 不能为空")
	}
	if err := r.rules.ValidateStake(stake); err != nil {
		return nil, err
	}
	if !faction.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalidFaction, faction.String())
	}
	if err := r.rules.ValidateWait(maxWait); err != nil {
		return nil, err
	}
	if !r.reserveOpen() {
		return nil, apperrors.Newf(apperrors.ErrPermissionDenied, "开放大厅数量已达上限 %d", r.rules.MaxLobbies)
	}

	now := r.clock.Now()
	lobby := &Lobby{data: LobbySnapshot{
		ID:        uuid.NewString(),
		CreatorID: creatorID,
		Stake:     stake,
		Faction:   faction,
		MaxWait:   maxWait,
		State:     LobbyOpen,
		CreatedAt: now,
		ExpiresAt: now.Add(maxWait),
	}}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	r.mu.Lock()
	r.lobbies[lobby.data.ID] = lobby
	r.mu.Unlock()

	r.timers.Schedule(TimerToken{Kind: TimerLobbyExpiry, EntityID: lobby.data.ID}, lobby.data.ExpiresAt)
	snap := lobby.data
	lobby.out.push(effect{lobby: &snap})
	return lobby, nil
}

// reserveOpen 占用一个开放名额，达到上限时返回 false
func (r *LobbyRegistry) reserveOpen() bool {
	limit := int64(r.rules.MaxLobbies)
	for {
		n := r.open.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if r.open.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Join 加入大厅。与过期、取消在大厅锁上互斥，只有一个能成功
func (r *LobbyRegistry) Join(lobbyID, joinerID string) (*Lobby, error) {
	lobby, ok := r.get(lobbyID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrLobbyNotFound, lobbyID)
	}
	if joinerID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "joiner_id 不能为空")
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.data.State != LobbyOpen {
		return nil, lobby.data.State.closedError(lobbyID)
	}
	if lobby.data.CreatorID == joinerID {
		return nil, apperrors.New(apperrors.ErrSelfJoinForbidden, lobbyID)
	}

	r.timers.Cancel(TimerToken{Kind: TimerLobbyExpiry, EntityID: lobbyID})
	lobby.data.JoinerID = joinerID
	lobby.data.MatchID = uuid.NewString()
	r.retire(lobby, LobbyMatched)
	return lobby, nil
}

// Cancel 创建者取消开放中的大厅
func (r *LobbyRegistry) Cancel(lobbyID, requesterID string) (*Lobby, error) {
	lobby, ok := r.get(lobbyID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrLobbyNotFound, lobbyID)
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.data.CreatorID != requesterID {
		return nil, apperrors.New(apperrors.ErrNotLobbyCreator, lobbyID)
	}
	if lobby.data.State != LobbyOpen {
		return nil, lobby.data.State.closedError(lobbyID)
	}

	r.timers.Cancel(TimerToken{Kind: TimerLobbyExpiry, EntityID: lobbyID})
	r.retire(lobby, LobbyCancelled)
	return lobby, nil
}

// Expire 过期定时器触发。大厅已离开 Open 时返回 false
func (r *LobbyRegistry) Expire(lobbyID string) (*Lobby, bool) {
	lobby, ok := r.get(lobbyID)
	if !ok {
		return nil, false
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.data.State != LobbyOpen {
		return lobby, false
	}
	r.retire(lobby, LobbyExpired)
	lobby.out.push(effect{event: &Event{
		Type:       EventLobbyExpired,
		Recipients: []string{lobby.data.CreatorID},
		Data:       LobbyExpiredData{LobbyID: lobbyID},
		Timestamp:  lobby.data.ClosedAt,
	}})
	return lobby, true
}

// retire 大厅进入终态并安排移出内存，调用方持有大厅锁
func (r *LobbyRegistry) retire(lobby *Lobby, state LobbyState) {
	now := r.clock.Now()
	lobby.close(state, now)
	r.open.Add(-1)
	r.timers.Schedule(TimerToken{Kind: TimerLobbyRetention, EntityID: lobby.data.ID}, now.Add(r.rules.Retention))
}

// Evict 移出已终结的大厅
func (r *LobbyRegistry) Evict(lobbyID string) bool {
	lobby, ok := r.get(lobbyID)
	if !ok {
		return false
	}
	if lobby.snapshot().State == LobbyOpen {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lobbies, lobbyID)
	return true
}

// Get 查询内存中的大厅
func (r *LobbyRegistry) Get(lobbyID string) (LobbySnapshot, bool) {
	lobby, ok := r.get(lobbyID)
	if !ok {
		return LobbySnapshot{}, false
	}
	return lobby.snapshot(), true
}

// ListOpen 列出开放中的大厅，currency 为空时不过滤
func (r *LobbyRegistry) ListOpen(currency string) []LobbySnapshot {
	r.mu.RLock()
	lobbies := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		lobbies = append(lobbies, l)
	}
	r.mu.RUnlock()

	result := make([]LobbySnapshot, 0, len(lobbies))
	for _, l := range lobbies {
		snap := l.snapshot()
		if snap.State != LobbyOpen {
			continue
		}
		if currency != "" && !strings.EqualFold(snap.Stake.Currency, currency) {
			continue
		}
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// OpenCount 开放中的大厅数量
func (r *LobbyRegistry) OpenCount() int {
	return int(r.open.Load())
}

func (r *LobbyRegistry) get(lobbyID string) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[lobbyID]
	return l, ok
}

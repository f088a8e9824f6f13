package duel

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// TimerKind 截止事件类型
type TimerKind uint8

const (
	TimerLobbyExpiry    TimerKind = iota + 1 // 大厅等待超时
	TimerMoveWarning                         // 出招截止提醒
	TimerMoveDeadline                        // 出招截止
	TimerRevealDeadline                      // 揭示截止
	TimerRematchExpiry                       // 再战邀请过期
	TimerLobbyRetention                      // 终态大厅移出内存
	TimerMatchRetention                      // 已结算对局移出内存
	TimerOfferRetention                      // 终态邀请移出内存
)

var timerKindNames = map[TimerKind]string{
	TimerLobbyExpiry:    "lobby_expiry",
	TimerMoveWarning:    "move_warning",
	TimerMoveDeadline:   "move_deadline",
	TimerRevealDeadline: "reveal_deadline",
	TimerRematchExpiry:  "rematch_expiry",
	TimerLobbyRetention: "lobby_retention",
	TimerMatchRetention: "match_retention",
	TimerOfferRetention: "offer_retention",
}

func (k TimerKind) String() string {
	if name, ok := timerKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// TimerToken 定时器令牌。每个实体同一类型的截止事件只有一个
type TimerToken struct {
	Kind     TimerKind
	EntityID string
}

// DeadlineHandler 截止事件处理函数
type DeadlineHandler func(token TimerToken)

type timerEntry struct {
	timer    *clock.Timer
	seq      uint64
	deadline time.Time
}

// TimerService 截止事件调度。每个令牌最多触发一次，
// 取消后或被重新调度后，旧的触发不会到达处理函数
type TimerService struct {
	mu      sync.Mutex
	clock   clock.Clock
	timers  map[TimerToken]*timerEntry
	seq     uint64
	handler DeadlineHandler
	stopped bool
	logger  *zap.Logger
}

// NewTimerService 创建定时器服务
func NewTimerService(clk clock.Clock, handler DeadlineHandler, logger *zap.Logger) *TimerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerService{
		clock:   clk,
		timers:  make(map[TimerToken]*timerEntry),
		handler: handler,
		logger:  logger,
	}
}

// Schedule 在 deadline 时刻触发 token，已存在的同名令牌会被替换
func (s *TimerService) Schedule(token TimerToken, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if old, ok := s.timers[token]; ok {
		old.timer.Stop()
	}

	s.seq++
	seq := s.seq
	entry := &timerEntry{seq: seq, deadline: deadline}
	entry.timer = s.clock.AfterFunc(deadline.Sub(s.clock.Now()), func() {
		s.fire(token, seq)
	})
	s.timers[token] = entry
}

// Cancel 取消令牌，返回令牌是否仍在等待
func (s *TimerService) Cancel(token TimerToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[token]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, token)
	return true
}

// Deadline 查询令牌的截止时间
func (s *TimerService) Deadline(token TimerToken) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[token]
	if !ok {
		return time.Time{}, false
	}
	return entry.deadline, true
}

// Pending 等待中的令牌数量
func (s *TimerService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop 停止全部定时器，之后的 Schedule 不再生效
func (s *TimerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, token)
	}
	s.stopped = true
}

func (s *TimerService) fire(token TimerToken, seq uint64) {
	s.mu.Lock()
	entry, ok := s.timers[token]
	if !ok || entry.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.timers, token)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("截止事件处理异常",
				zap.String("kind", token.Kind.String()),
				zap.String("entity_id", token.EntityID),
				zap.Any("panic", r))
		}
	}()
	s.handler(token)
}

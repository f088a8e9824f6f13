package duel

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// OfferState 再战邀请状态
type OfferState uint8

const (
	OfferPending  OfferState = iota + 1 // 等待回应
	OfferAccepted                       // 已接受
	OfferDeclined                       // 已拒绝
	OfferExpired                        // 已过期
)

var offerStateNames = map[OfferState]string{
	OfferPending:  "pending",
	OfferAccepted: "accepted",
	OfferDeclined: "declined",
	OfferExpired:  "expired",
}

func (s OfferState) String() string {
	if name, ok := offerStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 实现 encoding.TextMarshaler
func (s OfferState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseOfferState 解析邀请状态
func ParseOfferState(s string) (OfferState, bool) {
	for state, name := range offerStateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}

// OfferSnapshot 再战邀请只读快照
type OfferSnapshot struct {
	ID            string     `json:"id"`
	SourceMatchID string     `json:"source_match_id"`
	OfferedBy     string     `json:"offered_by"`
	Recipient     string     `json:"recipient"`
	Players       [2]string  `json:"players"`
	Factions      [2]Faction `json:"factions"`
	Stake         Stake      `json:"stake"`
	Round         int        `json:"round"`
	State         OfferState `json:"state"`
	NewMatchID    string     `json:"new_match_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RespondedAt   time.Time  `json:"responded_at"`
}

// RematchOffer 再战邀请，只能回应一次
type RematchOffer struct {
	mu   sync.Mutex
	data OfferSnapshot
	out  outbox
}

func (o *RematchOffer) snapshot() OfferSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.data
}

// RematchNegotiator 再战协商
type RematchNegotiator struct {
	mu      sync.RWMutex
	offers  map[string]*RematchOffer
	pending map[string]string // 源对局ID -> 等待中的邀请ID
	spawned map[string]string // 源对局ID -> 已接受的邀请ID

	rules  Rules
	clock  clock.Clock
	timers *TimerService
}

// NewRematchNegotiator 创建再战协商器
func NewRematchNegotiator(rules Rules, clk clock.Clock, timers *TimerService) *RematchNegotiator {
	return &RematchNegotiator{
		offers:  make(map[string]*RematchOffer),
		pending: make(map[string]string),
		spawned: make(map[string]string),
		rules:   rules,
		clock:   clk,
		timers:  timers,
	}
}

// Offer 对已结算的对局发起再战邀请
func (n *RematchNegotiator) Offer(source MatchSnapshot, offeredBy string) (*RematchOffer, error) {
	idx, ok := source.Participant(offeredBy)
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotAParticipant, source.ID)
	}
	if source.State != MatchResolved {
		return nil, apperrors.New(apperrors.ErrMatchNotResolved, source.ID)
	}

	now := n.clock.Now()
	offer := &RematchOffer{data: OfferSnapshot{
		ID:            uuid.NewString(),
		SourceMatchID: source.ID,
		OfferedBy:     offeredBy,
		Recipient:     source.Players[1-idx],
		Players:       source.Players,
		Factions:      [2]Faction{source.Slots[0].Faction, source.Slots[1].Faction},
		Stake:         source.Stake,
		Round:         source.Round + 1,
		State:         OfferPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(n.rules.RematchWindow),
	}}

	n.mu.Lock()
	if accepted, ok := n.spawned[source.ID]; ok {
		n.mu.Unlock()
		return nil, apperrors.Newf(apperrors.ErrOfferAlreadyResolved, "对局 %s 已通过邀请 %s 开启再战", source.ID, accepted)
	}
	if existing, ok := n.pending[source.ID]; ok {
		n.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrRematchAlreadyPending, existing)
	}
	n.offers[offer.data.ID] = offer
	n.pending[source.ID] = offer.data.ID
	n.mu.Unlock()

	offer.mu.Lock()
	defer offer.mu.Unlock()

	n.timers.Schedule(TimerToken{Kind: TimerRematchExpiry, EntityID: offer.data.ID}, offer.data.ExpiresAt)
	snap := offer.data
	offer.out.push(effect{offer: &snap})
	offer.out.push(effect{event: &Event{
		Type:       EventRematchOffered,
		Recipients: []string{offer.data.Players[0], offer.data.Players[1]},
		Data: RematchOfferedData{
			OfferID:       offer.data.ID,
			SourceMatchID: source.ID,
			OfferedBy:     offeredBy,
			ExpiresAt:     offer.data.ExpiresAt,
		},
		Timestamp: now,
	}})
	return offer, nil
}

// Respond 回应邀请。接受时分配新对局ID，由调用方创建对局
func (n *RematchNegotiator) Respond(offerID, responder string, accept bool) (*RematchOffer, error) {
	offer, ok := n.get(offerID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrOfferNotFound, offerID)
	}

	offer.mu.Lock()
	defer offer.mu.Unlock()

	if offer.data.State != OfferPending {
		return nil, apperrors.New(apperrors.ErrOfferAlreadyResolved, offerID)
	}
	if offer.data.Recipient != responder {
		return nil, apperrors.New(apperrors.ErrNotOfferRecipient, offerID)
	}

	n.timers.Cancel(TimerToken{Kind: TimerRematchExpiry, EntityID: offerID})
	if accept {
		offer.data.NewMatchID = uuid.NewString()
		n.settle(offer, OfferAccepted)
	} else {
		n.settle(offer, OfferDeclined)
	}
	return offer, nil
}

// Expire 邀请窗口到期，已回应的邀请返回 false
func (n *RematchNegotiator) Expire(offerID string) (*RematchOffer, bool) {
	offer, ok := n.get(offerID)
	if !ok {
		return nil, false
	}

	offer.mu.Lock()
	defer offer.mu.Unlock()

	if offer.data.State != OfferPending {
		return offer, false
	}
	n.settle(offer, OfferExpired)
	return offer, true
}

// settle 进入终态，调用方持有邀请锁
func (n *RematchNegotiator) settle(offer *RematchOffer, state OfferState) {
	now := n.clock.Now()
	offer.data.State = state
	offer.data.RespondedAt = now

	n.mu.Lock()
	if n.pending[offer.data.SourceMatchID] == offer.data.ID {
		delete(n.pending, offer.data.SourceMatchID)
	}
	if state == OfferAccepted {
		n.spawned[offer.data.SourceMatchID] = offer.data.ID
	}
	n.mu.Unlock()

	snap := offer.data
	offer.out.push(effect{offer: &snap})
	offer.out.push(effect{event: &Event{
		Type:       EventRematchSettled,
		Recipients: []string{offer.data.Players[0], offer.data.Players[1]},
		Data: RematchSettledData{
			OfferID:    offer.data.ID,
			Accepted:   state == OfferAccepted,
			State:      state,
			NewMatchID: offer.data.NewMatchID,
		},
		Timestamp: now,
	}})
	n.timers.Schedule(TimerToken{Kind: TimerOfferRetention, EntityID: offer.data.ID}, now.Add(n.rules.Retention))
}

// Evict 移出已终结的邀请
func (n *RematchNegotiator) Evict(offerID string) bool {
	offer, ok := n.get(offerID)
	if !ok {
		return false
	}
	snap := offer.snapshot()
	if snap.State == OfferPending {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.offers, offerID)
	// 之后由归档中的已接受邀请拦截重复再战
	if n.spawned[snap.SourceMatchID] == offerID {
		delete(n.spawned, snap.SourceMatchID)
	}
	return true
}

// Get 查询内存中的邀请
func (n *RematchNegotiator) Get(offerID string) (OfferSnapshot, bool) {
	offer, ok := n.get(offerID)
	if !ok {
		return OfferSnapshot{}, false
	}
	return offer.snapshot(), true
}

// PendingFor 源对局当前等待中的邀请
func (n *RematchNegotiator) PendingFor(matchID string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.pending[matchID]
	return id, ok
}

func (n *RematchNegotiator) get(offerID string) (*RematchOffer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	o, ok := n.offers[offerID]
	return o, ok
}

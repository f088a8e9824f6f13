package duel

import (
	"time"
)

// EventType 推送给表现层的事件类型
type EventType string

const (
	EventLobbyExpired            EventType = "lobby_expired"
	EventMatchStarted            EventType = "match_started"
	EventMoveCommitted           EventType = "move_committed"
	EventMoveAutoCommitted       EventType = "move_auto_committed"
	EventMoveDeadlineApproaching EventType = "move_deadline_approaching"
	EventRevealRequested         EventType = "reveal_requested"
	EventOutcomeResolved         EventType = "outcome_resolved"
	EventRematchOffered          EventType = "rematch_offered"
	EventRematchSettled          EventType = "rematch_settled"
)

// Event 领域事件，每次发生最多发布一次
type Event struct {
	Type EventType `json:"type"`
	// Recipients 需要收到事件的玩家
	Recipients []string    `json:"-"`
	Data       interface{} `json:"data"`
	Timestamp  time.Time   `json:"timestamp"`
}

// EventSink 事件接收方
type EventSink interface {
	Publish(event Event)
}

// EventSinkFunc 函数适配器
type EventSinkFunc func(Event)

// Publish 实现 EventSink
func (f EventSinkFunc) Publish(event Event) { f(event) }

type nopSink struct{}

func (nopSink) Publish(Event) {}

// MultiSink 依次发布到多个接收方
type MultiSink []EventSink

// Publish 实现 EventSink
func (m MultiSink) Publish(event Event) {
	for _, sink := range m {
		sink.Publish(event)
	}
}

// LobbyExpiredData lobby_expired
type LobbyExpiredData struct {
	LobbyID string `json:"lobby_id"`
}

// MatchStartedData match_started
type MatchStartedData struct {
	MatchID       string     `json:"match_id"`
	LobbyID       string     `json:"lobby_id,omitempty"`
	SourceMatchID string     `json:"source_match_id,omitempty"`
	Round         int        `json:"round"`
	Players       [2]string  `json:"players"`
	Factions      [2]Faction `json:"factions"`
	Stake         Stake      `json:"stake"`
	MoveDeadline  time.Time  `json:"move_deadline"`
}

// MoveCommittedData move_committed / move_auto_committed
type MoveCommittedData struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
	Auto     bool   `json:"auto"`
}

// MoveDeadlineApproachingData move_deadline_approaching
type MoveDeadlineApproachingData struct {
	MatchID     string `json:"match_id"`
	SecondsLeft int    `json:"seconds_left"`
}

// RevealRequestedData reveal_requested
type RevealRequestedData struct {
	MatchID        string    `json:"match_id"`
	RevealDeadline time.Time `json:"reveal_deadline"`
}

// OutcomeResolvedData outcome_resolved
type OutcomeResolvedData struct {
	MatchID string    `json:"match_id"`
	Outcome Outcome   `json:"outcome"`
	Players [2]string `json:"players"`
	Stake   Stake     `json:"stake"`
}

// RematchOfferedData rematch_offered
type RematchOfferedData struct {
	OfferID       string    `json:"offer_id"`
	SourceMatchID string    `json:"source_match_id"`
	OfferedBy     string    `json:"offered_by"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RematchSettledData rematch_settled
type RematchSettledData struct {
	OfferID    string     `json:"offer_id"`
	Accepted   bool       `json:"accepted"`
	State      OfferState `json:"state"`
	NewMatchID string     `json:"new_match_id,omitempty"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LobbyRecord 大厅归档表
type LobbyRecord struct {
	BaseModel
	LobbyID   string          `gorm:"uniqueIndex;size:64;not null" json:"lobby_id"`
	CreatorID string          `gorm:"index;size:128;not null" json:"creator_id"`
	JoinerID  string          `gorm:"size:128" json:"joiner_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	Currency  string          `gorm:"size:16;not null;index" json:"currency"`
	Faction   string          `gorm:"size:16;not null" json:"faction"`
	MaxWait   int64           `gorm:"not null" json:"max_wait"`            // 秒
	State     string          `gorm:"size:16;not null;index" json:"state"` // open, matched, expired, cancelled
	MatchID   string          `gorm:"size:64" json:"match_id"`
	OpenedAt  time.Time       `json:"opened_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
}

// TableName 指定表名
func (LobbyRecord) TableName() string {
	return "duel_lobbies"
}

// MatchRecord 对局归档表
type MatchRecord struct {
	BaseModel
	MatchID        string          `gorm:"uniqueIndex;size:64;not null" json:"match_id"`
	LobbyID        string          `gorm:"size:64;index" json:"lobby_id"`
	SourceMatchID  string          `gorm:"size:64;index" json:"source_match_id"`
	Round          int             `gorm:"default:1" json:"round"`
	PlayerA        string          `gorm:"size:128;not null;index" json:"player_a"`
	PlayerB        string          `gorm:"size:128;not null;index" json:"player_b"`
	Amount         decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	Currency       string          `gorm:"size:16;not null" json:"currency"`
	State          string          `gorm:"size:20;not null;index" json:"state"` // awaiting_moves, revealing, resolved
	Winner         string          `gorm:"size:8" json:"winner"`                // a, b, tie
	WinnerID       string          `gorm:"size:128" json:"winner_id"`
	SlotData       string          `gorm:"type:text" json:"slot_data"` // JSON格式的出招槽位
	StartedAt      time.Time       `json:"started_at"`
	MoveDeadline   time.Time       `json:"move_deadline"`
	RevealDeadline *time.Time      `json:"reveal_deadline,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// TableName 指定表名
func (MatchRecord) TableName() string {
	return "duel_matches"
}

// RematchRecord 再战邀请归档表
type RematchRecord struct {
	BaseModel
	OfferID       string          `gorm:"uniqueIndex;size:64;not null" json:"offer_id"`
	SourceMatchID string          `gorm:"size:64;not null;index" json:"source_match_id"`
	OfferedBy     string          `gorm:"size:128;not null" json:"offered_by"`
	Recipient     string          `gorm:"size:128;not null" json:"recipient"`
	PlayerA       string          `gorm:"size:128;not null" json:"player_a"`
	PlayerB       string          `gorm:"size:128;not null" json:"player_b"`
	FactionA      string          `gorm:"size:16" json:"faction_a"`
	FactionB      string          `gorm:"size:16" json:"faction_b"`
	Amount        decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	Currency      string          `gorm:"size:16;not null" json:"currency"`
	Round         int             `json:"round"`
	State         string          `gorm:"size:16;not null;index" json:"state"` // pending, accepted, declined, expired
	NewMatchID    string          `gorm:"size:64" json:"new_match_id"`
	OfferedAt     time.Time       `json:"offered_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	RespondedAt   *time.Time      `json:"responded_at,omitempty"`
}

// TableName 指定表名
func (RematchRecord) TableName() string {
	return "duel_rematches"
}

// 结算状态
const (
	SettlementPending   = "pending"
	SettlementCompleted = "completed"
	SettlementFailed    = "failed"
)

// SettlementRecord 结算发件箱，每个对局一条，由外部账本服务消费
type SettlementRecord struct {
	BaseModel
	MatchID     string          `gorm:"uniqueIndex;size:64;not null" json:"match_id"`
	Round       int             `json:"round"`
	PlayerA     string          `gorm:"size:128;not null" json:"player_a"`
	PlayerB     string          `gorm:"size:128;not null" json:"player_b"`
	Currency    string          `gorm:"size:16;not null" json:"currency"`
	Stake       decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"stake"`
	Winner      string          `gorm:"size:8;not null" json:"winner"`
	WinnerID    string          `gorm:"size:128" json:"winner_id"`
	PayoutA     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"payout_a"`
	PayoutB     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"payout_b"`
	Fee         decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"fee"`
	Status      string          `gorm:"size:16;default:'pending';index" json:"status"`
	Attempts    int             `gorm:"default:0" json:"attempts"`
	LastError   string          `gorm:"size:500" json:"last_error"`
	ResolvedAt  time.Time       `json:"resolved_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// TableName 指定表名
func (SettlementRecord) TableName() string {
	return "duel_settlements"
}

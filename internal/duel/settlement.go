package duel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRequest 结算请求，每个已结算对局恰好一份
type SettlementRequest struct {
	MatchID    string          `json:"match_id"`
	Round      int             `json:"round"`
	PlayerA    string          `json:"player_a"`
	PlayerB    string          `json:"player_b"`
	Stake      Stake           `json:"stake"`
	Winner     Winner          `json:"winner"`
	WinnerID   string          `json:"winner_id,omitempty"`
	PayoutA    decimal.Decimal `json:"payout_a"`
	PayoutB    decimal.Decimal `json:"payout_b"`
	Fee        decimal.Decimal `json:"fee"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// NetTransfer 败者转给胜者的净额，平局为零
func (r SettlementRequest) NetTransfer() decimal.Decimal {
	if r.Winner == WinnerTie {
		return decimal.Zero
	}
	return r.Stake.Amount
}

// Settler 外部结算协作方，负责余额划转
type Settler interface {
	Settle(ctx context.Context, req SettlementRequest) error
}

// SettlerFunc 函数适配器
type SettlerFunc func(ctx context.Context, req SettlementRequest) error

// Settle 实现 Settler
func (f SettlerFunc) Settle(ctx context.Context, req SettlementRequest) error {
	return f(ctx, req)
}

func newSettlementRequest(rules Rules, m MatchSnapshot) SettlementRequest {
	payoutA, payoutB, fee := rules.Payouts(m.Stake, m.Outcome.Winner)
	return SettlementRequest{
		MatchID:    m.ID,
		Round:      m.Round,
		PlayerA:    m.Players[0],
		PlayerB:    m.Players[1],
		Stake:      m.Stake,
		Winner:     m.Outcome.Winner,
		WinnerID:   m.Outcome.WinnerID,
		PayoutA:    payoutA,
		PayoutB:    payoutB,
		Fee:        fee,
		ResolvedAt: m.Outcome.ResolvedAt,
	}
}

package duel

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/duel-game/internal/config"
	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// Stake 押注：金额 + 币种
type Stake struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewStake 从字符串金额创建押注
func NewStake(amount, currency string) (Stake, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Stake{}, apperrors.Newf(apperrors.ErrInvalidStake, "金额格式错误: %q", amount)
	}
	return Stake{Amount: d, Currency: strings.ToUpper(strings.TrimSpace(currency))}, nil
}

func (s Stake) String() string {
	return s.Amount.String() + " " + s.Currency
}

// Rules 对战规则
type Rules struct {
	MoveTimeout   time.Duration
	RevealTimeout time.Duration
	RematchWindow time.Duration
	WarningLead   time.Duration
	// Retention 终态实体在内存中保留的时长，之后只能从归档中查询
	Retention    time.Duration
	AllowedWaits []time.Duration
	MinStake     decimal.Decimal
	MaxStake     decimal.Decimal
	Currencies   []string
	FeeRate      decimal.Decimal
	MaxLobbies   int
}

// DefaultRules 默认规则
func DefaultRules() Rules {
	return Rules{
		MoveTimeout:   30 * time.Second,
		RevealTimeout: 30 * time.Second,
		RematchWindow: 60 * time.Second,
		WarningLead:   10 * time.Second,
		Retention:     10 * time.Minute,
		AllowedWaits:  []time.Duration{5 * time.Minute, 10 * time.Minute, 30 * time.Minute, 60 * time.Minute},
		MinStake:      decimal.RequireFromString("0.1"),
		MaxStake:      decimal.RequireFromString("1000000"),
		Currencies:    []string{"LORDS", "ETH", "STRK", "USDC", "USDT", "BTC"},
		FeeRate:       decimal.RequireFromString("0.005"),
		MaxLobbies:    10000,
	}
}

// RulesFromConfig 从配置构建规则，未配置的项使用默认值
func RulesFromConfig(c config.DuelConfig) (Rules, error) {
	r := DefaultRules()
	if c.MoveTimeout > 0 {
		r.MoveTimeout = c.MoveTimeout
	}
	if c.RevealTimeout > 0 {
		r.RevealTimeout = c.RevealTimeout
	}
	if c.RematchWindow > 0 {
		r.RematchWindow = c.RematchWindow
	}
	if c.WarningLead > 0 {
		r.WarningLead = c.WarningLead
	}
	if c.Retention > 0 {
		r.Retention = c.Retention
	}
	if len(c.AllowedWaits) > 0 {
		r.AllowedWaits = append([]time.Duration(nil), c.AllowedWaits...)
	}
	if len(c.Currencies) > 0 {
		r.Currencies = make([]string, 0, len(c.Currencies))
		for _, cur := range c.Currencies {
			r.Currencies = append(r.Currencies, strings.ToUpper(cur))
		}
	}
	if c.MaxLobbies > 0 {
		r.MaxLobbies = c.MaxLobbies
	}

	for _, field := range []struct {
		name  string
		value string
		dest  *decimal.Decimal
	}{
		{"min_stake", c.MinStake, &r.MinStake},
		{"max_stake", c.MaxStake, &r.MaxStake},
		{"fee_rate", c.FeeRate, &r.FeeRate},
	} {
		if field.value == "" {
			continue
		}
		d, err := decimal.NewFromString(field.value)
		if err != nil {
			return Rules{}, apperrors.Wrap(err, apperrors.ErrConfigParse, "duel."+field.name)
		}
		*field.dest = d
	}

	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Validate 校验规则自身
func (r Rules) Validate() error {
	if r.MoveTimeout <= 0 || r.RevealTimeout <= 0 || r.RematchWindow <= 0 || r.Retention <= 0 {
		return apperrors.New(apperrors.ErrConfigValidate, "超时时长必须为正数")
	}
	if len(r.AllowedWaits) == 0 || len(r.Currencies) == 0 {
		return apperrors.New(apperrors.ErrConfigValidate, "允许的等待时长和币种不能为空")
	}
	if !r.MinStake.IsPositive() || r.MaxStake.LessThan(r.MinStake) {
		return apperrors.New(apperrors.ErrConfigValidate, "押注上下限无效")
	}
	if r.FeeRate.IsNegative() || r.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return apperrors.New(apperrors.ErrConfigValidate, "fee_rate 必须在 [0, 1) 内")
	}
	return nil
}

// ValidateStake 校验押注
func (r Rules) ValidateStake(s Stake) error {
	if !r.currencyAllowed(s.Currency) {
		return apperrors.Newf(apperrors.ErrInvalidStake, "不支持的币种: %q", s.Currency)
	}
	if s.Amount.LessThan(r.MinStake) {
		return apperrors.Newf(apperrors.ErrInvalidStake, "金额 %s 低于最小押注 %s", s.Amount, r.MinStake)
	}
	if s.Amount.GreaterThan(r.MaxStake) {
		return apperrors.Newf(apperrors.ErrInvalidStake, "金额 %s 超过最大押注 %s", s.Amount, r.MaxStake)
	}
	return nil
}

// ValidateWait 校验大厅等待时长
func (r Rules) ValidateWait(d time.Duration) error {
	for _, w := range r.AllowedWaits {
		if w == d {
			return nil
		}
	}
	return apperrors.Newf(apperrors.ErrInvalidWait, "等待时长 %s 不在允许范围 %v 内", d, r.AllowedWaits)
}

func (r Rules) currencyAllowed(c string) bool {
	if c == "" {
		return false
	}
	for _, allowed := range r.Currencies {
		if strings.EqualFold(allowed, c) {
			return true
		}
	}
	return false
}

// Payouts 计算结算金额。胜者获得双方押注扣除平台抽成，平局各自退回押注
func (r Rules) Payouts(stake Stake, winner Winner) (payoutA, payoutB, fee decimal.Decimal) {
	switch winner {
	case WinnerA, WinnerB:
		pot := stake.Amount.Mul(decimal.NewFromInt(2))
		fee = pot.Mul(r.FeeRate)
		prize := pot.Sub(fee)
		if winner == WinnerA {
			return prize, decimal.Zero, fee
		}
		return decimal.Zero, prize, fee
	default:
		return stake.Amount, stake.Amount, decimal.Zero
	}
}

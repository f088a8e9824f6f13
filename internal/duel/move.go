package duel

import (
	"fmt"
	"strings"

	apperrors "github.com/wfunc/duel-game/internal/errors"
)

// Move 出招
type Move uint8

const (
	MoveNone  Move = iota // 未出招或弃权
	MoveRock              // 石头
	MovePaper             // 布
	MoveFire              // 火
)

// AllMoves 全部合法出招，自动出招从中均匀抽取
var AllMoves = [...]Move{MoveRock, MovePaper, MoveFire}

var moveNames = map[Move]string{
	MoveRock:  "rock",
	MovePaper: "paper",
	MoveFire:  "fire",
}

// ParseMove 解析出招
func ParseMove(s string) (Move, error) {
	for m, name := range moveNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return MoveNone, apperrors.Newf(apperrors.ErrInvalidMove, "未知出招: %q", s)
}

// Valid 是否为合法出招
func (m Move) Valid() bool {
	_, ok := moveNames[m]
	return ok
}

func (m Move) String() string {
	if name, ok := moveNames[m]; ok {
		return name
	}
	return "none"
}

// MarshalText 实现 encoding.TextMarshaler
func (m Move) MarshalText() ([]byte, error) {
	if m == MoveNone {
		return []byte{}, nil
	}
	return []byte(m.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (m *Move) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = MoveNone
		return nil
	}
	parsed, err := ParseMove(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Faction 阵营
type Faction uint8

const (
	FactionWizard Faction = iota + 1 // 巫师
	FactionPuppet                    // 木偶
)

// ParseFaction 解析阵营
func ParseFaction(s string) (Faction, error) {
	switch strings.ToLower(s) {
	case "wizard":
		return FactionWizard, nil
	case "puppet":
		return FactionPuppet, nil
	}
	return 0, apperrors.Newf(apperrors.ErrInvalidFaction, "未知阵营: %q", s)
}

// Valid 是否为合法阵营
func (f Faction) Valid() bool {
	return f == FactionWizard || f == FactionPuppet
}

// Opposite 对手阵营，加入者自动分到创建者的对立阵营
func (f Faction) Opposite() Faction {
	if f == FactionWizard {
		return FactionPuppet
	}
	return FactionWizard
}

func (f Faction) String() string {
	switch f {
	case FactionWizard:
		return "wizard"
	case FactionPuppet:
		return "puppet"
	}
	return fmt.Sprintf("faction(%d)", uint8(f))
}

// MarshalText 实现 encoding.TextMarshaler
func (f Faction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (f *Faction) UnmarshalText(b []byte) error {
	parsed, err := ParseFaction(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Winner 对局结果
type Winner uint8

const (
	WinnerTie Winner = iota // 平局
	WinnerA                 // 玩家A（大厅创建者）胜
	WinnerB                 // 玩家B（加入者）胜
)

func (w Winner) String() string {
	switch w {
	case WinnerA:
		return "a"
	case WinnerB:
		return "b"
	}
	return "tie"
}

// MarshalText 实现 encoding.TextMarshaler
func (w Winner) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// ParseWinner 解析对局结果
func ParseWinner(s string) (Winner, error) {
	switch s {
	case "a":
		return WinnerA, nil
	case "b":
		return WinnerB, nil
	case "tie":
		return WinnerTie, nil
	}
	return WinnerTie, fmt.Errorf("未知对局结果: %q", s)
}

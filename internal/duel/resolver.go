package duel

// beats 克制关系：石头克火，火克布，布克石头
var beats = map[Move]Move{
	MoveRock:  MoveFire,
	MoveFire:  MovePaper,
	MovePaper: MoveRock,
}

// Resolve 根据双方出招判定胜负，只与两招有关
func Resolve(a, b Move) Winner {
	switch {
	case a == b:
		return WinnerTie
	case beats[a] == b:
		return WinnerA
	default:
		return WinnerB
	}
}

// ResolveSlots 在 Resolve 基础上处理弃权（MoveNone）：
// 弃权输给任何合法出招，双方都弃权为平局
func ResolveSlots(a, b Move) Winner {
	av, bv := a.Valid(), b.Valid()
	switch {
	case av && bv:
		return Resolve(a, b)
	case av:
		return WinnerA
	case bv:
		return WinnerB
	default:
		return WinnerTie
	}
}

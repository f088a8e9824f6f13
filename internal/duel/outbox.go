package duel

import "sync"

// effect 状态转换产生的副作用，在实体锁释放后执行
type effect struct {
	event  *Event
	lobby  *LobbySnapshot
	match  *MatchSnapshot
	offer  *OfferSnapshot
	settle *SettlementRequest
}

// outbox 实体的副作用队列。追加在实体锁内完成，
// drain 串行执行，保证同一实体的副作用按转换顺序送出
type outbox struct {
	flushMu sync.Mutex
	mu      sync.Mutex
	items   []effect
}

func (o *outbox) push(e effect) {
	o.mu.Lock()
	o.items = append(o.items, e)
	o.mu.Unlock()
}

func (o *outbox) drain(apply func(effect)) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	for {
		o.mu.Lock()
		items := o.items
		o.items = nil
		o.mu.Unlock()

		if len(items) == 0 {
			return
		}
		for _, item := range items {
			apply(item)
		}
	}
}

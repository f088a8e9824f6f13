package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	lobbyOnce sync.Once
	lobby     LobbyRepository

	matchOnce sync.Once
	match     MatchRepository

	rematchOnce sync.Once
	rematch     RematchRepository

	settlementOnce sync.Once
	settlement     SettlementRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Lobby 获取大厅仓储
func (m *Manager) Lobby() LobbyRepository {
	m.lobbyOnce.Do(func() {
		m.lobby = NewLobbyRepository(m.db)
	})
	return m.lobby
}

// Match 获取对局仓储
func (m *Manager) Match() MatchRepository {
	m.matchOnce.Do(func() {
		m.match = NewMatchRepository(m.db)
	})
	return m.match
}

// Rematch 获取再战邀请仓储
func (m *Manager) Rematch() RematchRepository {
	m.rematchOnce.Do(func() {
		m.rematch = NewRematchRepository(m.db)
	})
	return m.rematch
}

// Settlement 获取结算仓储
func (m *Manager) Settlement() SettlementRepository {
	m.settlementOnce.Do(func() {
		m.settlement = NewSettlementRepository(m.db)
	})
	return m.settlement
}

// WithTx 使用事务执行，回调中的仓储共享同一事务
func (m *Manager) WithTx(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}

// Archive 返回基于数据库的对局归档
func (m *Manager) Archive() *DuelArchive {
	return &DuelArchive{
		lobbies: m.Lobby(),
		matches: m.Match(),
		offers:  m.Rematch(),
	}
}

// Outbox 返回结算发件箱
func (m *Manager) Outbox() *SettlementOutbox {
	return &SettlementOutbox{repo: m.Settlement()}
}

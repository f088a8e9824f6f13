package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/duel-game/internal/duel"
	"github.com/wfunc/duel-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建测试数据库（内存SQLite，每个测试独立）
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.LobbyRecord{},
		&models.MatchRecord{},
		&models.RematchRecord{},
		&models.SettlementRecord{},
	)
	require.NoError(t, err)

	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	// 关闭数据库连接
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// CreateTestLobby 创建测试大厅快照
func CreateTestLobby(id, creator string) duel.LobbySnapshot {
	return duel.LobbySnapshot{
		ID:        id,
		CreatorID: creator,
		Stake:     duel.Stake{Amount: decimal.RequireFromString("2.5"), Currency: "USDT"},
		Faction:   duel.FactionWizard,
		MaxWait:   5 * time.Minute,
		State:     duel.LobbyOpen,
		CreatedAt: testEpoch,
		ExpiresAt: testEpoch.Add(5 * time.Minute),
	}
}

// CreateTestMatch 创建测试对局快照（已结算，A 出石头 B 出火）
func CreateTestMatch(id, playerA, playerB string) duel.MatchSnapshot {
	resolvedAt := testEpoch.Add(40 * time.Second)
	return duel.MatchSnapshot{
		ID:      id,
		LobbyID: "lobby-" + id,
		Round:   1,
		Players: [2]string{playerA, playerB},
		Stake:   duel.Stake{Amount: decimal.RequireFromString("2.5"), Currency: "USDT"},
		Slots: [2]duel.MoveSlot{
			{
				PlayerID:    playerA,
				Faction:     duel.FactionWizard,
				Commitment:  "aa" + strings.Repeat("0", 62),
				Nonce:       "01",
				Move:        duel.MoveRock,
				CommittedAt: testEpoch.Add(10 * time.Second),
				RevealedAt:  resolvedAt,
			},
			{
				PlayerID:    playerB,
				Faction:     duel.FactionPuppet,
				Commitment:  "bb" + strings.Repeat("0", 62),
				Nonce:       "02",
				Move:        duel.MoveFire,
				CommittedAt: testEpoch.Add(20 * time.Second),
				RevealedAt:  resolvedAt,
			},
		},
		State:          duel.MatchResolved,
		MoveDeadline:   testEpoch.Add(30 * time.Second),
		RevealDeadline: testEpoch.Add(60 * time.Second),
		Outcome: &duel.Outcome{
			Winner:     duel.WinnerA,
			WinnerID:   playerA,
			MoveA:      duel.MoveRock,
			MoveB:      duel.MoveFire,
			ResolvedAt: resolvedAt,
		},
		CreatedAt: testEpoch,
	}
}

// AssertSameInstant 比较时间（忽略时区表示）
func AssertSameInstant(t *testing.T, expected, actual time.Time) {
	assert.True(t, expected.Equal(actual), "期望 %v，实际 %v", expected, actual)
}

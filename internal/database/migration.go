package database

import (
	"fmt"
	"strings"

	"github.com/wfunc/duel-game/internal/logger"
	"github.com/wfunc/duel-game/internal/models"
	"go.uber.org/zap"
)

// migrationModels 需要迁移的模型
var migrationModels = []interface{}{
	// 对战归档
	&models.LobbyRecord{},
	&models.MatchRecord{},
	&models.RematchRecord{},

	// 结算发件箱
	&models.SettlementRecord{},
}

// compositeIndexes 模型标签无法表达的组合索引
var compositeIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_duel_lobbies_state_currency ON duel_lobbies(state, currency)",
	"CREATE INDEX IF NOT EXISTS idx_duel_matches_player_a_started ON duel_matches(player_a, started_at)",
	"CREATE INDEX IF NOT EXISTS idx_duel_matches_player_b_started ON duel_matches(player_b, started_at)",
	"CREATE INDEX IF NOT EXISTS idx_duel_settlements_status_resolved ON duel_settlements(status, resolved_at)",
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 清理过期锁文件
	CleanupStaleLocks()

	// 获取迁移锁，避免多个进程同时迁移
	if dbPath := getDBPath(); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes()

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引，失败只记录警告
func createIndexes() {
	for _, idx := range compositeIndexes {
		if err := DB.Exec(idx).Error; err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
			}
		}
	}
	logger.Info("数据库索引创建完成")
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	for i := len(migrationModels) - 1; i >= 0; i-- {
		if err := DB.Migrator().DropTable(migrationModels[i]); err != nil {
			logger.Error("删除表失败", zap.String("model", fmt.Sprintf("%T", migrationModels[i])), zap.Error(err))
			return err
		}
	}

	logger.Info("所有表已删除")
	return nil
}

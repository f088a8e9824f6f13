package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/duel-game/internal/config"
	"github.com/wfunc/duel-game/internal/models"
)

func testConfig(t *testing.T) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "data", "duel-test.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
}

func TestInitAndMigrate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Init(cfg))
	defer Close()

	assert.True(t, IsConnected())
	assert.FileExists(t, cfg.DSN)

	require.NoError(t, AutoMigrate())
	for _, model := range []interface{}{
		&models.LobbyRecord{},
		&models.MatchRecord{},
		&models.RematchRecord{},
		&models.SettlementRecord{},
	} {
		assert.True(t, GetDB().Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, GetDB().Migrator().HasIndex(&models.MatchRecord{}, "idx_duel_matches_player_a_started"))

	// 迁移完成后锁文件已释放
	_, err := os.Stat(cfg.DSN + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	// 重复迁移是幂等的
	require.NoError(t, AutoMigrate())

	require.NoError(t, DropAllTables())
	assert.False(t, GetDB().Migrator().HasTable(&models.MatchRecord{}))
}

func TestInit_UnsupportedDriver(t *testing.T) {
	err := Init(&config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestMigrationLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "duel.db")

	lock, err := acquireMigrationLock(dbPath)
	require.NoError(t, err)
	assert.FileExists(t, dbPath+".migration.lock")

	releaseMigrationLock(lock)
	_, err = os.Stat(dbPath + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	// 空锁不报错
	releaseMigrationLock(nil)
}

func TestEnsureSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, ensureSQLiteDir(filepath.Join(dir, "x.db")+"?_busy_timeout=5000"))
	assert.DirExists(t, dir)

	assert.NoError(t, ensureSQLiteDir(":memory:"))
	assert.NoError(t, ensureSQLiteDir("file::memory:?cache=shared"))
}

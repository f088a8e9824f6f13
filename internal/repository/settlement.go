package repository

import (
	"context"
	"time"

	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/logger"
	"github.com/wfunc/duel-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementRepository 结算发件箱仓储接口
type SettlementRepository interface {
	BaseRepository
	// CreateIfAbsent 按对局ID幂等写入，返回是否新建
	CreateIfAbsent(ctx context.Context, record *models.SettlementRecord) (bool, error)
	FindByMatchID(ctx context.Context, matchID string) (*models.SettlementRecord, error)
	ListPending(ctx context.Context, limit int) ([]*models.SettlementRecord, error)
	MarkCompleted(ctx context.Context, matchID string) error
	MarkFailed(ctx context.Context, matchID string, reason string) error
}

type settlementRepo struct {
	*BaseRepo
}

// NewSettlementRepository 创建结算仓储
func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepo{BaseRepo: NewBaseRepo(db)}
}

// CreateIfAbsent 写入结算请求，同一对局重复写入时不做修改
func (r *settlementRepo) CreateIfAbsent(ctx context.Context, record *models.SettlementRecord) (bool, error) {
	if record.Status == "" {
		record.Status = models.SettlementPending
	}
	start := time.Now()
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "match_id"}}, DoNothing: true}).
		Create(record)
	logger.LogDatabaseOperation("insert", record.TableName(), time.Since(start), result.Error)
	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, apperrors.ErrDatabaseInsert, record.MatchID)
	}
	return result.RowsAffected > 0, nil
}

// FindByMatchID 根据对局ID查找
func (r *settlementRepo) FindByMatchID(ctx context.Context, matchID string) (*models.SettlementRecord, error) {
	var record models.SettlementRecord
	if err := r.findOne(ctx, &record, "match_id", matchID, apperrors.ErrNotFound); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPending 按结算时间顺序列出待处理的请求
func (r *settlementRepo) ListPending(ctx context.Context, limit int) ([]*models.SettlementRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []*models.SettlementRecord
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.SettlementPending, models.SettlementFailed}).
		Order("resolved_at asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return records, nil
}

// MarkCompleted 外部账本确认完成
func (r *settlementRepo) MarkCompleted(ctx context.Context, matchID string) error {
	now := time.Now()
	return r.update(ctx, matchID, map[string]interface{}{
		"status":       models.SettlementCompleted,
		"processed_at": &now,
		"last_error":   "",
	})
}

// MarkFailed 记录失败原因，保留待重试
func (r *settlementRepo) MarkFailed(ctx context.Context, matchID string, reason string) error {
	return r.update(ctx, matchID, map[string]interface{}{
		"status":     models.SettlementFailed,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
	})
}

func (r *settlementRepo) update(ctx context.Context, matchID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.SettlementRecord{}).
		Where("match_id = ?", matchID).
		Updates(updates)
	if result.Error != nil {
		return apperrors.Wrap(result.Error, apperrors.ErrDatabaseUpdate, matchID)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrNotFound, matchID)
	}
	return nil
}

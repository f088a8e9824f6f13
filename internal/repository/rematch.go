package repository

import (
	"context"

	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/models"
	"gorm.io/gorm"
)

// RematchRepository 再战邀请仓储接口
type RematchRepository interface {
	BaseRepository
	Upsert(ctx context.Context, offer *models.RematchRecord) error
	FindByOfferID(ctx context.Context, offerID string) (*models.RematchRecord, error)
	FindBySourceMatch(ctx context.Context, matchID string) ([]*models.RematchRecord, error)
}

var rematchUpdateColumns = []string{
	"state", "new_match_id", "responded_at",
}

type rematchRepo struct {
	*BaseRepo
}

// NewRematchRepository 创建再战邀请仓储
func NewRematchRepository(db *gorm.DB) RematchRepository {
	return &rematchRepo{BaseRepo: NewBaseRepo(db)}
}

// Upsert 新建或更新邀请
func (r *rematchRepo) Upsert(ctx context.Context, offer *models.RematchRecord) error {
	return r.upsert(ctx, "offer_id", rematchUpdateColumns, offer)
}

// FindByOfferID 根据邀请ID查找
func (r *rematchRepo) FindByOfferID(ctx context.Context, offerID string) (*models.RematchRecord, error) {
	var offer models.RematchRecord
	if err := r.findOne(ctx, &offer, "offer_id", offerID, apperrors.ErrOfferNotFound); err != nil {
		return nil, err
	}
	return &offer, nil
}

// FindBySourceMatch 查询某场对局发出的全部邀请
func (r *rematchRepo) FindBySourceMatch(ctx context.Context, matchID string) ([]*models.RematchRecord, error) {
	var offers []*models.RematchRecord
	err := r.db.WithContext(ctx).
		Where("source_match_id = ?", matchID).
		Order("offered_at asc").
		Find(&offers).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return offers, nil
}

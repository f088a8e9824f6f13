package repository

import (
	"context"

	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/models"
	"gorm.io/gorm"
)

// LobbyRepository 大厅仓储接口
type LobbyRepository interface {
	BaseRepository
	Upsert(ctx context.Context, lobby *models.LobbyRecord) error
	FindByLobbyID(ctx context.Context, lobbyID string) (*models.LobbyRecord, error)
	FindByCreator(ctx context.Context, creatorID string, p *Pagination) ([]*models.LobbyRecord, error)
	CountByState(ctx context.Context, state string) (int64, error)
}

var lobbyUpdateColumns = []string{
	"joiner_id", "state", "match_id", "closed_at",
}

type lobbyRepo struct {
	*BaseRepo
}

// NewLobbyRepository 创建大厅仓储
func NewLobbyRepository(db *gorm.DB) LobbyRepository {
	return &lobbyRepo{BaseRepo: NewBaseRepo(db)}
}

// Upsert 新建或更新大厅状态
func (r *lobbyRepo) Upsert(ctx context.Context, lobby *models.LobbyRecord) error {
	return r.upsert(ctx, "lobby_id", lobbyUpdateColumns, lobby)
}

// FindByLobbyID 根据大厅ID查找
func (r *lobbyRepo) FindByLobbyID(ctx context.Context, lobbyID string) (*models.LobbyRecord, error) {
	var lobby models.LobbyRecord
	if err := r.findOne(ctx, &lobby, "lobby_id", lobbyID, apperrors.ErrLobbyNotFound); err != nil {
		return nil, err
	}
	return &lobby, nil
}

// FindByCreator 查询玩家创建的大厅（分页）
func (r *lobbyRepo) FindByCreator(ctx context.Context, creatorID string, p *Pagination) ([]*models.LobbyRecord, error) {
	var lobbies []*models.LobbyRecord

	// 查询总数
	if err := r.db.WithContext(ctx).
		Model(&models.LobbyRecord{}).
		Where("creator_id = ?", creatorID).
		Count(&p.Total).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("opened_at desc").
		Scopes(Paginate(p)).
		Find(&lobbies).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return lobbies, nil
}

// CountByState 按状态统计
func (r *lobbyRepo) CountByState(ctx context.Context, state string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LobbyRecord{}).
		Where("state = ?", state).
		Count(&count).Error
	return count, err
}

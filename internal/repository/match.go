package repository

import (
	"context"

	apperrors "github.com/wfunc/duel-game/internal/errors"
	"github.com/wfunc/duel-game/internal/models"
	"gorm.io/gorm"
)

// MatchRepository 对局仓储接口
type MatchRepository interface {
	BaseRepository
	Upsert(ctx context.Context, match *models.MatchRecord) error
	FindByMatchID(ctx context.Context, matchID string) (*models.MatchRecord, error)
	FindByPlayer(ctx context.Context, playerID string, p *Pagination) ([]*models.MatchRecord, error)
	GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error)
}

// PlayerStats 玩家战绩
type PlayerStats struct {
	TotalMatches int64 `json:"total_matches"`
	Wins         int64 `json:"wins"`
	Losses       int64 `json:"losses"`
	Ties         int64 `json:"ties"`
}

var matchUpdateColumns = []string{
	"state", "winner", "winner_id", "slot_data", "reveal_deadline", "resolved_at",
}

type matchRepo struct {
	*BaseRepo
}

// NewMatchRepository 创建对局仓储
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepo{BaseRepo: NewBaseRepo(db)}
}

// Upsert 新建或更新对局
func (r *matchRepo) Upsert(ctx context.Context, match *models.MatchRecord) error {
	return r.upsert(ctx, "match_id", matchUpdateColumns, match)
}

// FindByMatchID 根据对局ID查找
func (r *matchRepo) FindByMatchID(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	var match models.MatchRecord
	if err := r.findOne(ctx, &match, "match_id", matchID, apperrors.ErrMatchNotFound); err != nil {
		return nil, err
	}
	return &match, nil
}

// FindByPlayer 查询玩家参与的对局（分页，最新在前）
func (r *matchRepo) FindByPlayer(ctx context.Context, playerID string, p *Pagination) ([]*models.MatchRecord, error) {
	var matches []*models.MatchRecord

	query := r.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Where("player_a = ? OR player_b = ?", playerID, playerID)

	if err := query.Count(&p.Total).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	err := r.db.WithContext(ctx).
		Where("player_a = ? OR player_b = ?", playerID, playerID).
		Order("started_at desc").
		Scopes(Paginate(p)).
		Find(&matches).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return matches, nil
}

// GetPlayerStats 统计玩家已结算对局的胜负
func (r *matchRepo) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	stats := &PlayerStats{}

	var rows []struct {
		Winner   string
		WinnerID string
		Count    int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Select("winner, winner_id, COUNT(*) as count").
		Where("(player_a = ? OR player_b = ?) AND state = ?", playerID, playerID, "resolved").
		Group("winner, winner_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	for _, row := range rows {
		stats.TotalMatches += row.Count
		switch {
		case row.Winner == "tie":
			stats.Ties += row.Count
		case row.WinnerID == playerID:
			stats.Wins += row.Count
		default:
			stats.Losses += row.Count
		}
	}
	return stats, nil
}

package repository

import (
	"context"
	"errors"

	apperrors "github.com/wfunc/duel-game/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BaseRepository 基础仓储接口
type BaseRepository interface {
	// GetDB 获取数据库实例
	GetDB() *gorm.DB
	// Transaction 执行事务
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Pagination 分页参数
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 创建分页参数
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return &Pagination{
		Page:     page,
		PageSize: pageSize,
	}
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate 分页查询
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// BaseRepo 基础仓储实现
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo 创建基础仓储
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// GetDB 获取数据库实例
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// Transaction 执行事务
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// upsert 按业务唯一键插入或更新指定列
func (r *BaseRepo) upsert(ctx context.Context, key string, columns []string, value interface{}) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: key}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(value).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, key)
	}
	return nil
}

// findOne 按业务唯一键查询，未找到时返回 notFound 错误码
func (r *BaseRepo) findOne(ctx context.Context, dest interface{}, key, value string, notFound apperrors.ErrorCode) error {
	err := r.db.WithContext(ctx).Where(key+" = ?", value).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.New(notFound, value)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, value)
	}
	return nil
}

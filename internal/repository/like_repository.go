package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/unveil/internal/model"
)

type LikeRepository interface {
	Upsert(ctx context.Context, likerID, likeeID string, kind model.LikeKind) error
	Exists(ctx context.Context, likerID, likeeID string, kind model.LikeKind) (bool, error)
	RatedIDs(ctx context.Context, likerID string) ([]string, error)
	WithTx(tx *gorm.DB) LikeRepository
}

type likeRepository struct {
	db *gorm.DB
}

func NewLikeRepository(db *gorm.DB) LikeRepository { return &likeRepository{db: db} }

func (r *likeRepository) WithTx(tx *gorm.DB) LikeRepository { return &likeRepository{db: tx} }

func (r *likeRepository) Upsert(ctx context.Context, likerID, likeeID string, kind model.LikeKind) error {
	now := time.Now().UTC()
	l := &model.Like{ID: uuid.New().String(), LikerID: likerID, LikeeID: likeeID, Kind: kind, CreatedAt: now, UpdatedAt: now}
	// 重复评价只更新 kind
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "liker_id"}, {Name: "likee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
	}).Create(l).Error
}

func (r *likeRepository) Exists(ctx context.Context, likerID, likeeID string, kind model.LikeKind) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Like{}).
		Where("liker_id = ? AND likee_id = ? AND kind = ?", likerID, likeeID, kind).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// RatedIDs 返回 liker 已评价过的用户（含 dislike），发现页据此排除
func (r *likeRepository) RatedIDs(ctx context.Context, likerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Like{}).
		Where("liker_id = ?", likerID).
		Pluck("likee_id", &ids).Error
	return ids, err
}

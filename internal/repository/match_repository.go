package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/unveil/internal/model"
)

type MatchRepository interface {
	Create(ctx context.Context, m *model.Match) error
	GetByPair(ctx context.Context, userA, userB string) (*model.Match, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Match, error)
	WithTx(tx *gorm.DB) MatchRepository
}

type matchRepository struct{ db *gorm.DB }

func NewMatchRepository(db *gorm.DB) MatchRepository { return &matchRepository{db: db} }

func (r *matchRepository) WithTx(tx *gorm.DB) MatchRepository { return &matchRepository{db: tx} }

// Create 幂等：同一对用户重复匹配不报错
func (r *matchRepository) Create(ctx context.Context, m *model.Match) error {
	m.User1ID, m.User2ID = model.CanonicalPair(m.User1ID, m.User2ID)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error
}

func (r *matchRepository) GetByPair(ctx context.Context, userA, userB string) (*model.Match, error) {
	u1, u2 := model.CanonicalPair(userA, userB)
	var m model.Match
	err := r.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ?", u1, u2).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Match, error) {
	var res []*model.Match
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

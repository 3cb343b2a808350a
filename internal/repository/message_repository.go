package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/unveil/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// ListBefore 按 created_at 倒序返回早于 before 的最多 limit 条；before 为 nil 时取最新
	ListBefore(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*model.Message, error)
	CountByType(ctx context.Context, conversationID string, typ model.MessageType) (int64, error)
	WithTx(tx *gorm.DB) MessageRepository
}

type messageRepository struct{ db *gorm.DB }

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository { return &messageRepository{db: tx} }

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) ListBefore(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*model.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	var res []*model.Message
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *messageRepository) CountByType(ctx context.Context, conversationID string, typ model.MessageType) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND type = ?", conversationID, typ).
		Count(&cnt).Error
	return cnt, err
}

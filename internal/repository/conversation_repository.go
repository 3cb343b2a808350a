package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/pkg/apperr"
)

// ConversationRepository 会话仓储；LockForUpdate/SaveProgress 必须在同一事务内使用
type ConversationRepository interface {
	Create(ctx context.Context, c *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	GetByPair(ctx context.Context, userA, userB string) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Conversation, error)

	SetLockTimeout(ctx context.Context, d time.Duration) error
	LockForUpdate(ctx context.Context, id string) (*model.Conversation, error)
	SaveProgress(ctx context.Context, c *model.Conversation, prevCount int) error
	TouchLastMessage(ctx context.Context, id string, at time.Time) error

	WithTx(tx *gorm.DB) ConversationRepository
}

type conversationRepository struct{ db *gorm.DB }

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	return &conversationRepository{db: tx}
}

// Create 幂等：同一对用户只会有一个会话
func (r *conversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	c.User1ID, c.User2ID = model.CanonicalPair(c.User1ID, c.User2ID)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c).Error
}

// GetByID 只读：直接返回已持久化的计数与揭示等级，不做重新计算
func (r *conversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *conversationRepository) GetByPair(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	u1, u2 := model.CanonicalPair(userA, userB)
	var c model.Conversation
	if err := r.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ?", u1, u2).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Conversation, error) {
	var res []*model.Conversation
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

// SetLockTimeout 限制行锁等待时间（仅 postgres）
func (r *conversationRepository) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 || r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return r.db.WithContext(ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}

// LockForUpdate SELECT ... FOR UPDATE；sqlite 不支持行锁，写事务本身已串行
func (r *conversationRepository) LockForUpdate(ctx context.Context, id string) (*model.Conversation, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c model.Conversation
	if err := q.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SaveProgress 写回推进后的计数。WHERE 带上读取时的计数作为乐观校验，
// reveal_level 用 CASE 保证只增不减，解锁时间用 COALESCE 保证首次写入后不再变化。
func (r *conversationRepository) SaveProgress(ctx context.Context, c *model.Conversation, prevCount int) error {
	updates := map[string]any{
		"text_message_count": c.TextMessageCount,
		"reveal_level":       gorm.Expr("CASE WHEN reveal_level > ? THEN reveal_level ELSE ? END", c.RevealLevel, c.RevealLevel),
		"last_message_at":    c.LastMessageAt,
		"updated_at":         c.UpdatedAt,
	}
	for n := 1; n <= 4; n++ {
		if at := c.ChapterUnlockedAt(n); at != nil {
			col := model.ChapterColumn(n)
			updates[col] = gorm.Expr("COALESCE("+col+", ?)", *at)
		}
	}
	res := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND text_message_count = ?", c.ID, prevCount).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrProgressConflict
	}
	return nil
}

func (r *conversationRepository) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_message_at": at, "updated_at": at}).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrConversationNotFound
	}
	return err
}

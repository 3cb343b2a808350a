package model

import "time"

type LikeKind string

const (
	LikeKindLike    LikeKind = "like"
	LikeKindDislike LikeKind = "dislike"
)

// Like 评价记录（A 对 B 喜欢/不喜欢），每对 (liker, likee) 只保留一条
type Like struct {
	ID      string   `gorm:"primaryKey;type:varchar(36)"`
	LikerID string   `gorm:"type:varchar(36);index:idx_like_liker;uniqueIndex:ux_like_pair;not null"`
	LikeeID string   `gorm:"type:varchar(36);uniqueIndex:ux_like_pair;index:idx_like_likee;not null"`
	Kind    LikeKind `gorm:"type:varchar(16);not null"`
	// ux_like_pair = (liker_id, likee_id)
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Like) TableName() string { return "likes" }

package model

import "time"

// Conversation 每个 Match 一个会话；计数与揭示等级只增不减
type Conversation struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	User1ID            string     `json:"user1_id" gorm:"type:varchar(36);uniqueIndex:ux_conversation_pair;index:idx_conversation_user1;not null"`
	User2ID            string     `json:"user2_id" gorm:"type:varchar(36);uniqueIndex:ux_conversation_pair;index:idx_conversation_user2;not null"`
	TextMessageCount   int        `json:"text_message_count" gorm:"not null;default:0"`
	RevealLevel        int        `json:"reveal_level" gorm:"not null;default:0"`
	Chapter1UnlockedAt *time.Time `json:"chapter1_unlocked_at"`
	Chapter2UnlockedAt *time.Time `json:"chapter2_unlocked_at"`
	Chapter3UnlockedAt *time.Time `json:"chapter3_unlocked_at"`
	Chapter4UnlockedAt *time.Time `json:"chapter4_unlocked_at"`
	// LastMessageAt 最近一条消息的时间，用于保证同一会话内 created_at 严格递增
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"index"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Counterpart returns the other participant's id.
func (c *Conversation) Counterpart(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ChapterUnlockedAt returns the unlock time of chapter n (1..4).
func (c *Conversation) ChapterUnlockedAt(n int) *time.Time {
	switch n {
	case 1:
		return c.Chapter1UnlockedAt
	case 2:
		return c.Chapter2UnlockedAt
	case 3:
		return c.Chapter3UnlockedAt
	case 4:
		return c.Chapter4UnlockedAt
	}
	return nil
}

// ChapterColumn is the column backing ChapterUnlockedAt(n).
func ChapterColumn(n int) string {
	switch n {
	case 1:
		return "chapter1_unlocked_at"
	case 2:
		return "chapter2_unlocked_at"
	case 3:
		return "chapter3_unlocked_at"
	case 4:
		return "chapter4_unlocked_at"
	}
	return ""
}

func (c *Conversation) setChapterUnlockedAt(n int, at time.Time) {
	t := at
	switch n {
	case 1:
		c.Chapter1UnlockedAt = &t
	case 2:
		c.Chapter2UnlockedAt = &t
	case 3:
		c.Chapter3UnlockedAt = &t
	case 4:
		c.Chapter4UnlockedAt = &t
	}
}

// UnlockChapter sets chapter n's timestamp if it is still unset and reports
// whether it changed. An existing timestamp is never overwritten.
func (c *Conversation) UnlockChapter(n int, at time.Time) bool {
	if c.ChapterUnlockedAt(n) != nil || ChapterColumn(n) == "" {
		return false
	}
	c.setChapterUnlockedAt(n, at)
	return true
}

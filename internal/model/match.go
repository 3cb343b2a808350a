package model

import "time"

// Match 互相喜欢后生成，与 Conversation 一一对应；User1ID < User2ID
type Match struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	User1ID        string    `json:"user1_id" gorm:"type:varchar(36);uniqueIndex:ux_match_pair;index:idx_match_user1;not null"`
	User2ID        string    `json:"user2_id" gorm:"type:varchar(36);uniqueIndex:ux_match_pair;index:idx_match_user2;not null"`
	ConversationID string    `json:"conversation_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Match) TableName() string { return "matches" }

// CanonicalPair orders two user ids so the pair is unique regardless of
// who liked whom first.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

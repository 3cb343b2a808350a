package model

import (
	"fmt"
	"time"
)

type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeVoice  MessageType = "VOICE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// Message 会话消息；(conversation_id, created_at) 为分页游标索引
type Message struct {
	ID             string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConversationID string      `json:"conversation_id" gorm:"type:varchar(36);not null;index:idx_message_conv_created,priority:1"`
	SenderID       string      `json:"sender_id" gorm:"type:varchar(36);not null"`
	Type           MessageType `json:"type" gorm:"type:varchar(16);not null"`
	Content        string      `json:"content,omitempty" gorm:"type:text"`
	AudioURL       string      `json:"audio_url,omitempty" gorm:"type:varchar(512)"`
	// AudioDuration 秒
	AudioDuration int       `json:"audio_duration,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null;index:idx_message_conv_created,priority:2"`
}

func (Message) TableName() string { return "messages" }

// Validate checks the per-type required fields.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeText, MessageTypeSystem:
		if m.Content == "" {
			return fmt.Errorf("%s message requires content", m.Type)
		}
	case MessageTypeVoice:
		if m.AudioURL == "" || m.AudioDuration <= 0 {
			return fmt.Errorf("voice message requires audio url and positive duration")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

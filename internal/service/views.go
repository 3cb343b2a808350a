package service

import (
	"time"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/reveal"
)

// Progression 会话推进状态（来自持久化的计数，不做重新计算）
type Progression struct {
	TextMessageCount int    `json:"text_message_count"`
	RevealLevel      int    `json:"reveal_level"`
	Chapter          int    `json:"chapter"`
	ChapterLabel     string `json:"chapter_label"`
	ChapterChanged   bool   `json:"chapter_changed"`
	// NextThreshold 达到下一等级所需的文本消息总数，已完全揭示时为 0
	NextThreshold int `json:"next_threshold"`
}

// SendResult 发送文本消息的返回信封；语音消息只有 Message
type SendResult struct {
	Message       *model.Message `json:"message"`
	SystemMessage *model.Message `json:"system_message,omitempty"`
	*Progression
}

type MessagePage struct {
	Messages   []*model.Message `json:"messages"`
	NextCursor *string          `json:"next_cursor"`
}

type ProfileView struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Bio         string  `json:"bio"`
	Age         int     `json:"age"`
	PhotoURL    *string `json:"photo_url"`
	PhotoHidden bool    `json:"photo_hidden"`
	PhotoBlur   int     `json:"photo_blur"`
}

type ConversationView struct {
	ID             string       `json:"id"`
	Me             ProfileView  `json:"me"`
	Counterpart    ProfileView  `json:"counterpart"`
	Progression    Progression  `json:"progression"`
	ChapterUnlocks []*time.Time `json:"chapter_unlocks"`
	LastMessageAt  *time.Time   `json:"last_message_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func progressionOf(c *model.Conversation, policy reveal.Policy, changed bool) *Progression {
	return &Progression{
		TextMessageCount: c.TextMessageCount,
		RevealLevel:      c.RevealLevel,
		Chapter:          c.RevealLevel,
		ChapterLabel:     reveal.Label(c.RevealLevel),
		ChapterChanged:   changed,
		NextThreshold:    policy.NextThreshold(c.RevealLevel),
	}
}

// ownProfile 自己的照片始终可见
func ownProfile(p ProfileSnapshot) ProfileView {
	v := baseProfile(p)
	if p.PhotoURL != "" {
		url := p.PhotoURL
		v.PhotoURL = &url
	}
	return v
}

// gatedProfile 对方照片按揭示等级处理：0 级隐藏 URL，1-3 级模糊，4 级完全可见
func gatedProfile(p ProfileSnapshot, level int) ProfileView {
	v := baseProfile(p)
	vis := reveal.VisibilityFor(level)
	v.PhotoHidden = vis.Hidden
	v.PhotoBlur = vis.Blur
	if !vis.Hidden && p.PhotoURL != "" {
		url := p.PhotoURL
		v.PhotoURL = &url
	}
	return v
}

func baseProfile(p ProfileSnapshot) ProfileView {
	return ProfileView{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Age:         p.Age,
	}
}

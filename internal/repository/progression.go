package repository

import (
	"time"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/reveal"
)

// Progress 一次文本消息推进后的结果
type Progress struct {
	Count          int
	Level          int
	PreviousLevel  int
	PreviousCount  int
	ChapterChanged bool
}

// NextMessageTime returns a timestamp strictly after the conversation's last
// message, truncated to microseconds so it survives a database round trip.
// Must be called on a locked row.
func NextMessageTime(c *model.Conversation, now time.Time) time.Time {
	at := now.UTC().Truncate(time.Microsecond)
	if c.LastMessageAt != nil && !at.After(*c.LastMessageAt) {
		at = c.LastMessageAt.UTC().Add(time.Microsecond)
	}
	return at
}

// ApplyTextMessage advances a locked conversation row by one text message
// sent at `at`: count+1, ratcheted reveal level, first-write-wins chapter
// unlocks. It mutates c in memory; SaveProgress persists it.
func ApplyTextMessage(c *model.Conversation, policy reveal.Policy, at time.Time) Progress {
	p := Progress{PreviousCount: c.TextMessageCount, PreviousLevel: c.RevealLevel}

	c.TextMessageCount++
	newLevel := policy.Level(c.TextMessageCount)
	if newLevel > c.RevealLevel {
		c.RevealLevel = newLevel
	}
	p.ChapterChanged = newLevel > p.PreviousLevel
	if p.ChapterChanged {
		for n := 1; n <= newLevel; n++ {
			c.UnlockChapter(n, at)
		}
	}
	c.LastMessageAt = &at
	c.UpdatedAt = at

	p.Count = c.TextMessageCount
	p.Level = c.RevealLevel
	return p
}

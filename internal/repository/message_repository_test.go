package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/pkg/database"
)

func TestMessageCreateValidates(t *testing.T) {
	db := database.OpenTest(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	err := repo.Create(ctx, &model.Message{ID: uuid.NewString(), ConversationID: "c", SenderID: "u", Type: model.MessageTypeText})
	assert.Error(t, err)
	err = repo.Create(ctx, &model.Message{ID: uuid.NewString(), ConversationID: "c", SenderID: "u", Type: model.MessageTypeVoice, AudioURL: "https://x/a.ogg"})
	assert.Error(t, err)
	err = repo.Create(ctx, &model.Message{ID: uuid.NewString(), ConversationID: "c", SenderID: "u", Type: "IMAGE", Content: "x"})
	assert.Error(t, err)
}

func TestMessageListBefore(t *testing.T) {
	db := database.OpenTest(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &model.Message{
			ID:             uuid.NewString(),
			ConversationID: "c1",
			SenderID:       "u",
			Type:           model.MessageTypeText,
			Content:        "m",
			CreatedAt:      base.Add(time.Duration(i) * 1500 * time.Microsecond),
		}))
	}
	require.NoError(t, repo.Create(ctx, &model.Message{ID: uuid.NewString(), ConversationID: "c2", SenderID: "u", Type: model.MessageTypeText, Content: "other", CreatedAt: base}))

	latest, err := repo.ListBefore(ctx, "c1", nil, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.True(t, latest[0].CreatedAt.Equal(base.Add(6000*time.Microsecond)))
	assert.True(t, latest[1].CreatedAt.After(base))

	cursor := latest[1].CreatedAt
	older, err := repo.ListBefore(ctx, "c1", &cursor, 10)
	require.NoError(t, err)
	assert.Len(t, older, 3)
	for _, m := range older {
		assert.True(t, m.CreatedAt.Before(cursor))
	}

	n, err := repo.CountByType(ctx, "c1", model.MessageTypeText)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

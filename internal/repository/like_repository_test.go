package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/pkg/database"
)

func TestLikeUpsertFlipsKind(t *testing.T) {
	db := database.OpenTest(t)
	repo := NewLikeRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "a", "b", model.LikeKindDislike))
	require.NoError(t, repo.Upsert(ctx, "a", "b", model.LikeKindLike))

	liked, err := repo.Exists(ctx, "a", "b", model.LikeKindLike)
	require.NoError(t, err)
	assert.True(t, liked)
	disliked, err := repo.Exists(ctx, "a", "b", model.LikeKindDislike)
	require.NoError(t, err)
	assert.False(t, disliked)

	require.NoError(t, repo.Upsert(ctx, "a", "c", model.LikeKindDislike))
	ids, err := repo.RatedIDs(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestMatchCreateIdempotent(t *testing.T) {
	db := database.OpenTest(t)
	repo := NewMatchRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Match{ID: uuid.NewString(), User1ID: "z", User2ID: "a", ConversationID: "c1"}))
	require.NoError(t, repo.Create(ctx, &model.Match{ID: uuid.NewString(), User1ID: "a", User2ID: "z", ConversationID: "c1"}))

	m, err := repo.GetByPair(ctx, "z", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", m.User1ID)
	assert.Equal(t, "c1", m.ConversationID)

	list, err := repo.ListByUser(ctx, "z", 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

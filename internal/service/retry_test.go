package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/unveil/pkg/apperr"
)

func fastRetry() RetryOptions {
	return RetryOptions{MaxTries: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestWithTxRetryRetriesTransient(t *testing.T) {
	calls := 0
	v, err := withTxRetry(context.Background(), fastRetry(), "test", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, apperr.ErrProgressConflict
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestWithTxRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := withTxRetry(context.Background(), fastRetry(), "test", func() (int, error) {
		calls++
		return 0, apperr.ErrNotParticipant
	})
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)
	assert.Equal(t, 1, calls)
}

func TestWithTxRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := withTxRetry(context.Background(), fastRetry(), "test", func() (int, error) {
		calls++
		return 0, apperr.ErrProgressConflict
	})
	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(fmt.Errorf("tx: %w", apperr.ErrProgressConflict)))
	assert.True(t, isTransient(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, isTransient(&pgconn.PgError{Code: "55P03"}))
	assert.False(t, isTransient(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isTransient(errors.New("database is locked")))
	assert.False(t, isTransient(apperr.ErrConversationNotFound))
}

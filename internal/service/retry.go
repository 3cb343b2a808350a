package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/logger"
)

// RetryOptions 事务级重试：只重试尚未提交的整个事务
type RetryOptions struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxTries == 0 {
		o.MaxTries = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 20 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 500 * time.Millisecond
	}
	return o
}

func withTxRetry[T any](ctx context.Context, opts RetryOptions, name string, op func() (T, error)) (T, error) {
	opts = opts.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialInterval
	b.MaxInterval = opts.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		logger.Warn("retrying transaction",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(opts.MaxTries))
}

// isTransient reports lock contention and serialization failures that are
// safe to retry as a whole transaction.
func isTransient(err error) bool {
	if errors.Is(err, apperr.ErrProgressConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available (lock_timeout)
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

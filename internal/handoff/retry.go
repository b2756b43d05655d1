package handoff

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/logging"
)

// RetryingStore retries transient failures of the wrapped store with
// exponential backoff and annotates every failure with its operation.
type RetryingStore struct {
	next           Store
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// WithRetry wraps next with the default retry policy.
func WithRetry(next Store, logger *zap.Logger) *RetryingStore {
	return &RetryingStore{
		next:           next,
		logger:         logger.Named("handoff"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func (s *RetryingStore) Put(ctx context.Context, sessionID string, entry Entry) error {
	return s.executeWithRetry(ctx, "handoff.put", sessionID, func() error {
		return s.next.Put(ctx, sessionID, entry)
	})
}

func (s *RetryingStore) Get(ctx context.Context, sessionID string) (Entry, error) {
	var entry Entry
	err := s.executeWithRetry(ctx, "handoff.get", sessionID, func() error {
		value, err := s.next.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		entry = value
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *RetryingStore) Delete(ctx context.Context, sessionID string) error {
	return s.executeWithRetry(ctx, "handoff.delete", sessionID, func() error {
		return s.next.Delete(ctx, sessionID)
	})
}

func (s *RetryingStore) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	if s.retryAttempts <= 1 {
		return logging.NewOperationError(operation, sessionID, fn())
	}

	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewRetriedError(operation, sessionID, attempt, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("handoff operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return logging.NewOperationError(operation, sessionID, err)
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("handoff operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewRetriedError(operation, sessionID, attempt+1, err)
		}

		opLogger.Warn("transient handoff error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewRetriedError(operation, sessionID, s.retryAttempts, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

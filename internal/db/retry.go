package db

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/research-office/research-registry/internal/config"
)

const maxBackoff = time.Minute

// ConnectWithRetry calls Connect until it succeeds, waiting with exponential
// backoff between attempts.
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	var pool *Pool
	err := retry(ctx, cfg.ConnectRetries, cfg.ConnectRetryWait, func(attempt int) error {
		p, err := Connect(ctx, cfg)
		if err != nil {
			slog.Warn("database not ready",
				"attempt", attempt+1,
				"max_attempts", cfg.ConnectRetries+1,
				"error", err,
			)
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// retry runs fn up to retries+1 times and returns the last error.
func retry(ctx context.Context, retries int, baseWait time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		select {
		case <-time.After(backoff(baseWait, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", retries+1, lastErr)
}

// backoff is min(base * 2^attempt + jitter, maxBackoff), jitter up to 10%.
func backoff(base time.Duration, attempt int) time.Duration {
	exponentialMs := base.Milliseconds() * int64(math.Pow(2, float64(attempt)))
	jitterMs := rand.Int63n(exponentialMs/10 + 1)

	total := time.Duration(exponentialMs+jitterMs) * time.Millisecond
	if total > maxBackoff || total < 0 {
		return maxBackoff
	}
	return total
}

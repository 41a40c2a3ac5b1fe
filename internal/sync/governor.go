package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/meshforge/cadmirror/internal/onshape"
	"github.com/meshforge/cadmirror/pkg/logger"
)

// GovernorConfig tunes the rate/retry governor.
type GovernorConfig struct {
	// MaxInFlight caps concurrent outbound requests.
	MaxInFlight int
	// MaxAttempts is the total number of tries for a retryable request.
	MaxAttempts int
	// RetryBase is the initial backoff interval.
	RetryBase time.Duration
	// MaxInterval caps a single backoff delay.
	MaxInterval time.Duration
}

// DefaultGovernorConfig returns a GovernorConfig with sensible defaults.
func DefaultGovernorConfig() *GovernorConfig {
	return &GovernorConfig{
		MaxInFlight: 4,
		MaxAttempts: 5,
		RetryBase:   500 * time.Millisecond,
		MaxInterval: 30 * time.Second,
	}
}

// Governor wraps outbound vendor calls with bounded concurrency and
// retry/backoff policy. Rate-limit (429) and server (5xx) responses retry
// with exponential backoff and jitter, honoring a server Retry-After hint;
// transport and decode failures retry the same way; auth rejections and
// other 4xx responses fail immediately.
type Governor struct {
	sem         *semaphore.Weighted
	maxAttempts int
	retryBase   time.Duration
	maxInterval time.Duration
	logger      *slog.Logger
}

// NewGovernor creates a Governor from cfg.
func NewGovernor(cfg *GovernorConfig, logger *slog.Logger) *Governor {
	if cfg == nil {
		cfg = DefaultGovernorConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &Governor{
		sem:         semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		maxInterval: cfg.MaxInterval,
		logger:      logger,
	}
}

// Do executes fn under the concurrency cap, retrying per policy. fn should
// perform one request and decode its payload so that decode failures are
// retried too. Returns ErrRetriesExhausted (wrapping the last failure) once
// the attempt budget is spent.
func (g *Governor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring request slot: %w", err)
	}
	defer g.sem.Release(1)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retryBase
	bo.MaxInterval = g.maxInterval
	bo.MaxElapsedTime = 0 // the attempt budget bounds the loop
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == g.maxAttempts {
			break
		}

		delay := bo.NextBackOff()
		var apiErr *onshape.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}

		log := g.logger
		if runID := logger.RunIDFromContext(ctx); runID != "" {
			log = log.With("run_id", runID)
		}
		log.Warn("retrying vendor request",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// retryable classifies a failure. Vendor responses retry only when the
// status is transient; everything else that reached the wire (transport
// faults, malformed payloads) is assumed transient.
func retryable(err error) bool {
	var apiErr *onshape.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

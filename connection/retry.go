package connection

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/psm-labs/solpay/metrics"
)

const (
	// DefaultMaxAttempts is the number of tries, including the first.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is multiplied by the attempt number between tries.
	DefaultBaseDelay = time.Second
)

// Retrier runs ledger operations against the manager's current endpoint,
// rotating endpoints after network and timeout failures.
type Retrier struct {
	manager     *Manager
	maxAttempts int
	baseDelay   time.Duration
	logger      zerolog.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithMaxAttempts sets the total number of tries.
func WithMaxAttempts(n int) RetrierOption {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the linear backoff step.
func WithBaseDelay(d time.Duration) RetrierOption {
	return func(r *Retrier) {
		if d >= 0 {
			r.baseDelay = d
		}
	}
}

// NewRetrier creates a retrier bound to manager.
func NewRetrier(manager *Manager, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		manager:     manager,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      manager.logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Manager returns the connection manager the retrier rotates.
func (r *Retrier) Manager() *Manager {
	return r.manager
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// The last failure is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, ledger Ledger) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		ledger, err := r.manager.Ensure(ctx)
		if err != nil {
			return err
		}
		return op(ctx, ledger)
	}

	notify := func(err error, wait time.Duration) {
		kind := KindOf(err)
		metrics.RecordRetry(metrics.OutcomeRetry)
		r.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", r.maxAttempts).
			Str("kind", kind.String()).
			Dur("wait", wait).
			Msg("operation failed, retrying")

		if kind.Transient() {
			if _, rotateErr := r.manager.Rotate(ctx); rotateErr != nil {
				r.logger.Warn().Err(rotateErr).Msg("endpoint rotation failed")
			}
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: r.baseDelay}, uint64(r.maxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(operation, b, notify)
	if err != nil {
		metrics.RecordRetry(metrics.OutcomeFailure)
		return err
	}
	metrics.RecordRetry(metrics.OutcomeSuccess)
	return nil
}

// Retry is Do for operations that produce a value.
func Retry[T any](ctx context.Context, r *Retrier, op func(ctx context.Context, ledger Ledger) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context, ledger Ledger) error {
		v, err := op(ctx, ledger)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

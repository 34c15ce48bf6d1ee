// Package retry runs an operation again with exponential backoff while it
// keeps failing with a retryable error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

type Config struct {
	// MaxRetries excludes the initial attempt.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor in [0, 1]; 0.1 means ±10%.
	JitterFactor float64
}

// DefaultConfig suits short database transactions: 20ms, 40ms, 80ms.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

type Operation func(ctx context.Context) error

// RetryCallback is called before each retry attempt.
type RetryCallback func(attempt int, err error, nextInterval time.Duration)

// PermanentError stops the loop and is unwrapped in the final result.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result of a retried operation.
type Result struct {
	Err           error
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

type Retrier struct {
	config *Config
}

func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.InitialInterval <= 0 {
		c.InitialInterval = 20 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Min(math.Max(c.JitterFactor, 0), 1)
	return &Retrier{config: &c}
}

func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, callback RetryCallback) *Result {
	start := time.Now()
	result := &Result{}
	finish := func(err error) *Result {
		result.Err = err
		result.TotalDuration = time.Since(start)
		return result
	}

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		if ctx.Err() != nil {
			return finish(ErrContextCanceled)
		}

		err := op(ctx)
		if err == nil {
			return finish(nil)
		}
		result.LastError = err

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			result.LastError = permErr.Err
			return finish(permErr.Err)
		}
		if attempt == r.config.MaxRetries {
			break
		}

		interval := r.interval(attempt)
		if callback != nil {
			callback(attempt+1, err, interval)
		}

		select {
		case <-ctx.Done():
			return finish(ErrContextCanceled)
		case <-time.After(interval):
		}
	}
	return finish(fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, result.LastError))
}

func (r *Retrier) interval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}
	if interval < 0 {
		interval = float64(r.config.InitialInterval)
	}
	return time.Duration(interval)
}

// OnlyIf retries op while classify reports its error as transient and
// marks every other error permanent.
func OnlyIf(classify func(error) bool, op Operation) Operation {
	return func(ctx context.Context) error {
		err := op(ctx)
		if err == nil || classify(err) {
			return err
		}
		return Permanent(err)
	}
}

// Do is a convenience wrapper returning only the final error.
func Do(ctx context.Context, config *Config, op Operation) error {
	return New(config).Do(ctx, op).Err
}

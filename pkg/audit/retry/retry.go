package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls retry behavior for a single operation. The zero value
// performs exactly one attempt.
type Policy struct {
	// MaxRetries is the total number of attempts. Values below 1 are
	// treated as 1.
	MaxRetries int

	// InitialDelay is the backoff before the second attempt. The delay
	// doubles after every failed attempt.
	InitialDelay time.Duration

	// Classify overrides the default classifier. Nil uses Classify.
	Classify func(error) Class

	// OnRetry, when set, is called before each backoff sleep with the
	// attempt number (1-based), the delay, and the error being retried.
	OnRetry func(attempt int, delay time.Duration, err error)

	// sleep is replaceable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs fn, retrying transient failures with exponential backoff.
// Non-transient failures return immediately. After the attempt budget is
// exhausted the last error is returned wrapped with its classification.
func (p Policy) Execute(ctx context.Context, fn func() error) error {
	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		class := classify(lastErr)
		if class != ClassTransient {
			return attachClass(lastErr, class)
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
		delay *= 2
	}

	return attachClass(lastErr, ClassTransient)
}

// attachClass ensures the returned error carries its classification without
// double-wrapping already classified errors.
func attachClass(err error, class Class) error {
	if ce, ok := err.(*ClassifiedError); ok && ce.Class == class {
		return err
	}
	if Classify(err) == class {
		return err
	}
	return &ClassifiedError{Class: class, Err: err}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

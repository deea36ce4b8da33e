package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

type Backoff struct {
	b retry.Backoff
}

func RetryableError(err error) error {
	return retry.RetryableError(err)
}

func Fibonacci(base time.Duration) Backoff {
	if base <= 0 {
		base = 1 * time.Second
	}
	b := retry.NewFibonacci(base)

	return Backoff{
		b: b,
	}
}

func Constant(interval time.Duration) Backoff {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return Backoff{
		b: retry.NewConstant(interval),
	}
}

func (in Backoff) WithMaxDuration(timeout time.Duration) Backoff {
	in = in.orDefault()
	in.b = retry.WithMaxDuration(timeout, in.b)
	return in
}

// WithMaxAttempts limits the total number of calls, the first one included.
func (in Backoff) WithMaxAttempts(attempts uint64) Backoff {
	if attempts < 1 {
		attempts = 1
	}
	in = in.orDefault()
	in.b = retry.WithMaxRetries(attempts-1, in.b)
	return in
}

func (in Backoff) Do(ctx context.Context, f retry.RetryFunc) error {
	return retry.Do(ctx, in.orDefault().b, f)
}

func (in Backoff) orDefault() Backoff {
	if in.b == nil {
		return Constant(0)
	}
	return in
}

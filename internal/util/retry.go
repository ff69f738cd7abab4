// Package util provides shared utility functions for rvfs.
package util

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/avast/retry-go/v4"
)

// OutputWaitOptions returns retry options for waiting on files produced by
// an external command. Only "does not exist" errors are retried; the total
// wait is bounded by budget.
func OutputWaitOptions(ctx context.Context, budget time.Duration) []retry.Option {
	const delay = 25 * time.Millisecond
	attempts := uint(budget/delay) + 1
	return []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsNotExist),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// Retry executes fn until it succeeds or opts give up, e.g. with
// OutputWaitOptions. Returns the last error if all attempts fail.
func Retry(fn func() error, opts ...retry.Option) error {
	return retry.Do(fn, opts...)
}

// RetryWithResult executes fn like Retry and returns its result.
func RetryWithResult[T any](fn func() (T, error), opts ...retry.Option) (T, error) {
	return retry.DoWithData(fn, opts...)
}

// IsNotExist returns true if the error reports a missing file.
func IsNotExist(err error) bool {
	return err != nil && errors.Is(err, fs.ErrNotExist)
}

// Package util provides retry and polling helpers shared by metabridge packages.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// busyMarkers are the driver messages that mean another connection holds
// the database.
var busyMarkers = []string{
	"database is locked",
	"database table is locked",
	"SQLITE_BUSY",
}

// StoreRetryOptions retries metadata store writes that lost a lock race.
// Other errors return on the first attempt. Only the last error is
// returned so status annotations stay reachable.
func StoreRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(4),
		retry.Delay(50 * time.Millisecond),
		retry.MaxDelay(400 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsBusy),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// Retry runs fn under opts, StoreRetryOptions when none are given.
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = StoreRetryOptions(ctx)
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult is Retry for functions that produce a value.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = StoreRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// IsBusy reports whether err says the database is held by someone else.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

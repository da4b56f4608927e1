package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabridge/internal/status"
)

func TestPollUntil(t *testing.T) {
	t.Parallel()

	t.Run("immediate", func(t *testing.T) {
		t.Parallel()
		err := PollUntil(context.Background(), PollConfig{}, func() bool { return true })
		assert.NoError(t, err)
	})

	t.Run("eventually true", func(t *testing.T) {
		t.Parallel()
		var n atomic.Int32
		err := PollUntil(context.Background(), PollConfig{Timeout: time.Second, Interval: time.Millisecond},
			func() bool { return n.Add(1) >= 3 })
		assert.NoError(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		err := PollUntil(context.Background(), PollConfig{Timeout: 20 * time.Millisecond, Interval: time.Millisecond},
			func() bool { return false })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRetryDatabaseLocked(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := RetryWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("database is locked")
		}
		return 7, nil
	}, retry.Attempts(3), retry.Delay(time.Millisecond), retry.RetryIf(IsBusy))
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.New("disk on fire")
	}, StoreRetryOptions(context.Background())...)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsBusy(t *testing.T) {
	t.Parallel()

	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errors.New("SQLITE_BUSY: database is locked")))
	assert.False(t, IsBusy(errors.New("no such table")))
}

func TestRetryKeepsLastStatus(t *testing.T) {
	t.Parallel()

	err := Retry(context.Background(), func() error {
		return status.New(status.DiskFull, "database is locked")
	}, retry.Attempts(2), retry.Delay(time.Millisecond), retry.RetryIf(IsBusy), retry.LastErrorOnly(true))
	assert.Equal(t, status.DiskFull, status.Of(err))
}

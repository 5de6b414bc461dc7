package rotation

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/uaa-rotate/internal/logging"
)

func newTestRollbackManager() *rollbackManager {
	return newRollbackManager(DefaultRollbackConfig(), logging.NewWithWriter(false, true, io.Discard))
}

func TestRollbackSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	var restored, verified bool
	result := newTestRollbackManager().Execute(context.Background(), RollbackRequest{
		Reason: "store update failed",
		Restore: func(ctx context.Context) error {
			restored = true
			return nil
		},
		Verify: func(ctx context.Context) error {
			verified = true
			return nil
		},
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.Err)
	assert.True(t, restored)
	assert.True(t, verified)
}

func TestRollbackRetriesTheWholePair(t *testing.T) {
	t.Parallel()

	var restores, verifies int
	result := newTestRollbackManager().Execute(context.Background(), RollbackRequest{
		Reason: "store update failed",
		Restore: func(ctx context.Context) error {
			restores++
			return nil
		},
		Verify: func(ctx context.Context) error {
			verifies++
			if verifies == 1 {
				return fmt.Errorf("token grant rejected")
			}
			return nil
		},
	})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, restores, "restore is re-run together with verify")
}

func TestRollbackReportsFailureAfterBoundedRetries(t *testing.T) {
	t.Parallel()

	var restores int
	result := newTestRollbackManager().Execute(context.Background(), RollbackRequest{
		Reason: "store update failed",
		Restore: func(ctx context.Context) error {
			restores++
			return fmt.Errorf("server still refusing")
		},
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "restore failed")
	assert.Equal(t, 2, restores)
}

func TestRollbackStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var restores int
	result := newTestRollbackManager().Execute(ctx, RollbackRequest{
		Reason: "store update failed",
		Restore: func(ctx context.Context) error {
			restores++
			cancel()
			return fmt.Errorf("interrupted")
		},
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, restores, "no retry once the surrounding context is gone")
}

func TestRollbackAttemptTimeoutBoundsEachAttempt(t *testing.T) {
	t.Parallel()

	mgr := newRollbackManager(RollbackConfig{MaxRetries: 0, Timeout: 50 * time.Millisecond},
		logging.NewWithWriter(false, true, io.Discard))

	result := mgr.Execute(context.Background(), RollbackRequest{
		Reason: "store update failed",
		Restore: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	})

	assert.False(t, result.Success)
	require.Error(t, result.Err)
}

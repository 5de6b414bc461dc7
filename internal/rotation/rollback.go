package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/systmms/uaa-rotate/internal/logging"
)

// RollbackConfig controls best-effort rollback behavior.
type RollbackConfig struct {
	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int

	// Timeout bounds each rollback attempt.
	Timeout time.Duration
}

// DefaultRollbackConfig returns the default rollback configuration.
func DefaultRollbackConfig() RollbackConfig {
	return RollbackConfig{
		MaxRetries: 1,
		Timeout:    20 * time.Second,
	}
}

// RollbackRequest describes one rollback operation. Restore puts the
// previous secret back; Verify proves the restored secret authenticates.
type RollbackRequest struct {
	Reason  string
	Restore func(ctx context.Context) error
	Verify  func(ctx context.Context) error
}

// RollbackResult is the outcome of a rollback operation.
type RollbackResult struct {
	Success  bool
	Attempts int
	Err      error
}

// rollbackManager executes best-effort rollbacks with bounded retries.
// Rollback failures are returned, never swallowed: a failed rollback means
// the operator must intervene and has to know.
type rollbackManager struct {
	config RollbackConfig
	logger *logging.Logger
}

func newRollbackManager(config RollbackConfig, logger *logging.Logger) *rollbackManager {
	return &rollbackManager{config: config, logger: logger}
}

// Execute runs the restore and verify functions, retrying the whole pair on
// failure up to the configured number of extra attempts.
func (m *rollbackManager) Execute(ctx context.Context, req RollbackRequest) *RollbackResult {
	result := &RollbackResult{}

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		if attempt > 0 {
			m.logger.Warn("Retrying rollback (attempt %d of %d)", attempt+1, m.config.MaxRetries+1)
		}

		err := m.attempt(ctx, req)
		if err == nil {
			result.Success = true
			result.Err = nil
			return result
		}
		result.Err = err

		if ctx.Err() != nil {
			break
		}
	}

	return result
}

func (m *rollbackManager) attempt(ctx context.Context, req RollbackRequest) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	m.logger.Warn("Attempting rollback: %s", req.Reason)

	if req.Restore != nil {
		if err := req.Restore(attemptCtx); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
	}
	if req.Verify != nil {
		if err := req.Verify(attemptCtx); err != nil {
			return fmt.Errorf("restored secret failed verification: %w", err)
		}
	}
	return nil
}

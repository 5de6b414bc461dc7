package rotation

import (
	"time"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
)

// Status is the terminal state of a rotation run.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
	// StatusPlanned is reported by dry runs, which validate, probe and
	// authenticate but mutate nothing.
	StatusPlanned Status = "planned"
)

// AuditEntry records one stage action taken during a run.
type AuditEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id"`
	Stage     roterrors.Stage `json:"stage"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Result is the terminal outcome of a rotation run.
type Result struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`

	// Stage is the stage at which the run failed. Empty on success.
	Stage roterrors.Stage `json:"stage,omitempty"`

	// Inconsistent is set when the failure may have left UAA and CredHub
	// disagreeing about the current secret.
	Inconsistent bool `json:"inconsistent"`

	RollbackAttempted bool `json:"rollback_attempted"`
	RollbackSucceeded bool `json:"rollback_succeeded"`

	RotatedAt  *time.Time    `json:"rotated_at,omitempty"`
	Duration   time.Duration `json:"duration"`
	AuditTrail []AuditEntry  `json:"audit_trail,omitempty"`

	// Err is the failure that ended the run, nil on success.
	Err error `json:"-"`
}

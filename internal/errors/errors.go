// Package errors defines the typed failure taxonomy for the rotation
// workflow. Every failure carries the stage it occurred in so operators can
// tell a refused token grant apart from an unreachable server, and so the
// CLI can map each failure class to a distinct exit code.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage identifies the step of the rotation workflow a failure belongs to.
type Stage string

const (
	StageConfig        Stage = "config"
	StageConnectivity  Stage = "connectivity"
	StageAuth          Stage = "auth"
	StageFetch         Stage = "fetch"
	StageUpdateUAA     Stage = "update-uaa"
	StageUpdateCredHub Stage = "update-credhub"
	StageVerify        Stage = "verify"
	StageRollback      Stage = "rollback"
	StageTimeout       Stage = "timeout"
)

// Service names the external service a failure relates to.
type Service string

const (
	ServiceUAA     Service = "UAA"
	ServiceCredHub Service = "CredHub"
)

// Exit codes, one per failure stage. Success is 0, unclassified errors are 1.
const (
	ExitOK            = 0
	ExitGeneric       = 1
	ExitConfig        = 2
	ExitConnectivity  = 3
	ExitAuth          = 4
	ExitNotFound      = 5
	ExitUpdateUAA     = 6
	ExitUpdateCredHub = 7
	ExitVerify        = 8
	ExitTimeout       = 9
	ExitRollback      = 10
)

// ConfigError reports missing or invalid configuration. It is always raised
// before any network call is made.
type ConfigError struct {
	Missing    []string
	Field      string
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in %s", e.Field)
	}
	if len(e.Missing) > 0 {
		msg += ": missing required configuration: " + strings.Join(e.Missing, ", ")
	} else if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// ConnectivityError reports a transport-level failure to reach a service.
// Distinct from AuthError: the server never answered at all.
type ConnectivityError struct {
	Service Service
	URL     string
	Err     error
}

func (e ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach %s at %s: %v", e.Service, e.URL, e.Err)
}

func (e ConnectivityError) Unwrap() error {
	return e.Err
}

// AuthError reports a rejected or malformed token grant. Body is already
// redacted by the caller; secret values must never be placed here.
type AuthError struct {
	Service    Service
	StatusCode int
	Body       string
}

func (e AuthError) Error() string {
	msg := fmt.Sprintf("%s token grant failed", e.Service)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NotFoundError reports that the target client does not exist in UAA.
type NotFoundError struct {
	ClientID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("client '%s' not found in UAA", e.ClientID)
}

// UpdateError reports a rejected mutation. When Stage is StageUpdateCredHub
// the two stores no longer agree: UAA already accepted the new secret while
// CredHub still holds the old one.
type UpdateError struct {
	Stage      Stage
	Service    Service
	StatusCode int
	Body       string
}

func (e UpdateError) Error() string {
	msg := fmt.Sprintf("%s secret update failed (HTTP %d)", e.Service, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Inconsistent() {
		msg += "\n  ⚠ stores are INCONSISTENT: UAA holds the new secret, CredHub still holds the old one." +
			"\n  💡 Re-run the rotation, or restore the previous secret in UAA manually."
	}
	return msg
}

// Inconsistent reports whether this failure left UAA and CredHub disagreeing.
func (e UpdateError) Inconsistent() bool {
	return e.Stage == StageUpdateCredHub
}

// VerificationError reports that the freshly rotated secret does not
// authenticate. Both stores may hold the new value, so this is equally an
// inconsistency signal.
type VerificationError struct {
	ClientID   string
	StatusCode int
	Body       string
}

func (e VerificationError) Error() string {
	msg := fmt.Sprintf("new secret for client '%s' failed verification", e.ClientID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	msg += "\n  ⚠ both stores may hold a secret that does not authenticate." +
		"\n  💡 Check for transport corruption and re-run the rotation."
	return msg
}

// RollbackError wraps the failure that triggered a rollback together with the
// rollback's own failure. It is never swallowed: both causes surface.
type RollbackError struct {
	Cause       error
	RollbackErr error
}

func (e RollbackError) Error() string {
	return fmt.Sprintf("rotation failed (%v) and rollback also failed: %v", e.Cause, e.RollbackErr)
}

func (e RollbackError) Unwrap() error {
	return e.Cause
}

// TimeoutError reports that the overall run deadline was exceeded.
type TimeoutError struct {
	Stage   Stage
	Elapsed time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("rotation deadline exceeded during %s stage after %s", e.Stage, e.Elapsed.Round(time.Millisecond))
}

// StageOf returns the workflow stage a given error belongs to.
func StageOf(err error) Stage {
	var (
		cfgErr  ConfigError
		connErr ConnectivityError
		authErr AuthError
		nfErr   NotFoundError
		updErr  UpdateError
		verErr  VerificationError
		rbErr   RollbackError
		toErr   TimeoutError
	)
	switch {
	case errors.As(err, &cfgErr):
		return StageConfig
	case errors.As(err, &connErr):
		return StageConnectivity
	case errors.As(err, &toErr):
		return StageTimeout
	case errors.As(err, &rbErr):
		return StageRollback
	case errors.As(err, &authErr):
		return StageAuth
	case errors.As(err, &nfErr):
		return StageFetch
	case errors.As(err, &updErr):
		return updErr.Stage
	case errors.As(err, &verErr):
		return StageVerify
	default:
		return ""
	}
}

// ExitCode maps an error to the process exit code for its failure stage.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch StageOf(err) {
	case StageConfig:
		return ExitConfig
	case StageConnectivity:
		return ExitConnectivity
	case StageAuth:
		return ExitAuth
	case StageFetch:
		return ExitNotFound
	case StageUpdateUAA:
		return ExitUpdateUAA
	case StageUpdateCredHub:
		return ExitUpdateCredHub
	case StageVerify:
		return ExitVerify
	case StageTimeout:
		return ExitTimeout
	case StageRollback:
		return ExitRollback
	default:
		return ExitGeneric
	}
}

// Inconsistent reports whether an error signals that UAA and CredHub may
// disagree about the current secret.
func Inconsistent(err error) bool {
	var updErr UpdateError
	if errors.As(err, &updErr) {
		return updErr.Inconsistent()
	}
	var verErr VerificationError
	if errors.As(err, &verErr) {
		return true
	}
	var rbErr RollbackError
	if errors.As(err, &rbErr) {
		return true
	}
	return false
}

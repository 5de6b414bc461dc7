// Package rotation drives the end-to-end client-secret rotation: validate,
// probe, authenticate, generate, update UAA, mirror into CredHub, verify,
// and on late failure attempt a best-effort rollback.
package rotation

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/systmms/uaa-rotate/internal/config"
	"github.com/systmms/uaa-rotate/internal/credhub"
	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/httpx"
	"github.com/systmms/uaa-rotate/internal/logging"
	"github.com/systmms/uaa-rotate/internal/uaa"
)

// Orchestrator runs rotation workflows for one plan. It is strictly
// sequential; it assumes it is the sole rotator for the (client, path) pair.
type Orchestrator struct {
	plan     config.Plan
	logger   *logging.Logger
	uaa      *uaa.Client
	credhub  *credhub.Client
	metrics  *Metrics
	rollback *rollbackManager
}

// New builds an orchestrator and its HTTP clients from the plan.
func New(plan config.Plan, logger *logging.Logger) *Orchestrator {
	httpClient := httpx.NewClient(plan.SkipTLSVerify, plan.ConnectTimeout, plan.RequestTimeout)
	redact := plan.SecretValues()
	return &Orchestrator{
		plan:     plan,
		logger:   logger,
		uaa:      uaa.New(plan.UAAURL, httpClient, logger, redact...),
		credhub:  credhub.New(plan.CredHubURL, httpClient, logger, redact...),
		metrics:  NewMetrics(),
		rollback: newRollbackManager(DefaultRollbackConfig(), logger),
	}
}

// UAA exposes the UAA client, used by the verify and doctor commands.
func (o *Orchestrator) UAA() *uaa.Client { return o.uaa }

// CredHub exposes the CredHub client, used by the verify and doctor commands.
func (o *Orchestrator) CredHub() *credhub.Client { return o.credhub }

// run carries the mutable state of one rotation attempt.
type run struct {
	id      string
	started time.Time
	trail   []AuditEntry

	adminToken string
	clientDoc  map[string]interface{}

	// newSecret and oldSecret are held in encrypted enclaves between
	// stages; plaintext only exists inside withSecret callbacks.
	newSecret *memguard.Enclave
	oldSecret *memguard.Enclave
}

func (r *run) audit(stage roterrors.Stage, status, message string) {
	r.trail = append(r.trail, AuditEntry{
		Timestamp: time.Now(),
		RunID:     r.id,
		Stage:     stage,
		Status:    status,
		Message:   message,
	})
}

func (r *run) auditFailure(stage roterrors.Stage, err error) {
	r.trail = append(r.trail, AuditEntry{
		Timestamp: time.Now(),
		RunID:     r.id,
		Stage:     stage,
		Status:    "failed",
		Error:     err.Error(),
	})
}

// Rotate performs one full rotation attempt. Each invocation generates a
// fresh secret; a re-run after a partial failure is a new rotation, not a
// resume. With dryRun set, the run stops after token acquisition and
// mutates nothing.
func (o *Orchestrator) Rotate(ctx context.Context, dryRun bool) Result {
	r := &run{id: uuid.NewString(), started: time.Now()}
	o.logger.Debug("Starting rotation run %s for client %s", r.id, o.plan.TargetClient)
	o.metrics.RecordStarted(o.plan.TargetClient)

	// Configuration is checked before any network call.
	if err := o.plan.Validate(); err != nil {
		return o.fail(r, roterrors.StageConfig, err)
	}
	r.audit(roterrors.StageConfig, "ok", "configuration validated")

	if o.plan.SkipTLSVerify {
		o.logger.Warn("TLS certificate verification is DISABLED for this run")
	}

	ctx, cancel := context.WithTimeout(ctx, o.plan.OverallTimeout)
	defer cancel()

	// Connectivity probe. Must fail distinguishably from an auth failure.
	if err := httpx.Probe(ctx, httpx.NewClient(o.plan.SkipTLSVerify, o.plan.ConnectTimeout, o.plan.RequestTimeout),
		roterrors.ServiceUAA, o.plan.UAAURL, o.logger); err != nil {
		return o.fail(r, roterrors.StageConnectivity, err)
	}
	r.audit(roterrors.StageConnectivity, "ok", "UAA reachable")

	// Admin token.
	adminToken, err := o.uaa.Token(ctx, roterrors.ServiceUAA, o.plan.ClientID, o.plan.ClientSecret, false)
	if err != nil {
		return o.fail(r, roterrors.StageAuth, err)
	}
	r.adminToken = adminToken
	r.audit(roterrors.StageAuth, "ok", "admin token acquired")

	if dryRun {
		// Prove the CredHub identity also authenticates, then stop.
		if _, err := o.uaa.Token(ctx, roterrors.ServiceCredHub, o.plan.CredHubClient, o.plan.CredHubSecret, false); err != nil {
			return o.fail(r, roterrors.StageAuth, err)
		}
		r.audit(roterrors.StageAuth, "ok", "CredHub token acquired (dry run, stopping before mutation)")
		o.logger.Info("Dry run: configuration, connectivity and credentials check out; nothing was changed")
		return o.finish(r, Result{Status: StatusPlanned})
	}

	// Generate the new secret and seal it.
	secret, err := GenerateSecret(o.plan.SecretLength)
	if err != nil {
		return o.fail(r, roterrors.StageUpdateUAA, err)
	}
	o.uaa.AddRedactValue(secret)
	o.credhub.AddRedactValue(secret)
	r.newSecret = memguard.NewEnclave([]byte(secret))
	secret = ""
	r.audit(roterrors.StageUpdateUAA, "ok", fmt.Sprintf("generated new %d-character secret", o.plan.SecretLength))

	// Fetch the client document.
	doc, err := o.uaa.GetClient(ctx, r.adminToken, o.plan.TargetClient)
	if err != nil {
		return o.fail(r, roterrors.StageFetch, err)
	}
	r.clientDoc = doc
	if old, ok := doc["client_secret"].(string); ok && old != "" {
		r.oldSecret = memguard.NewEnclave([]byte(old))
		doc["client_secret"] = ""
	}
	r.audit(roterrors.StageFetch, "ok", "fetched client configuration")

	// Update the secret in UAA first: CredHub, which consumers read, must
	// only ever hold a secret UAA has already accepted.
	err = withSecret(r.newSecret, func(newValue string) error {
		doc["client_secret"] = newValue
		defer func() { doc["client_secret"] = "" }()
		return o.uaa.UpdateClient(ctx, r.adminToken, o.plan.TargetClient, doc)
	})
	if err != nil {
		return o.fail(r, roterrors.StageUpdateUAA, err)
	}
	r.audit(roterrors.StageUpdateUAA, "ok", "client secret updated in UAA")

	// Mirror into CredHub with the separate CredHub identity.
	credhubToken, err := o.uaa.Token(ctx, roterrors.ServiceCredHub, o.plan.CredHubClient, o.plan.CredHubSecret, false)
	if err != nil {
		return o.failWithRollback(ctx, r, roterrors.StageUpdateCredHub, err)
	}
	err = withSecret(r.newSecret, func(newValue string) error {
		return o.credhub.SetPassword(ctx, credhubToken, o.plan.CredHubPath, newValue)
	})
	if err != nil {
		return o.failWithRollback(ctx, r, roterrors.StageUpdateCredHub, err)
	}
	r.audit(roterrors.StageUpdateCredHub, "ok", "secret mirrored into CredHub")

	// Verify with a fresh grant; a cached token would prove nothing.
	err = withSecret(r.newSecret, func(newValue string) error {
		_, grantErr := o.uaa.Token(ctx, roterrors.ServiceUAA, o.plan.TargetClient, newValue, true)
		return grantErr
	})
	if err != nil {
		return o.failWithRollback(ctx, r, roterrors.StageVerify, asVerificationError(err, o.plan.TargetClient))
	}
	r.audit(roterrors.StageVerify, "ok", "new secret verified via fresh token grant")

	rotatedAt := time.Now()
	o.logger.Info("Rotated secret for client %s and mirrored to %s", o.plan.TargetClient, o.plan.CredHubPath)
	return o.finish(r, Result{Status: StatusCompleted, RotatedAt: &rotatedAt})
}

// failWithRollback handles the two late-failure cases where UAA already
// holds the new secret: try to put the old secret back, best effort, and
// report the rollback outcome separately from the original failure.
func (o *Orchestrator) failWithRollback(ctx context.Context, r *run, stage roterrors.Stage, cause error) Result {
	if r.oldSecret == nil {
		o.logger.Error("Cannot roll back: previous secret was not returned by UAA")
		r.audit(roterrors.StageRollback, "skipped", "previous secret unavailable")
		res := o.fail(r, stage, cause)
		// UAA already accepted the new secret, so the stores disagree no
		// matter what the immediate cause was.
		res.Inconsistent = true
		return res
	}

	// The run deadline may already be spent; give rollback its own bounded
	// budget so a timeout mid-rotation does not also doom the restore.
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.plan.OverallTimeout)
	defer cancel()

	result := o.rollback.Execute(rbCtx, RollbackRequest{
		Reason: fmt.Sprintf("%s stage failed: %v", stage, cause),
		Restore: func(ctx context.Context) error {
			return o.restoreOldSecret(ctx, r, stage)
		},
		Verify: func(ctx context.Context) error {
			return withSecret(r.oldSecret, func(oldValue string) error {
				_, err := o.uaa.Token(ctx, roterrors.ServiceUAA, o.plan.TargetClient, oldValue, true)
				return err
			})
		},
	})

	res := o.fail(r, stage, cause)
	res.RollbackAttempted = true
	if result.Success {
		res.RollbackSucceeded = true
		res.Status = StatusRolledBack
		res.Inconsistent = false
		r.audit(roterrors.StageRollback, "ok", fmt.Sprintf("previous secret restored after %d attempt(s)", result.Attempts))
		o.logger.Warn("Rotation failed but the previous secret was restored; stores are consistent again")
		o.metrics.RecordRollback(o.plan.TargetClient, "success")
	} else {
		res.Err = roterrors.RollbackError{Cause: cause, RollbackErr: result.Err}
		res.Inconsistent = true
		r.auditFailure(roterrors.StageRollback, result.Err)
		o.logger.Error("Rollback failed after %d attempt(s): %v", result.Attempts, result.Err)
		o.metrics.RecordRollback(o.plan.TargetClient, "failure")
	}
	res.AuditTrail = r.trail
	return res
}

// restoreOldSecret re-applies the previous secret to UAA and, when the
// CredHub mirror was already written, to CredHub as well.
func (o *Orchestrator) restoreOldSecret(ctx context.Context, r *run, failedStage roterrors.Stage) error {
	err := withSecret(r.oldSecret, func(oldValue string) error {
		r.clientDoc["client_secret"] = oldValue
		defer func() { r.clientDoc["client_secret"] = "" }()
		return o.uaa.UpdateClient(ctx, r.adminToken, o.plan.TargetClient, r.clientDoc)
	})
	if err != nil {
		return err
	}

	// Only a verify-stage failure means CredHub already holds the new value.
	if failedStage != roterrors.StageVerify {
		return nil
	}
	credhubToken, err := o.uaa.Token(ctx, roterrors.ServiceCredHub, o.plan.CredHubClient, o.plan.CredHubSecret, false)
	if err != nil {
		return err
	}
	return withSecret(r.oldSecret, func(oldValue string) error {
		return o.credhub.SetPassword(ctx, credhubToken, o.plan.CredHubPath, oldValue)
	})
}

// fail finalizes a failed run, mapping an expired overall deadline to a
// TimeoutError so it is distinguishable from a connectivity failure.
func (o *Orchestrator) fail(r *run, stage roterrors.Stage, err error) Result {
	if stderrors.Is(err, context.DeadlineExceeded) {
		err = roterrors.TimeoutError{Stage: stage, Elapsed: time.Since(r.started)}
		stage = roterrors.StageTimeout
	}
	r.auditFailure(stage, err)
	o.logger.Error("Rotation failed at %s stage: %v", stage, err)
	return o.finish(r, Result{
		Status:       StatusFailed,
		Stage:        stage,
		Inconsistent: roterrors.Inconsistent(err),
		Err:          err,
	})
}

func (o *Orchestrator) finish(r *run, res Result) Result {
	res.RunID = r.id
	res.Duration = time.Since(r.started)
	res.AuditTrail = r.trail
	o.metrics.RecordCompleted(o.plan.TargetClient, string(res.Status), string(res.Stage), res.Duration.Seconds())
	return res
}

// withSecret opens an enclave for the duration of fn, destroying the
// plaintext buffer afterwards.
func withSecret(e *memguard.Enclave, fn func(string) error) error {
	buf, err := e.Open()
	if err != nil {
		return fmt.Errorf("cannot open secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// asVerificationError converts a token-grant rejection into the
// verification failure taxonomy; transport failures pass through unchanged.
func asVerificationError(err error, clientID string) error {
	var authErr roterrors.AuthError
	if stderrors.As(err, &authErr) {
		return roterrors.VerificationError{
			ClientID:   clientID,
			StatusCode: authErr.StatusCode,
			Body:       authErr.Body,
		}
	}
	return err
}

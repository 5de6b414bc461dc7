package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"unclassified", fmt.Errorf("boom"), ExitGeneric},
		{"config", ConfigError{Missing: []string{"CLIENT_SECRET"}}, ExitConfig},
		{"connectivity", ConnectivityError{Service: ServiceUAA, URL: "https://uaa.example.com", Err: context.DeadlineExceeded}, ExitConnectivity},
		{"auth", AuthError{Service: ServiceUAA, StatusCode: 401}, ExitAuth},
		{"not found", NotFoundError{ClientID: "concourse_client"}, ExitNotFound},
		{"update uaa", UpdateError{Stage: StageUpdateUAA, Service: ServiceUAA, StatusCode: 500}, ExitUpdateUAA},
		{"update credhub", UpdateError{Stage: StageUpdateCredHub, Service: ServiceCredHub, StatusCode: 500}, ExitUpdateCredHub},
		{"verify", VerificationError{ClientID: "concourse_client", StatusCode: 401}, ExitVerify},
		{"timeout", TimeoutError{Stage: StageVerify, Elapsed: time.Minute}, ExitTimeout},
		{"rollback", RollbackError{Cause: UpdateError{Stage: StageUpdateCredHub, Service: ServiceCredHub, StatusCode: 500}, RollbackErr: fmt.Errorf("restore rejected")}, ExitRollback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestStageOfWrappedError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("during rotation: %w", AuthError{Service: ServiceCredHub, StatusCode: 403})
	assert.Equal(t, StageAuth, StageOf(err))
	assert.Equal(t, ExitAuth, ExitCode(err))
}

func TestRollbackErrorWinsOverItsCause(t *testing.T) {
	t.Parallel()

	// RollbackError unwraps to the original failure; classification must
	// still report the rollback failure, not the cause.
	err := RollbackError{
		Cause:       AuthError{Service: ServiceCredHub, StatusCode: 401},
		RollbackErr: fmt.Errorf("restore rejected"),
	}
	assert.Equal(t, StageRollback, StageOf(err))
	assert.Equal(t, ExitRollback, ExitCode(err))
}

func TestInconsistent(t *testing.T) {
	t.Parallel()

	assert.False(t, Inconsistent(nil))
	assert.False(t, Inconsistent(AuthError{Service: ServiceUAA, StatusCode: 401}))
	assert.False(t, Inconsistent(UpdateError{Stage: StageUpdateUAA, Service: ServiceUAA, StatusCode: 500}))

	assert.True(t, Inconsistent(UpdateError{Stage: StageUpdateCredHub, Service: ServiceCredHub, StatusCode: 500}))
	assert.True(t, Inconsistent(VerificationError{ClientID: "concourse_client"}))
	assert.True(t, Inconsistent(RollbackError{Cause: VerificationError{ClientID: "c"}, RollbackErr: fmt.Errorf("x")}))
}

func TestConfigErrorListsAllMissingFields(t *testing.T) {
	t.Parallel()

	err := ConfigError{
		Missing:    []string{"CLIENT_SECRET", "CREDHUB_SECRET"},
		Suggestion: "Set them in the environment or an --env-file",
	}
	msg := err.Error()
	assert.Contains(t, msg, "CLIENT_SECRET")
	assert.Contains(t, msg, "CREDHUB_SECRET")
	assert.Contains(t, msg, "Set them in the environment")
}

func TestUpdateErrorMentionsInconsistencyOnlyAfterUAAUpdate(t *testing.T) {
	t.Parallel()

	before := UpdateError{Stage: StageUpdateUAA, Service: ServiceUAA, StatusCode: 500}
	assert.NotContains(t, before.Error(), "INCONSISTENT")

	after := UpdateError{Stage: StageUpdateCredHub, Service: ServiceCredHub, StatusCode: 500}
	assert.Contains(t, after.Error(), "INCONSISTENT")
}

func TestRollbackErrorSurfacesBothFailures(t *testing.T) {
	t.Parallel()

	cause := UpdateError{Stage: StageUpdateCredHub, Service: ServiceCredHub, StatusCode: 502}
	err := RollbackError{Cause: cause, RollbackErr: fmt.Errorf("UAA rejected the restore")}

	msg := err.Error()
	assert.Contains(t, msg, "502")
	assert.Contains(t, msg, "UAA rejected the restore")
}

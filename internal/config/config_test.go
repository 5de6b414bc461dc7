package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
)

// clearEnv blanks every variable Load reads so tests are hermetic
// regardless of the invoking shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"UAA_URL", "CREDHUB_URL", "CLIENT_ID", "CLIENT_SECRET",
		"TARGET_CLIENT", "CREDHUB_CLIENT", "CREDHUB_SECRET",
		"CREDHUB_PATH", "SKIP_TLS_VERIFY", "SECRET_LENGTH",
	} {
		// t.Setenv records the original value for cleanup; the follow-up
		// Unsetenv matters because godotenv will not override a variable
		// that exists, even when it is empty.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UAA_URL", "https://uaa.example.com")
	t.Setenv("CLIENT_SECRET", "admin-secret-value")
	t.Setenv("CREDHUB_SECRET", "credhub-secret-value")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	plan, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://uaa.example.com", plan.UAAURL)
	assert.Equal(t, "https://uaa.example.com", plan.CredHubURL, "CredHub URL defaults to the UAA URL")
	assert.Equal(t, DefaultClientID, plan.ClientID)
	assert.Equal(t, DefaultTargetClient, plan.TargetClient)
	assert.Equal(t, DefaultCredHubClient, plan.CredHubClient)
	assert.Equal(t, DefaultCredHubPath, plan.CredHubPath)
	assert.Equal(t, DefaultSecretLength, plan.SecretLength)
	assert.Equal(t, DefaultOverallTimeout, plan.OverallTimeout)
	assert.False(t, plan.SkipTLSVerify)
}

func TestLoadReportsAllMissingFieldsAtOnce(t *testing.T) {
	clearEnv(t)
	t.Setenv("UAA_URL", "https://uaa.example.com")

	_, err := Load(Options{})
	require.Error(t, err)

	var cfgErr roterrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Missing, "CLIENT_SECRET")
	assert.Contains(t, cfgErr.Missing, "CREDHUB_SECRET")
}

func TestLoadOptionsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("TARGET_CLIENT", "env_client")
	t.Setenv("CREDHUB_PATH", "/env/path")

	plan, err := Load(Options{
		TargetClient:   "cli_client",
		CredHubPath:    "/cli/path",
		OverallTimeout: 90 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "cli_client", plan.TargetClient)
	assert.Equal(t, "/cli/path", plan.CredHubPath)
	assert.Equal(t, 90*time.Second, plan.OverallTimeout)
}

func TestLoadSeparateCredHubURL(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("CREDHUB_URL", "https://credhub.example.com:8844")

	plan, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://credhub.example.com:8844", plan.CredHubURL)
}

func TestLoadPlanFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
uaa_url: https://uaa.file.example.com
client_secret: file-admin-secret
credhub_secret: file-credhub-secret
target_client: file_client
secret_length: 40
skip_tls_verify: true
`), 0o600))

	plan, err := Load(Options{PlanFile: path})
	require.NoError(t, err)

	assert.Equal(t, "https://uaa.file.example.com", plan.UAAURL)
	assert.Equal(t, "file_client", plan.TargetClient)
	assert.Equal(t, 40, plan.SecretLength)
	assert.True(t, plan.SkipTLSVerify)
}

func TestLoadEnvironmentBeatsPlanFile(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("TARGET_CLIENT", "env_client")

	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte("target_client: file_client\n"), 0o600))

	plan, err := Load(Options{PlanFile: path})
	require.NoError(t, err)
	assert.Equal(t, "env_client", plan.TargetClient)
}

func TestLoadRejectsMissingPlanFile(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	_, err := Load(Options{PlanFile: "/nonexistent/plan.yml"})
	var cfgErr roterrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "plan-file", cfgErr.Field)
}

func TestLoadRejectsInvalidURL(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("UAA_URL", "not a url")

	_, err := Load(Options{})
	var cfgErr roterrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "UAA_URL", cfgErr.Field)
}

func TestLoadRejectsShortSecretLength(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("SECRET_LENGTH", "10")

	_, err := Load(Options{})
	var cfgErr roterrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "SECRET_LENGTH", cfgErr.Field)
}

func TestLoadSkipTLSVerifyFromEnv(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("SKIP_TLS_VERIFY", "true")

	plan, err := Load(Options{})
	require.NoError(t, err)
	assert.True(t, plan.SkipTLSVerify)
}

func TestLoadSkipTLSVerifyFlagBeatsEnv(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("SKIP_TLS_VERIFY", "true")

	off := false
	plan, err := Load(Options{SkipTLSVerify: &off})
	require.NoError(t, err)
	assert.False(t, plan.SkipTLSVerify)
}

func TestLoadRejectsMalformedSkipTLSVerify(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("SKIP_TLS_VERIFY", "yes please")

	_, err := Load(Options{})
	var cfgErr roterrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "SKIP_TLS_VERIFY", cfgErr.Field)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "rotation.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"UAA_URL=https://uaa.envfile.example.com\n"+
			"CLIENT_SECRET=envfile-admin-secret\n"+
			"CREDHUB_SECRET=envfile-credhub-secret\n",
	), 0o600))

	plan, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "https://uaa.envfile.example.com", plan.UAAURL)
}

func TestSecretValues(t *testing.T) {
	t.Parallel()

	plan := Plan{ClientSecret: "a-secret", CredHubSecret: "b-secret"}
	assert.Equal(t, []string{"a-secret", "b-secret"}, plan.SecretValues())
}

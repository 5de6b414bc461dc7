// Package config builds the immutable rotation plan for a run. All inputs
// are read once at startup (flags > environment > plan file > defaults) and
// validated before any network call is made.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
)

// Defaults for optional configuration values.
const (
	DefaultClientID      = "admin"
	DefaultTargetClient  = "concourse_client"
	DefaultCredHubClient = "credhub_admin_client"
	DefaultCredHubPath   = "/concourse/main/uaa_client_secret"

	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultOverallTimeout = 60 * time.Second

	DefaultSecretLength = 32
	MinSecretLength     = 25
)

// Plan is the run's complete configuration. It is constructed once per
// invocation and never mutated afterwards.
type Plan struct {
	UAAURL     string
	CredHubURL string

	ClientID     string
	ClientSecret string

	TargetClient string

	CredHubClient string
	CredHubSecret string
	CredHubPath   string

	SkipTLSVerify bool

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	OverallTimeout time.Duration

	SecretLength int
}

// Options carries CLI-level overrides into Load. Zero values mean "not set".
type Options struct {
	EnvFile  string
	PlanFile string

	TargetClient   string
	CredHubPath    string
	SkipTLSVerify  *bool
	OverallTimeout time.Duration
}

// planFile is the optional YAML plan document. Field names mirror the
// environment variables.
type planFile struct {
	UAAURL        string `yaml:"uaa_url"`
	CredHubURL    string `yaml:"credhub_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	TargetClient  string `yaml:"target_client"`
	CredHubClient string `yaml:"credhub_client"`
	CredHubSecret string `yaml:"credhub_secret"`
	CredHubPath   string `yaml:"credhub_path"`
	SkipTLSVerify *bool  `yaml:"skip_tls_verify"`
	SecretLength  int    `yaml:"secret_length"`
}

// Load builds a Plan from the available configuration sources and validates
// it. Precedence: CLI options, then environment variables, then the optional
// plan file, then defaults.
func Load(opts Options) (Plan, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return Plan{}, roterrors.ConfigError{
				Field:      "env-file",
				Message:    fmt.Sprintf("cannot load %s: %v", opts.EnvFile, err),
				Suggestion: "Check the path passed to --env-file",
			}
		}
	} else {
		// Best-effort: a .env in the working directory is picked up when
		// present, matching local-development workflows.
		_ = godotenv.Load()
	}

	var file planFile
	if opts.PlanFile != "" {
		data, err := os.ReadFile(opts.PlanFile)
		if err != nil {
			return Plan{}, roterrors.ConfigError{
				Field:      "plan-file",
				Message:    fmt.Sprintf("cannot read %s: %v", opts.PlanFile, err),
				Suggestion: "Check the path passed to --plan-file",
			}
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Plan{}, roterrors.ConfigError{
				Field:      "plan-file",
				Message:    "invalid YAML in plan file",
				Suggestion: "Check for indentation errors and missing quotes",
			}
		}
	}

	plan := Plan{
		UAAURL:         firstOf(os.Getenv("UAA_URL"), file.UAAURL),
		CredHubURL:     firstOf(os.Getenv("CREDHUB_URL"), file.CredHubURL),
		ClientID:       firstOf(os.Getenv("CLIENT_ID"), file.ClientID, DefaultClientID),
		ClientSecret:   firstOf(os.Getenv("CLIENT_SECRET"), file.ClientSecret),
		TargetClient:   firstOf(opts.TargetClient, os.Getenv("TARGET_CLIENT"), file.TargetClient, DefaultTargetClient),
		CredHubClient:  firstOf(os.Getenv("CREDHUB_CLIENT"), file.CredHubClient, DefaultCredHubClient),
		CredHubSecret:  firstOf(os.Getenv("CREDHUB_SECRET"), file.CredHubSecret),
		CredHubPath:    firstOf(opts.CredHubPath, os.Getenv("CREDHUB_PATH"), file.CredHubPath, DefaultCredHubPath),
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		OverallTimeout: DefaultOverallTimeout,
		SecretLength:   DefaultSecretLength,
	}

	if file.SecretLength > 0 {
		plan.SecretLength = file.SecretLength
	}
	if v := os.Getenv("SECRET_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Plan{}, roterrors.ConfigError{
				Field:   "SECRET_LENGTH",
				Message: fmt.Sprintf("not a number: %q", v),
			}
		}
		plan.SecretLength = n
	}

	switch {
	case opts.SkipTLSVerify != nil:
		plan.SkipTLSVerify = *opts.SkipTLSVerify
	case os.Getenv("SKIP_TLS_VERIFY") != "":
		b, err := strconv.ParseBool(os.Getenv("SKIP_TLS_VERIFY"))
		if err != nil {
			return Plan{}, roterrors.ConfigError{
				Field:      "SKIP_TLS_VERIFY",
				Message:    fmt.Sprintf("not a boolean: %q", os.Getenv("SKIP_TLS_VERIFY")),
				Suggestion: "Use true or false",
			}
		}
		plan.SkipTLSVerify = b
	case file.SkipTLSVerify != nil:
		plan.SkipTLSVerify = *file.SkipTLSVerify
	}

	if opts.OverallTimeout > 0 {
		plan.OverallTimeout = opts.OverallTimeout
	}

	// CredHub commonly sits behind the same authorization server.
	if plan.CredHubURL == "" {
		plan.CredHubURL = plan.UAAURL
	}

	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Validate checks every required field and reports all missing values at
// once. It performs no network calls.
func (p Plan) Validate() error {
	var missing []string
	if p.UAAURL == "" {
		missing = append(missing, "UAA_URL")
	}
	if p.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if p.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if p.TargetClient == "" {
		missing = append(missing, "TARGET_CLIENT")
	}
	if p.CredHubClient == "" {
		missing = append(missing, "CREDHUB_CLIENT")
	}
	if p.CredHubSecret == "" {
		missing = append(missing, "CREDHUB_SECRET")
	}
	if p.CredHubPath == "" {
		missing = append(missing, "CREDHUB_PATH")
	}
	if len(missing) > 0 {
		return roterrors.ConfigError{
			Missing:    missing,
			Suggestion: "Set the listed environment variables or provide them in a plan file",
		}
	}

	for _, u := range []struct{ name, value string }{
		{"UAA_URL", p.UAAURL},
		{"CREDHUB_URL", p.CredHubURL},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return roterrors.ConfigError{
				Field:      u.name,
				Message:    fmt.Sprintf("not a valid URL: %q", u.value),
				Suggestion: "Use an absolute URL like https://uaa.example.com",
			}
		}
	}

	if p.SecretLength < MinSecretLength {
		return roterrors.ConfigError{
			Field:      "SECRET_LENGTH",
			Message:    fmt.Sprintf("must be at least %d, got %d", MinSecretLength, p.SecretLength),
			Suggestion: fmt.Sprintf("Leave unset to use the default of %d", DefaultSecretLength),
		}
	}

	return nil
}

// SecretValues returns every configured secret value for redaction of
// response bodies. The freshly generated secret is appended by the
// orchestrator once it exists.
func (p Plan) SecretValues() []string {
	return []string{p.ClientSecret, p.CredHubSecret}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/uaa-rotate/internal/rotation"
)

// NewRotateCommand creates the rotate command, the main entry point of the
// tool.
func NewRotateCommand(opts *GlobalOptions) *cobra.Command {
	var (
		flags     planFlags
		dryRun    bool
		noMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "rotate [TARGET_CLIENT [CREDHUB_PATH]]",
		Short: "Rotate the target client's secret and mirror it into CredHub",
		Long: `Rotate the secret of a UAA OAuth2 client and mirror the new value into
a CredHub password credential.

The workflow runs these stages in order, stopping at the first failure:

  1. validate configuration (no network calls)
  2. probe UAA connectivity
  3. acquire an admin token from UAA
  4. generate a new high-entropy secret
  5. fetch the target client's configuration
  6. update the client secret in UAA
  7. mirror the secret into CredHub (separate client identity)
  8. verify the new secret with a fresh token grant

UAA is updated before CredHub so CredHub only ever reflects a secret UAA
has accepted. If the CredHub write or the verification fails after UAA was
updated, a best-effort rollback re-applies the previous secret.

Configuration comes from environment variables (UAA_URL, CLIENT_ID,
CLIENT_SECRET, TARGET_CLIENT, CREDHUB_CLIENT, CREDHUB_SECRET,
CREDHUB_PATH, CREDHUB_URL, SKIP_TLS_VERIFY), an optional .env file, or a
YAML plan file. Positional arguments override the target client and the
CredHub path.

Each failure stage maps to a distinct exit code (2 config, 3 connectivity,
4 auth, 5 client not found, 6 UAA update, 7 CredHub update, 8 verification,
9 deadline exceeded, 10 rollback failed).

Examples:
  # Rotate the client named in TARGET_CLIENT
  uaa-rotate rotate

  # Rotate a specific client into a specific CredHub path
  uaa-rotate rotate my-app /my-app/uaa_client_secret

  # Check configuration, connectivity and credentials without changing anything
  uaa-rotate rotate --dry-run`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(flags, cmd.Flags().Changed("skip-tls-verify"), args)
			if err != nil {
				return err
			}

			if !noMetrics {
				rotation.InitMetrics()
			}

			orch := rotation.New(plan, opts.Logger)
			result := orch.Rotate(cmd.Context(), dryRun)

			switch result.Status {
			case rotation.StatusCompleted:
				opts.Logger.Info("Rotation %s completed in %s", result.RunID, result.Duration.Round(time.Millisecond))
				return nil
			case rotation.StatusPlanned:
				return nil
			default:
				if result.Inconsistent {
					opts.Logger.Error("UAA and CredHub may now DISAGREE about the current secret; do not ignore this failure")
				}
				return result.Err
			}
		},
	}

	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file")
	cmd.Flags().StringVar(&flags.planFile, "plan-file", "", "Load configuration from this YAML file")
	cmd.Flags().BoolVar(&flags.skipTLSVerify, "skip-tls-verify", false, "Disable TLS certificate verification (logged loudly)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Overall run deadline (default 60s)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate, probe and authenticate, but change nothing")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Skip Prometheus metric registration")

	return cmd
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/httpx"
	"github.com/systmms/uaa-rotate/internal/rotation"
)

// NewDoctorCommand creates the doctor command, which checks configuration
// and connectivity without mutating anything.
func NewDoctorCommand(opts *GlobalOptions) *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, connectivity and credentials",
		Long: `Verify that a rotation would have what it needs:

- all required configuration values are present
- UAA (and CredHub, when it has its own URL) answer at the transport level
- the admin and CredHub client identities obtain tokens

Nothing is mutated. The first failing check determines the exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.Logger

			plan, err := loadPlan(flags, cmd.Flags().Changed("skip-tls-verify"), nil)
			if err != nil {
				logger.Error("Configuration: %v", err)
				return err
			}
			logger.Info("Configuration complete (target client %s, CredHub path %s)", plan.TargetClient, plan.CredHubPath)

			if plan.SkipTLSVerify {
				logger.Warn("TLS certificate verification is DISABLED")
			}

			ctx := cmd.Context()
			client := httpx.NewClient(plan.SkipTLSVerify, plan.ConnectTimeout, plan.RequestTimeout)

			if err := httpx.Probe(ctx, client, roterrors.ServiceUAA, plan.UAAURL, logger); err != nil {
				logger.Error("UAA unreachable: %v", err)
				return err
			}
			logger.Info("UAA reachable at %s", plan.UAAURL)

			if plan.CredHubURL != plan.UAAURL {
				if err := httpx.Probe(ctx, client, roterrors.ServiceCredHub, plan.CredHubURL, logger); err != nil {
					logger.Error("CredHub unreachable: %v", err)
					return err
				}
				logger.Info("CredHub reachable at %s", plan.CredHubURL)
			}

			orch := rotation.New(plan, logger)
			if _, err := orch.UAA().Token(ctx, roterrors.ServiceUAA, plan.ClientID, plan.ClientSecret, true); err != nil {
				logger.Error("Admin token grant failed: %v", err)
				return err
			}
			logger.Info("Admin client %s authenticates", plan.ClientID)

			if _, err := orch.UAA().Token(ctx, roterrors.ServiceCredHub, plan.CredHubClient, plan.CredHubSecret, true); err != nil {
				logger.Error("CredHub token grant failed: %v", err)
				return err
			}
			logger.Info("CredHub client %s authenticates", plan.CredHubClient)

			fmt.Println("All checks passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file")
	cmd.Flags().StringVar(&flags.planFile, "plan-file", "", "Load configuration from this YAML file")
	cmd.Flags().BoolVar(&flags.skipTLSVerify, "skip-tls-verify", false, "Disable TLS certificate verification (logged loudly)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Overall run deadline (default 60s)")

	return cmd
}

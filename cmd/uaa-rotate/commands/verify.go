package commands

import (
	"github.com/spf13/cobra"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/rotation"
)

// NewVerifyCommand creates the verify command: a read-only consistency
// check between the two stores.
func NewVerifyCommand(opts *GlobalOptions) *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "verify [TARGET_CLIENT [CREDHUB_PATH]]",
		Short: "Check that the secret stored in CredHub authenticates against UAA",
		Long: `Read the current password credential from CredHub and attempt a
client-credentials token grant with it for the target client.

This is the remediation probe for a rotation that failed after updating
UAA: if verify fails, CredHub's mirrored value no longer matches the
secret UAA expects, and consumers reading CredHub will start failing.
Nothing is mutated by this command.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(flags, cmd.Flags().Changed("skip-tls-verify"), args)
			if err != nil {
				return err
			}

			orch := rotation.New(plan, opts.Logger)
			ctx := cmd.Context()

			credhubToken, err := orch.UAA().Token(ctx, roterrors.ServiceCredHub, plan.CredHubClient, plan.CredHubSecret, false)
			if err != nil {
				return err
			}

			value, err := orch.CredHub().GetPassword(ctx, credhubToken, plan.CredHubPath)
			if err != nil {
				return err
			}

			if _, err := orch.UAA().Token(ctx, roterrors.ServiceUAA, plan.TargetClient, value, true); err != nil {
				opts.Logger.Error("The secret stored at %s does NOT authenticate client %s", plan.CredHubPath, plan.TargetClient)
				return err
			}

			opts.Logger.Info("The secret stored at %s authenticates client %s", plan.CredHubPath, plan.TargetClient)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file")
	cmd.Flags().StringVar(&flags.planFile, "plan-file", "", "Load configuration from this YAML file")
	cmd.Flags().BoolVar(&flags.skipTLSVerify, "skip-tls-verify", false, "Disable TLS certificate verification (logged loudly)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Overall run deadline (default 60s)")

	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/uaa-rotate/cmd/uaa-rotate/commands"
	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe every secret enclave before the process exits.
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.Purge()
		os.Exit(roterrors.ExitCode(err))
	}
}

func run() error {
	var (
		noColor bool
		debug   bool
	)

	opts := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "uaa-rotate",
		Short: "Rotate a UAA client secret and mirror it into CredHub",
		Long: `uaa-rotate replaces the secret of an OAuth2 client registered in UAA
with a freshly generated high-entropy value, mirrors the new value into a
CredHub password credential, and verifies the new secret by requesting a
token with it.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewRotateCommand(opts),
		commands.NewVerifyCommand(opts),
		commands.NewDoctorCommand(opts),
		commands.NewCompletionCommand(opts),
	)

	return rootCmd.Execute()
}

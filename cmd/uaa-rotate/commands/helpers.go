package commands

import (
	"time"

	"github.com/systmms/uaa-rotate/internal/config"
	"github.com/systmms/uaa-rotate/internal/logging"
)

// GlobalOptions carries state shared by all commands, populated by the root
// command's persistent flags.
type GlobalOptions struct {
	Logger *logging.Logger
}

// planFlags are the configuration flags shared by commands that build a
// rotation plan.
type planFlags struct {
	envFile       string
	planFile      string
	skipTLSVerify bool
	timeout       time.Duration
}

// loadPlan builds the immutable plan from flags, environment and files.
// Positional args, when present, override target client and CredHub path.
func loadPlan(flags planFlags, skipTLSSet bool, args []string) (config.Plan, error) {
	opts := config.Options{
		EnvFile:        flags.envFile,
		PlanFile:       flags.planFile,
		OverallTimeout: flags.timeout,
	}
	if skipTLSSet {
		v := flags.skipTLSVerify
		opts.SkipTLSVerify = &v
	}
	if len(args) > 0 {
		opts.TargetClient = args[0]
	}
	if len(args) > 1 {
		opts.CredHubPath = args[1]
	}
	return config.Load(opts)
}

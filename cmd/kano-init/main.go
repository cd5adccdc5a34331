// Command kano-init runs the first-boot onboarding on the console and
// manages the maintenance tasks scheduled for the next boot.
package main

import (
	"errors"
	"fmt"
	"os"

	"kanoinit/internal/canvas"
	"kanoinit/internal/challenge"
	"kanoinit/internal/config"
	"kanoinit/internal/logging"
	"kanoinit/internal/status"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes.
const (
	exitSuccess          = 0
	exitIncorrectArgs    = 1
	exitWrongPermissions = 2
	exitChallengeFailed  = 3
	exitRenderFailure    = 4
	exitTaskConflict     = 5
	exitOther            = 6
)

var (
	// Global flags
	verbose    bool
	configPath string
	dryRun     bool

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE
	appConfig *config.Config
)

var (
	errUsage           = errors.New("incorrect arguments")
	errPermission      = errors.New("must be run as root")
	errChallengeFailed = errors.New("challenge failed")
)

// usageError marks err as a command-line mistake.
func usageError(err error) error {
	return fmt.Errorf("%w: %v", errUsage, err)
}

var rootCmd = &cobra.Command{
	Use:   "kano-init",
	Short: "First-boot onboarding for Kano computers",
	Long: `kano-init walks a new owner through the console onboarding: a few
terminal animations and challenges that end with their account created and
the desktop starting.

The current stage is persisted, so an interrupted onboarding resumes where it
stopped. Maintenance tasks (reset, add-user, delete-user) are scheduled here
and run on the next boot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		appConfig, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dryRun {
			appConfig.System.DryRun = true
		}
		if verbose {
			appConfig.Logging.DebugMode = true
		}
		if err := logging.Initialize(appConfig.ToLogging()); err != nil {
			// The log dir is root-owned; commands still work without it.
			logger.Debug("file logging disabled", zap.Error(err))
		}
		logging.Boot("kano-init %s", cmd.CommandPath())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log system changes instead of making them")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(finaliseCmd)
	rootCmd.AddCommand(challengeCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kano-init: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errUsage), errors.Is(err, status.ErrUnknownStage):
		return exitIncorrectArgs
	case errors.Is(err, errPermission), errors.Is(err, os.ErrPermission):
		return exitWrongPermissions
	case errors.Is(err, errChallengeFailed), errors.Is(err, challenge.ErrEnvironment):
		return exitChallengeFailed
	case errors.Is(err, canvas.ErrRenderFailure):
		return exitRenderFailure
	case errors.Is(err, status.ErrTaskConflict):
		return exitTaskConflict
	}
	return exitOther
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// rangeArgs is cobra.RangeArgs reporting a usage error.
func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kanoinit/internal/canvas"
	"kanoinit/internal/challenge"
	"kanoinit/internal/config"
	"kanoinit/internal/flow"
	"kanoinit/internal/i18n"
	"kanoinit/internal/logging"
	"kanoinit/internal/status"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	// run flags
	noDesktop bool
)

// openCanvas takes over the terminal. Tests replace it with a simulation.
var openCanvas = canvas.Open

// isTerminal reports whether stdin is a terminal. Tests replace it.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var runCmd = &cobra.Command{
	Use:   "run [stage]",
	Short: "Run the onboarding, or the task scheduled for this boot",
	Long: `Without arguments, run resumes whatever the persisted stage calls for:
a scheduled maintenance task, the rest of the onboarding flow, or nothing once
onboarding is done.

With a stage name, the onboarding flow is run from that stage regardless of
what was persisted.`,
	Args: rangeArgs(0, 1),
	RunE: runOnboarding,
}

func init() {
	runCmd.Flags().BoolVar(&noDesktop, "no-desktop", false, "Do not start the display manager when the flow completes")
}

func runOnboarding(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if err := requireRoot(cfg); err != nil {
		return err
	}

	from := status.Stage("")
	if len(args) == 1 {
		st, err := status.ParseStage(args[0])
		if err != nil {
			return err
		}
		if !st.IsFlow() {
			return usageError(fmt.Errorf("%s is not an onboarding stage", st))
		}
		from = st
	}

	params, err := config.LoadFlowParams(cfg.Paths.BootConfig)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("ignoring boot parameters: %v", err)
		params = config.FlowParams{}
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := flow.Deps{
		System:       a.system,
		Params:       params,
		Printer:      printerFor(cfg),
		RainDuration: cfg.GetRainDuration(),
		BombTarget:   cfg.UX.BombTarget,
		RabbitCycles: cfg.UX.RabbitCycles,
	}

	target := from
	if target == "" {
		target = a.store.Stage()
	}
	closeEnv := func() {}
	if !params.Skip && (target.IsFlow() || target == status.StageAddUser) {
		env, closeCanvas, err := openEnv(cfg)
		if err != nil {
			return err
		}
		defer closeCanvas()
		closeEnv = closeCanvas
		deps.Env = env
	}

	seq := a.sequencer(flow.NewHandlers(deps), !noDesktop)
	report, err := runSequencer(ctx, seq, from)

	// Nothing may reach the terminal while the canvas owns it.
	closeEnv()
	logger.Info("run finished",
		zap.String("final", string(report.Final)),
		zap.Int("completed", len(report.Completed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Bool("reboot", report.Reboot),
		zap.Error(err))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, st := range report.Skipped {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("skipped %s: terminal too small", st)))
	}
	if report.Reboot {
		fmt.Fprintln(out, noticeStyle.Render(fmt.Sprintf("Reboot to continue at %s.", report.Final)))
	}
	return nil
}

// runSequencer recovers from a panic in a handler so the terminal is
// restored by the deferred close before the process dies.
func runSequencer(ctx context.Context, seq *flow.Sequencer, from status.Stage) (report flow.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryFlow).Error("panic during %s: %v", seq.CurrentStage(), r)
			err = fmt.Errorf("panic during %s: %v", seq.CurrentStage(), r)
		}
	}()
	if from != "" {
		return seq.RunFrom(ctx, from)
	}
	return seq.Run(ctx)
}

// openEnv takes over the terminal for the challenges.
func openEnv(cfg *config.Config) (*challenge.Env, func(), error) {
	if !isTerminal() {
		return nil, nil, fmt.Errorf("%w: stdin is not a terminal", canvas.ErrRenderFailure)
	}
	cv, err := openCanvas()
	if err != nil {
		return nil, nil, err
	}
	env := &challenge.Env{
		Canvas: cv,
		Assets: assetLoader(cfg),
		Speed:  cfg.GetSpeedFactor(),
	}
	return env, cv.Close, nil
}

// printerFor picks the configured language, falling back to English.
func printerFor(cfg *config.Config) *i18n.Printer {
	p, err := i18n.New(cfg.UX.Language)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("language %q unavailable: %v", cfg.UX.Language, err)
		return i18n.Default()
	}
	return p
}

// Package flow drives onboarding through its stages. The Sequencer owns the
// order and the persisted checkpoint; stage handlers own what each stage
// shows and provisions.
package flow

import (
	"context"
	"errors"
	"fmt"

	"kanoinit/internal/challenge"
	"kanoinit/internal/journal"
	"kanoinit/internal/logging"
	"kanoinit/internal/status"
	"kanoinit/internal/system"
)

// ErrNothingToFinalise is returned by Finalise outside the ui-init stage.
var ErrNothingToFinalise = errors.New("onboarding is not waiting to be finalised")

// Outcome tells the sequencer what to do after a handler.
type Outcome int

const (
	// OutcomeNext continues with the following stage.
	OutcomeNext Outcome = iota
	// OutcomeReboot persists the following stage and stops the run.
	OutcomeReboot
)

// Step is the handler's view of the stage being run.
type Step struct {
	Stage status.Stage
	seq   *Sequencer
}

// Username returns the persisted username, if any.
func (s *Step) Username() string {
	return s.seq.store.Status().User()
}

// SetUsername persists name without leaving the stage.
func (s *Step) SetUsername(name string) error {
	return s.seq.store.AdvanceTo(s.Stage, status.WithUsername(name))
}

// Handler runs one flow stage.
type Handler func(ctx context.Context, step *Step) (Outcome, error)

// Handlers maps each flow stage to its handler. Stages without one are
// passed through.
type Handlers map[status.Stage]Handler

// Options configures a Sequencer.
type Options struct {
	// System runs maintenance tasks and the display manager hand-over. A
	// zero value disables them.
	System system.Collaborators
	// Journal receives every transition when set.
	Journal *journal.Run
	// StartDisplayManager starts the display manager once the flow reaches
	// ui-init.
	StartDisplayManager bool
}

// Report summarises a run.
type Report struct {
	Completed []status.Stage
	Skipped   []status.Stage
	// Reboot is set when the run stopped so the device can reboot.
	Reboot bool
	Final  status.Stage
}

// Sequencer advances the persisted stage through the fixed flow order.
type Sequencer struct {
	store    *status.Store
	handlers Handlers
	opts     Options
}

// New creates a Sequencer over store.
func New(store *status.Store, handlers Handlers, opts Options) *Sequencer {
	if opts.Journal != nil {
		run := opts.Journal
		store.SetRecorder(func(from, to status.Status) {
			run.Record(string(from.Stage), string(to.Stage), to.User())
		})
	}
	return &Sequencer{store: store, handlers: handlers, opts: opts}
}

// CurrentStage returns the persisted stage.
func (s *Sequencer) CurrentStage() status.Stage {
	return s.store.Stage()
}

// Status returns the persisted record.
func (s *Sequencer) Status() status.Status {
	return s.store.Status()
}

// AdvanceTo persists stage. Repeating the same call changes nothing.
func (s *Sequencer) AdvanceTo(stage status.Stage, opts ...status.Option) error {
	return s.store.AdvanceTo(stage, opts...)
}

// RunFrom runs the flow stages from stage onwards. Each stage is persisted
// before its handler runs so an interrupted run resumes there. A handler
// failing with an environment error is logged and skipped; any other error
// stops the run.
func (s *Sequencer) RunFrom(ctx context.Context, stage status.Stage) (Report, error) {
	stages, err := status.FlowFrom(stage)
	if err != nil {
		return Report{Final: s.CurrentStage()}, err
	}
	logging.Flow("running flow from %s", stage)

	var report Report
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			report.Final = s.CurrentStage()
			return report, err
		}
		if err := s.store.AdvanceTo(st); err != nil {
			report.Final = s.CurrentStage()
			return report, err
		}

		h := s.handlers[st]
		if h == nil {
			logging.FlowDebug("no handler for %s, passing through", st)
			report.Completed = append(report.Completed, st)
			continue
		}

		outcome, err := h(ctx, &Step{Stage: st, seq: s})
		if err != nil {
			if errors.Is(err, challenge.ErrEnvironment) {
				logging.Get(logging.CategoryFlow).Warn("stage %s skipped: %v", st, err)
				report.Skipped = append(report.Skipped, st)
				continue
			}
			report.Final = s.CurrentStage()
			return report, fmt.Errorf("stage %s: %w", st, err)
		}
		report.Completed = append(report.Completed, st)

		if outcome == OutcomeReboot {
			next := status.StageUIInit
			if i+1 < len(stages) {
				next = stages[i+1]
			}
			if err := s.store.AdvanceTo(next); err != nil {
				report.Final = s.CurrentStage()
				return report, err
			}
			logging.Flow("stage %s requested a reboot, resuming at %s", st, next)
			report.Reboot = true
			report.Final = next
			return report, nil
		}
	}

	if err := s.store.AdvanceTo(status.StageUIInit); err != nil {
		report.Final = s.CurrentStage()
		return report, err
	}
	report.Final = status.StageUIInit
	logging.Flow("flow complete, handing over to the desktop")

	if s.opts.StartDisplayManager && s.opts.System.Services != nil {
		if err := s.opts.System.Services.StartDM(ctx); err != nil {
			return report, fmt.Errorf("starting display manager: %w", err)
		}
	}
	return report, nil
}

// Run resumes whatever the persisted stage calls for: a pending maintenance
// task, the flow, or nothing.
func (s *Sequencer) Run(ctx context.Context) (Report, error) {
	st := s.store.Status()
	logging.Flow("run at stage %s", st.Stage)

	switch st.Stage {
	case status.StageDisabled, status.StageUIInit:
		return Report{Final: st.Stage}, nil

	case status.StageReset:
		if err := s.reset(ctx); err != nil {
			return Report{Final: s.CurrentStage()}, err
		}
		return Report{Reboot: true, Final: s.CurrentStage()}, nil

	case status.StageAddUser:
		if err := s.store.AdvanceTo(status.StageUsername, status.ClearUsername()); err != nil {
			return Report{Final: s.CurrentStage()}, err
		}
		return s.RunFrom(ctx, status.StageUsername)

	case status.StageDeleteUser:
		if err := s.deleteUser(ctx, st.User()); err != nil {
			return Report{Final: s.CurrentStage()}, err
		}
		return Report{Final: s.CurrentStage()}, nil
	}

	return s.RunFrom(ctx, st.Stage)
}

func (s *Sequencer) reset(ctx context.Context) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	logging.Flow("restoring factory settings")
	if err := sys.Provisioner.RestoreFactorySettings(ctx); err != nil {
		return fmt.Errorf("restoring factory settings: %w", err)
	}
	if err := sys.Provisioner.DeleteAllUsers(ctx); err != nil {
		return fmt.Errorf("deleting users: %w", err)
	}
	if err := sys.ReconfigureAutostart(ctx); err != nil {
		return fmt.Errorf("reconfiguring autostart: %w", err)
	}
	return s.store.AdvanceTo(status.StageAddUser, status.ClearUsername())
}

func (s *Sequencer) deleteUser(ctx context.Context, name string) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	if name != "" && sys.Provisioner.UserExists(name) {
		if err := sys.Provisioner.DeleteUser(ctx, name); err != nil {
			return err
		}
	} else {
		logging.Get(logging.CategoryFlow).Warn("attempt to delete nonexistent user %q", name)
	}
	if err := sys.ReconfigureAutostart(ctx); err != nil {
		return fmt.Errorf("reconfiguring autostart: %w", err)
	}
	return s.store.AdvanceTo(status.StageDisabled, status.ClearUsername())
}

// Schedule records a maintenance task for the next boot and prepares the
// device to boot into it. Only one task may be pending at a time.
func (s *Sequencer) Schedule(ctx context.Context, task status.Stage, username string) error {
	switch task {
	case status.StageReset, status.StageAddUser:
		username = ""
	case status.StageDeleteUser:
		if username == "" {
			return fmt.Errorf("%s needs a username", task)
		}
	default:
		return fmt.Errorf("%q is not a schedulable task", task)
	}

	sys, err := s.system()
	if err != nil {
		return err
	}
	if err := s.store.Schedule(task, username); err != nil {
		return err
	}
	logging.Flow("%s scheduled for the next boot", task)

	if err := sys.PrepareForTask(ctx); err != nil {
		return fmt.Errorf("preparing for %s: %w", task, err)
	}
	return nil
}

// Finalise closes onboarding once the graphical flow is done: the login
// policy is recomputed and the record returns to disabled.
func (s *Sequencer) Finalise(ctx context.Context) error {
	if st := s.CurrentStage(); st != status.StageUIInit {
		return fmt.Errorf("%w (stage is %s)", ErrNothingToFinalise, st)
	}
	sys, err := s.system()
	if err != nil {
		return err
	}
	if err := sys.ReconfigureAutostart(ctx); err != nil {
		return fmt.Errorf("reconfiguring autostart: %w", err)
	}
	logging.Flow("onboarding finalised")
	return s.store.AdvanceTo(status.StageDisabled, status.ClearUsername())
}

func (s *Sequencer) system() (system.Collaborators, error) {
	sys := s.opts.System
	if sys.Provisioner == nil || sys.Config == nil || sys.Services == nil {
		return sys, errors.New("system collaborators not configured")
	}
	return sys, nil
}

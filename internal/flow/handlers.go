package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kanoinit/internal/challenge"
	"kanoinit/internal/config"
	"kanoinit/internal/i18n"
	"kanoinit/internal/logging"
	"kanoinit/internal/status"
	"kanoinit/internal/system"
	"kanoinit/internal/username"
)

// Holds between the pieces of a stage, before speed scaling.
const (
	messageHold  = 2 * time.Second
	tryAgainWait = 1 * time.Second
	loveHold     = 3 * time.Second
)

// Deps is everything the stage handlers need.
type Deps struct {
	// Env runs the challenges. It may be nil when Params.Skip is set.
	Env     *challenge.Env
	System  system.Collaborators
	Params  config.FlowParams
	Printer *i18n.Printer

	RainDuration time.Duration
	BombTarget   string
	RabbitCycles int
}

// NewHandlers builds the handler of every flow stage.
func NewHandlers(d Deps) Handlers {
	if d.Printer == nil {
		d.Printer = i18n.Default()
	}
	if d.RainDuration <= 0 {
		d.RainDuration = 2 * time.Second
	}
	if d.BombTarget == "" {
		d.BombTarget = "startx"
	}
	if d.RabbitCycles <= 0 {
		d.RabbitCycles = 1
	}
	h := &handlers{Deps: d}
	return Handlers{
		status.StageUsername: h.username,
		status.StageLightup:  h.lightup,
		status.StageSwitches: h.switches,
		status.StageLetters:  h.letters,
		status.StageRabbit:   h.rabbit,
		status.StageLove:     h.love,
	}
}

type handlers struct {
	Deps
}

func (h *handlers) interactive() bool {
	return !h.Params.Skip && h.Env != nil
}

// decoration swallows environment errors from decorative challenges.
func decoration(name string, err error) error {
	if errors.Is(err, challenge.ErrEnvironment) {
		logging.Get(logging.CategoryFlow).Warn("%s skipped: %v", name, err)
		return nil
	}
	return err
}

func (h *handlers) say(ctx context.Context, lines ...string) error {
	err := challenge.Message(ctx, h.Env, challenge.MessageConfig{Lines: lines, Hold: messageHold})
	return decoration("message", err)
}

// username creates the account. The name comes from the boot parameters
// when preset or in skip mode, otherwise from the dialogue.
func (h *handlers) username(ctx context.Context, step *Step) (Outcome, error) {
	prov := h.System.Provisioner
	if prov == nil {
		return OutcomeNext, errors.New("no provisioner configured")
	}

	if name := step.Username(); name != "" && prov.UserExists(name) {
		logging.Flow("user %s already created, resuming", name)
		return OutcomeNext, nil
	}

	var name string
	switch {
	case h.Params.Skip || h.Params.User != "":
		name = username.MakeUnique(h.Params.User, prov.UserExists)
		logging.Flow("username preset to %s", name)
		if h.interactive() {
			if err := decoration("rain", challenge.Rain(ctx, h.Env, challenge.RainConfig{Duration: h.RainDuration, Face: true})); err != nil {
				return OutcomeNext, err
			}
		}
	default:
		if err := decoration("rain", challenge.Rain(ctx, h.Env, challenge.RainConfig{Duration: h.RainDuration, Face: true})); err != nil {
			return OutcomeNext, err
		}
		var err error
		if name, err = h.askName(ctx, prov.UserExists); err != nil {
			return OutcomeNext, err
		}
	}

	if err := prov.CreateUser(ctx, name); err != nil {
		return OutcomeNext, fmt.Errorf("creating user %s: %w", name, err)
	}
	return OutcomeNext, step.SetUsername(name)
}

// localized carries a validation error with its translated message.
type localized struct {
	err error
	msg string
}

func (l *localized) Error() string { return l.msg }
func (l *localized) Unwrap() error { return l.err }

// validator checks a typed name and translates the rejection.
func (h *handlers) validator(exists username.ExistsFunc) challenge.Validator {
	return func(line string) (string, error) {
		name, err := username.Validate(line, exists)
		var verr *username.ValidationError
		if errors.As(err, &verr) {
			return "", &localized{err: err, msg: verr.Message(h.Printer)}
		}
		return name, err
	}
}

// askName runs the naming dialogue, falling back to the compact layout on
// small terminals. The name cannot be skipped, so a terminal too small for
// both layouts is a hard failure.
func (h *handlers) askName(ctx context.Context, exists username.ExistsFunc) (string, error) {
	p := h.Printer
	cfg := challenge.DialogueConfig{
		Script: []string{
			p.Sprintf(i18n.Hello), "",
			p.Sprintf(i18n.Introduction) + string(challenge.Pause), "",
			p.Sprintf(i18n.AskName), "",
		},
		Prompt:   p.Sprintf(i18n.NamePrompt),
		Validate: h.validator(exists),
	}

	name, err := challenge.Dialogue(ctx, h.Env, cfg)
	if errors.Is(err, challenge.ErrEnvironment) {
		logging.Get(logging.CategoryFlow).Warn("dialogue does not fit, trying compact: %v", err)
		cfg.Compact = true
		name, err = challenge.Dialogue(ctx, h.Env, cfg)
	}
	if errors.Is(err, challenge.ErrEnvironment) {
		return "", fmt.Errorf("terminal too small to ask for a username: %v", err)
	}
	return name, err
}

func (h *handlers) lightup(ctx context.Context, step *Step) (Outcome, error) {
	if !h.interactive() {
		return OutcomeNext, nil
	}
	return OutcomeNext, decoration("loading", challenge.Loading(ctx, h.Env))
}

func (h *handlers) switches(ctx context.Context, step *Step) (Outcome, error) {
	if !h.interactive() {
		return OutcomeNext, nil
	}
	err := challenge.Binary(ctx, h.Env, challenge.BinaryConfig{
		Title:  h.Printer.Sprintf(i18n.SwitchesTitle),
		Prompt: h.Printer.Sprintf(i18n.SwitchesPrompt),
	})
	return OutcomeNext, decoration("switches", err)
}

// letters repeats the bomb until it is defused.
func (h *handlers) letters(ctx context.Context, step *Step) (Outcome, error) {
	if !h.interactive() {
		return OutcomeNext, nil
	}
	cfg := challenge.BombConfig{
		Target: h.BombTarget,
		Lead:   h.Printer.Sprintf(i18n.BombLead, step.Username()),
		Tail:   h.Printer.Sprintf(i18n.BombTail),
	}
	for attempt := 1; ; attempt++ {
		result, err := challenge.Bomb(ctx, h.Env, cfg)
		if err != nil {
			return OutcomeNext, decoration("bomb", err)
		}
		logging.Flow("bomb attempt %d: %s", attempt, result)
		if result == challenge.Won {
			return OutcomeNext, nil
		}

		select {
		case <-ctx.Done():
			return OutcomeNext, ctx.Err()
		case <-time.After(h.scale(tryAgainWait)):
		}
		if err := h.say(ctx, h.Printer.Sprintf(i18n.TryAgain)); err != nil {
			return OutcomeNext, err
		}
	}
}

// rabbit sends the white rabbit across and back with the story between.
func (h *handlers) rabbit(ctx context.Context, step *Step) (Outcome, error) {
	if !h.interactive() {
		return OutcomeNext, nil
	}
	name := step.Username()
	p := h.Printer

	steps := []func() error{
		func() error {
			return decoration("rabbit", challenge.Rabbit(ctx, h.Env, challenge.RabbitConfig{Cycles: h.RabbitCycles}))
		},
		func() error {
			return h.say(ctx, p.Sprintf(i18n.FollowRabbit, name), "", p.Sprintf(i18n.RabbitHiding))
		},
		func() error {
			err := challenge.Message(ctx, h.Env, challenge.MessageConfig{
				Lines:     []string{p.Sprintf(i18n.TypeCommand, rabbitCommand)},
				Highlight: rabbitCommand,
				Hold:      messageHold,
			})
			return decoration("message", err)
		},
		func() error {
			return h.rabbitHole(ctx, name)
		},
		func() error {
			return decoration("rain", challenge.Rain(ctx, h.Env, challenge.RainConfig{Duration: h.RainDuration}))
		},
		func() error {
			return decoration("rabbit", challenge.Rabbit(ctx, h.Env, challenge.RabbitConfig{Cycles: h.RabbitCycles, RightToLeft: true}))
		},
		func() error {
			return h.say(ctx, p.Sprintf(i18n.ItsATrap, name))
		},
	}
	for _, run := range steps {
		if err := run(); err != nil {
			return OutcomeNext, err
		}
	}
	return OutcomeNext, nil
}

// rabbitCommand leaves the rabbit hole shell.
const rabbitCommand = "cd rabbithole"

// rabbitHole hands the terminal to the user's shell until they find the
// rabbit. The shell is part of the show, so its failures are only logged.
func (h *handlers) rabbitHole(ctx context.Context, name string) error {
	if h.System.Shell == nil || name == "" {
		return nil
	}
	cv := h.Env.Canvas
	if cv != nil {
		if err := cv.Suspend(); err != nil {
			return err
		}
	}
	shellErr := h.System.Shell.RabbitHole(ctx, name)
	if cv != nil {
		if err := cv.Resume(); err != nil {
			return err
		}
	}
	if shellErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Get(logging.CategoryFlow).Warn("rabbit hole shell for %s: %v", name, shellErr)
	}
	return nil
}

// love shows the closing image and sets the login policy so the new user
// lands in the graphical onboarding.
func (h *handlers) love(ctx context.Context, step *Step) (Outcome, error) {
	if h.interactive() {
		err := challenge.Image(ctx, h.Env, challenge.ImageConfig{Name: "love", Hold: loveHold})
		if err := decoration("love", err); err != nil {
			return OutcomeNext, err
		}
	}

	if h.System.Provisioner == nil || h.System.Config == nil || h.System.Services == nil {
		return OutcomeNext, errors.New("system collaborators not configured")
	}
	if err := h.System.ReconfigureAutostart(ctx); err != nil {
		return OutcomeNext, fmt.Errorf("reconfiguring autostart: %w", err)
	}
	if name := step.Username(); name != "" {
		if err := h.System.Config.SetDMAutologin(ctx, name); err != nil {
			return OutcomeNext, fmt.Errorf("setting autologin: %w", err)
		}
	}
	return OutcomeNext, nil
}

func (h *handlers) scale(d time.Duration) time.Duration {
	if h.Env == nil || h.Env.Speed <= 0 {
		return d
	}
	return time.Duration(float64(d) * h.Env.Speed)
}

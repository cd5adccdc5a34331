package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"kanoinit/internal/challenge"
	"kanoinit/internal/i18n"
	"kanoinit/internal/logging"
	"kanoinit/internal/username"

	"github.com/spf13/cobra"
)

var (
	// challenge flags
	challengeTarget   string
	challengeDuration time.Duration
	challengeCycles   int
	challengeReverse  bool
	challengeCompact  bool
	challengeText     string
	challengeImage    string
)

type challengeFunc func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error)

// challenges are runnable on their own for testing the art on a device.
var challenges = map[string]challengeFunc{
	"bomb": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		res, err := challenge.Bomb(ctx, env, challenge.BombConfig{
			Target: challengeTarget,
			Lead:   p.Sprintf(i18n.BombLead, "Kano"),
			Tail:   p.Sprintf(i18n.BombTail),
		})
		if err != nil {
			return "", err
		}
		if res != challenge.Won {
			return "", errChallengeFailed
		}
		return res.String(), nil
	},
	"rain": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		return "", challenge.Rain(ctx, env, challenge.RainConfig{Duration: challengeDuration, Face: !challengeCompact})
	},
	"binary": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		return "", challenge.Binary(ctx, env, challenge.BinaryConfig{
			Title:  p.Sprintf(i18n.SwitchesTitle),
			Prompt: p.Sprintf(i18n.SwitchesPrompt),
		})
	},
	"dialogue": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		exists := newCollaborators(appConfig).Provisioner.UserExists
		return challenge.Dialogue(ctx, env, challenge.DialogueConfig{
			Script:  []string{p.Sprintf(i18n.Hello), "", p.Sprintf(i18n.AskName), ""},
			Prompt:  p.Sprintf(i18n.NamePrompt),
			Compact: challengeCompact,
			Validate: func(line string) (string, error) {
				return username.Validate(line, exists)
			},
		})
	},
	"rabbit": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		return "", challenge.Rabbit(ctx, env, challenge.RabbitConfig{Cycles: challengeCycles, RightToLeft: challengeReverse})
	},
	"loading": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		return "", challenge.Loading(ctx, env)
	},
	"image": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		return "", challenge.Image(ctx, env, challenge.ImageConfig{Name: challengeImage, Hold: challengeDuration})
	},
	"message": func(ctx context.Context, env *challenge.Env, p *i18n.Printer) (string, error) {
		text := challengeText
		if text == "" {
			text = p.Sprintf(i18n.Hello)
		}
		return "", challenge.Message(ctx, env, challenge.MessageConfig{
			Lines: challenge.Lines(text),
			Hold:  challengeDuration,
		})
	},
}

func challengeNames() []string {
	names := make([]string, 0, len(challenges))
	for name := range challenges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var challengeCmd = &cobra.Command{
	Use:   "challenge <name>",
	Short: "Run a single challenge",
	Long: `Runs one challenge on the terminal without touching the persisted stage
or the system. Available challenges: ` + strings.Join(challengeNames(), ", ") + `.

A bomb that explodes exits with status 3.`,
	Args:      exactArgs(1),
	ValidArgs: challengeNames(),
	RunE:      runChallenge,
}

func init() {
	challengeCmd.Flags().StringVar(&challengeTarget, "target", "startx", "Word that defuses the bomb")
	challengeCmd.Flags().DurationVar(&challengeDuration, "duration", 2*time.Second, "Rain budget, or how long to hold an image or message")
	challengeCmd.Flags().IntVar(&challengeCycles, "cycles", 1, "Rabbit passes across the screen")
	challengeCmd.Flags().BoolVar(&challengeReverse, "reverse", false, "Run the rabbit right to left")
	challengeCmd.Flags().BoolVar(&challengeCompact, "compact", false, "Compact dialogue, or rain without the face")
	challengeCmd.Flags().StringVar(&challengeText, "text", "", "Text for the message challenge")
	challengeCmd.Flags().StringVar(&challengeImage, "image", "love", "Asset shown by the image challenge")
}

func runChallenge(cmd *cobra.Command, args []string) error {
	run, ok := challenges[args[0]]
	if !ok {
		return usageError(fmt.Errorf("unknown challenge %q (have %s)", args[0], strings.Join(challengeNames(), ", ")))
	}

	env, closeEnv, err := openEnv(appConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Challenge("running %s", args[0])
	result, err := run(ctx, env, printerFor(appConfig))
	closeEnv()
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if result != "" {
		fmt.Fprintln(cmd.OutOrStdout(), result)
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"kanoinit/internal/asset"
	"kanoinit/internal/config"
	"kanoinit/internal/flow"
	"kanoinit/internal/journal"
	"kanoinit/internal/logging"
	"kanoinit/internal/status"
	"kanoinit/internal/system"

	"go.uber.org/zap"
)

// newCollaborators builds the system collaborators. Tests replace it.
var newCollaborators = func(cfg *config.Config) system.Collaborators {
	exCfg := system.DefaultExecutorConfig()
	exCfg.Timeout = cfg.GetCommandTimeout()
	exCfg.DryRun = cfg.System.DryRun

	lc := system.DefaultLinuxConfig()
	lc.UsersGroup = cfg.System.UsersGroup
	lc.Groups = cfg.System.UserGroups
	lc.DefaultPassword = cfg.System.DefaultPassword
	lc.DisplayManager = cfg.System.DisplayManager
	lc.LightDMConf = cfg.Paths.LightDMConf
	lc.DryRun = cfg.System.DryRun

	return system.NewLinux(system.NewExecutor(exCfg), lc).Collaborators()
}

// app holds what every subcommand that touches the device shares.
type app struct {
	cfg     *config.Config
	store   *status.Store
	journal *journal.Journal
	system  system.Collaborators
}

// openApp opens the status record and the journal. A journal that cannot be
// opened is not fatal; transitions are then only logged.
func openApp(cfg *config.Config) (*app, error) {
	store, err := status.Initialize(cfg.Paths.StatusFile)
	if err != nil {
		return nil, fmt.Errorf("opening status: %w", err)
	}

	a := &app{cfg: cfg, store: store, system: newCollaborators(cfg)}
	if j, err := journal.Open(cfg.Paths.JournalDB); err != nil {
		logger.Warn("journal unavailable", zap.String("path", cfg.Paths.JournalDB), zap.Error(err))
		logging.Get(logging.CategoryJournal).Warn("journal unavailable: %v", err)
	} else {
		a.journal = j
	}
	return a, nil
}

// sequencer builds a Sequencer over the app's store with handlers. Each call
// starts a new journal run, so build one per invocation.
func (a *app) sequencer(handlers flow.Handlers, startDM bool) *flow.Sequencer {
	opts := flow.Options{System: a.system, StartDisplayManager: startDM}
	if a.journal != nil {
		opts.Journal = a.journal.NewRun()
	}
	return flow.New(a.store, handlers, opts)
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warn("closing journal", zap.Error(err))
		}
	}
	status.Shutdown()
}

// requireRoot fails unless running as root or in dry-run mode.
func requireRoot(cfg *config.Config) error {
	if cfg.System.DryRun || os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("%w (try --dry-run)", errPermission)
}

// assetLoader serves the art from the configured directory, or the embedded
// copy when none is set.
func assetLoader(cfg *config.Config) *asset.Loader {
	if cfg.Paths.AssetDir == "" {
		return asset.NewLoader(nil)
	}
	return asset.NewLoader(os.DirFS(cfg.Paths.AssetDir))
}

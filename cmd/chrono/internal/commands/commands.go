// Package commands implements the chrono CLI commands. Each command
// wires the full client stack: config, storage adapter, session manager
// and the workforce service on top.
package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/authapi"
	"github.com/zkardes/chrono-meister-sub000/internal/config"
	"github.com/zkardes/chrono-meister-sub000/internal/dataapi"
	"github.com/zkardes/chrono-meister-sub000/internal/logger"
	"github.com/zkardes/chrono-meister-sub000/internal/session"
	"github.com/zkardes/chrono-meister-sub000/internal/storage"
	"github.com/zkardes/chrono-meister-sub000/internal/workforce"
)

// configDirEnv overrides where the config and state live, mainly for
// tests and scripted use.
const configDirEnv = "CHRONO_CONFIG_DIR"

type Globals struct {
	Debug   bool
	Version string
}

// app is the wired client stack for one command invocation.
type app struct {
	logger   zerolog.Logger
	cfgStore *config.Store
	cfg      *config.Config
	adapter  *storage.Adapter
	watcher  *storage.Watcher
	manager  *session.Manager
	guard    *session.Guard
	service  *workforce.Service
}

func newApp(globals *Globals) (*app, error) {
	cfgStore, err := config.NewStore(os.Getenv(configDirEnv))
	if err != nil {
		return nil, err
	}

	cfg, err := cfgStore.Load()
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf(`no configuration found, run "chrono init" first`)
		}
		return nil, err
	}

	log := logger.Setup(globals.Debug || cfg.Debug)

	a := &app{logger: log, cfgStore: cfgStore, cfg: cfg}

	if err := a.setupStorage(); err != nil {
		return nil, err
	}

	auth := authapi.New(cfg.ServerURL, cfg.APIKey, authapi.WithLogger(log))
	a.manager = session.NewManager(auth, a.adapter, session.WithManagerLogger(log))
	a.guard = session.NewGuard(a.manager, session.WithGuardLogger(log))

	data := dataapi.New(cfg.ServerURL, cfg.APIKey, a.manager,
		dataapi.WithLogger(log),
		dataapi.WithReadCaching(filepath.Join(cfgStore.StateDir(cfg), "httpcache")),
	)
	a.service = workforce.NewService(data, a.guard, workforce.WithLogger(log))

	return a, nil
}

// setupStorage builds the durable tier named by the config. The file
// backend also gets a watcher so concurrent chrono processes converge on
// the same session.
func (a *app) setupStorage() error {
	stateDir := a.cfgStore.StateDir(a.cfg)

	switch a.cfg.Storage {
	case config.StorageMemory:
		a.adapter = storage.NewAdapter(nil, session.StoragePrefix, storage.WithLogger(a.logger))

	case config.StorageBadger:
		tier, err := storage.NewBadgerTier(filepath.Join(stateDir, "badger"))
		if err != nil {
			return fmt.Errorf("failed to open badger state: %w", err)
		}
		a.adapter = storage.NewAdapter(tier, session.StoragePrefix, storage.WithLogger(a.logger))

	default: // file
		tier, err := storage.NewFileTier(stateDir)
		if err != nil {
			return fmt.Errorf("failed to open state directory: %w", err)
		}
		a.adapter = storage.NewAdapter(tier, session.StoragePrefix, storage.WithLogger(a.logger))

		watcher, err := storage.NewWatcher(a.adapter, tier, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("state watching unavailable, sessions converge on restart only")
		} else {
			a.watcher = watcher
		}
	}

	return nil
}

// Close flushes the session state and releases the storage backend.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.adapter != nil {
		a.adapter.Close()
	}
}

// requireSession fails fast when no account is signed in.
func (a *app) requireSession() (*session.Session, error) {
	current := a.manager.Current()
	if current == nil {
		if a.manager.Authenticated() {
			return nil, fmt.Errorf(`session lost, run "chrono login" again`)
		}
		return nil, fmt.Errorf(`not signed in, run "chrono login" first`)
	}
	return current, nil
}

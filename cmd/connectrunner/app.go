package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/connectrunner/connectrunner/pkg/api"
	"github.com/connectrunner/connectrunner/pkg/automation"
	"github.com/connectrunner/connectrunner/pkg/browser"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/logging"
	"github.com/connectrunner/connectrunner/pkg/schedule"
	"github.com/connectrunner/connectrunner/pkg/services"
	"github.com/connectrunner/connectrunner/pkg/storage"
)

// App represents the connectrunner application
type App struct {
	config     *config.Config
	bus        *logging.Bus
	controller *automation.Controller
	server     *api.Server
	scheduler  *schedule.Scheduler
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) (*App, error) {
	bus := logging.NewBus(cfg.Logging.BufferSize)
	mirrorToStdout(bus, cfg.Logging.Level)

	selectors, err := automation.LoadSelectors(cfg.Automation.SelectorsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load selector profile: %w", err)
	}

	runStore, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run archive: %w", err)
	}
	log.Printf("Using %s run archive", cfg.Storage.Type)

	browserOpts := browser.Options{
		Headless:       cfg.Browser.Headless,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		Timeout:        time.Duration(cfg.Browser.TimeoutMS) * time.Millisecond,
		UserDataDir:    cfg.Browser.UserDataDir,
	}

	controller := automation.NewController(automation.Options{
		Config:      cfg.Automation,
		Selectors:   selectors,
		Credentials: loginCredentials(),
		Bus:         bus,
		Archive:     runStore,
		NewDriver: func(ctx context.Context) (browser.Driver, error) {
			driver, err := browser.Launch(browserOpts)
			if err != nil {
				return nil, err
			}
			return driver, nil
		},
	})

	scheduler, err := schedule.NewScheduler(cfg.Schedule, controller, bus)
	if err != nil {
		return nil, fmt.Errorf("failed to configure scheduler: %w", err)
	}

	authService := services.NewAuthService(cfg.Auth)
	server := api.NewServer(cfg, controller, bus, runStore, authService)

	return &App{
		config:     cfg,
		bus:        bus,
		controller: controller,
		server:     server,
		scheduler:  scheduler,
	}, nil
}

// Start starts the application
func (a *App) Start() error {
	fmt.Printf("Starting %s version %s\n", AppName, AppVersion)
	a.scheduler.Start()
	return a.server.Start()
}

// Stop stops the application gracefully
func (a *App) Stop(ctx context.Context) error {
	a.scheduler.Stop()
	a.controller.Stop()
	return a.server.Stop(ctx)
}

// mirrorToStdout echoes bus entries at or above the configured level to the
// standard logger.
func mirrorToStdout(bus *logging.Bus, level string) {
	rank := map[logging.Level]int{
		logging.LevelDebug: 0,
		logging.LevelInfo:  1,
		logging.LevelWarn:  2,
		logging.LevelError: 3,
	}

	min, ok := rank[logging.Level(level)]
	if !ok {
		min = rank[logging.LevelInfo]
	}

	bus.Subscribe(func(entry logging.Entry) {
		if rank[entry.Level] < min {
			return
		}
		if entry.Error != "" {
			log.Printf("[%s] %s fields=%v error=%s", entry.Level, entry.Message, entry.Fields, entry.Error)
			return
		}
		if len(entry.Fields) > 0 {
			log.Printf("[%s] %s fields=%v", entry.Level, entry.Message, entry.Fields)
			return
		}
		log.Printf("[%s] %s", entry.Level, entry.Message)
	})
}

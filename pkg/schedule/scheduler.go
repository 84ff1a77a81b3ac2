// Package schedule triggers unattended automation runs on cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/connectrunner/connectrunner/pkg/automation"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/logging"
)

// Starter launches automation runs. Satisfied by automation.Controller.
type Starter interface {
	StartAsync(ctx context.Context) (string, error)
}

// Scheduler owns the cron runner. A trigger that fires while a run is still
// in flight is skipped, not queued.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	bus     *logging.Bus
}

// NewScheduler creates a scheduler from the schedule configuration. It does
// nothing until Start is called.
func NewScheduler(cfg config.ScheduleConfig, starter Starter, bus *logging.Bus) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		starter: starter,
		bus:     bus,
	}

	if !cfg.Enabled {
		return s, nil
	}

	for _, spec := range cfg.Specs {
		spec := spec
		if _, err := s.cron.AddFunc(spec, func() { s.trigger(spec) }); err != nil {
			return nil, fmt.Errorf("failed to register schedule %q: %w", spec, err)
		}
	}

	return s, nil
}

func (s *Scheduler) trigger(spec string) {
	runID, err := s.starter.StartAsync(context.Background())
	if err != nil {
		if errors.Is(err, automation.ErrAlreadyRunning) {
			s.bus.Warn("scheduled run skipped: already running", map[string]interface{}{
				"schedule": spec,
			})
			return
		}
		s.bus.Error("scheduled run failed to start", err, map[string]interface{}{
			"schedule": spec,
		})
		return
	}

	s.bus.Info("scheduled run started", map[string]interface{}{
		"schedule": spec,
		"run_id":   runID,
	})
}

// Start begins firing schedules
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron runner and waits for an in-flight trigger callback.
// It does not stop an automation run the trigger already launched.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// ScheduleRunner re-runs the backup on a cron schedule until its context
// is cancelled. Runs never overlap: a tick that arrives while a run is
// still in flight is skipped.
type ScheduleRunner struct {
	Orchestrator *Orchestrator
	Spec         string
	Logger       *slog.Logger

	// OnReport receives each completed run's report, e.g. to record history.
	OnReport func(*Report)
}

// Run blocks until ctx is cancelled. An invalid cron expression is a
// configuration error returned before the first tick.
func (sr *ScheduleRunner) Run(ctx context.Context) error {
	logger := sr.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	running := make(chan struct{}, 1)

	scheduler := cron.New()
	_, err := scheduler.AddFunc(sr.Spec, func() {
		select {
		case running <- struct{}{}:
		default:
			logger.Warn("schedule_tick_skipped", "reason", "previous run still in flight")
			return
		}
		defer func() { <-running }()

		report := sr.Orchestrator.Run(ctx)
		if sr.OnReport != nil {
			sr.OnReport(report)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", sr.Spec, err)
	}

	logger.Info("schedule_started", "spec", sr.Spec)
	scheduler.Start()

	<-ctx.Done()
	logger.Info("schedule_stopping")

	// Wait for an in-flight run before returning.
	<-scheduler.Stop().Done()

	return nil
}

package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule fires at minute 0 of every hour.
const DefaultSweepSchedule = "0 * * * *"

// SweepDriver fires [Scheduler.Sweep] on a cron schedule.
//
// A sweep that is still running when the next tick arrives causes that tick to be skipped,
// and a panicking sweep is logged and recovered.
type SweepDriver struct {
	cron      *cron.Cron
	entry     cron.EntryID
	scheduler *Scheduler
	logger    *log.Logger
	timeout   time.Duration
}

// NewSweepDriver parses schedule (standard five-field cron syntax) and registers the sweep.
func NewSweepDriver(scheduler *Scheduler, schedule string, logger *log.Logger) (*SweepDriver, error) {
	if logger == nil {
		logger = log.Default()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	cl := cronLogger{logger: logger}
	d := &SweepDriver{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		scheduler: scheduler,
		logger:    logger,
		timeout:   time.Minute,
	}

	entry, err := d.cron.AddFunc(schedule, d.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	d.entry = entry
	return d, nil
}

func (d *SweepDriver) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if _, err := d.scheduler.Sweep(ctx); err != nil {
		d.logger.Error("scheduled sweep failed", "err", err)
	}
}

// Start runs the cron loop in its own goroutine.
func (d *SweepDriver) Start() {
	d.cron.Start()
	d.logger.Info("sweep scheduled", "next", d.Next())
}

// Next returns when the sweep fires next, or the zero time before [SweepDriver.Start].
func (d *SweepDriver) Next() time.Time {
	return d.cron.Entry(d.entry).Next
}

// Stop halts the schedule and waits for a running sweep, or for ctx to end.
func (d *SweepDriver) Stop(ctx context.Context) error {
	done := d.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts a charmbracelet logger to [cron.Logger].
type cronLogger struct {
	logger *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// Package scheduler runs the periodic jobs: inbound calendar sync and due
// guest messages. Runs of the same job never overlap and a panicking job
// does not take the process down.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"delfin/internal/calsync"
	appLog "delfin/internal/log"
	"delfin/internal/model"
)

// Disabled is the schedule value that turns a job off.
const Disabled = "off"

type Syncer interface {
	SyncAll(ctx context.Context, channels []model.Channel) []calsync.Result
}

type Dispatcher interface {
	RunDue(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler whose schedules are read in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		loc:    loc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddSync schedules SyncAll over channels.
func (s *Scheduler) AddSync(spec string, syncer Syncer, channels []model.Channel) error {
	return s.add("sync", spec, func(ctx context.Context) {
		for _, res := range syncer.SyncAll(ctx, channels) {
			if len(res.Failures) > 0 {
				appLog.Error("scheduled sync: rooms failed", errors.New(res.Message), "channel", res.Channel, "failed", res.RoomsFailed)
			}
		}
	})
}

// AddMessages schedules RunDue.
func (s *Scheduler) AddMessages(spec string, d Dispatcher) error {
	return s.add("messages", spec, func(ctx context.Context) {
		if _, err := d.RunDue(ctx, time.Now().In(s.loc)); err != nil {
			appLog.Error("scheduled messages: some deliveries failed", err)
		}
	})
}

func (s *Scheduler) add(name, spec string, job func(ctx context.Context)) error {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, Disabled) {
		appLog.Info("scheduled job disabled", "job", name)
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		job(s.ctx)
		appLog.Debug("scheduled job finished", "job", name, "duration", time.Since(started).String())
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	appLog.Info("scheduled job registered", "job", name, "spec", spec, "entry", int(id))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits up to timeout for running jobs, then
// cancels their context.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		appLog.Info("scheduler stop timed out; cancelling running jobs")
	}
	s.cancel()
}

// cronLogger adapts the application logger to cron.Logger. Cron's own
// chatter goes to debug.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

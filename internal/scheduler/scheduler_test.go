package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"delfin/internal/calsync"
	appLog "delfin/internal/log"
	"delfin/internal/model"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

type fakeSyncer struct {
	calls    atomic.Int32
	channels []model.Channel
}

func (f *fakeSyncer) SyncAll(ctx context.Context, channels []model.Channel) []calsync.Result {
	f.calls.Add(1)
	f.channels = channels
	return []calsync.Result{{Channel: channels[0], Success: true}}
}

type panickingDispatcher struct{ calls atomic.Int32 }

func (p *panickingDispatcher) RunDue(ctx context.Context, now time.Time) (int, error) {
	p.calls.Add(1)
	panic("smtp exploded")
}

func TestAddAndRunJobs(t *testing.T) {
	s := New(time.UTC)
	syncer := &fakeSyncer{}
	if err := s.AddSync("*/10 * * * *", syncer, []model.Channel{model.ChannelBooking}); err != nil {
		t.Fatal(err)
	}
	disp := &panickingDispatcher{}
	if err := s.AddMessages("0 * * * *", disp); err != nil {
		t.Fatal(err)
	}

	entries := s.cron.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	for _, e := range entries {
		e.WrappedJob.Run()
	}
	if syncer.calls.Load() != 1 || syncer.channels[0] != model.ChannelBooking {
		t.Errorf("sync calls = %d", syncer.calls.Load())
	}
	// Recover keeps the panic inside the job.
	if disp.calls.Load() != 1 {
		t.Errorf("dispatch calls = %d", disp.calls.Load())
	}
}

func TestDisabledAndInvalidSpecs(t *testing.T) {
	s := New(nil)
	if err := s.AddSync("off", &fakeSyncer{}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSync("", &fakeSyncer{}, nil); err != nil {
		t.Fatal(err)
	}
	if len(s.cron.Entries()) != 0 {
		t.Errorf("disabled jobs were scheduled")
	}
	if err := s.AddMessages("every tuesday", &panickingDispatcher{}); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestStartStop(t *testing.T) {
	s := New(time.UTC)
	s.Start()
	s.Stop(time.Second)
	if s.ctx.Err() == nil {
		t.Error("job context not cancelled after Stop")
	}
}

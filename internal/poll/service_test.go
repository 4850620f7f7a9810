package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quakebot/internal/dispatch"
	logx "quakebot/pkg/logx"
)

type runnerFunc func(ctx context.Context) (dispatch.Report, error)

func (f runnerFunc) RunCycle(ctx context.Context) (dispatch.Report, error) { return f(ctx) }

func TestTickSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64

	s := New(Config{}, runnerFunc(func(ctx context.Context) (dispatch.Report, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return dispatch.Report{}, nil
	}), logx.Nop(), nil, nil)

	done := make(chan struct{})
	go func() {
		s.tick()
		close(done)
	}()
	<-started

	s.tick()
	if got := s.skipped.Load(); got != 1 {
		t.Fatalf("skipped = %d, want 1", got)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("runner entered %d times during overlap, want 1", got)
	}

	close(release)
	<-done

	s.tick()
	if got := calls.Load(); got != 2 {
		t.Fatalf("runner entered %d times after release, want 2", got)
	}
	if got := s.runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestTickTimeoutExpiresCycle(t *testing.T) {
	errCh := make(chan error, 1)
	s := New(Config{CycleTimeout: 15 * time.Millisecond}, runnerFunc(func(ctx context.Context) (dispatch.Report, error) {
		<-ctx.Done()
		errCh <- ctx.Err()
		return dispatch.Report{}, ctx.Err()
	}), logx.Nop(), nil, nil)

	s.tick()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("cycle saw %v, want deadline exceeded", err)
		}
	default:
		t.Fatal("runner never observed the timeout")
	}
}

func TestStartRunsImmediateCycle(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New(Config{Schedule: "@every 1h"}, runnerFunc(func(context.Context) (dispatch.Report, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return dispatch.Report{}, nil
	}), logx.Nop(), nil, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle ran after start")
	}

	snap := s.Snapshot()
	if snap.Schedule != "@every 1h" {
		t.Fatalf("snapshot schedule = %q", snap.Schedule)
	}
	if snap.NextRun.IsZero() {
		t.Fatal("snapshot next run not populated")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{Schedule: "definitely not cron"}, runnerFunc(func(context.Context) (dispatch.Report, error) {
		return dispatch.Report{}, nil
	}), logx.Nop(), nil, nil)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("want error for invalid schedule")
	}
}

func TestApplyValidatesSchedule(t *testing.T) {
	s := New(Config{}, runnerFunc(func(context.Context) (dispatch.Report, error) {
		return dispatch.Report{}, nil
	}), logx.Nop(), nil, nil)

	if err := s.Apply(Config{Schedule: "definitely not cron"}); err == nil {
		t.Fatal("want error for invalid schedule")
	}
	if got := s.Snapshot().Schedule; got != DefaultSchedule {
		t.Fatalf("schedule after rejected apply = %q, want %q", got, DefaultSchedule)
	}

	if err := s.Apply(Config{Schedule: "*/5 * * * *", CycleTimeout: 30 * time.Second}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.Snapshot()
	if snap.Schedule != "*/5 * * * *" || snap.CycleTimeout != 30*time.Second {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestConfigDefaults(t *testing.T) {
	s := New(Config{}, runnerFunc(func(context.Context) (dispatch.Report, error) {
		return dispatch.Report{}, nil
	}), logx.Nop(), nil, nil)

	snap := s.Snapshot()
	if snap.Schedule != DefaultSchedule {
		t.Fatalf("schedule = %q, want %q", snap.Schedule, DefaultSchedule)
	}
	if snap.CycleTimeout != DefaultCycleTimeout {
		t.Fatalf("cycle timeout = %v, want %v", snap.CycleTimeout, DefaultCycleTimeout)
	}
}

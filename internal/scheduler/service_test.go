package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neoclaw-ai/repcoach/internal/coach"
)

type fakeRunner struct {
	mu    sync.Mutex
	dates []string
	err   error
	ran   chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan string, 16)}
}

func (r *fakeRunner) RunFor(_ context.Context, date string) (coach.SendResult, error) {
	r.mu.Lock()
	r.dates = append(r.dates, date)
	r.mu.Unlock()
	r.ran <- date
	if r.err != nil {
		return coach.SendResult{}, r.err
	}
	return coach.SendResult{Status: coach.StatusSent, Date: date, Day: 1}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewServiceRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	if _, err := NewService(newFakeRunner(), "not a cron", time.UTC); err == nil {
		t.Fatal("expected invalid schedule error")
	}
	if _, err := NewService(nil, "0 8 * * *", time.UTC); err == nil {
		t.Fatal("expected missing runner error")
	}
}

func TestRunNowUsesDateInLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*60*60)
	runner := newFakeRunner()
	// 2024-01-02 03:00 UTC is still 2024-01-01 in UTC-5.
	svc, err := NewService(runner, "0 8 * * *", loc, WithClock(fixedClock(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	res, err := svc.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if res.Date != "2024-01-01" {
		t.Fatalf("expected local date 2024-01-01, got %q", res.Date)
	}
}

func TestRunNowReturnsRunnerError(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	runner.err = coach.ErrDelivery
	svc, err := NewService(runner, "0 8 * * *", time.UTC)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.RunNow(context.Background()); !errors.Is(err, coach.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestNextUsesSchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	svc, err := NewService(newFakeRunner(), "0 8 * * *", time.UTC, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	want := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	if got := svc.Next(); !got.Equal(want) {
		t.Fatalf("expected next %s, got %s", want, got)
	}
}

func TestStartCatchesUpMissedRun(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	svc, err := NewService(runner, "0 8 * * *", time.UTC, WithClock(fixedClock(now)), WithCatchUp(true))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop(context.Background())

	select {
	case date := <-runner.ran:
		if date != "2024-03-10" {
			t.Fatalf("unexpected catch-up date %q", date)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected catch-up run")
	}
}

func TestStartSkipsCatchUpBeforeScheduledTime(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	now := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	svc, err := NewService(runner, "0 8 * * *", time.UTC, WithClock(fixedClock(now)), WithCatchUp(true))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop(context.Background())

	select {
	case date := <-runner.ran:
		t.Fatalf("expected no catch-up run, got %q", date)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartTwiceFailsAndStopIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newFakeRunner(), "0 8 * * *", time.UTC)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestCronFiresRun(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	svc, err := NewService(runner, "@every 1s", time.UTC)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop(context.Background())

	select {
	case <-runner.ran:
	case <-time.After(3 * time.Second):
		t.Fatal("expected cron to fire")
	}
}

package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/caiarchive/internal/ingest"
)

type mockRunner struct {
	runFn    func(ctx context.Context) (ingest.Result, error)
	repairFn func(ctx context.Context) (ingest.RepairResult, error)
	runs     atomic.Int32
	repairs  atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context) (ingest.Result, error) {
	m.runs.Add(1)
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return ingest.Result{RunID: "run"}, nil
}

func (m *mockRunner) RepairMissingText(ctx context.Context) (ingest.RepairResult, error) {
	m.repairs.Add(1)
	if m.repairFn != nil {
		return m.repairFn(ctx)
	}
	return ingest.RepairResult{}, nil
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New(&mockRunner{}, Options{ScrapeSpec: "not a cron"}); err == nil {
		t.Error("expected error for invalid scrape spec")
	}
	if _, err := New(&mockRunner{}, Options{RepairSpec: "61 * * * *"}); err == nil {
		t.Error("expected error for invalid repair spec")
	}
}

func TestNew_DefaultSpecs(t *testing.T) {
	s, err := New(&mockRunner{}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := &mockRunner{
		runFn: func(ctx context.Context) (ingest.Result, error) {
			close(started)
			<-release
			return ingest.Result{}, nil
		},
	}
	s, err := New(r, Options{})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan bool)
	go func() { done <- s.RunScrape(context.Background()) }()
	<-started

	if s.RunScrape(context.Background()) {
		t.Error("second scrape ran while the first was in progress")
	}
	if s.RunRepair(context.Background()) {
		t.Error("repair ran while a scrape was in progress")
	}
	close(release)

	if !<-done {
		t.Error("first scrape reported skipped")
	}
	if !s.RunRepair(context.Background()) {
		t.Error("repair skipped after the scrape finished")
	}
	if r.runs.Load() != 1 || r.repairs.Load() != 1 {
		t.Errorf("runs/repairs = %d/%d, want 1/1", r.runs.Load(), r.repairs.Load())
	}
}

func TestScheduler_FailedRunReleasesLock(t *testing.T) {
	r := &mockRunner{
		runFn: func(ctx context.Context) (ingest.Result, error) {
			return ingest.Result{}, ingest.ErrNoListings
		},
		repairFn: func(ctx context.Context) (ingest.RepairResult, error) {
			return ingest.RepairResult{}, errors.New("db locked")
		},
	}
	s, err := New(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !s.RunScrape(context.Background()) {
		t.Error("scrape skipped")
	}
	if !s.RunRepair(context.Background()) {
		t.Error("repair skipped after a failed scrape")
	}
	if !s.RunScrape(context.Background()) {
		t.Error("scrape skipped after a failed repair")
	}
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	r := &mockRunner{}
	s, err := New(r, Options{ScrapeSpec: "@every 1s", RepairSpec: "@every 1h"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for r.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if r.runs.Load() == 0 {
		t.Error("scrape job never fired")
	}
}

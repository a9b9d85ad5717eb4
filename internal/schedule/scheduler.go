// Package schedule triggers ingestion runs and text repair on cron
// schedules. Both jobs share one lock: a tick that fires while either job
// is running is skipped.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/kalambet/caiarchive/internal/ingest"
)

const (
	DefaultScrapeSpec = "0 2 * * *"
	DefaultRepairSpec = "0 3 * * *"
)

// Runner is the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (ingest.Result, error)
	RepairMissingText(ctx context.Context) (ingest.RepairResult, error)
}

// Options configures a Scheduler. Empty specs fall back to the defaults.
type Options struct {
	ScrapeSpec string
	RepairSpec string
	Logger     *slog.Logger
}

// Scheduler owns a cron instance with the scrape and repair entries.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger

	running sync.Mutex

	mu  sync.Mutex
	ctx context.Context
}

// New validates the cron specs and registers both jobs. Call Start to begin
// firing.
func New(runner Runner, opts Options) (*Scheduler, error) {
	if opts.ScrapeSpec == "" {
		opts.ScrapeSpec = DefaultScrapeSpec
	}
	if opts.RepairSpec == "" {
		opts.RepairSpec = DefaultRepairSpec
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		runner: runner,
		logger: logger,
		ctx:    context.Background(),
	}

	if _, err := s.cron.AddFunc(opts.ScrapeSpec, func() { s.RunScrape(s.baseContext()) }); err != nil {
		return nil, fmt.Errorf("scrape schedule %q: %w", opts.ScrapeSpec, err)
	}
	if _, err := s.cron.AddFunc(opts.RepairSpec, func() { s.RunRepair(s.baseContext()) }); err != nil {
		return nil, fmt.Errorf("repair schedule %q: %w", opts.RepairSpec, err)
	}
	return s, nil
}

// Start begins firing jobs. ctx is passed to every job; cancelling it
// aborts in-flight work but does not stop the cron loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunScrape runs one ingestion pass unless a job is already in progress.
// It reports whether the pass ran.
func (s *Scheduler) RunScrape(ctx context.Context) bool {
	return s.exclusive("scrape", func() {
		res, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled scrape failed", "run_id", res.RunID, "error", err)
			return
		}
		s.logger.Info("scheduled scrape finished", "run_id", res.RunID, "added", res.Added, "skipped", res.Skipped)
	})
}

// RunRepair runs one text repair pass unless a job is already in progress.
// It reports whether the pass ran.
func (s *Scheduler) RunRepair(ctx context.Context) bool {
	return s.exclusive("repair", func() {
		res, err := s.runner.RepairMissingText(ctx)
		if err != nil {
			s.logger.Error("scheduled repair failed", "error", err)
			return
		}
		s.logger.Info("scheduled repair finished", "repaired", res.Repaired, "candidates", res.Candidates)
	})
}

func (s *Scheduler) exclusive(job string, fn func()) bool {
	if !s.running.TryLock() {
		s.logger.Warn("previous job still running, skipping tick", "job", job)
		return false
	}
	defer s.running.Unlock()
	fn()
	return true
}

// cronLogger routes cron's logging through slog. Routine scheduling chatter
// goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

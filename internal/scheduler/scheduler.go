// Package scheduler drives watchlist sweeps: one on startup, then one every
// SweepInterval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/models"
	"github.com/kjstillabower/weather-watchlist-service/internal/observability"
)

// SweepInterval is the fixed period between scheduled sweeps.
const SweepInterval = 10 * time.Minute

const defaultMaxConcurrency = 4

// Watchlist lists the cities to check.
type Watchlist interface {
	ListCities(ctx context.Context) ([]models.City, error)
}

// Checker checks one city. Implementations handle their own failures.
type Checker interface {
	Run(ctx context.Context, city models.City)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Cities   int
	Skipped  bool
	Err      error
	Duration time.Duration
}

// Scheduler runs sweeps over the watchlist. At most one sweep runs at a time;
// a trigger that fires during a sweep is skipped.
type Scheduler struct {
	cron           *cron.Cron
	watchlist      Watchlist
	checker        Checker
	logger         *zap.Logger
	maxConcurrency int

	sweeping atomic.Bool
	wg       sync.WaitGroup
}

// New returns a Scheduler. maxConcurrency bounds parallel city checks within a sweep.
func New(watchlist Watchlist, checker Checker, logger *zap.Logger, maxConcurrency int) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		watchlist:      watchlist,
		checker:        checker,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start runs the startup sweep in the background and schedules periodic
// sweeps. Sweeps run on a context that is not cancelled by ctx so an
// in-flight check finishes during shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	sweepCtx := context.WithoutCancel(ctx)
	spec := fmt.Sprintf("@every %s", SweepInterval)
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(sweepCtx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Sweep(sweepCtx)
	}()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("interval", SweepInterval), zap.Int("max_concurrency", s.maxConcurrency))
	return nil
}

// Stop halts future triggers and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Sweep checks every watchlisted city once. Cities are checked in parallel
// and independently; the sweep returns after all checks complete.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	if !s.sweeping.CompareAndSwap(false, true) {
		observability.RecordSweep("skipped", 0)
		s.logger.Warn("sweep already in progress, skipping trigger")
		return SweepResult{Skipped: true}
	}
	defer s.sweeping.Store(false)

	start := time.Now()
	cities, err := s.watchlist.ListCities(ctx)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("list_cities").Inc()
		observability.RecordSweep("failed", time.Since(start))
		s.logger.Error("sweep failed to read watchlist", zap.Error(err))
		return SweepResult{Err: err, Duration: time.Since(start)}
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	for _, city := range cities {
		city := city
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("city check panicked", zap.String("city", city.Name), zap.String("panic", fmt.Sprint(r)))
				}
			}()
			s.checker.Run(ctx, city)
		}()
	}
	wg.Wait()

	duration := time.Since(start)
	observability.RecordSweep("completed", duration)
	s.logger.Info("sweep completed", zap.Int("cities", len(cities)), zap.Duration("duration", duration))
	return SweepResult{Cities: len(cities), Duration: duration}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

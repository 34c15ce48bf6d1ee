// Package scheduler runs the periodic jobs of the service on a cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"parking_garage/internal/domain"
	"parking_garage/internal/logger"
	"parking_garage/internal/repository"
)

// Sweeper moves reservations whose lot is taken.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.ReassignmentReport, error)
}

type Config struct {
	SweepSpec    string
	CleanupSpec  string
	LogRetention time.Duration
	JobTimeout   time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	sweeper Sweeper
	logs    repository.DetectionLogRepository
	now     func() time.Time
	log     *logger.Logger
}

func New(cfg Config, sweeper Sweeper, logs repository.DetectionLogRepository) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		sweeper: sweeper,
		logs:    logs,
		now:     time.Now,
		log:     logger.Named("scheduler"),
	}
}

// Start registers the jobs and starts the cron. An empty spec disables a job.
func (s *Scheduler) Start() error {
	if s.cfg.SweepSpec != "" && s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.runSweep); err != nil {
			return fmt.Errorf("scheduling reassignment sweep %q: %w", s.cfg.SweepSpec, err)
		}
	}
	if s.cfg.CleanupSpec != "" && s.logs != nil && s.cfg.LogRetention > 0 {
		if _, err := s.cron.AddFunc(s.cfg.CleanupSpec, s.runCleanup); err != nil {
			return fmt.Errorf("scheduling detection log cleanup %q: %w", s.cfg.CleanupSpec, err)
		}
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.Error("reassignment sweep failed", zap.Error(err))
		return
	}
	if len(report.Reassigned) > 0 || len(report.Failed) > 0 {
		s.log.Info("reassignment sweep finished",
			zap.Int("reassigned", len(report.Reassigned)),
			zap.Int("failed", len(report.Failed)))
	}
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	n, err := s.logs.DeleteOlderThan(ctx, s.now().Add(-s.cfg.LogRetention))
	if err != nil {
		s.log.Error("detection log cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("detection logs removed", zap.Int64("count", n))
	}
}

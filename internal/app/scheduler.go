/**
 * @description
 * Cron scheduler setup for the reconciliation sweeps: marking unpaid
 * assignments overdue and expiring payments the provider never settled.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the periodic reconciliation sweeps.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger

	overdueSchedule string
	expirySchedule  string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(service *Service, logger *slog.Logger, overdueSchedule, expirySchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:            c,
		service:         service,
		logger:          logger,
		overdueSchedule: overdueSchedule,
		expirySchedule:  expirySchedule,
	}
}

// Start registers the sweeps and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.overdueSchedule, s.runOverdueSweep); err != nil {
		s.logger.Error("failed to schedule overdue assignment sweep", "error", err)
	} else {
		s.logger.Info("scheduled overdue assignment sweep", "schedule", s.overdueSchedule)
	}

	if _, err := s.cron.AddFunc(s.expirySchedule, s.runExpirySweep); err != nil {
		s.logger.Error("failed to schedule payment expiry sweep", "error", err)
	} else {
		s.logger.Info("scheduled payment expiry sweep", "schedule", s.expirySchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runOverdueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	flipped, err := s.service.MarkOverdueAssignments(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("overdue assignment sweep failed", "error", err)
		return
	}
	s.logger.Info("overdue assignment sweep completed", "assignments_marked", flipped)
}

func (s *Scheduler) runExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	expired, err := s.service.ExpireStalePayments(ctx)
	if err != nil {
		s.logger.Error("payment expiry sweep failed", "error", err)
		return
	}
	s.logger.Info("payment expiry sweep completed", "payments_expired", expired)
}

/**
 * @description
 * Cron scheduler for the trial reminder scan. One job, one schedule; the scan
 * itself is idempotent so overlapping or missed runs are harmless.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Cron job scheduling.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic trial reminder scan.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
}

// NewScheduler creates a scheduler bound to the given service.
func NewScheduler(service *Service) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		service: service,
	}
}

// Start registers the reminder scan on the given cron spec and starts the
// scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := s.service.RunTrialReminderScan(ctx)
		if err != nil {
			log.Printf("level=error component=scheduler job=trial_reminder_scan msg=\"scan failed\" err=%v", err)
			return
		}
		log.Printf("level=info component=scheduler job=trial_reminder_scan checked=%d sent=%d", result.Checked, result.RemindersSent)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("level=info component=scheduler msg=\"trial reminder scan scheduled\" spec=%q", spec)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

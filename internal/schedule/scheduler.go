// Package schedule runs the recurring ingestion job inside the server
// process when a cron expression is configured.
package schedule

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Start registers run on the given cron expression (standard five-field
// form) and starts the scheduler. The returned scheduler must be shut down
// by the caller. An empty expression returns (nil, nil) and schedules
// nothing.
func Start(cron string, run func(ctx context.Context)) (gocron.Scheduler, error) {
	if cron == "" {
		return nil, nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.CronJob(cron, false),
		gocron.NewTask(func() {
			run(context.Background())
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	s.Start()
	log.Info().Str("cron", cron).Msg("schedule: ingestion job registered")
	return s, nil
}

// Stop shuts a scheduler down, tolerating the nil scheduler returned when
// no cron is configured.
func Stop(s gocron.Scheduler) {
	if s == nil {
		return
	}
	if err := s.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("schedule: shutdown error")
	}
}

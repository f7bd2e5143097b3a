package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/andrewpaige1/flashd-api/models"
)

// PurgeExpired deletes every session that has expired.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Sweeper purges expired sessions on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules PurgeExpired with a standard cron spec such as
// "@every 1h" or "0 3 * * *".
func NewSweeper(svc *Service, spec string) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := svc.PurgeExpired(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Sweeper: failed to purge expired sessions")
			return
		}
		if n > 0 {
			log.Info().Int64("count", n).Msg("Sweeper: purged expired sessions")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{cron: c}, nil
}

// Start runs the schedule in the background.
func (sw *Sweeper) Start() {
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running purge to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}

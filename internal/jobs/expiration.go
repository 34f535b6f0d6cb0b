package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lakumart/groupbuy-server-go/internal/config"
	"github.com/lakumart/groupbuy-server-go/internal/service"
)

// LifecycleRunner is the slice of the lifecycle service the scheduler
// drives.
type LifecycleRunner interface {
	ProcessNearExpiring(ctx context.Context) error
	ProcessExpired(ctx context.Context) ([]service.ExpirationOutcome, error)
}

// ExpirationJob drives the session lifecycle: each tick tops up sessions
// nearing expiry with the platform bot, then settles sessions already past
// their end time.
type ExpirationJob struct {
	lifecycle LifecycleRunner
	interval  time.Duration
	done      chan struct{}
}

func NewExpirationJob(lifecycle LifecycleRunner, interval time.Duration) *ExpirationJob {
	return &ExpirationJob{
		lifecycle: lifecycle,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *ExpirationJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("expiration job started")
}

func (j *ExpirationJob) Stop() {
	close(j.done)
	log.Info().Msg("expiration job stopped")
}

func (j *ExpirationJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *ExpirationJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), config.ExpirationBatchTimeout)
	defer cancel()

	if err := j.lifecycle.ProcessNearExpiring(ctx); err != nil {
		log.Error().Err(err).Msg("near-expiration pass failed")
	}

	outcomes, err := j.lifecycle.ProcessExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("expiration pass failed")
		return
	}
	if len(outcomes) > 0 {
		log.Info().Int("processed", len(outcomes)).Msg("expired sessions settled")
	}
}

package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sweeper periodically advances confirmed appointments whose scheduled end
// has passed into completed. It funnels through the same state-machine
// operation as user-facing calls, so transition logic is not duplicated.
type Sweeper struct {
	svc           *Service
	interval      time.Duration
	failThreshold int
	log           zerolog.Logger

	// consecutive per-appointment failure counts, kept across cycles so a
	// stuck row can be escalated to the operator.
	failures map[uuid.UUID]int
}

func NewSweeper(svc *Service, interval time.Duration, failThreshold int, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		svc:           svc,
		interval:      interval,
		failThreshold: failThreshold,
		log:           log.With().Str("component", "sweeper").Logger(),
		failures:      make(map[uuid.UUID]int),
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	completed, err := s.Sweep(runCtx, s.svc.now())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep run failed")
		return
	}
	s.log.Info().Int("completed", completed).Dur("took", time.Since(start)).Msg("sweep run complete")
}

// Sweep completes every confirmed appointment whose end is at or before
// now. Idempotent: an immediate re-run with the same now finds nothing
// left. A failing appointment never aborts the batch; it is retried on the
// next cycle, and escalated in the logs once its consecutive failures pass
// the threshold.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	elapsed, err := s.svc.repo.FindElapsedConfirmed(ctx, now)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, appt := range elapsed {
		_, err := s.svc.Complete(ctx, appt.ID, SystemActor)
		switch {
		case err == nil:
			completed++
			delete(s.failures, appt.ID)
		case errors.Is(err, ErrStaleStatus), errors.Is(err, ErrInvalidTransition):
			// Someone else moved it between the scan and the CAS; it is no
			// longer ours to complete.
			delete(s.failures, appt.ID)
		default:
			s.failures[appt.ID]++
			ev := s.log.Warn()
			if s.failThreshold > 0 && s.failures[appt.ID] >= s.failThreshold {
				ev = s.log.Error().Int("consecutive_failures", s.failures[appt.ID])
			}
			ev.Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete appointment, will retry next cycle")
		}
	}

	return completed, nil
}

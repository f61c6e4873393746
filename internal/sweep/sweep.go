// Package sweep drives the periodic expiry of stale pending reservations
// and lapsed flow tokens.
package sweep

import (
	"context"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/clock"

	"github.com/rs/zerolog"
)

// Lifecycle expires stale pending reservations.
type Lifecycle interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenPurger removes lapsed flow tokens.
type TokenPurger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs the expiry pass on a fixed interval. The HTTP trigger calls
// RunOnce directly, so an external scheduler can drive the same pass.
type Sweeper struct {
	lifecycle Lifecycle
	tokens    TokenPurger
	clock     clock.Clock
	interval  time.Duration
	logger    *zerolog.Logger
}

func New(lifecycle Lifecycle, tokens TokenPurger, clk clock.Clock, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		lifecycle: lifecycle,
		tokens:    tokens,
		clock:     clk,
		interval:  interval,
		logger:    logger,
	}
}

// Start blocks until ctx is cancelled, sweeping every interval. The first
// pass runs immediately so a restart reclaims overdue holds at once.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial sweep failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunOnce performs a single expiry pass and returns the number of
// reservations expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	expired, err := s.lifecycle.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	purged, err := s.tokens.Purge(ctx, now)
	if err != nil {
		// Token purge is housekeeping; the reservation sweep already
		// succeeded.
		s.logger.Error().Err(err).Msg("token purge failed")
	} else if purged > 0 {
		s.logger.Debug().Int64("count", purged).Msg("purged expired flow tokens")
	}
	return expired, nil
}

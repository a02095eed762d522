package scheduler

import (
	"context"
	"time"

	"leadfunnel_backend/platform/logger"
)

const (
	defaultSessionSweepInterval = time.Hour
	defaultSessionIdleTTL       = 72 * time.Hour
)

// IdleSessionCloser abandons sessions untouched for idleFor.
type IdleSessionCloser interface {
	AbandonIdleSessions(ctx context.Context, idleFor time.Duration) (int, error)
}

// SessionSweep periodically abandons idle funnel sessions.
type SessionSweep struct {
	closer   IdleSessionCloser
	log      *logger.Logger
	interval time.Duration
	idleFor  time.Duration
}

func NewSessionSweep(closer IdleSessionCloser, log *logger.Logger, interval, idleFor time.Duration) *SessionSweep {
	if interval <= 0 {
		interval = defaultSessionSweepInterval
	}
	if idleFor <= 0 {
		idleFor = defaultSessionIdleTTL
	}

	return &SessionSweep{
		closer:   closer,
		log:      log,
		interval: interval,
		idleFor:  idleFor,
	}
}

func (s *SessionSweep) Run(ctx context.Context) {
	if s == nil || s.closer == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweep) sweep(ctx context.Context) {
	closed, err := s.closer.AbandonIdleSessions(ctx, s.idleFor)
	if err != nil {
		s.log.Warn("session sweep failed", "error", err)
		return
	}

	if closed > 0 {
		s.log.Info("session sweep abandoned idle sessions", "abandoned", closed)
	}
}

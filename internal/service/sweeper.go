package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/metrics"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/lib/logger/sl"
)

// Sweeper periodically removes mailboxes that have been idle for longer
// than the configured TTL.
type Sweeper struct {
	mailboxes repository.MailboxRepository
	log       *slog.Logger
	metrics   *metrics.Metrics
	ttl       time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewSweeper(mailboxes repository.MailboxRepository, log *slog.Logger, m *metrics.Metrics, ttl, interval time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		mailboxes: mailboxes,
		log:       log,
		metrics:   m,
		ttl:       ttl,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	const op = "service.sweeper.run"
	log := s.log.With("op", op)

	if s.interval <= 0 {
		log.Warn("sweeper disabled: non-positive interval")
		<-ctx.Done()
		return nil
	}

	log.Info("sweeper started", "ttl", s.ttl.String(), "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error("sweep failed", sl.Err(err))
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	removed := 0
	if s.ttl > 0 {
		n, err := s.mailboxes.Sweep(ctx, s.now().Add(-s.ttl))
		if err != nil {
			return 0, err
		}
		removed = n
	}

	if removed > 0 {
		s.metrics.AddExpired(removed)
		s.log.Info("expired idle sessions", "count", removed)
	}

	count, err := s.mailboxes.Count(ctx)
	if err != nil {
		return removed, err
	}
	s.metrics.SetActiveSessions(count)

	return removed, nil
}

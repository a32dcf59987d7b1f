// Package scheduler – the daily snapshot loop.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chani337/selfstar/internal/config"
	"github.com/chani337/selfstar/internal/domain"
	"github.com/chani337/selfstar/internal/repo"
)

const loopSnapshot = "daily_snapshot"

// SnapshotFunc captures one persona's daily activity snapshot.
type SnapshotFunc func(ctx context.Context, p domain.Persona) error

// SnapshotLoop periodically enumerates Instagram-linked personas and runs
// the snapshot routine for each. Per-persona failures are logged and
// swallowed; the batch always completes.
type SnapshotLoop struct {
	DB       *gorm.DB
	Cfg      config.SchedulerConfig
	Snapshot SnapshotFunc
}

// Run ticks at the configured interval until ctx is canceled.
func (l *SnapshotLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *SnapshotLoop) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		tickTotal.WithLabelValues(loopSnapshot).Inc()
		tickDuration.WithLabelValues(loopSnapshot).Observe(time.Since(start).Seconds())
	}()

	personas, err := repo.ListLinkedPersonas(ctx, l.DB, l.Cfg.SnapshotPersonaLimit)
	if err != nil {
		log.Warn().Err(err).Str("loop", loopSnapshot).Msg("persona enumeration failed")
		return
	}
	for _, p := range personas {
		if ctx.Err() != nil {
			return
		}
		if err := l.Snapshot(ctx, p); err != nil {
			taskTotal.WithLabelValues(loopSnapshot, "failed").Inc()
			log.Warn().Err(err).
				Str("loop", loopSnapshot).
				Uint("user_id", p.UserID).
				Int("persona_num", p.PersonaNum).
				Msg("persona snapshot failed")
			continue
		}
		taskTotal.WithLabelValues(loopSnapshot, "ok").Inc()
	}
}

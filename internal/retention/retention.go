package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"sensor-hub/internal/store"
)

// Sweeper periodically deletes telemetry older than the configured number
// of days, through the same range-delete the HTTP API uses. Sweep failures
// are logged and retried on the next tick, never fatal.
type Sweeper struct {
	repo *store.Repo
	days int
	cron *cron.Cron
}

func New(repo *store.Repo, days int) *Sweeper {
	return &Sweeper{repo: repo, days: days, cron: cron.New()}
}

// Start schedules the sweep with the given cron spec (standard 5-field
// format, e.g. "30 3 * * *"). A non-positive retention disables the sweeper.
func (s *Sweeper) Start(spec string) error {
	if s.days <= 0 {
		slog.Info("telemetry retention disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("telemetry retention scheduled", "spec", spec, "days", s.days)
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.days).Truncate(24 * time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.repo.DeleteSampleRange(ctx, time.Time{}, cutoff)
	if err != nil {
		slog.Error("retention sweep failed", "cutoff", cutoff, "error", err)
		return
	}
	if n > 0 {
		slog.Info("retention sweep removed telemetry", "rows", n, "cutoff", cutoff)
	}
}

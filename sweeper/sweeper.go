package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"rankflow/logger"
	"rankflow/models"
	"rankflow/store"
)

// Archiver receives the records a sweep is about to evict. A failed archive
// aborts the sweep so data is never dropped before it is copied out.
type Archiver interface {
	Archive(ctx context.Context, records []models.RankingRecord) error
}

// Sweeper enforces the retention horizon over the ranking store. It is a
// two-state machine (idle, sweeping); overlapping runs are rejected. A sweep
// is not transactional with collection: the store's snapshot-cutoff
// semantics keep concurrent upserts safe.
type Sweeper struct {
	store    store.Store
	archiver Archiver
	horizon  time.Duration
	log      *logger.Log
	sweeping atomic.Bool
}

// New builds a sweeper with the given retention horizon. archiver may be nil
// to delete without archival.
func New(s store.Store, horizon time.Duration, archiver Archiver) *Sweeper {
	return &Sweeper{
		store:    s,
		archiver: archiver,
		horizon:  horizon,
		log:      logger.GetLogger(),
	}
}

// Run executes one retention sweep: count eligible rows, archive them when
// an archiver is configured, delete them, and report before/after counts.
// The cutoff is computed once at call start.
func (s *Sweeper) Run(ctx context.Context) (models.SweepReport, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return models.SweepReport{}, fmt.Errorf("sweep already running")
	}
	defer s.sweeping.Store(false)

	start := time.Now()
	cutoff := time.Now().UTC().Add(-s.horizon)
	report := models.SweepReport{Cutoff: cutoff}
	log := s.log.WithComponent("sweeper").WithFields(logger.Fields{
		"cutoff":  cutoff.Format(time.RFC3339),
		"horizon": s.horizon.String(),
	})

	eligible, err := s.store.CountBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("count eligible rows: %w", err)
	}
	report.Eligible = eligible

	if eligible == 0 {
		remaining, err := s.store.CountSince(ctx, cutoff)
		if err != nil {
			return report, fmt.Errorf("count remaining rows: %w", err)
		}
		report.Remaining = remaining
		report.Elapsed = time.Since(start)
		log.WithFields(logger.Fields{"remaining": remaining}).Info("nothing to sweep")
		return report, nil
	}

	if s.archiver != nil {
		records, err := s.store.FetchBefore(ctx, cutoff)
		if err != nil {
			return report, fmt.Errorf("fetch rows for archival: %w", err)
		}
		if err := s.archiver.Archive(ctx, records); err != nil {
			log.WithError(err).Error("archive failed, aborting sweep")
			return report, fmt.Errorf("archive before delete: %w", err)
		}
		report.Archived = len(records)
	}

	deleted, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("delete expired rows: %w", err)
	}
	report.Deleted = deleted

	remaining, err := s.store.CountSince(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("count remaining rows: %w", err)
	}
	report.Remaining = remaining
	report.Elapsed = time.Since(start)

	log.WithFields(logger.Fields{
		"eligible":  report.Eligible,
		"archived":  report.Archived,
		"deleted":   report.Deleted,
		"remaining": report.Remaining,
		"elapsed":   report.Elapsed.String(),
	}).Info("retention sweep complete")
	return report, nil
}

// Start runs sweeps on the given interval until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	log := s.log.WithComponent("sweeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("retention sweep failed")
			}
		}
	}
}

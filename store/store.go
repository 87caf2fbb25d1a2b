package store

import (
	"context"
	"time"

	"rankflow/models"
)

// Store is the persistence contract for hourly ranking aggregates. All
// retention operations take a cutoff computed once by the caller so that a
// record written after the cutoff is never affected by a sweep that started
// before the write completed. Implementations must be safe for concurrent
// UpsertBatch and DeleteBefore calls.
type Store interface {
	// UpsertBatch writes records keyed by (keyword, product, platform,
	// hour). A conflicting key overwrites rank, metadata and timestamp.
	// On error zero or more rows may have been committed; callers rely on
	// idempotent re-runs rather than partial recovery.
	UpsertBatch(ctx context.Context, records []models.RankingRecord) (int, error)

	// CountSince counts records observed at or after the cutoff.
	CountSince(ctx context.Context, cutoff time.Time) (int, error)

	// CountBefore counts records observed strictly before the cutoff.
	CountBefore(ctx context.Context, cutoff time.Time) (int, error)

	// DeleteBefore removes records observed strictly before the cutoff and
	// returns the number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)

	// FetchBefore returns the records that DeleteBefore would remove,
	// used for pre-eviction archival.
	FetchBefore(ctx context.Context, cutoff time.Time) ([]models.RankingRecord, error)

	// SampleRecent returns per-hour record counts for the most recent
	// hour buckets. Diagnostic only.
	SampleRecent(ctx context.Context, hourBucketsBack int) (map[time.Time]int, error)

	Close() error
}

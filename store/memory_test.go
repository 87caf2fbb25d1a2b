package store

import (
	"context"
	"testing"
	"time"

	"rankflow/models"
)

func record(keyword, productID string, rank int, observedAt time.Time) models.RankingRecord {
	return models.RankingRecord{
		Keyword:    keyword,
		ProductID:  productID,
		Platform:   "coupang",
		Rank:       rank,
		ObservedAt: observedAt,
	}
}

func TestUpsertBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	batch := []models.RankingRecord{
		record("mouse", "p1", 1, now),
		record("mouse", "p2", 2, now),
		record("keyboard", "p1", 5, now),
	}

	if _, err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if _, err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if got := s.Len(); got != 3 {
		t.Errorf("identical batches must not duplicate rows: len = %d, want 3", got)
	}
}

func TestUpsertOverwritesWithinBucket(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	hour := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	first := record("mouse", "p1", 1, hour.Add(5*time.Minute))
	later := record("mouse", "p1", 9, hour.Add(50*time.Minute))

	if _, err := s.UpsertBatch(ctx, []models.RankingRecord{first, later}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("same-bucket observation must overwrite, len = %d", got)
	}

	stored, err := s.FetchBefore(ctx, hour.Add(time.Hour))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(stored) != 1 || stored[0].Rank != 9 {
		t.Errorf("expected later rank 9 to win, got %+v", stored)
	}
}

func TestUpsertSkipsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	batch := []models.RankingRecord{
		record("mouse", "p1", 1, now),
		record("mouse", "", 2, now),   // missing product id
		record("mouse", "p3", 0, now), // rank below 1
	}
	written, err := s.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if written != 1 {
		t.Errorf("written = %d, want 1", written)
	}
}

func TestDeleteBeforeProperties(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	var batch []models.RankingRecord
	for i := 1; i <= 10; i++ {
		batch = append(batch, record("mouse", "p1", i, now.Add(-time.Duration(i)*time.Hour)))
	}
	if _, err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	cutoff := now.Add(-5 * time.Hour)
	sinceBefore, _ := s.CountSince(ctx, cutoff)

	deleted, err := s.DeleteBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted = %d, want 5", deleted)
	}

	if n, _ := s.CountBefore(ctx, cutoff); n != 0 {
		t.Errorf("countBefore after delete = %d, want 0", n)
	}
	if n, _ := s.CountSince(ctx, cutoff); n != sinceBefore {
		t.Errorf("countSince changed by delete: %d -> %d", sinceBefore, n)
	}
}

func TestSampleRecentGroupsByHour(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().UTC().Truncate(time.Hour)

	batch := []models.RankingRecord{
		record("mouse", "p1", 1, base.Add(10*time.Minute)),
		record("mouse", "p2", 2, base.Add(20*time.Minute)),
		record("mouse", "p1", 3, base.Add(-time.Hour).Add(30*time.Minute)),
	}
	if _, err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	sample, err := s.SampleRecent(ctx, 3)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if sample[base] != 2 {
		t.Errorf("current bucket count = %d, want 2", sample[base])
	}
	if sample[base.Add(-time.Hour)] != 1 {
		t.Errorf("previous bucket count = %d, want 1", sample[base.Add(-time.Hour)])
	}
}

func TestConcurrentUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.UpsertBatch(ctx, []models.RankingRecord{record("mouse", "p1", i+1, now)})
		}
	}()
	for i := 0; i < 100; i++ {
		if _, err := s.DeleteBefore(ctx, cutoff); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
	}
	<-done

	// Records inside the horizon are never deleted by a concurrent sweep.
	if n, _ := s.CountSince(ctx, cutoff); n != 1 {
		t.Errorf("countSince = %d, want 1", n)
	}
}

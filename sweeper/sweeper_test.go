package sweeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"rankflow/models"
	"rankflow/store"
)

// seedHourly writes one record per hour for hours 1..n ago, offset half an
// hour into each hour so none lands exactly on a sweep cutoff.
func seedHourly(t *testing.T, s store.Store, n int) {
	t.Helper()
	now := time.Now().UTC()
	var batch []models.RankingRecord
	for i := 1; i <= n; i++ {
		batch = append(batch, models.RankingRecord{
			Keyword:    "mouse",
			ProductID:  fmt.Sprintf("p%d", i),
			Platform:   "coupang",
			Rank:       i,
			ObservedAt: now.Add(-time.Duration(i) * time.Hour).Add(30 * time.Minute),
		})
	}
	if _, err := s.UpsertBatch(context.Background(), batch); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestSweepEnforcesRetentionWindow(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seedHourly(t, mem, 30)

	sw := New(mem, 24*time.Hour, nil)
	report, err := sw.Run(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if report.Eligible != 6 || report.Deleted != 6 {
		t.Errorf("expected 6 eligible/deleted, got %+v", report)
	}
	if report.Remaining != 24 {
		t.Errorf("remaining = %d, want 24", report.Remaining)
	}
	if n, _ := mem.CountBefore(ctx, report.Cutoff); n != 0 {
		t.Errorf("countBefore(cutoff) = %d after sweep, want 0", n)
	}

	// Every surviving record is within the horizon.
	stale, _ := mem.FetchBefore(ctx, report.Cutoff)
	if len(stale) != 0 {
		t.Errorf("found %d surviving records older than the horizon", len(stale))
	}
	if mem.Len() != 24 {
		t.Errorf("store has %d records, want 24", mem.Len())
	}
}

func TestSweepCountSinceUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seedHourly(t, mem, 10)

	sw := New(mem, 5*time.Hour, nil)
	cutoff := time.Now().UTC().Add(-5 * time.Hour)
	before, _ := mem.CountSince(ctx, cutoff)

	if _, err := sw.Run(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if after, _ := mem.CountSince(ctx, cutoff); after != before {
		t.Errorf("countSince changed by sweep: %d -> %d", before, after)
	}
}

func TestSweepNothingToDo(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seedHourly(t, mem, 3)

	sw := New(mem, 48*time.Hour, nil)
	report, err := sw.Run(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.Eligible != 0 || report.Deleted != 0 {
		t.Errorf("expected no-op sweep, got %+v", report)
	}
	if report.Remaining != 3 {
		t.Errorf("remaining = %d, want 3", report.Remaining)
	}
}

type recordingArchiver struct {
	records []models.RankingRecord
	err     error
}

func (a *recordingArchiver) Archive(ctx context.Context, records []models.RankingRecord) error {
	a.records = records
	return a.err
}

func TestSweepArchivesBeforeDelete(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seedHourly(t, mem, 30)

	arch := &recordingArchiver{}
	sw := New(mem, 24*time.Hour, arch)
	report, err := sw.Run(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.Archived != 6 || len(arch.records) != 6 {
		t.Errorf("expected 6 archived rows, got report %+v, archiver %d", report, len(arch.records))
	}
}

func TestSweepArchiveFailureAbortsDelete(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seedHourly(t, mem, 30)

	arch := &recordingArchiver{err: errors.New("s3 unavailable")}
	sw := New(mem, 24*time.Hour, arch)
	if _, err := sw.Run(ctx); err == nil {
		t.Fatalf("expected sweep error when archive fails")
	}
	if mem.Len() != 30 {
		t.Errorf("archive failure must not delete rows: len = %d, want 30", mem.Len())
	}
}

type blockingStore struct {
	*store.MemoryStore
	enter chan struct{}
	exit  chan struct{}
}

func (s *blockingStore) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.enter <- struct{}{}
	<-s.exit
	return s.MemoryStore.CountBefore(ctx, cutoff)
}

func TestSweepRefusesOverlap(t *testing.T) {
	mem := store.NewMemoryStore()
	seedHourly(t, mem, 30)
	bs := &blockingStore{MemoryStore: mem, enter: make(chan struct{}), exit: make(chan struct{})}

	sw := New(bs, 24*time.Hour, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sw.Run(context.Background())
		done <- err
	}()

	<-bs.enter // first sweep is inside the store call
	if _, err := sw.Run(context.Background()); err == nil {
		t.Errorf("expected overlap rejection while a sweep is running")
	}
	close(bs.exit)
	if err := <-done; err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
}

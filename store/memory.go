package store

import (
	"context"
	"sync"
	"time"

	"rankflow/models"
)

// MemoryStore keeps ranking records in a map keyed by the upsert tuple. It
// backs tests and keeps local development runs free of a database. Safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.RankingRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.RankingRecord)}
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, records []models.RankingRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			continue
		}
		s.records[r.Key()] = r
		written++
	}
	return written, nil
}

func (s *MemoryStore) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if !r.ObservedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.ObservedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, r := range s.records {
		if r.ObservedAt.Before(cutoff) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) FetchBefore(ctx context.Context, cutoff time.Time) ([]models.RankingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RankingRecord
	for _, r := range s.records {
		if r.ObservedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) SampleRecent(ctx context.Context, hourBucketsBack int) (map[time.Time]int, error) {
	if hourBucketsBack <= 0 {
		hourBucketsBack = 24
	}
	since := time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(hourBucketsBack) * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	sample := make(map[time.Time]int)
	for _, r := range s.records {
		bucket := r.HourBucket()
		if !bucket.Before(since) {
			sample[bucket]++
		}
	}
	return sample, nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error {
	return nil
}

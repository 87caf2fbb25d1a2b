package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rankflow/logger"
	"rankflow/models"
)

// PostgresStore persists ranking records in the shopping_rankings_hourly
// table. The unique index on (keyword, product_id, platform, hour) carries
// the upsert invariant; row-level atomicity of ON CONFLICT makes concurrent
// upserts and sweeps safe.
type PostgresStore struct {
	db  *sql.DB
	log *logger.Log
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, log: logger.GetLogger()}
}

const upsertQuery = `
	INSERT INTO shopping_rankings_hourly
		(keyword, product_id, platform, rank, metadata, hour, observed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (keyword, product_id, platform, hour) DO UPDATE
	SET rank = EXCLUDED.rank,
	    metadata = EXCLUDED.metadata,
	    observed_at = EXCLUDED.observed_at`

func (s *PostgresStore) UpsertBatch(ctx context.Context, records []models.RankingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			s.log.WithComponent("ranking_store").WithError(err).Warn("skipping invalid record")
			continue
		}
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %q/%q: %w", r.Keyword, r.ProductID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.Keyword, r.ProductID, r.Platform, r.Rank, metadata, r.HourBucket(), r.ObservedAt.UTC(),
		); err != nil {
			return 0, fmt.Errorf("upsert %q/%q: %w", r.Keyword, r.ProductID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}

	logger.IncrementRecordsWritten(written)
	s.log.WithComponent("ranking_store").WithFields(logger.Fields{"written": written}).Debug("batch upserted")
	return written, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shopping_rankings_hourly WHERE observed_at >= $1`,
		cutoff.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func (s *PostgresStore) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shopping_rankings_hourly WHERE observed_at < $1`,
		cutoff.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shopping_rankings_hourly WHERE observed_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete before %s: rows affected: %w", cutoff.Format(time.RFC3339), err)
	}
	logger.IncrementRecordsSwept(int(deleted))
	return int(deleted), nil
}

func (s *PostgresStore) FetchBefore(ctx context.Context, cutoff time.Time) ([]models.RankingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, product_id, platform, rank, metadata, observed_at
		FROM shopping_rankings_hourly
		WHERE observed_at < $1
		ORDER BY observed_at`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var records []models.RankingRecord
	for rows.Next() {
		var r models.RankingRecord
		var metadata []byte
		if err := rows.Scan(&r.Keyword, &r.ProductID, &r.Platform, &r.Rank, &metadata, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				s.log.WithComponent("ranking_store").WithError(err).Warn("dropping unreadable metadata")
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) SampleRecent(ctx context.Context, hourBucketsBack int) (map[time.Time]int, error) {
	if hourBucketsBack <= 0 {
		hourBucketsBack = 24
	}
	since := time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(hourBucketsBack) * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT hour, COUNT(*)
		FROM shopping_rankings_hourly
		WHERE hour >= $1
		GROUP BY hour
		ORDER BY hour`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("sample recent buckets: %w", err)
	}
	defer rows.Close()

	sample := make(map[time.Time]int)
	for rows.Next() {
		var hour time.Time
		var count int
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("scan bucket sample: %w", err)
		}
		sample[hour.UTC()] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket samples: %w", err)
	}
	return sample, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

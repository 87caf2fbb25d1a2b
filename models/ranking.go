package models

import (
	"fmt"
	"time"
)

// RankingRecord is one observed rank for one product under one keyword at
// one point in time. Within an hour bucket the tuple
// (keyword, product id, platform, hour) is unique; a later observation in
// the same bucket overwrites the earlier one.
type RankingRecord struct {
	Keyword    string                 `json:"keyword"`
	ProductID  string                 `json:"product_id"`
	Platform   string                 `json:"platform"`
	Rank       int                    `json:"rank"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	ObservedAt time.Time              `json:"observed_at"`
}

// HourBucket truncates the observation time to the start of its UTC hour.
func (r RankingRecord) HourBucket() time.Time {
	return r.ObservedAt.UTC().Truncate(time.Hour)
}

// Key returns the upsert key for the hour bucket the record falls into.
func (r RankingRecord) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d", r.Keyword, r.ProductID, r.Platform, r.HourBucket().Unix())
}

// Validate reports whether the record satisfies the store invariants.
func (r RankingRecord) Validate() error {
	if r.Keyword == "" {
		return fmt.Errorf("ranking record: keyword is required")
	}
	if r.ProductID == "" {
		return fmt.Errorf("ranking record: product id is required (keyword %q)", r.Keyword)
	}
	if r.Platform == "" {
		return fmt.Errorf("ranking record: platform is required (keyword %q)", r.Keyword)
	}
	if r.Rank < 1 {
		return fmt.Errorf("ranking record: rank must be >= 1, got %d (keyword %q, product %q)", r.Rank, r.Keyword, r.ProductID)
	}
	if r.ObservedAt.IsZero() {
		return fmt.Errorf("ranking record: observed_at is required (keyword %q, product %q)", r.Keyword, r.ProductID)
	}
	return nil
}

// CycleSummary aggregates the outcome of one collection cycle.
type CycleSummary struct {
	CycleID   string        `json:"cycle_id"`
	Keywords  int           `json:"keywords"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Blocked   int           `json:"blocked"`
	Collected int           `json:"collected"`
	Written   int           `json:"written"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SweepReport aggregates the outcome of one retention sweep.
type SweepReport struct {
	Cutoff    time.Time     `json:"cutoff"`
	Eligible  int           `json:"eligible"`
	Archived  int           `json:"archived"`
	Deleted   int           `json:"deleted"`
	Remaining int           `json:"remaining"`
	Elapsed   time.Duration `json:"elapsed"`
}

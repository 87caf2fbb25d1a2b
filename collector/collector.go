package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rankflow/config"
	"rankflow/logger"
	"rankflow/models"
	"rankflow/provider"
	"rankflow/store"
)

// Collector drives the registered providers across a keyword batch and hands
// the collected records to the store as one upsert batch. Keywords run on a
// small fixed-size worker pool; a failing keyword never aborts the cycle.
// There is no in-cycle retry: the next scheduled cycle is the retry, and the
// idempotent upsert absorbs re-fetches.
type Collector struct {
	cfg       *config.Config
	providers []provider.Provider
	store     store.Store
	log       *logger.Log

	mu            sync.Mutex
	cooldownUntil map[string]time.Time
}

type keywordResult struct {
	keyword  string
	provider string
	records  []models.RankingRecord
	err      error
}

func New(cfg *config.Config, providers []provider.Provider, s store.Store) *Collector {
	return &Collector{
		cfg:           cfg,
		providers:     providers,
		store:         s,
		log:           logger.GetLogger(),
		cooldownUntil: make(map[string]time.Time),
	}
}

// RunCycle executes one complete collection cycle and reports its outcome.
// A store failure marks the cycle failed; collected per-keyword failures do
// not.
func (c *Collector) RunCycle(ctx context.Context) (models.CycleSummary, error) {
	cycleID := uuid.New().String()
	log := c.log.WithComponent("collector").WithFields(logger.Fields{"cycle_id": cycleID})
	summary := models.CycleSummary{CycleID: cycleID}

	keywords, err := c.cfg.Collector.ResolveKeywords()
	if err != nil {
		return summary, fmt.Errorf("resolve keywords: %w", err)
	}
	summary.Keywords = len(keywords)

	if len(c.providers) == 0 {
		log.Warn("no providers configured, skipping cycle")
		return summary, nil
	}

	start := time.Now()
	log.WithFields(logger.Fields{
		"keywords":  len(keywords),
		"providers": len(c.providers),
		"workers":   c.cfg.Collector.Workers,
	}).Info("starting collection cycle")

	jobs := make(chan string)
	results := make(chan keywordResult)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Collector.Workers; i++ {
		wg.Add(1)
		go c.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for _, kw := range keywords {
			select {
			case jobs <- kw:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var batch []models.RankingRecord
	for res := range results {
		resLog := log.WithFields(logger.Fields{"keyword": res.keyword, "provider": res.provider})
		switch {
		case errors.Is(res.err, provider.ErrBlocked):
			summary.Blocked++
			c.startCooldown(res.provider)
			resLog.WithError(res.err).Warn("provider blocked, applying cooldown")
		case res.err != nil:
			summary.Failed++
			logger.IncrementKeywordFailed()
			resLog.WithError(res.err).Warn("keyword fetch failed")
		default:
			summary.Succeeded++
			logger.IncrementKeywordFetched(len(res.records))
			resLog.WithFields(logger.Fields{"records": len(res.records)}).Info("keyword collected")
		}
		batch = append(batch, res.records...)
	}
	summary.Collected = len(batch)

	written, err := c.store.UpsertBatch(ctx, batch)
	summary.Written = written
	summary.Elapsed = time.Since(start)
	if err != nil {
		log.WithError(err).Error("cycle failed to persist batch")
		return summary, fmt.Errorf("persist batch: %w", err)
	}

	log.WithFields(logger.Fields{
		"keywords":  summary.Keywords,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"blocked":   summary.Blocked,
		"collected": summary.Collected,
		"written":   summary.Written,
		"elapsed":   summary.Elapsed.String(),
	}).Info("collection cycle complete")
	return summary, nil
}

// Start runs collection cycles on the configured interval until the context
// is cancelled. The first cycle runs immediately.
func (c *Collector) Start(ctx context.Context) {
	interval := c.cfg.Collector.GetInterval()
	log := c.log.WithComponent("collector")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("collection cycle failed")
		}
		select {
		case <-ctx.Done():
			log.Info("collector stopped")
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) worker(ctx context.Context, jobs <-chan string, results chan<- keywordResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case keyword, ok := <-jobs:
			if !ok {
				return
			}
			for _, p := range c.providers {
				if c.inCooldown(p.Name()) {
					c.log.WithComponent("collector").WithFields(logger.Fields{
						"keyword":  keyword,
						"provider": p.Name(),
					}).Debug("provider in cooldown, skipping keyword")
					continue
				}
				records, err := p.FetchRankings(ctx, keyword, c.cfg.Collector.MaxPages)
				select {
				case results <- keywordResult{keyword: keyword, provider: p.Name(), records: records, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (c *Collector) startCooldown(providerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownUntil[providerName] = time.Now().Add(c.cfg.Collector.GetBlockedCooldown())
}

func (c *Collector) inCooldown(providerName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldownUntil[providerName]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.cooldownUntil, providerName)
		return false
	}
	return true
}

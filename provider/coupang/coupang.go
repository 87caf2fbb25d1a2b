package coupang

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"rankflow/config"
	"rankflow/logger"
	"rankflow/models"
	"rankflow/processor"
	"rankflow/provider"
)

const platformName = "coupang"

// pageDelay is the mandatory pause between pages of the same keyword. The
// ranking API rate-limits per keyword, so pages are never fetched in
// parallel and never back to back.
const pageDelay = 1000 * time.Millisecond

func init() {
	provider.Register(platformName, New)
}

// Client fetches keyword rankings from the Coupang search-ranking API.
type Client struct {
	cfg     config.CoupangConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log

	// sleep is replaced in tests so page pacing stays testable without
	// wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds the Coupang provider from the application configuration.
func New(cfg *config.Config) (provider.Provider, error) {
	src := cfg.Source.Coupang
	if !src.Enabled {
		return nil, provider.ErrDisabled
	}
	if src.URL == "" {
		return nil, fmt.Errorf("coupang: url is required")
	}
	if src.PageSize <= 0 {
		return nil, fmt.Errorf("coupang: page_size must be greater than 0")
	}

	rps := cfg.Collector.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Collector.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		cfg: src,
		http: &http.Client{
			Timeout: cfg.Collector.GetRequestTimeout(),
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
		sleep:   sleepContext,
	}, nil
}

func (c *Client) Name() string {
	return platformName
}

type searchResponse struct {
	Success bool       `json:"success"`
	Data    searchData `json:"data"`
}

type searchData struct {
	Products []searchProduct `json:"products"`
	Blocked  bool            `json:"blocked"`
	Message  string          `json:"message"`
	Error    string          `json:"error"`
}

type searchProduct struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Thumbnail string `json:"thumbnail"`
	Rank      int    `json:"rank"`
}

// FetchRankings pages through the ranking API for one keyword and returns
// normalized records. Pages are fetched strictly in order with a fixed delay
// between them. A transient page failure terminates the keyword and returns
// what was collected; a blocked signal additionally returns ErrBlocked so
// the orchestrator can cool the provider down.
func (c *Client) FetchRankings(ctx context.Context, keyword string, maxPages int) ([]models.RankingRecord, error) {
	log := c.log.WithComponent("coupang_provider").WithFields(logger.Fields{"keyword": keyword})

	var records []models.RankingRecord
	observedAt := time.Now().UTC()

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := c.sleep(ctx, pageDelay); err != nil {
				log.WithFields(logger.Fields{"page": page}).Info("fetch cancelled, returning partial results")
				return records, nil
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return records, nil
		}

		resp, err := c.fetchPage(ctx, keyword, page)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"page": page}).Warn("page fetch failed, returning partial results")
			return records, nil
		}
		logger.IncrementPageFetch()

		if resp.Data.Blocked {
			log.WithFields(logger.Fields{"page": page, "message": resp.Data.Message}).Warn("ranking api reported blocking")
			return records, fmt.Errorf("coupang: keyword %q page %d: %w", keyword, page, provider.ErrBlocked)
		}
		if !resp.Success {
			log.WithFields(logger.Fields{
				"page":    page,
				"message": resp.Data.Message,
				"error":   resp.Data.Error,
			}).Warn("ranking api reported failure, returning partial results")
			return records, nil
		}

		for i, p := range resp.Data.Products {
			if p.ProductID == "" {
				continue
			}
			rank := p.Rank
			if rank < 1 {
				rank = (page-1)*c.cfg.PageSize + i + 1
			}
			records = append(records, models.RankingRecord{
				Keyword:   keyword,
				ProductID: p.ProductID,
				Platform:  platformName,
				Rank:      rank,
				Metadata: map[string]interface{}{
					"title":     processor.CleanTitle(p.Title),
					"url":       p.Link,
					"thumbnail": p.Thumbnail,
					"page":      page,
				},
				ObservedAt: observedAt,
			})
		}

		log.WithFields(logger.Fields{"page": page, "items": len(resp.Data.Products)}).Info("page fetched")

		if len(resp.Data.Products) < c.cfg.PageSize {
			// Short page means the ranked list is exhausted.
			break
		}
	}

	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, keyword string, page int) (*searchResponse, error) {
	reqURL := fmt.Sprintf("%s?keyword=%s&page=%d&limit=%d",
		c.cfg.URL, url.QueryEscape(keyword), page, c.cfg.PageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for page %d", resp.StatusCode, page)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return &out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

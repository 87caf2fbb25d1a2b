package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Process-wide counters for the periodic activity report. Readers and the
// store increment these on the hot path; the report goroutine drains them.
var (
	pagesFetched     int64
	keywordsFetched  int64
	keywordsFailed   int64
	recordsCollected int64
	recordsWritten   int64
	recordsSwept     int64

	componentWarns  sync.Map // map[string]*int64
	componentErrors sync.Map // map[string]*int64
)

func IncrementPageFetch() {
	atomic.AddInt64(&pagesFetched, 1)
}

func IncrementKeywordFetched(records int) {
	atomic.AddInt64(&keywordsFetched, 1)
	atomic.AddInt64(&recordsCollected, int64(records))
}

func IncrementKeywordFailed() {
	atomic.AddInt64(&keywordsFailed, 1)
}

func IncrementRecordsWritten(n int) {
	atomic.AddInt64(&recordsWritten, int64(n))
}

func IncrementRecordsSwept(n int) {
	atomic.AddInt64(&recordsSwept, int64(n))
}

func recordWarn(component string) {
	addComponentCount(&componentWarns, component)
}

func recordError(component string) {
	addComponentCount(&componentErrors, component)
}

func addComponentCount(m *sync.Map, component string) {
	v, _ := m.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func drainComponentCounts(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(k, v interface{}) bool {
		if n := atomic.SwapInt64(v.(*int64), 0); n > 0 {
			out[k.(string)] = n
		}
		return true
	})
	return out
}

// StartReport emits a summary of collection activity on the given interval
// and mirrors the counters to CloudWatch when it is configured. The counters
// reset on every report so each line covers one interval.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitReport(ctx, log)
			}
		}
	}()
}

func emitReport(ctx context.Context, log *Log) {
	pages := atomic.SwapInt64(&pagesFetched, 0)
	fetched := atomic.SwapInt64(&keywordsFetched, 0)
	failed := atomic.SwapInt64(&keywordsFailed, 0)
	collected := atomic.SwapInt64(&recordsCollected, 0)
	written := atomic.SwapInt64(&recordsWritten, 0)
	swept := atomic.SwapInt64(&recordsSwept, 0)

	fields := Fields{
		"pages_fetched":     pages,
		"keywords_fetched":  fetched,
		"keywords_failed":   failed,
		"records_collected": collected,
		"records_written":   written,
		"records_swept":     swept,
	}
	for component, n := range drainComponentCounts(&componentWarns) {
		fields["warns_"+component] = n
	}
	for component, n := range drainComponentCounts(&componentErrors) {
		fields["errors_"+component] = n
	}

	log.WithComponent("report").WithFields(fields).Info("activity report")

	PublishMetric(ctx, "PagesFetched", float64(pages), nil)
	PublishMetric(ctx, "RecordsWritten", float64(written), nil)
	PublishMetric(ctx, "RecordsSwept", float64(swept), nil)
	PublishMetric(ctx, "KeywordsFailed", float64(failed), nil)
}

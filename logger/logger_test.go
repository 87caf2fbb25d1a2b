package logger

import (
	"os"
	"sync/atomic"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestCountersReset(t *testing.T) {
	atomic.StoreInt64(&pagesFetched, 0)
	atomic.StoreInt64(&recordsWritten, 0)

	IncrementPageFetch()
	IncrementPageFetch()
	IncrementRecordsWritten(5)

	if got := atomic.SwapInt64(&pagesFetched, 0); got != 2 {
		t.Errorf("pagesFetched = %d, want 2", got)
	}
	if got := atomic.SwapInt64(&recordsWritten, 0); got != 5 {
		t.Errorf("recordsWritten = %d, want 5", got)
	}
}

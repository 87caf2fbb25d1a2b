package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `rankflow:
  name: "TestApp"
  version: "1.0"
collector:
  keywords: ["wireless mouse"]
  max_pages: 3
  workers: 2
source:
  coupang:
    enabled: true
    url: "https://ranking.example.com/v1/search"
    page_size: 20
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Rankflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Rankflow.Name)
	}
	if cfg.Collector.Workers != 2 {
		t.Errorf("unexpected workers: %d", cfg.Collector.Workers)
	}
	if cfg.Collector.MaxPages != 3 {
		t.Errorf("unexpected max pages: %d", cfg.Collector.MaxPages)
	}
	if got := cfg.Sweeper.GetHorizon(); got != 24*time.Hour {
		t.Errorf("unexpected default horizon: %v", got)
	}
	if got := cfg.Collector.GetBlockedCooldown(); got != 15*time.Minute {
		t.Errorf("unexpected default cooldown: %v", got)
	}
}

func TestLoadConfigMissingProviderURL(t *testing.T) {
	content := strings.Replace(minimalConfig, `    url: "https://ranking.example.com/v1/search"`+"\n", "", 1)
	path := writeTempConfig(t, content)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for enabled provider without url")
	}
}

func TestLoadConfigMissingKeywords(t *testing.T) {
	content := strings.Replace(minimalConfig, `  keywords: ["wireless mouse"]`+"\n", "", 1)
	path := writeTempConfig(t, content)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error when no keyword source is configured")
	}
}

func TestAPIKeyEnvOverride(t *testing.T) {
	t.Setenv("COUPANG_API_KEY", "secret-from-env")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Source.Coupang.APIKey != "secret-from-env" {
		t.Errorf("expected api key from environment, got %q", cfg.Source.Coupang.APIKey)
	}
}

func TestResolveKeywordsFromFile(t *testing.T) {
	f, err := os.CreateTemp("", "keywords-*.txt")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("wireless mouse\n\n# comment\nusb hub\n"); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	c := CollectorConfig{KeywordsFile: f.Name()}
	keywords, err := c.ResolveKeywords()
	if err != nil {
		t.Fatalf("ResolveKeywords failed: %v", err)
	}
	if len(keywords) != 2 || keywords[0] != "wireless mouse" || keywords[1] != "usb hub" {
		t.Errorf("unexpected keywords: %v", keywords)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

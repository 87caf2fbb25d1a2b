package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Rankflow  RankflowConfig  `yaml:"rankflow"`
	Collector CollectorConfig `yaml:"collector"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type RankflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CollectorConfig struct {
	Keywords          []string `yaml:"keywords"`
	KeywordsFile      string   `yaml:"keywords_file"`
	MaxPages          int      `yaml:"max_pages"`
	Workers           int      `yaml:"workers"`
	Interval          string   `yaml:"interval"`
	BlockedCooldown   string   `yaml:"blocked_cooldown"`
	RequestTimeout    string   `yaml:"request_timeout"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
	BurstSize         int      `yaml:"burst_size"`
}

type SweeperConfig struct {
	Horizon  string `yaml:"horizon"`
	Interval string `yaml:"interval"`
}

type SourceConfig struct {
	Coupang CoupangConfig `yaml:"coupang"`
}

type CoupangConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	PageSize int    `yaml:"page_size"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	Compression     string `yaml:"compression"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch     bool   `yaml:"cloudwatch"`
	Region         string `yaml:"region"`
	Namespace      string `yaml:"namespace"`
	ReportInterval string `yaml:"report_interval"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Collector: CollectorConfig{
			MaxPages:          5,
			Workers:           1,
			Interval:          "1h",
			BlockedCooldown:   "15m",
			RequestTimeout:    "60s",
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
		Sweeper: SweeperConfig{
			Horizon:  "24h",
			Interval: "1h",
		},
		Source: SourceConfig{
			Coupang: CoupangConfig{PageSize: 20},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override secrets from environment variables if available
	if v := os.Getenv("COUPANG_API_KEY"); v != "" {
		config.Source.Coupang.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.Postgres.DSN = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Rankflow.Name == "" {
		return fmt.Errorf("rankflow.name is required")
	}

	if cfg.Rankflow.Version == "" {
		return fmt.Errorf("rankflow.version is required")
	}

	if cfg.Collector.Workers <= 0 {
		return fmt.Errorf("collector.workers must be greater than 0")
	}
	if cfg.Collector.MaxPages <= 0 {
		return fmt.Errorf("collector.max_pages must be greater than 0")
	}
	if len(cfg.Collector.Keywords) == 0 && cfg.Collector.KeywordsFile == "" {
		return fmt.Errorf("collector.keywords or collector.keywords_file is required")
	}
	if _, err := time.ParseDuration(cfg.Sweeper.Horizon); err != nil {
		return fmt.Errorf("sweeper.horizon '%s' is invalid: %w", cfg.Sweeper.Horizon, err)
	}

	if cfg.Source.Coupang.Enabled {
		if cfg.Source.Coupang.URL == "" {
			return fmt.Errorf("source.coupang.url is required when coupang is enabled")
		}
		if cfg.Source.Coupang.PageSize <= 0 {
			return fmt.Errorf("source.coupang.page_size must be greater than 0")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

// ResolveKeywords returns the keyword batch for a collection cycle. The
// inline list takes precedence; otherwise keywords are read one per line
// from the configured file, skipping blanks and '#' comments.
func (c *CollectorConfig) ResolveKeywords() ([]string, error) {
	if len(c.Keywords) > 0 {
		return c.Keywords, nil
	}

	file, err := os.Open(c.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open keywords file: %w", err)
	}
	defer file.Close()

	var keywords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords file '%s' contains no keywords", c.KeywordsFile)
	}
	return keywords, nil
}

func (c *CollectorConfig) GetInterval() time.Duration {
	return parseDurationOr(c.Interval, time.Hour)
}

func (c *CollectorConfig) GetBlockedCooldown() time.Duration {
	return parseDurationOr(c.BlockedCooldown, 15*time.Minute)
}

func (c *CollectorConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 60*time.Second)
}

func (c *SweeperConfig) GetHorizon() time.Duration {
	return parseDurationOr(c.Horizon, 24*time.Hour)
}

func (c *SweeperConfig) GetInterval() time.Duration {
	return parseDurationOr(c.Interval, time.Hour)
}

func (c *MetricsConfig) GetReportInterval() time.Duration {
	return parseDurationOr(c.ReportInterval, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

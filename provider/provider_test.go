package provider

import (
	"context"
	"errors"
	"testing"

	"rankflow/config"
	"rankflow/models"
)

type staticProvider struct {
	name string
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) FetchRankings(ctx context.Context, keyword string, maxPages int) ([]models.RankingRecord, error) {
	return nil, nil
}

func TestRegisterAndNew(t *testing.T) {
	Register("registry-test", func(cfg *config.Config) (Provider, error) {
		return &staticProvider{name: "registry-test"}, nil
	})

	p, err := New("registry-test", &config.Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Name() != "registry-test" {
		t.Errorf("unexpected provider name %q", p.Name())
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("no-such-marketplace", &config.Config{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestAllSkipsDisabled(t *testing.T) {
	Register("registry-disabled", func(cfg *config.Config) (Provider, error) {
		return nil, ErrDisabled
	})
	Register("registry-enabled", func(cfg *config.Config) (Provider, error) {
		return &staticProvider{name: "registry-enabled"}, nil
	})

	providers, err := All(&config.Config{})
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	for _, p := range providers {
		if p.Name() == "registry-disabled" {
			t.Errorf("disabled provider must be skipped")
		}
	}
	found := false
	for _, p := range providers {
		if p.Name() == "registry-enabled" {
			found = true
		}
	}
	if !found {
		t.Errorf("enabled provider missing from All result")
	}
}

var errBrokenFactory = errors.New("endpoint missing")

// brokenFactoryArmed keeps the deliberately broken factory inert for the
// other tests that call All against the shared registry.
var brokenFactoryArmed bool

func TestAllPropagatesConstructionError(t *testing.T) {
	Register("registry-broken", func(cfg *config.Config) (Provider, error) {
		if !brokenFactoryArmed {
			return nil, ErrDisabled
		}
		return nil, errBrokenFactory
	})

	brokenFactoryArmed = true
	defer func() { brokenFactoryArmed = false }()

	if _, err := All(&config.Config{}); !errors.Is(err, errBrokenFactory) {
		t.Fatalf("expected construction error to propagate, got %v", err)
	}
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"rankflow/config"
	"rankflow/models"
)

// ErrBlocked is returned by a provider when the external API reports anti-bot
// blocking. It is distinct from a transient page failure: the orchestrator
// places the provider on a cooldown instead of retrying on the next cycle.
var ErrBlocked = errors.New("provider blocked the request")

// ErrDisabled is returned by a factory when its source is turned off in the
// configuration. All skips disabled providers silently.
var ErrDisabled = errors.New("provider disabled")

// Provider turns a keyword into a finite, eagerly-computed list of normalized
// ranking records. Implementations page through the external API themselves
// and own their pacing. Partial results on failure are returned, not
// discarded; a blocked signal surfaces as an error wrapping ErrBlocked
// alongside whatever was collected before the block.
type Provider interface {
	Name() string
	FetchRankings(ctx context.Context, keyword string, maxPages int) ([]models.RankingRecord, error)
}

// Factory builds a provider from the application configuration. A missing
// required setting (such as the API endpoint) is a construction error; the
// provider must refuse to be built rather than fail at first request.
type Factory func(cfg *config.Config) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a provider factory available under the given name.
// Adapters call Register from init, mirroring database/sql driver
// registration, so adding a marketplace never touches the orchestrator.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if factory == nil {
		panic("provider: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("provider: Register called twice for %q", name))
	}
	factories[name] = factory
}

// Names lists the registered provider names in stable order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named provider.
func New(name string, cfg *config.Config) (Provider, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider %q (registered: %v)", name, Names())
	}
	return factory(cfg)
}

// All builds every registered provider that is enabled in the configuration.
// A disabled provider is skipped; any other construction error is fatal to
// the caller since it indicates broken configuration.
func All(cfg *config.Config) ([]Provider, error) {
	var providers []Provider
	for _, name := range Names() {
		p, err := New(name, cfg)
		if errors.Is(err, ErrDisabled) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

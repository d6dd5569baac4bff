package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bejimenez/magus/internal/culture"
	"github.com/bejimenez/magus/internal/platform/cache"
	"github.com/bejimenez/magus/internal/synthesis"
)

// ErrCultureReloadFailed indicates the template source could not be reloaded. The active
// templates stay in place.
var ErrCultureReloadFailed = errors.New("culture: reload failed")

const (
	cultureEventReloaded = "culture.reloaded"
	cultureEventFailed   = "culture.reload_failed"
)

// CacheInvalidator drops cached entries by key prefix.
type CacheInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) int
}

// CultureCatalogDeps wires the template source and engine settings into the catalog.
type CultureCatalogDeps struct {
	// Registry is the initial template set. When nil, Load is called once at construction.
	Registry      *culture.Registry
	Load          func() (*culture.Registry, error)
	EngineOptions []synthesis.EngineOption
	Cache         CacheInvalidator
	Keys          cache.KeyBuilder
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type cultureCatalog struct {
	engine     atomic.Pointer[synthesis.Engine]
	reloadMu   sync.Mutex
	load       func() (*culture.Registry, error)
	engineOpts []synthesis.EngineOption
	cache      CacheInvalidator
	keys       cache.KeyBuilder
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

var _ CultureCatalog = (*cultureCatalog)(nil)

// NewCultureCatalog builds the initial engine and returns a catalog able to swap it on reload.
func NewCultureCatalog(deps CultureCatalogDeps) (CultureCatalog, error) {
	registry := deps.Registry
	if registry == nil {
		if deps.Load == nil {
			return nil, errors.New("culture catalog: registry or loader is required")
		}
		loaded, err := deps.Load()
		if err != nil {
			return nil, fmt.Errorf("culture catalog: load templates: %w", err)
		}
		registry = loaded
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	keys := deps.Keys
	if keys == (cache.KeyBuilder{}) {
		keys = cache.NewKeyBuilder("", 0)
	}

	c := &cultureCatalog{
		load:       deps.Load,
		engineOpts: append([]synthesis.EngineOption(nil), deps.EngineOptions...),
		cache:      deps.Cache,
		keys:       keys,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}

	engine, err := synthesis.NewEngine(registry, c.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("culture catalog: %w", err)
	}
	c.engine.Store(engine)
	return c, nil
}

func (c *cultureCatalog) Engine() *synthesis.Engine {
	return c.engine.Load()
}

func (c *cultureCatalog) Cultures() []CultureInfo {
	return c.Engine().Registry().List()
}

func (c *cultureCatalog) Reload(ctx context.Context, code string) (CultureReload, error) {
	code = normalizeCultureCode(code)
	if c.load == nil {
		return CultureReload{}, fmt.Errorf("%w: no template source configured", ErrCultureReloadFailed)
	}

	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	registry, err := c.load()
	if err != nil {
		c.logger(ctx, cultureEventFailed, map[string]any{"culture": code, "error": err.Error()})
		return CultureReload{}, fmt.Errorf("%w: %w", ErrCultureReloadFailed, err)
	}
	if code != "" {
		if _, ok := registry.Get(code); !ok {
			return CultureReload{}, fmt.Errorf("%w: %q", ErrGenerationUnknownCulture, code)
		}
	}
	engine, err := synthesis.NewEngine(registry, c.engineOpts...)
	if err != nil {
		return CultureReload{}, fmt.Errorf("%w: %w", ErrCultureReloadFailed, err)
	}
	previous := c.engine.Swap(engine)

	targets := []string{code}
	if code == "" {
		targets = unionCodes(previous.Registry().Codes(), registry.Codes())
	}
	invalidated := 0
	if c.cache != nil {
		for _, target := range targets {
			invalidated += c.cache.InvalidatePrefix(ctx, c.keys.Prefix(target))
		}
	}

	result := CultureReload{
		Cultures:    registry.Codes(),
		Invalidated: invalidated,
		ReloadedAt:  c.now(),
	}
	c.logger(ctx, cultureEventReloaded, map[string]any{
		"culture":     code,
		"cultures":    result.Cultures,
		"invalidated": invalidated,
	})
	return result, nil
}

func normalizeCultureCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func unionCodes(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, code := range a {
		set[code] = struct{}{}
	}
	for _, code := range b {
		set[code] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

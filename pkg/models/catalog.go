// Package models maintains a cached view of the upstream model listing
// with a static fallback when the upstream cannot be reached.
package models

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
	"github.com/karthick-kk/kiro-gateway/pkg/kiro"
)

// DefaultTTL is how long a fetched listing stays fresh.
const DefaultTTL = time.Hour

// Lister fetches the upstream model listing.
type Lister interface {
	ListModels(ctx context.Context) ([]kiro.ModelSummary, error)
}

// Catalog serves model listings, refreshing from upstream lazily once
// the cached listing expires. Upstream failures fall back to the static
// alias table so /v1/models keeps working without credentials.
type Catalog struct {
	lister Lister
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    []api.ChatModel
	fetchedAt time.Time
	fetching  bool
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithTTL overrides the cache lifetime.
func WithTTL(ttl time.Duration) CatalogOption {
	return func(c *Catalog) { c.ttl = ttl }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

// NewCatalog creates a catalog backed by the given lister.
func NewCatalog(lister Lister, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		lister: lister,
		ttl:    DefaultTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns the current model listing. The first call after expiry
// fetches from upstream; on failure a stale listing is served if one
// exists, otherwise the static table. The upstream fetch happens
// outside the lock, and at most one caller fetches at a time; the rest
// serve the stale listing instead of queueing behind the fetch and its
// retry backoff.
func (c *Catalog) List(ctx context.Context) []api.ChatModel {
	c.mu.Lock()
	cached := c.cached
	fresh := cached != nil && c.now().Sub(c.fetchedAt) < c.ttl
	if fresh || c.fetching {
		c.mu.Unlock()
		if cached != nil {
			return cached
		}
		return kiro.StaticModels()
	}
	c.fetching = true
	c.mu.Unlock()

	listing := c.fetch(ctx)

	c.mu.Lock()
	c.fetching = false
	if listing != nil {
		c.cached = listing
		c.fetchedAt = c.now()
	}
	cached = c.cached
	c.mu.Unlock()

	if cached != nil {
		return cached
	}
	return kiro.StaticModels()
}

// fetch pulls the upstream listing and restricts it to the aliases the
// chat endpoint accepts. Returns nil when the fetch fails or yields no
// usable models.
func (c *Catalog) fetch(ctx context.Context) []api.ChatModel {
	summaries, err := c.lister.ListModels(ctx)
	if err != nil {
		c.logger.Warn("model listing fetch failed", "error", err)
		return nil
	}

	created := c.now().Unix()
	var listing []api.ChatModel
	for _, s := range summaries {
		for _, alias := range kiro.AliasesFor(s.ModelID) {
			listing = append(listing, api.ChatModel{
				ID:      alias,
				Object:  "model",
				Created: created,
				OwnedBy: "kiro",
			})
		}
	}
	if len(listing) == 0 {
		return nil
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].ID < listing[j].ID })
	return listing
}

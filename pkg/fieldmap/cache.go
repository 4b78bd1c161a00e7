package fieldmap

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/database"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// Loader returns every stored field mapping.
type Loader interface {
	List(ctx context.Context) ([]*models.FieldMapping, error)
}

// Cache is the process-wide normalized-name to canonical-name map. It loads
// lazily on first use and is replaced wholesale by Reload; Invalidate makes
// the next lookup reload.
type Cache struct {
	loader Loader
	logger *zap.Logger

	// Now is the clock used for MaxAge. Zero MaxAge means entries never expire.
	Now    func() time.Time
	MaxAge time.Duration

	mu       sync.RWMutex
	mappings map[string]string
	loaded   bool
	loadedAt time.Time
}

func NewCache(loader Loader, logger *zap.Logger) *Cache {
	return &Cache{
		loader:   loader,
		logger:   logger.Named("field-mapping-cache"),
		Now:      time.Now,
		mappings: map[string]string{},
	}
}

func (c *Cache) fresh() bool {
	if !c.loaded {
		return false
	}
	return c.MaxAge <= 0 || c.Now().Sub(c.loadedAt) < c.MaxAge
}

// Resolve returns the canonical name for raw. A failed load is logged and
// reported as unmapped.
func (c *Cache) Resolve(ctx context.Context, raw string) (string, bool) {
	key := Normalize(raw)

	c.mu.RLock()
	if c.fresh() {
		mapped, ok := c.mappings[key]
		c.mu.RUnlock()
		return mapped, ok
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh() {
		_ = c.loadLocked(ctx)
	}
	mapped, ok := c.mappings[key]
	return mapped, ok
}

// ResolvePtr is Resolve returning nil for unmapped names, matching the
// nullable mapped_field_name column.
func (c *Cache) ResolvePtr(ctx context.Context, raw string) *string {
	if mapped, ok := c.Resolve(ctx, raw); ok {
		return &mapped
	}
	return nil
}

// Invalidate drops the loaded state; the next Resolve reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

// Reload replaces the cache contents from the loader now.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) error {
	rows, err := c.loader.List(ctx)
	if err != nil {
		if database.IsUndefinedTable(err) {
			c.logger.Warn("field_mappings table does not exist yet, cache empty")
			c.mappings = map[string]string{}
			c.loaded = true
			c.loadedAt = c.Now()
			return nil
		}
		c.logger.Error("Failed to load field mappings", zap.Error(err))
		return err
	}

	mappings := make(map[string]string, len(rows))
	for _, m := range rows {
		mappings[Normalize(m.RawFieldName)] = m.MappedField
	}
	c.mappings = mappings
	c.loaded = true
	c.loadedAt = c.Now()
	c.logger.Info("Loaded field mappings into cache", zap.Int("count", len(mappings)))
	return nil
}

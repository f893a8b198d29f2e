package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/kdevda/go-mailflow/core"
)

const configEntryCacheKeyPrefix = "mailflow::config_entry::v1"

type configEntryReadWriter interface {
	core.ConfigEntryStore
	core.ConfigEntryWriter
}

// CachedConfigEntryStore reads entries through a TTL cache. Lookup failures,
// including misses, are returned without being cached.
type CachedConfigEntryStore struct {
	base  configEntryReadWriter
	cache repositorycache.CacheService
}

func NewCachedConfigEntryStore(
	base configEntryReadWriter,
	cacheService repositorycache.CacheService,
) (*CachedConfigEntryStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base config entry store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: config entry cache service is required")
	}
	return &CachedConfigEntryStore{base: base, cache: cacheService}, nil
}

// ConfigEntryCacheKey returns mailflow::config_entry::v1::<escaped key>.
func ConfigEntryCacheKey(key string) string {
	return configEntryCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(key))
}

func (s *CachedConfigEntryStore) Get(ctx context.Context, key string) (core.ConfigEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ConfigEntry{}, fmt.Errorf("sqlstore: cached config entry store is not configured")
	}
	trimmed := strings.TrimSpace(key)
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, ConfigEntryCacheKey(trimmed), func(ctx context.Context) (core.ConfigEntry, error) {
		return s.base.Get(ctx, trimmed)
	})
	if err != nil {
		return core.ConfigEntry{}, err
	}
	return cloneConfigEntry(entry), nil
}

func (s *CachedConfigEntryStore) Upsert(ctx context.Context, entry core.ConfigEntry) (core.ConfigEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ConfigEntry{}, fmt.Errorf("sqlstore: cached config entry store is not configured")
	}
	stored, err := s.base.Upsert(ctx, entry)
	if err != nil {
		return core.ConfigEntry{}, err
	}
	if err := s.cache.Delete(ctx, ConfigEntryCacheKey(stored.Key)); err != nil {
		return core.ConfigEntry{}, err
	}
	return stored, nil
}

func cloneConfigEntry(entry core.ConfigEntry) core.ConfigEntry {
	out := entry
	if entry.Value != nil {
		value := *entry.Value
		out.Value = &value
	}
	return out
}

// Package idmapper builds external identifier to item id maps.
package idmapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/soundprediction/go-biohub/pkg/cache"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/httpclient"
)

// Mapper returns, for every value of prop, the id of the item holding it.
// Filters restrict the items considered.
type Mapper interface {
	Map(ctx context.Context, prop string, filters []driver.Filter) (map[string]string, error)
}

// StoreMapper reads the map straight from an item store.
type StoreMapper struct {
	Store driver.ItemStore
}

// NewStoreMapper creates a mapper over store.
func NewStoreMapper(store driver.ItemStore) *StoreMapper {
	return &StoreMapper{Store: store}
}

// Map implements Mapper.
func (m *StoreMapper) Map(ctx context.Context, prop string, filters []driver.Filter) (map[string]string, error) {
	index, err := m.Store.ClaimIndex(ctx, prop, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", prop, err)
	}
	return index, nil
}

// CachedMapper memoises another mapper in a cache.
type CachedMapper struct {
	next   Mapper
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedMapper wraps next. Entries expire after ttl; zero keeps them forever.
func NewCachedMapper(next Mapper, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedMapper{next: next, cache: c, ttl: ttl, logger: logger}
}

// Key returns the cache key of a (prop, filters) query.
func Key(prop string, filters []driver.Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, f.Property+"="+f.Value)
	}
	sort.Strings(parts)
	return "idmap:" + prop + ":" + strings.Join(parts, ",")
}

// Map implements Mapper.
func (m *CachedMapper) Map(ctx context.Context, prop string, filters []driver.Filter) (map[string]string, error) {
	key := Key(prop, filters)
	var index map[string]string
	err := cache.GetJSON(m.cache, key, &index)
	if err == nil {
		m.logger.Debug("id map cache hit", "key", key, "size", len(index))
		return index, nil
	}
	if !errors.Is(err, cache.ErrKeyNotFound) {
		m.logger.Warn("id map cache read failed", "key", key, "error", err)
	}

	index, err = m.next.Map(ctx, prop, filters)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(m.cache, key, index, m.ttl); err != nil {
		m.logger.Warn("id map cache write failed", "key", key, "error", err)
	}
	return index, nil
}

// Refresh drops the cached entry and maps again.
func (m *CachedMapper) Refresh(ctx context.Context, prop string, filters []driver.Filter) (map[string]string, error) {
	if err := m.cache.Delete(Key(prop, filters)); err != nil {
		return nil, fmt.Errorf("failed to drop cached map: %w", err)
	}
	return m.Map(ctx, prop, filters)
}

// Refresher is implemented by mappers that hold stale state.
type Refresher interface {
	Refresh(ctx context.Context, prop string, filters []driver.Filter) (map[string]string, error)
}

// Fresh maps with m, bypassing any cache m keeps.
func Fresh(ctx context.Context, m Mapper, prop string, filters []driver.Filter) (map[string]string, error) {
	if r, ok := m.(Refresher); ok {
		return r.Refresh(ctx, prop, filters)
	}
	return m.Map(ctx, prop, filters)
}

// SPARQLMapper queries a Wikibase SPARQL endpoint.
type SPARQLMapper struct {
	Endpoint string
	Client   *httpclient.Client
}

// NewSPARQLMapper creates a mapper against endpoint.
func NewSPARQLMapper(endpoint string, client *httpclient.Client) *SPARQLMapper {
	if client == nil {
		client = httpclient.New(httpclient.Config{Name: "sparql"})
	}
	return &SPARQLMapper{Endpoint: endpoint, Client: client}
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// Query renders the SPARQL query for a (prop, filters) pair.
func Query(prop string, filters []driver.Filter) string {
	var sb strings.Builder
	sb.WriteString("SELECT ?item ?id WHERE {\n")
	fmt.Fprintf(&sb, "  ?item wdt:%s ?id .\n", prop)
	for _, f := range filters {
		if f.Value == "" {
			fmt.Fprintf(&sb, "  ?item wdt:%s [] .\n", f.Property)
			continue
		}
		fmt.Fprintf(&sb, "  ?item wdt:%s wd:%s .\n", f.Property, f.Value)
	}
	sb.WriteString("}")
	return sb.String()
}

// Map implements Mapper.
func (m *SPARQLMapper) Map(ctx context.Context, prop string, filters []driver.Filter) (map[string]string, error) {
	var resp sparqlResponse
	form := url.Values{"query": {Query(prop, filters)}}
	if err := m.Client.PostForm(ctx, m.Endpoint, form, "application/sparql-results+json", &resp); err != nil {
		return nil, fmt.Errorf("sparql map %s: %w", prop, err)
	}

	index := make(map[string]string, len(resp.Results.Bindings))
	for _, b := range resp.Results.Bindings {
		item, id := b["item"].Value, b["id"].Value
		if item == "" || id == "" {
			continue
		}
		index[id] = item[strings.LastIndex(item, "/")+1:]
	}
	return index, nil
}

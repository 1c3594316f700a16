package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/go-biohub/pkg/types"
)

// MemoryDriver is an in-process ItemStore used by tests and dry runs.
type MemoryDriver struct {
	mu    sync.RWMutex
	items map[string]*types.Item
	next  int
	edits []Edit
}

// Edit records a write made through the memory driver.
type Edit struct {
	ItemID  string
	Created bool
	Summary string
}

// NewMemoryDriver creates an empty store. New items are numbered from 1.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		items: make(map[string]*types.Item),
		next:  1,
	}
}

// Seed stores items verbatim, keeping their ids.
func (m *MemoryDriver) Seed(items ...*types.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = it.Clone()
	}
}

// Edits returns the writes performed so far.
func (m *MemoryDriver) Edits() []Edit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Edit(nil), m.edits...)
}

// GetItem retrieves an item by id.
func (m *MemoryDriver) GetItem(ctx context.Context, id string) (*types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[types.NormalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrItemNotFound)
	}
	return it.Clone(), nil
}

// CreateItem stores a new item under a fresh id.
func (m *MemoryDriver) CreateItem(ctx context.Context, item *types.Item, summary string) (string, error) {
	if item == nil {
		return "", fmt.Errorf("cannot create nil item")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var id string
	for {
		id = fmt.Sprintf("Q%d", m.next)
		m.next++
		if _, taken := m.items[id]; !taken {
			break
		}
	}
	stored := item.Clone()
	stored.ID = id
	stored.Modified = time.Now()
	m.items[id] = stored
	m.edits = append(m.edits, Edit{ItemID: id, Created: true, Summary: summary})
	return id, nil
}

// UpdateItem replaces an existing item.
func (m *MemoryDriver) UpdateItem(ctx context.Context, item *types.Item, summary string) error {
	if item == nil {
		return fmt.Errorf("cannot update nil item")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := types.NormalizeID(item.ID)
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("%s: %w", item.ID, ErrItemNotFound)
	}
	stored := item.Clone()
	stored.ID = id
	stored.Modified = time.Now()
	m.items[id] = stored
	m.edits = append(m.edits, Edit{ItemID: id, Summary: summary})
	return nil
}

// FindByClaim returns the ids of items with a prop statement equal to value.
func (m *MemoryDriver) FindByClaim(ctx context.Context, prop, value string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, it := range m.items {
		for _, v := range it.ClaimValues(prop) {
			if v == value {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ClaimIndex maps every value of prop to the item holding it.
func (m *MemoryDriver) ClaimIndex(ctx context.Context, prop string, filters []Filter) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := make(map[string]string)
	for id, it := range m.items {
		if !matchesFilters(it, filters) {
			continue
		}
		for _, v := range it.ClaimValues(prop) {
			index[v] = id
		}
	}
	return index, nil
}

func matchesFilters(it *types.Item, filters []Filter) bool {
	for _, f := range filters {
		values := it.ClaimValues(f.Property)
		if len(values) == 0 {
			return false
		}
		if f.Value == "" {
			continue
		}
		found := false
		for _, v := range values {
			if v == f.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CreateIndices is a no-op for the memory driver.
func (m *MemoryDriver) CreateIndices(ctx context.Context) error {
	return nil
}

// GetStats counts items and claims.
func (m *MemoryDriver) GetStats(ctx context.Context) (*StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &StoreStats{ClaimsByProp: make(map[string]int64)}
	for _, it := range m.items {
		stats.ItemCount++
		for prop, sts := range it.Claims {
			stats.ClaimCount += int64(len(sts))
			stats.ClaimsByProp[prop] += int64(len(sts))
		}
		if it.Modified.After(stats.LastUpdated) {
			stats.LastUpdated = it.Modified
		}
	}
	return stats, nil
}

// Close is a no-op for the memory driver.
func (m *MemoryDriver) Close(ctx context.Context) error {
	return nil
}

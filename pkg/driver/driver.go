package driver

import (
	"context"
	"errors"
	"time"

	"github.com/soundprediction/go-biohub/pkg/types"
)

var (
	// ErrItemNotFound is returned when an item id is unknown to the store.
	ErrItemNotFound = errors.New("item not found")
)

// ItemStore defines the operations the bots need from a knowledge-graph item store.
// Items carry labels, descriptions, aliases and referenced statements keyed by property.
type ItemStore interface {
	// Item operations
	GetItem(ctx context.Context, id string) (*types.Item, error)
	CreateItem(ctx context.Context, item *types.Item, summary string) (string, error)
	UpdateItem(ctx context.Context, item *types.Item, summary string) error

	// Lookup operations
	FindByClaim(ctx context.Context, prop, value string) ([]string, error)
	ClaimIndex(ctx context.Context, prop string, filters []Filter) (map[string]string, error)

	// Database maintenance
	CreateIndices(ctx context.Context) error
	GetStats(ctx context.Context) (*StoreStats, error)

	// Connection management
	Close(ctx context.Context) error
}

// Filter restricts a claim index to items that also carry Property.
// An empty Value matches any value.
type Filter struct {
	Property string `json:"property"`
	Value    string `json:"value,omitempty"`
}

// StoreStats holds statistics about the item store.
type StoreStats struct {
	ItemCount    int64            `json:"item_count"`
	ClaimCount   int64            `json:"claim_count"`
	ClaimsByProp map[string]int64 `json:"claims_by_prop"`
	LastUpdated  time.Time        `json:"last_updated"`
}

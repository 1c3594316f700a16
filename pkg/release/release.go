// Package release resolves the knowledge-graph item describing a data source release.
package release

import (
	"context"
	"fmt"
	"time"

	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// Properties and classes used on release items.
const (
	PropEditionOf  = "P629"
	PropEdition    = "P393"
	PropPubDate    = "P577"
	PropArchiveURL = "P1065"
	VersionEdition = "Q3331189"
	ReleaseDomain  = "release"
)

// Release describes one edition of a data source.
type Release struct {
	Title       string
	Description string
	// EditionOf is the item of the database this is a release of.
	EditionOf  string
	Edition    string
	PubDate    time.Time
	ArchiveURL string
}

// Find returns the id of an existing release item, or "" when there is none.
func (r Release) Find(ctx context.Context, store driver.ItemStore) (string, error) {
	editions, err := store.ClaimIndex(ctx, PropEdition, []driver.Filter{{Property: PropEditionOf, Value: r.EditionOf}})
	if err != nil {
		return "", fmt.Errorf("failed to look up release %s of %s: %w", r.Edition, r.EditionOf, err)
	}
	return editions[r.Edition], nil
}

// GetOrCreate returns the release item id, creating the item when missing.
func (r Release) GetOrCreate(ctx context.Context, store driver.ItemStore) (string, error) {
	if r.EditionOf == "" || r.Edition == "" {
		return "", fmt.Errorf("release needs an edition and the item it is an edition of")
	}
	qid, err := r.Find(ctx, store)
	if err != nil {
		return "", err
	}
	if qid != "" {
		return qid, nil
	}

	data := []types.Statement{
		types.ItemID(VersionEdition, types.PropInstanceOf),
		types.ItemID(r.EditionOf, PropEditionOf),
		types.String(r.Edition, PropEdition),
	}
	if !r.PubDate.IsZero() {
		data = append(data, types.Time(r.PubDate, PropPubDate))
	}
	if r.ArchiveURL != "" {
		data = append(data, types.URL(r.ArchiveURL, PropArchiveURL))
	}

	eng, err := engine.New(ctx, store, engine.Options{
		ItemName: r.Title,
		Domain:   ReleaseDomain,
		Data:     data,
	})
	if err != nil {
		return "", err
	}
	eng.SetLabel(r.Title, "en")
	if r.Description != "" {
		eng.SetDescription(r.Description, "en")
	}
	qid, err = eng.Write(ctx, "create release item")
	if err != nil {
		return "", fmt.Errorf("failed to create release %s of %s: %w", r.Edition, r.EditionOf, err)
	}
	return qid, nil
}

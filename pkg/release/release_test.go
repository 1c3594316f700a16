package release_test

import (
	"context"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/release"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interpro60() release.Release {
	return release.Release{
		Title:       "InterPro Release 60.0",
		Description: "Release 60.0 of the InterPro database & software",
		EditionOf:   "Q3047275",
		Edition:     "60.0",
		PubDate:     time.Date(2016, 11, 3, 0, 0, 0, 0, time.UTC),
		ArchiveURL:  "ftp://ftp.ebi.ac.uk/pub/databases/interpro/60.0/",
	}
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	d := driver.NewMemoryDriver()

	qid, err := interpro60().GetOrCreate(ctx, d)
	require.NoError(t, err)
	require.NotEmpty(t, qid)

	item, err := d.GetItem(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, "InterPro Release 60.0", item.Label())
	assert.Equal(t, []string{release.VersionEdition}, item.ClaimValues(types.PropInstanceOf))
	assert.Equal(t, []string{"+2016-11-03T00:00:00Z"}, item.ClaimValues(release.PropPubDate))
	assert.Equal(t, []string{"ftp://ftp.ebi.ac.uk/pub/databases/interpro/60.0/"}, item.ClaimValues(release.PropArchiveURL))

	again, err := interpro60().GetOrCreate(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, qid, again)
	assert.Len(t, d.Edits(), 1)
}

func TestGetOrCreate_DistinguishesEditions(t *testing.T) {
	ctx := context.Background()
	d := driver.NewMemoryDriver()

	a, err := interpro60().GetOrCreate(ctx, d)
	require.NoError(t, err)

	next := interpro60()
	next.Edition = "61.0"
	b, err := next.GetOrCreate(ctx, d)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGetOrCreate_RequiresEdition(t *testing.T) {
	_, err := release.Release{EditionOf: "Q3047275"}.GetOrCreate(context.Background(), driver.NewMemoryDriver())
	assert.Error(t, err)
}

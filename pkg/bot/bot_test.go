package bot

import (
	"bytes"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataHeaderAndLog(t *testing.T) {
	now := time.Date(2017, 2, 1, 10, 30, 0, 0, time.UTC)
	meta := Metadata{
		Name:       "InterproBot_Items",
		Maintainer: "GSS",
		Tags:       []string{"interpro"},
		Properties: []string{"P279", "P2926"},
	}
	h := meta.Header("", now, map[string]botlog.SourceRelease{
		"InterPro": {ID: "InterPro", Release: "61.0", WDID: "Q1"},
	})
	assert.Equal(t, "20170201_10:30", h.RunID)
	assert.Equal(t, "2017-02-01 10:30:00.000000", h.Timestamp)

	dir := t.TempDir()
	w, err := OpenLog(dir, h)
	require.NoError(t, err)
	require.NoError(t, w.Info("IPR000001", botlog.ActionCreate, "Q2", "P2926"))
	require.NoError(t, w.Close())

	header, entries, err := botlog.ParseFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "InterproBot_Items", header.Bot())
	assert.Equal(t, "InterproBot_Items-20170201_10:30.log", header.LogName)
	require.Len(t, entries, 1)
	assert.Equal(t, "Q2", entries[0].WDID)
}

func TestBar(t *testing.T) {
	var silent *Bar
	silent.Increment()
	silent.Finish()

	var buf bytes.Buffer
	b := NewBarTo(&buf, 2, true)
	b.Increment()
	b.Increment()
	b.Finish()

	NewBar(10, false).Increment()
}

package cache_test

import (
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerCache(t *testing.T) {
	c, err := cache.NewBadgerCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get("missing")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)

	require.NoError(t, c.Set("k", []byte("v"), time.Minute))
	got, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete("k"))
	_, err = c.Get("k")
	assert.ErrorIs(t, err, cache.ErrKeyNotFound)
}

func TestJSONHelpers(t *testing.T) {
	c, err := cache.NewInMemoryBadgerCache()
	require.NoError(t, err)
	defer c.Close()

	in := map[string]string{"IPR000001": "Q100"}
	require.NoError(t, cache.SetJSON(c, "idmap:P2926", in, 0))

	var out map[string]string
	require.NoError(t, cache.GetJSON(c, "idmap:P2926", &out))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, cache.GetJSON(c, "nope", &out), cache.ErrKeyNotFound)
}

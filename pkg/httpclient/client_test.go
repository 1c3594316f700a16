package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go-biohub", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"timestamp":"2016-10-23T00:00:00"}`))
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Config{Name: "test"})
	var out struct {
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "2016-10-23T00:00:00", out.Timestamp)
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "SELECT 1", r.PostForm.Get("query"))
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Config{Name: "sparql"})
	var out map[string]bool
	err := c.PostForm(context.Background(), srv.URL, url.Values{"query": {"SELECT 1"}}, "application/sparql-results+json", &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
}

func TestClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Config{Name: "notfound", ConsecutiveFailures: 1})
	for i := 0; i < 3; i++ {
		err := c.GetJSON(context.Background(), srv.URL, nil)
		assert.True(t, httpclient.IsStatus(err, http.StatusNotFound))
	}
	assert.Equal(t, "closed", c.State())
}

func TestServerErrorsTrip(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := httpclient.New(httpclient.Config{Name: "flaky", ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		err := c.GetJSON(context.Background(), srv.URL, nil)
		assert.True(t, httpclient.IsStatus(err, http.StatusBadGateway))
	}
	err := c.GetJSON(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, httpclient.ErrOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "open", c.State())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rdf:RDF/>"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "mondo", "mondo.owl")
	c := httpclient.New(httpclient.Config{Name: "dl"})
	n, err := c.Download(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "<rdf:RDF/>", string(data))
}

package staging_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID           string   `bson:"_id"`
	Name         string   `bson:"name"`
	Type         string   `bson:"type"`
	ProteinCount int      `bson:"protein_count"`
	Children     []string `bson:"children"`
}

func feed(docs ...staging.Doc) <-chan staging.Doc {
	ch := make(chan staging.Doc, len(docs))
	for _, d := range docs {
		ch <- d
	}
	close(ch)
	return ch
}

// runStoreSuite exercises behaviour shared by every Store implementation.
func runStoreSuite(t *testing.T, s staging.Store) {
	ctx := context.Background()
	started := time.Date(2017, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RegisterDump(ctx, "interpro", staging.DumpRecord{
		Status:          staging.StatusSuccess,
		Release:         "62.0",
		DataFolder:      "/data/interpro/62.0",
		LogFile:         "/data/logs/interpro_dump.log",
		StartedAt:       started,
		Elapsed:         90 * time.Second,
		PendingToUpload: true,
	}))
	require.NoError(t, s.RegisterDump(ctx, "mondo", staging.DumpRecord{
		Status:    staging.StatusFailed,
		StartedAt: started,
		Err:       "connection reset",
	}))

	pending, err := s.PendingSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"interpro"}, pending)

	st, err := s.SourceStatus(ctx, "interpro")
	require.NoError(t, err)
	assert.Equal(t, "62.0", st.Release)
	assert.Equal(t, "/data/interpro/62.0", st.DataFolder)
	assert.Equal(t, staging.StatusSuccess, st.Download.Status)
	assert.Equal(t, "1m30s", st.Download.Time)

	failed, err := s.SourceStatus(ctx, "mondo")
	require.NoError(t, err)
	assert.Equal(t, staging.StatusFailed, failed.Download.Status)
	assert.Empty(t, failed.Release)
	assert.False(t, failed.PendingToUpload)

	require.NoError(t, s.MarkUploadStarted(ctx, "interpro"))
	pending, err = s.PendingSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.RegisterUpload(ctx, "interpro", "interpro", staging.UploadJob{
		Status: staging.StatusSuccess,
		Count:  2,
	}))
	st, err = s.SourceStatus(ctx, "interpro")
	require.NoError(t, err)
	assert.Equal(t, staging.StatusSuccess, st.Upload.Status)
	assert.Equal(t, int64(2), st.Upload.Jobs["interpro"].Count)

	_, err = s.SourceStatus(ctx, "nope")
	assert.ErrorIs(t, err, staging.ErrNotFound)

	n, err := s.ReplaceCollection(ctx, "interpro", feed(
		staging.Doc{"_id": "IPR000001", "name": "Kringle", "type": "Domain", "protein_count": 10, "children": []string{"IPR000002"}},
		staging.Doc{"_id": "IPR000002", "name": "Kringle-like", "type": "Family", "protein_count": 3},
	))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var e entry
	require.NoError(t, s.FindOne(ctx, "interpro", "IPR000001", &e))
	assert.Equal(t, "Kringle", e.Name)
	assert.Equal(t, 10, e.ProteinCount)
	assert.Equal(t, []string{"IPR000002"}, e.Children)
	assert.ErrorIs(t, s.FindOne(ctx, "interpro", "IPR999999", &e), staging.ErrNotFound)

	count, err := s.Count(ctx, "interpro", staging.Filter{"type": "Family"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	cur, err := s.Find(ctx, "interpro", staging.Filter{"_id": map[string]any{"$in": []string{"IPR000001", "IPR000002"}}})
	require.NoError(t, err)
	var ids []string
	for cur.Next(ctx) {
		var got entry
		require.NoError(t, cur.Decode(&got))
		ids = append(ids, got.ID)
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close(ctx))
	assert.ElementsMatch(t, []string{"IPR000001", "IPR000002"}, ids)

	// A second load replaces the collection.
	n, err = s.ReplaceCollection(ctx, "interpro", feed(staging.Doc{"_id": "IPR000003", "type": "Repeat"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err = s.Count(ctx, "interpro", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, staging.NewMemoryStore())
}

func TestMemoryStore_CancelledReplaceKeepsTarget(t *testing.T) {
	s := staging.NewMemoryStore()
	require.NoError(t, s.Insert("mondo", staging.Doc{"_id": "DOID:4"}))

	ctx, cancel := context.WithCancel(context.Background())
	docs := make(chan staging.Doc, 1)
	docs <- staging.Doc{"_id": "DOID:1386"}
	cancel()

	_, err := s.ReplaceCollection(ctx, "mondo", docs)
	require.ErrorIs(t, err, context.Canceled)

	var doc staging.Doc
	require.NoError(t, s.FindOne(context.Background(), "mondo", "DOID:4", &doc))
	assert.Equal(t, "DOID:4", doc["_id"])
}

func TestMemoryStore_CancelledFindReportsErr(t *testing.T) {
	s := staging.NewMemoryStore()
	require.NoError(t, s.Insert("mondo", staging.Doc{"_id": "DOID:1386"}))
	require.NoError(t, s.Insert("mondo", staging.Doc{"_id": "DOID:9999"}))

	ctx, cancel := context.WithCancel(context.Background())
	cur, err := s.Find(ctx, "mondo", nil)
	require.NoError(t, err)
	defer cur.Close(ctx)

	require.True(t, cur.Next(ctx))
	cancel()
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), context.Canceled)

	done, err := s.Find(context.Background(), "mondo", nil)
	require.NoError(t, err)
	n := 0
	for done.Next(context.Background()) {
		n++
	}
	assert.Equal(t, 2, n)
	assert.NoError(t, done.Err())
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbName := "biohub_test_" + time.Now().Format("20060102150405")
	s, err := staging.NewMongoStore(ctx, uri, dbName, nil)
	require.NoError(t, err)
	defer s.Close(context.Background())
	if err := s.Ping(ctx); err != nil {
		t.Skipf("mongo not available: %v", err)
	}
	defer s.Drop(context.Background())

	runStoreSuite(t, s)
}

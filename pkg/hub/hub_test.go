package hub_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub/pkg/dumper"
	"github.com/soundprediction/go-biohub/pkg/hub"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDumper struct{ calls atomic.Int32 }

func (d *countingDumper) Name() string { return "mondo" }

func (d *countingDumper) Dump(ctx context.Context, req dumper.Request) (*dumper.Result, error) {
	d.calls.Add(1)
	return &dumper.Result{Skipped: true}, nil
}

type oneDoc struct{}

func (oneDoc) Name() string       { return "mondo" }
func (oneDoc) MainSource() string { return "mondo" }
func (oneDoc) Load(ctx context.Context, folder string, out chan<- staging.Doc) error {
	return uploader.Send(ctx, out, staging.Doc{"_id": "DOID:1386"})
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := hub.New(hub.Config{DumpSchedules: map[string]string{"mondo": "not a spec"}}, nil, nil, nil)
	assert.ErrorContains(t, err, "mondo")
}

func TestHub_Run(t *testing.T) {
	store := staging.NewMemoryStore()
	store.SetStatus(staging.SrcDump{ID: "mondo", DataFolder: t.TempDir(), PendingToUpload: true})

	d := &countingDumper{}
	dumps := dumper.NewManager(store, dumper.Archive{Root: t.TempDir()}, t.TempDir(), nil)
	dumps.Register(d)
	uploads := uploader.NewManager(store, nil)
	uploads.Register(oneDoc{})

	h, err := hub.New(hub.Config{
		DumpSchedules: map[string]string{"mondo": "* * * * * *"},
		PollSchedule:  "* * * * * *",
	}, dumps, uploads, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dump:mondo", "upload:poll"}, h.Entries())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := store.Count(context.Background(), "mondo", nil)
		return err == nil && n == 1 && d.calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	pending, err := store.PendingSources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

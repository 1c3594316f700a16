package biohub_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/soundprediction/go-biohub"
	"github.com/soundprediction/go-biohub/pkg/cache"
	"github.com/soundprediction/go-biohub/pkg/config"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/dumper"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/report"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Log:        config.LogConfig{Level: "debug", Dir: t.TempDir()},
		Data:       config.DataConfig{ArchiveRoot: t.TempDir(), LogFolder: t.TempDir(), AppPath: "."},
		Dispatcher: config.DispatcherConfig{SleepTime: time.Second, UploadCommand: []string{"true"}},
		Cache:      config.CacheConfig{TTL: time.Hour},
		Hub: config.HubConfig{
			DumpSchedules: map[string]string{"mondo": "0 0 3 * * *"},
			PollSchedule:  "*/10 * * * * *",
		},
		InterPro: config.InterProConfig{FTPHost: "ftp.example.org:21", FTPDir: "/interpro"},
		Mondo:    config.MondoConfig{Repo: "monarch-initiative/mondo", Path: "src/mondo.owl"},
		MyGene:   config.MyGeneConfig{BaseURL: "http://mygene.local"},
	}
}

func newClient(t *testing.T, cfg *config.Config, logs *bytes.Buffer) (*biohub.Client, *driver.MemoryDriver) {
	t.Helper()
	items := driver.NewMemoryDriver()
	reports, err := report.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { reports.Close() })

	c := biohub.NewClient(cfg, &biohub.Options{
		Logger:  slog.New(slog.NewTextHandler(logs, nil)),
		Staging: staging.NewMemoryStore(),
		Items:   items,
		Reports: reports,
	})
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, items
}

func TestClient_Managers(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, testConfig(t), &bytes.Buffer{})

	dumps, err := c.Dumpers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"interpro", "mondo", "mygene"}, dumps.Names())

	uploads, err := c.Uploaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"interpro", "mondo", "mygene"}, uploads.Sources())

	d, err := c.Dispatcher(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Running())

	h, err := c.Hub(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dump:mondo", "upload:poll"}, h.Entries())
}

func TestClient_HubRejectsUnknownSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hub.DumpSchedules = map[string]string{"uniprot": "0 0 1 * * *"}
	c, _ := newClient(t, cfg, &bytes.Buffer{})

	_, err := c.Hub(context.Background())
	assert.ErrorIs(t, err, dumper.ErrUnknownSource)
}

func TestClient_Mapper(t *testing.T) {
	ctx := context.Background()
	c, items := newClient(t, testConfig(t), &bytes.Buffer{})

	it := types.NewItem("Q7")
	it.AddStatement(types.ExternalID("DOID:1386", "P699"))
	items.Seed(it)

	m, err := c.Mapper(ctx)
	require.NoError(t, err)
	assert.IsType(t, &idmapper.StoreMapper{}, m)
	got, err := m.Map(ctx, "P699", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DOID:1386": "Q7"}, got)
}

func TestClient_CachedMapper(t *testing.T) {
	ctx := context.Background()
	bc, err := cache.NewInMemoryBadgerCache()
	require.NoError(t, err)
	defer bc.Close()

	c := biohub.NewClient(testConfig(t), &biohub.Options{
		Logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Staging: staging.NewMemoryStore(),
		Items:   driver.NewMemoryDriver(),
		Cache:   bc,
	})
	m, err := c.Mapper(ctx)
	require.NoError(t, err)
	assert.IsType(t, &idmapper.CachedMapper{}, m)

	deps, err := c.InterProDeps(ctx)
	require.NoError(t, err)
	assert.Same(t, m, deps.Mapper)
}

func TestClient_Bots(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	c, items := newClient(t, cfg, &bytes.Buffer{})

	b, err := c.MondoBot(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.Log.Dir, b.LogDir)
	assert.Same(t, items, b.Items)

	deps, err := c.YeastDeps(ctx)
	require.NoError(t, err)
	assert.NotNil(t, deps.Staging)

	pb, err := c.PubmedBot(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, pb.Fetcher)
}

func TestClient_Telemetry(t *testing.T) {
	var logs bytes.Buffer
	c, _ := newClient(t, testConfig(t), &logs)
	require.NoError(t, c.EnableTelemetry())
	// A second call keeps the first handler.
	require.NoError(t, c.EnableTelemetry())

	ctx := context.WithValue(context.Background(), types.ContextKeyBotName, "MondoBot")
	c.Logger().ErrorContext(ctx, "doid_not_found", "external_id", "DOID:9999")
	c.Logger().InfoContext(ctx, "run finished")
	require.NoError(t, c.Close(ctx))

	reports, err := c.Reports()
	require.NoError(t, err)
	var n int
	require.NoError(t, reports.DB().QueryRow(`SELECT count(*) FROM execution_errors WHERE bot_name = 'MondoBot'`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.Contains(t, logs.String(), "run finished")
}

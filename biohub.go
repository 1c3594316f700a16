// Package biohub wires the stores, managers and bots of a deployment from
// its configuration.
package biohub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/cache"
	"github.com/soundprediction/go-biohub/pkg/config"
	"github.com/soundprediction/go-biohub/pkg/dispatcher"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/dumper"
	"github.com/soundprediction/go-biohub/pkg/httpclient"
	"github.com/soundprediction/go-biohub/pkg/hub"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/logger"
	"github.com/soundprediction/go-biohub/pkg/report"
	"github.com/soundprediction/go-biohub/pkg/sources/interpro"
	"github.com/soundprediction/go-biohub/pkg/sources/mondo"
	"github.com/soundprediction/go-biohub/pkg/sources/mygene"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/telemetry"
	"github.com/soundprediction/go-biohub/pkg/uploader"
	"github.com/soundprediction/go-biohub/pkg/utils"
)

// Options inject prebuilt components. Nil fields are built from the config
// on first use.
type Options struct {
	Logger  *slog.Logger
	Staging staging.Store
	Items   driver.ItemStore
	Reports *report.Store
	HTTP    *httpclient.Client
	Cache   cache.Cache
}

// Client opens connections lazily so that a command only touches the
// services it needs.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *httpclient.Client

	staging   staging.Store
	items     driver.ItemStore
	mapper    idmapper.Mapper
	reports   *report.Store
	cache     cache.Cache
	telemetry *telemetry.DuckDBHandler

	// owned lists what Close must release.
	owned []func(ctx context.Context) error
}

// NewClient creates a client for cfg.
func NewClient(cfg *config.Config, opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewDefaultLogger(logger.ParseLevel(cfg.Log.Level))
	}
	h := opts.HTTP
	if h == nil {
		h = httpclient.New(httpclient.Config{Name: "biohub"})
	}
	return &Client{
		cfg:     cfg,
		logger:  l,
		http:    h,
		staging: opts.Staging,
		items:   opts.Items,
		reports: opts.Reports,
		cache:   opts.Cache,
	}
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Logger returns the application logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// EnableTelemetry copies error logs into the execution_errors table of the
// report database.
func (c *Client) EnableTelemetry() error {
	if c.telemetry != nil {
		return nil
	}
	reports, err := c.Reports()
	if err != nil {
		return err
	}
	h, err := telemetry.NewDuckDBHandler(c.logger.Handler(), reports.DB())
	if err != nil {
		return err
	}
	c.telemetry = h
	c.logger = slog.New(h)
	return nil
}

// Staging connects to the MongoDB staging database.
func (c *Client) Staging(ctx context.Context) (staging.Store, error) {
	if c.staging != nil {
		return c.staging, nil
	}
	s, err := staging.NewMongoStore(ctx, c.cfg.Mongo.URI, c.cfg.Mongo.SrcDatabase, c.logger)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("staging database unavailable: %w", err)
	}
	c.staging = s
	c.owned = append(c.owned, s.Close)
	return s, nil
}

// Items connects to the Neo4j item store and ensures its indices.
func (c *Client) Items(ctx context.Context) (driver.ItemStore, error) {
	if c.items != nil {
		return c.items, nil
	}
	g := c.cfg.Graph
	d, err := driver.NewNeo4jDriver(g.URI, g.Username, g.Password, g.Database)
	if err != nil {
		return nil, err
	}
	if err := d.VerifyConnectivity(ctx); err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("item store unavailable: %w", err)
	}
	if err := d.CreateIndices(ctx); err != nil {
		d.Close(ctx)
		return nil, err
	}
	c.items = d
	c.owned = append(c.owned, d.Close)
	return d, nil
}

// Reports opens the report database.
func (c *Client) Reports() (*report.Store, error) {
	if c.reports != nil {
		return c.reports, nil
	}
	s, err := report.Open(c.cfg.Report.DuckDBPath, c.logger)
	if err != nil {
		return nil, err
	}
	c.reports = s
	c.owned = append(c.owned, func(context.Context) error { return s.Close() })
	return s, nil
}

// Mapper resolves identifiers against SPARQL or the item store, behind the
// badger cache when it is enabled.
func (c *Client) Mapper(ctx context.Context) (idmapper.Mapper, error) {
	if c.mapper != nil {
		return c.mapper, nil
	}
	var m idmapper.Mapper
	if c.cfg.Wikibase.UseSPARQL {
		m = idmapper.NewSPARQLMapper(c.cfg.Wikibase.SPARQLURL, c.http)
	} else {
		items, err := c.Items(ctx)
		if err != nil {
			return nil, err
		}
		m = idmapper.NewStoreMapper(items)
	}

	if c.cache == nil && c.cfg.Cache.Enabled {
		bc, err := cache.NewBadgerCache(c.cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open id cache: %w", err)
		}
		c.cache = bc
		c.owned = append(c.owned, func(context.Context) error { return bc.Close() })
	}
	if c.cache != nil {
		m = idmapper.NewCachedMapper(m, c.cache, c.cfg.Cache.TTL, c.logger)
	}
	c.mapper = m
	return m, nil
}

// Dumpers registers the InterPro, Mondo and MyGene dumpers.
func (c *Client) Dumpers(ctx context.Context) (*dumper.Manager, error) {
	store, err := c.Staging(ctx)
	if err != nil {
		return nil, err
	}
	archive := dumper.Archive{Root: c.cfg.Data.ArchiveRoot, Keep: c.cfg.Data.Archive}
	m := dumper.NewManager(store, archive, c.cfg.Data.LogFolder, c.logger)
	m.Register(
		dumper.NewInterProDumper(c.cfg.InterPro.FTPHost, c.cfg.InterPro.FTPDir, archive),
		dumper.NewMondoDumper(c.cfg.Mondo.Repo, c.cfg.Mondo.Path, archive, c.http),
		dumper.NewMetadataDumper(mygene.MainSource, mygene.MetadataURL(c.cfg.MyGene.BaseURL), c.http),
	)
	return m, nil
}

// Uploaders registers every source uploader.
func (c *Client) Uploaders(ctx context.Context) (*uploader.Manager, error) {
	store, err := c.Staging(ctx)
	if err != nil {
		return nil, err
	}
	m := uploader.NewManager(store, c.logger)
	m.Parallelism = utils.GetSemaphoreLimit()
	m.Register(interpro.Uploaders()...)
	m.Register(mondo.Uploader{})
	m.Register(mygene.NewYeastUploader(c.http, c.cfg.MyGene.BaseURL))
	return m, nil
}

// Notifier logs notifications and posts them to the webhook when one is set.
func (c *Client) Notifier() dispatcher.Notifier {
	n := dispatcher.MultiNotifier{dispatcher.LogNotifier{Logger: c.logger}}
	if c.cfg.Notify.WebhookURL != "" {
		n = append(n, dispatcher.WebhookNotifier{URL: c.cfg.Notify.WebhookURL, Client: c.http})
	}
	return n
}

// Dispatcher launches upload subprocesses for pending sources.
func (c *Client) Dispatcher(ctx context.Context) (*dispatcher.Dispatcher, error) {
	store, err := c.Staging(ctx)
	if err != nil {
		return nil, err
	}
	launcher := &dispatcher.ExecLauncher{
		UploadCommand: c.cfg.Dispatcher.UploadCommand,
		BuildCommands: c.cfg.Dispatcher.Builders,
		Dir:           c.cfg.Data.AppPath,
	}
	return dispatcher.New(store, launcher, c.Notifier(), dispatcher.Config{
		SleepTime:   c.cfg.Dispatcher.SleepTime,
		ArchiveRoot: c.cfg.Data.ArchiveRoot,
		WWWRoot:     c.cfg.Notify.WWWRootURL,
	}, c.logger), nil
}

// Hub schedules the configured dumps and the upload poll.
func (c *Client) Hub(ctx context.Context) (*hub.Hub, error) {
	dumps, err := c.Dumpers(ctx)
	if err != nil {
		return nil, err
	}
	uploads, err := c.Uploaders(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, n := range dumps.Names() {
		known[n] = true
	}
	for src := range c.cfg.Hub.DumpSchedules {
		if !known[src] {
			return nil, fmt.Errorf("%w: schedule for %s", dumper.ErrUnknownSource, src)
		}
	}
	return hub.New(hub.Config{
		DumpSchedules: c.cfg.Hub.DumpSchedules,
		PollSchedule:  c.cfg.Hub.PollSchedule,
	}, dumps, uploads, c.logger)
}

// InterProDeps returns the stores used by the InterPro bots.
func (c *Client) InterProDeps(ctx context.Context) (interpro.Deps, error) {
	store, items, mapper, err := c.botStores(ctx)
	if err != nil {
		return interpro.Deps{}, err
	}
	return interpro.Deps{Staging: store, Items: items, Mapper: mapper, Logger: c.logger}, nil
}

// YeastDeps returns the stores used by the yeast bots.
func (c *Client) YeastDeps(ctx context.Context) (mygene.Deps, error) {
	store, items, mapper, err := c.botStores(ctx)
	if err != nil {
		return mygene.Deps{}, err
	}
	return mygene.Deps{Staging: store, Items: items, Mapper: mapper, Logger: c.logger}, nil
}

// MondoBot returns the Mondo bot wired to the client's stores.
func (c *Client) MondoBot(ctx context.Context) (*mondo.Bot, error) {
	store, items, mapper, err := c.botStores(ctx)
	if err != nil {
		return nil, err
	}
	return &mondo.Bot{
		Staging: store,
		Items:   items,
		Mapper:  mapper,
		Logger:  c.logger,
		LogDir:  c.cfg.Log.Dir,
	}, nil
}

// PubmedBot returns the article bot. log may be nil.
func (c *Client) PubmedBot(ctx context.Context, log *botlog.Writer) (*mygene.PubmedBot, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	return &mygene.PubmedBot{
		Items: items,
		Fetcher: mygene.EntrezFetcher{
			Tool:   c.cfg.MyGene.EntrezTool,
			Email:  c.cfg.MyGene.EntrezEmail,
			APIKey: c.cfg.MyGene.EntrezAPIKey,
		},
		Log:    log,
		Logger: c.logger,
	}, nil
}

func (c *Client) botStores(ctx context.Context) (staging.Store, driver.ItemStore, idmapper.Mapper, error) {
	store, err := c.Staging(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	items, err := c.Items(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	mapper, err := c.Mapper(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, items, mapper, nil
}

// Close waits for pending telemetry and releases what the client opened,
// in reverse order.
func (c *Client) Close(ctx context.Context) error {
	if c.telemetry != nil {
		c.telemetry.Wait()
	}
	var errs []error
	for i := len(c.owned) - 1; i >= 0; i-- {
		if err := c.owned[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.owned = nil
	return errors.Join(errs...)
}

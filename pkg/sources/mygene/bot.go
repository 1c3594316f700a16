package mygene

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soundprediction/go-biohub/pkg/bot"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// BotName groups the yeast runs in the report.
const BotName = "YeastBot"

// Domains recorded on written items.
const (
	ChromosomeDomain = "chromosome"
	GeneDomain       = "genes"
	ProteinDomain    = "proteins"
	ArticleDomain    = "scientific_article"
)

// ErrWouldCreate is returned when linking would create a new item.
var ErrWouldCreate = errors.New("gene update would create a new item")

// ChromosomeMetadata describes the chromosome run.
var ChromosomeMetadata = bot.Metadata{
	BotName:    BotName,
	Name:       "YeastBot_Chromosome",
	Maintainer: "GSS",
	Tags:       []string{"yeast", "chromosome"},
	Properties: []string{"P279", "P703", "P2249"},
	RunName:    "chromosome",
	Domain:     ChromosomeDomain,
}

// GeneMetadata describes the gene run.
var GeneMetadata = bot.Metadata{
	BotName:    BotName,
	Name:       "YeastBot_Gene",
	Maintainer: "GSS",
	Tags:       []string{"yeast", "gene"},
	Properties: []string{"P703", "P279", "P2548", "P351", "P2393", "P594", "P644", "P645", "P1057"},
	RunName:    "gene",
	Domain:     "gene",
}

// ProteinMetadata describes the protein run.
var ProteinMetadata = bot.Metadata{
	BotName:    BotName,
	Name:       "YeastBot_Protein",
	Maintainer: "GSS",
	Tags:       []string{"yeast", "protein"},
	Properties: []string{"P680", "P681", "P682", "P703", "P279", "P702", "P637", "P352", "P705", "P688"},
	RunName:    "protein",
	Domain:     "protein",
}

// Deps are the stores the yeast bots read and write.
type Deps struct {
	Staging staging.Store
	Items   driver.ItemStore
	Mapper  idmapper.Mapper
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Options are shared by every yeast run.
type Options struct {
	LogDir   string
	RunID    string
	Progress bool
	Now      func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// release reads the mygene dump status. It returns the header entry and the
// time the data was retrieved.
func (d Deps) release(ctx context.Context, now time.Time) (map[string]botlog.SourceRelease, time.Time, error) {
	st, err := d.Staging.SourceStatus(ctx, MainSource)
	if errors.Is(err, staging.ErrNotFound) {
		return nil, now, nil
	}
	if err != nil {
		return nil, now, err
	}
	retrieved := now
	if t, perr := time.Parse(time.RFC3339Nano, st.Release); perr == nil {
		retrieved = t
	} else if !st.Download.StartedAt.IsZero() {
		retrieved = st.Download.StartedAt
	}
	releases := map[string]botlog.SourceRelease{
		"MyGene": {
			ID:        MainSource,
			Release:   botlog.Version(st.Release),
			Timestamp: retrieved.Format(bot.TimestampLayout),
		},
	}
	return releases, retrieved, nil
}

// open writes the run header and stores run identity on the context.
func (o Options) open(ctx context.Context, m bot.Metadata, releases map[string]botlog.SourceRelease) (context.Context, *botlog.Writer, error) {
	header := m.Header(o.RunID, o.now(), releases)
	ctx = context.WithValue(ctx, types.ContextKeyRunID, header.RunID)
	ctx = context.WithValue(ctx, types.ContextKeyBotName, header.Bot())
	runLog, err := bot.OpenLog(o.LogDir, header)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, runLog, nil
}

func (d Deps) logError(ctx context.Context, runLog *botlog.Writer, id, qid, prop string, err error) {
	if lerr := runLog.Error(id, err.Error(), qid, prop); lerr != nil {
		err = errors.Join(err, lerr)
	}
	d.logger().ErrorContext(ctx, "record failed", "id", id, "error", err)
}

func strainFilter(s Strain) []driver.Filter {
	return []driver.Filter{{Property: types.PropFoundInTaxon, Value: s.QID}}
}

func orYeast(s Strain) Strain {
	if s.QID == "" {
		return Yeast
	}
	return s
}

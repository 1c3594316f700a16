package interpro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/go-biohub/pkg/bot"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// DebugLimit is the number of entries processed in debug mode.
const DebugLimit = 100

// Domains recorded on written items.
const (
	TermDomain    = "interpro"
	ProteinDomain = "proteins"
)

// ItemsMetadata describes the entries bot.
var ItemsMetadata = bot.Metadata{
	Name:       "InterproBot_Items",
	Maintainer: "GSS",
	Tags:       []string{"interpro"},
	Properties: []string{"P279", "P2926", "P527", "P361"},
}

// ProteinsMetadata describes the protein bot.
var ProteinsMetadata = bot.Metadata{
	Name:       "InterproBot_Proteins",
	Maintainer: "GSS",
	Tags:       []string{"protein", "interpro"},
	Properties: []string{"P279", "P527", "P361"},
}

// Deps are the stores an InterPro bot reads and writes.
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

// Options are common to both bots.
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

// resolveRelease loads dbinfo[INTERPRO] and returns the release item and header entry.
func resolveRelease(ctx context.Context, deps Deps) (string, map[string]botlog.SourceRelease, error) {
	var info DBInfo
	if err := deps.Staging.FindOne(ctx, DBInfoCollection, "INTERPRO", &info); err != nil {
		return "", nil, fmt.Errorf("failed to load InterPro release info: %w", err)
	}
	rel, err := info.Release()
	if err != nil {
		return "", nil, err
	}
	qid, err := rel.GetOrCreate(ctx, deps.Items)
	if err != nil {
		return "", nil, err
	}
	releases := map[string]botlog.SourceRelease{
		"InterPro": {
			ID:        "InterPro",
			Release:   botlog.Version(info.Version),
			WDID:      qid,
			Timestamp: rel.PubDate.Format("2006-01-02 15:04:05"),
		},
	}
	return qid, releases, nil
}

// ItemsBot creates one item per InterPro entry, then links the items.
type ItemsBot struct {
	Deps
	Options
	// Debug stops after DebugLimit entries.
	Debug             bool
	SkipItems         bool
	SkipRelationships bool
}

// Run executes the bot and returns the run log path.
func (b *ItemsBot) Run(ctx context.Context) (string, error) {
	log := b.logger().With("bot", ItemsMetadata.Name)
	releaseQID, releases, err := resolveRelease(ctx, b.Deps)
	if err != nil {
		return "", err
	}

	header := ItemsMetadata.Header(b.RunID, b.now(), releases)
	ctx = context.WithValue(ctx, types.ContextKeyRunID, header.RunID)
	ctx = context.WithValue(ctx, types.ContextKeyBotName, header.Bot())
	runLog, err := bot.OpenLog(b.LogDir, header)
	if err != nil {
		return "", err
	}
	defer runLog.Close()

	terms, err := b.loadTerms(ctx, releaseQID)
	if err != nil {
		return runLog.Path(), err
	}
	log.InfoContext(ctx, "loaded terms", "count", len(terms), "release", releaseQID)

	if !b.SkipItems {
		bar := bot.NewBar(int64(len(terms)), b.Progress)
		for _, t := range terms {
			if err := ctx.Err(); err != nil {
				return runLog.Path(), err
			}
			b.createItem(ctx, t, runLog)
			bar.Increment()
		}
		bar.Finish()
	}

	if !b.SkipRelationships {
		ids, err := idmapper.Fresh(ctx, b.Mapper, PropInterPro, nil)
		if err != nil {
			return runLog.Path(), err
		}
		bar := bot.NewBar(int64(len(terms)), b.Progress)
		for _, t := range terms {
			if err := ctx.Err(); err != nil {
				return runLog.Path(), err
			}
			b.createRelationships(ctx, t, ids, runLog)
			bar.Increment()
		}
		bar.Finish()
	}

	if err := runLog.Flush(); err != nil {
		return runLog.Path(), err
	}
	log.InfoContext(ctx, "run finished", "log", runLog.Path())
	return runLog.Path(), nil
}

func (b *ItemsBot) loadTerms(ctx context.Context, releaseQID string) ([]*Term, error) {
	cur, err := b.Staging.Find(ctx, EntriesCollection, nil)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var terms []*Term
	for n := 0; cur.Next(ctx); n++ {
		if b.Debug && n >= DebugLimit {
			break
		}
		var e Entry
		if err := cur.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode entry: %w", err)
		}
		t, err := NewTerm(e, releaseQID)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, cur.Err()
}

func (b *ItemsBot) createItem(ctx context.Context, t *Term, runLog *botlog.Writer) {
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemName:    t.Name,
		Domain:      TermDomain,
		Data:        t.ItemStatements(),
		AppendValue: []string{types.PropSubclassOf},
		CoreProps:   []string{PropInterPro},
	})
	if err != nil {
		b.logError(ctx, runLog, t.ID, "", err)
		return
	}
	eng.SetLabel(t.Name, "en")
	eng.SetDescription(t.Description, "en")
	eng.SetAliases([]string{t.ShortName, t.ID}, "en")
	if _, err := botlog.TryWrite(ctx, eng, t.ID, PropInterPro, runLog, "create/update InterPro entry"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "id", t.ID, "error", err)
	}
}

func (b *ItemsBot) createRelationships(ctx context.Context, t *Term, ids map[string]string, runLog *botlog.Writer) {
	sts, missing := t.RelationshipStatements(ids)
	if len(missing) > 0 {
		runLog.Error(t.ID, "ipr_not_found "+strings.Join(missing, " "), ids[t.ID], PropInterPro)
	}
	if len(sts) == 1 {
		return
	}
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemName:    t.Name,
		Domain:      TermDomain,
		Data:        sts,
		AppendValue: []string{types.PropSubclassOf, PropHasPart, PropPartOf},
		CoreProps:   []string{PropInterPro},
	})
	if err != nil {
		b.logError(ctx, runLog, t.ID, ids[t.ID], err)
		return
	}
	if _, err := botlog.TryWrite(ctx, eng, t.ID, PropInterPro, runLog, "update InterPro relationships"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "id", t.ID, "error", err)
	}
}

func (d Deps) logError(ctx context.Context, runLog *botlog.Writer, id, qid string, err error) {
	if lerr := runLog.Error(id, err.Error(), qid, PropInterPro); lerr != nil {
		err = errors.Join(err, lerr)
	}
	d.logger().ErrorContext(ctx, "failed to prepare item", "id", id, "error", err)
}

package mondo

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

// Identifiers used by the bot.
const (
	PropDOID      = "P699"
	PropUMLS      = "P2892"
	MondoQID      = "Q27468140"
	DiseaseDomain = "disease"
	// SampleEvery keeps one document out of this many in sample mode.
	SampleEvery = 100
)

// ErrWouldCreate is returned when a DOID resolves to a new item.
var ErrWouldCreate = errors.New("disease update would create a new item")

// Metadata describes the bot.
var Metadata = bot.Metadata{
	Name:       "MondoBot",
	Maintainer: "GSS",
	Tags:       []string{"disease", "mondo"},
	Properties: []string{PropUMLS},
	Domain:     DiseaseDomain,
}

// Bot adds UMLS identifiers to disease items identified by their DOID.
// Documents keyed by other prefixes are ignored.
type Bot struct {
	Staging staging.Store
	Items   driver.ItemStore
	Mapper  idmapper.Mapper
	Logger  *slog.Logger

	LogDir string
	RunID  string
	// DryRun logs the updates without writing them.
	DryRun bool
	// Sample processes every SampleEvery-th document only.
	Sample   bool
	Progress bool
	Now      func() time.Time

	logPath string
}

func (b *Bot) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Bot) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Reference cites Mondo with the date the ontology was retrieved.
func Reference(retrieved time.Time) types.Reference {
	return types.NewReference(
		types.ItemID(MondoQID, types.PropStatedIn),
		types.Time(retrieved, types.PropRetrieved),
	)
}

// Run executes the bot and returns the run log path.
func (b *Bot) Run(ctx context.Context) (string, error) {
	log := b.logger().With("bot", Metadata.Name)

	retrieved := b.now()
	releases := map[string]botlog.SourceRelease{}
	status, err := b.Staging.SourceStatus(ctx, SourceName)
	switch {
	case err == nil:
		if !status.Download.StartedAt.IsZero() {
			retrieved = status.Download.StartedAt
		}
		releases["Mondo"] = botlog.SourceRelease{
			ID:        SourceName,
			Release:   botlog.Version(status.Release),
			Timestamp: retrieved.Format(bot.TimestampLayout),
		}
	case errors.Is(err, staging.ErrNotFound):
	default:
		return "", err
	}

	header := Metadata.Header(b.RunID, b.now(), releases)
	ctx = context.WithValue(ctx, types.ContextKeyRunID, header.RunID)
	ctx = context.WithValue(ctx, types.ContextKeyBotName, header.Bot())
	runLog, err := bot.OpenLog(b.LogDir, header)
	if err != nil {
		return "", err
	}
	defer runLog.Close()
	b.logPath = runLog.Path()

	doid2wd, err := b.Mapper.Map(ctx, PropDOID, nil)
	if err != nil {
		return b.logPath, err
	}
	total, err := b.Staging.Count(ctx, SourceName, nil)
	if err != nil {
		return b.logPath, err
	}
	cur, err := b.Staging.Find(ctx, SourceName, nil)
	if err != nil {
		return b.logPath, err
	}
	defer cur.Close(ctx)

	ref := Reference(retrieved)
	bar := bot.NewBar(total, b.Progress)
	defer bar.Finish()
	for n := 0; cur.Next(ctx); n++ {
		bar.Increment()
		if b.Sample && n%SampleEvery != 0 {
			continue
		}
		var doc Equivalence
		if err := cur.Decode(&doc); err != nil {
			return b.logPath, fmt.Errorf("failed to decode %s document: %w", SourceName, err)
		}
		umls := doc.UMLS()
		if !strings.HasPrefix(doc.ID, "DOID:") || len(umls) == 0 {
			continue
		}
		qid, ok := doid2wd[doc.ID]
		if !ok {
			runLog.Error(doc.ID, "doid_not_found", "", PropDOID)
			continue
		}
		if err := b.addUMLS(ctx, doc.ID, qid, umls, ref, runLog); err != nil {
			return b.logPath, err
		}
	}
	if err := cur.Err(); err != nil {
		return b.logPath, err
	}
	if err := runLog.Flush(); err != nil {
		return b.logPath, err
	}
	log.InfoContext(ctx, "run finished", "log", b.logPath, "dry_run", b.DryRun)
	return b.logPath, nil
}

func (b *Bot) addUMLS(ctx context.Context, doid, qid string, umls []string, ref types.Reference, runLog *botlog.Writer) error {
	data := make([]types.Statement, 0, len(umls))
	for _, u := range umls {
		data = append(data, types.ExternalID(u, PropUMLS, ref))
	}
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemID:      qid,
		Domain:      DiseaseDomain,
		Data:        data,
		AppendValue: []string{PropUMLS},
	})
	if err != nil {
		runLog.Error(doid, err.Error(), qid, PropDOID)
		b.logger().ErrorContext(ctx, "failed to prepare item", "doid", doid, "error", err)
		return nil
	}
	if eng.CreateNewItem() {
		return fmt.Errorf("%w: %s", ErrWouldCreate, doid)
	}
	if b.DryRun {
		action := botlog.ActionSkip
		if eng.RequireWrite() {
			action = botlog.ActionUpdate
		}
		return runLog.Info(doid, action, qid, PropDOID)
	}
	if _, err := botlog.TryWrite(ctx, eng, doid, PropDOID, runLog, "add UMLS CUI from Mondo"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "doid", doid, "error", err)
	}
	return nil
}

// Summary parses the log of the last run.
func (b *Bot) Summary() (botlog.Summary, error) {
	if b.logPath == "" {
		return botlog.Summary{}, fmt.Errorf("bot has not run")
	}
	_, entries, err := botlog.ParseFile(b.logPath)
	if err != nil {
		return botlog.Summary{}, err
	}
	return botlog.Summarize(entries), nil
}

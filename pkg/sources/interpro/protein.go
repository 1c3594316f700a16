package interpro

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/go-biohub/pkg/bot"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/types"
	"github.com/soundprediction/go-biohub/pkg/utils"
)

// ErrWouldCreate is returned when a protein update resolves to a new item.
var ErrWouldCreate = errors.New("protein update would create a new item")

const proteinBatchSize = 1000

// ProteinURL is the InterPro page of a UniProt protein.
func ProteinURL(uniprotID string) string {
	return "http://www.ebi.ac.uk/interpro/protein/" + uniprotID
}

// ProteinBot adds family and domain statements to protein items that
// already exist.
type ProteinBot struct {
	Deps
	Options
	// Taxon restricts proteins to items found in this taxon.
	Taxon string
}

// Run executes the bot and returns the run log path.
func (b *ProteinBot) Run(ctx context.Context) (string, error) {
	log := b.logger().With("bot", ProteinsMetadata.Name)
	releaseQID, releases, err := resolveRelease(ctx, b.Deps)
	if err != nil {
		return "", err
	}

	header := ProteinsMetadata.Header(b.RunID, b.now(), releases)
	ctx = context.WithValue(ctx, types.ContextKeyRunID, header.RunID)
	ctx = context.WithValue(ctx, types.ContextKeyBotName, header.Bot())
	runLog, err := bot.OpenLog(b.LogDir, header)
	if err != nil {
		return "", err
	}
	defer runLog.Close()

	var filters []driver.Filter
	if b.Taxon != "" {
		filters = append(filters, driver.Filter{Property: types.PropFoundInTaxon, Value: b.Taxon})
	}
	uniprot2wd, err := b.Mapper.Map(ctx, PropUniProt, filters)
	if err != nil {
		return runLog.Path(), err
	}
	ipr2wd, err := b.Mapper.Map(ctx, PropInterPro, nil)
	if err != nil {
		return runLog.Path(), err
	}
	log.InfoContext(ctx, "mapped identifiers", "proteins", len(uniprot2wd), "interpro", len(ipr2wd))

	bar := bot.NewBar(int64(len(uniprot2wd)), b.Progress)
	defer bar.Finish()
	for _, chunk := range utils.ChunkSlice(utils.SortedKeys(uniprot2wd), proteinBatchSize) {
		cur, err := b.Staging.Find(ctx, ProteinsCollection, map[string]any{"_id": map[string]any{"$in": chunk}})
		if err != nil {
			return runLog.Path(), err
		}
		for cur.Next(ctx) {
			var p Protein
			if err := cur.Decode(&p); err != nil {
				cur.Close(ctx)
				return runLog.Path(), fmt.Errorf("failed to decode protein: %w", err)
			}
			if err := b.update(ctx, p, uniprot2wd[p.ID], releaseQID, ipr2wd, runLog); err != nil {
				cur.Close(ctx)
				return runLog.Path(), err
			}
			bar.Increment()
		}
		if err := cur.Err(); err != nil {
			cur.Close(ctx)
			return runLog.Path(), err
		}
		cur.Close(ctx)
	}

	if err := runLog.Flush(); err != nil {
		return runLog.Path(), err
	}
	log.InfoContext(ctx, "run finished", "log", runLog.Path())
	return runLog.Path(), nil
}

// Statements builds the subclass and has-part statements of p. InterPro ids
// with no item are returned separately.
func Statements(p Protein, releaseQID string, ipr2wd map[string]string) ([]types.Statement, []string) {
	ref := types.NewReference(
		types.ItemID(releaseQID, types.PropStatedIn),
		types.URL(ProteinURL(p.ID), types.PropReferenceURL),
	)
	var sts []types.Statement
	var missing []string
	add := func(ipr, prop string) {
		qid, ok := ipr2wd[ipr]
		if !ok {
			missing = append(missing, ipr)
			return
		}
		sts = append(sts, types.ItemID(qid, prop, ref))
	}
	for _, f := range p.Subclass {
		add(f, types.PropSubclassOf)
	}
	for _, hp := range p.HasPart {
		add(hp, PropHasPart)
	}
	return sts, missing
}

func (b *ProteinBot) update(ctx context.Context, p Protein, qid, releaseQID string, ipr2wd map[string]string, runLog *botlog.Writer) error {
	sts, missing := Statements(p, releaseQID, ipr2wd)
	if len(missing) > 0 {
		runLog.Error(p.ID, "ipr_not_found "+strings.Join(missing, " "), qid, PropUniProt)
	}

	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemID:      qid,
		Domain:      ProteinDomain,
		Data:        sts,
		AppendValue: []string{types.PropSubclassOf, PropHasPart, PropPartOf},
	})
	if errors.Is(err, driver.ErrItemNotFound) {
		runLog.Error(p.ID, "wdid_not_found", qid, PropUniProt)
		return nil
	}
	if err != nil {
		b.logError(ctx, runLog, p.ID, qid, err)
		return nil
	}
	if eng.CreateNewItem() {
		return fmt.Errorf("%w: %s", ErrWouldCreate, p.ID)
	}
	if _, err := botlog.TryWrite(ctx, eng, p.ID, PropInterPro, runLog, "add/update family and/or domains"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "id", p.ID, "error", err)
	}
	return nil
}

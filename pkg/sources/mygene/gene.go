package mygene

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/soundprediction/go-biohub/pkg/bot"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// GeneBot writes one item per gene with its genomic position.
type GeneBot struct {
	Deps
	Options
	Strain Strain
	// Chromosomes maps chromosome -> item id. When nil the chromosome
	// run is executed first.
	Chromosomes map[string]string
}

// idPropOf maps a source to the identifier its references cite.
var idPropOf = map[string]string{
	SourceEnsembl: PropEnsemblGene,
	SourceEntrez:  PropEntrezGene,
	SourceUniProt: PropUniProt,
}

// GeneStatements builds the referenced statements of a merged record.
func GeneStatements(g TaggedGene, strain Strain, chromosomes map[string]string) ([]types.Statement, error) {
	pos, err := (Gene{GenomicPos: g.GenomicPos.Value}).Position()
	if err != nil {
		return nil, err
	}
	entrezID := strconv.FormatInt(g.EntrezGene.Value, 10)
	ensemblGene := g.Ensembl.Value.First().Gene
	if ensemblGene == "" {
		return nil, errors.New("no_ensembl_gene")
	}
	genome, ok := strain.Genomes[pos.Chr]
	if !ok {
		return nil, fmt.Errorf("unknown_chromosome %s", pos.Chr)
	}
	chromQID, ok := chromosomes[pos.Chr]
	if !ok {
		return nil, fmt.Errorf("chromosome_not_found %s", pos.Chr)
	}

	ids := map[string]string{PropEntrezGene: entrezID, PropEnsemblGene: ensemblGene}
	entrezRef := g.EntrezGene.Source.Reference(PropEntrezGene, entrezID)
	ensemblRef := g.Ensembl.Source.Reference(PropEnsemblGene, ensemblGene)
	posProp := idPropOf[g.GenomicPos.Source.ID]
	if ids[posProp] == "" {
		posProp = PropEnsemblGene
	}
	posRef := g.GenomicPos.Source.Reference(posProp, ids[posProp])

	strand := ReverseStrandQID
	if pos.Strand == 1 {
		strand = ForwardStrandQID
	}
	onChrom := types.String(genome, PropRefSeqGenome)
	return []types.Statement{
		types.ExternalID(entrezID, PropEntrezGene, entrezRef),
		types.ExternalID(ensemblGene, PropEnsemblGene, ensemblRef),
		types.ItemID(GeneQID, types.PropSubclassOf, ensemblRef),
		types.ItemID(strain.QID, types.PropFoundInTaxon, ensemblRef),
		types.ItemID(strand, PropStrand, posRef),
		types.String(strconv.FormatInt(pos.Start, 10), PropGenomicStart, posRef).WithQualifiers(onChrom),
		types.String(strconv.FormatInt(pos.End, 10), PropGenomicEnd, posRef).WithQualifiers(onChrom),
		types.ItemID(chromQID, PropChromosome, posRef),
	}, nil
}

// Run writes the gene items and returns the run log path.
func (b *GeneBot) Run(ctx context.Context) (string, error) {
	strain := orYeast(b.Strain)
	if b.Chromosomes == nil {
		cb := &ChromosomeBot{Deps: b.Deps, Options: b.Options, Strain: strain}
		chroms, _, err := cb.Run(ctx)
		if err != nil {
			return "", fmt.Errorf("chromosome run failed: %w", err)
		}
		b.Chromosomes = chroms
	}
	versions, err := LoadVersions(ctx, b.Staging)
	if err != nil {
		return "", err
	}
	releases, _, err := b.release(ctx, b.now())
	if err != nil {
		return "", err
	}
	ctx, runLog, err := b.open(ctx, GeneMetadata, releases)
	if err != nil {
		return "", err
	}
	defer runLog.Close()

	total, err := b.Staging.Count(ctx, YeastCollection, nil)
	if err != nil {
		return runLog.Path(), err
	}
	cur, err := b.Staging.Find(ctx, YeastCollection, nil)
	if err != nil {
		return runLog.Path(), err
	}
	defer cur.Close(ctx)

	bar := bot.NewBar(total, b.Progress)
	defer bar.Finish()
	for cur.Next(ctx) {
		bar.Increment()
		var doc staging.Doc
		if err := cur.Decode(&doc); err != nil {
			return runLog.Path(), fmt.Errorf("failed to decode gene: %w", err)
		}
		g, err := DecodeTagged(MergeRecords(versions, doc))
		if err != nil {
			return runLog.Path(), err
		}
		b.writeGene(ctx, g, strain, runLog)
	}
	if err := cur.Err(); err != nil {
		return runLog.Path(), err
	}
	if err := runLog.Flush(); err != nil {
		return runLog.Path(), err
	}
	b.logger().InfoContext(ctx, "genes done", "log", runLog.Path())
	return runLog.Path(), nil
}

func (b *GeneBot) writeGene(ctx context.Context, g TaggedGene, strain Strain, runLog *botlog.Writer) {
	id := g.ID.Value
	sts, err := GeneStatements(g, strain, b.Chromosomes)
	if err != nil {
		runLog.Error(id, err.Error(), "", PropEntrezGene)
		return
	}
	name := fmt.Sprintf("%s %s", g.Name.Value, g.Ensembl.Value.First().Gene)
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemName:    name,
		Domain:      GeneDomain,
		Data:        sts,
		AppendValue: []string{types.PropSubclassOf},
		CoreProps:   []string{PropEntrezGene},
	})
	if err != nil {
		b.logError(ctx, runLog, id, "", PropEntrezGene, err)
		return
	}
	eng.SetLabel(name, "en")
	eng.SetDescription(fmt.Sprintf("%s gene found in %s", strain.Type, strain.Name), "en")
	eng.SetAliases([]string{g.Symbol.Value, g.LocusTag.Value}, "en")
	if _, err := botlog.TryWrite(ctx, eng, id, PropEntrezGene, runLog, "create/update yeast gene"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "id", id, "error", err)
	}
}

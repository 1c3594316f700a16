package mygene

import (
	"context"
	"fmt"
	"time"

	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// ChromosomeBot creates one item per chromosome of a strain.
type ChromosomeBot struct {
	Deps
	Options
	Strain Strain
}

func chromosomeReference(genomeID string, retrieved time.Time) types.Reference {
	return MakeReference("ncbi_gene", PropRefSeqGenome, genomeID, retrieved)
}

// Run writes the chromosome items and returns chromosome -> item id.
func (b *ChromosomeBot) Run(ctx context.Context) (map[string]string, string, error) {
	strain := orYeast(b.Strain)
	releases, _, err := b.release(ctx, b.now())
	if err != nil {
		return nil, "", err
	}
	ctx, runLog, err := b.open(ctx, ChromosomeMetadata, releases)
	if err != nil {
		return nil, "", err
	}
	defer runLog.Close()

	retrieved := b.now()
	out := make(map[string]string, len(strain.Genomes))
	for _, chrom := range strain.Chromosomes() {
		if err := ctx.Err(); err != nil {
			return out, runLog.Path(), err
		}
		genomeID := strain.Genomes[chrom]
		ref := chromosomeReference(genomeID, retrieved)
		name := fmt.Sprintf("%s chromosome %s", strain.Name, chrom)

		eng, err := engine.New(ctx, b.Items, engine.Options{
			ItemName: name,
			Domain:   ChromosomeDomain,
			Data: []types.Statement{
				types.ItemID(ChromosomeQID, types.PropSubclassOf, ref),
				types.ItemID(strain.QID, types.PropFoundInTaxon, ref),
				types.ExternalID(genomeID, PropRefSeqGenome, ref),
			},
			AppendValue: []string{types.PropSubclassOf},
			CoreProps:   []string{PropRefSeqGenome},
		})
		if err != nil {
			b.logError(ctx, runLog, genomeID, "", PropRefSeqGenome, err)
			continue
		}
		eng.SetLabel(name, "en")
		eng.SetDescription(strain.Type+" chromosome", "en")
		qid, err := botlog.TryWrite(ctx, eng, genomeID, PropRefSeqGenome, runLog, "create/update chromosome")
		if err != nil {
			b.logger().WarnContext(ctx, "write failed", "chromosome", chrom, "error", err)
			continue
		}
		out[chrom] = qid
	}
	if err := runLog.Flush(); err != nil {
		return out, runLog.Path(), err
	}
	b.logger().InfoContext(ctx, "chromosomes done", "count", len(out), "log", runLog.Path())
	return out, runLog.Path(), nil
}

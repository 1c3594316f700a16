package mygene

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soundprediction/go-biohub/pkg/bot"
	"github.com/soundprediction/go-biohub/pkg/botlog"
	"github.com/soundprediction/go-biohub/pkg/engine"
	"github.com/soundprediction/go-biohub/pkg/idmapper"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// ProteinCoding is the gene type the protein run keeps.
const ProteinCoding = "protein-coding"

// ProteinBot writes protein items with GO annotations, then links each gene
// to the protein it encodes.
type ProteinBot struct {
	Deps
	Options
	Strain Strain
}

// ProteinStatements builds the statements of the protein encoded by g.
// GO ids or evidence codes that cannot be mapped fail the record.
func ProteinStatements(g Gene, strain Strain, geneQID string, go2wd map[string]string, retrieved time.Time) ([]types.Statement, error) {
	protein := g.Ensembl.First().Protein.First()
	if protein == "" {
		return nil, errors.New("no_ensembl_protein")
	}
	ref := MakeReference(SourceEnsembl, PropEnsemblProtein, protein, retrieved)

	var sts []types.Statement
	processed := PreFilterGO(g.GO)
	aspects := make([]string, 0, len(processed))
	for a := range processed {
		aspects = append(aspects, a)
	}
	sort.Strings(aspects)
	for _, aspect := range aspects {
		prop, ok := GOProps[aspect]
		if !ok {
			continue
		}
		ids := make([]string, 0, len(processed[aspect]))
		for id := range processed[aspect] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			goQID, ok := go2wd[id]
			if !ok {
				return nil, fmt.Errorf("go_not_found %s", id)
			}
			var quals []types.Statement
			for _, code := range processed[aspect][id] {
				ev, ok := EvidenceCodes[code]
				if !ok {
					return nil, fmt.Errorf("unknown_evidence %s", code)
				}
				quals = append(quals, types.ItemID(ev, PropDetermination))
			}
			sts = append(sts, types.ItemID(goQID, prop, ref).WithQualifiers(quals...))
		}
	}

	sts = append(sts,
		types.ItemID(strain.QID, types.PropFoundInTaxon, ref),
		types.ItemID(ProteinQID, types.PropSubclassOf, ref),
		types.ItemID(geneQID, PropEncodedBy, ref),
	)
	if rs := g.RefSeq.Protein.First(); rs != "" {
		sts = append(sts, types.ExternalID(rs, PropRefSeqProtein, ref))
	}
	if up := g.UniProt.SwissProt.First(); up != "" {
		sts = append(sts, types.ExternalID(up, PropUniProt, ref))
	}
	sts = append(sts, types.ExternalID(protein, PropEnsemblProtein, ref))
	return sts, nil
}

// Run writes the protein items and the gene links. It returns the run log path.
func (b *ProteinBot) Run(ctx context.Context) (string, error) {
	strain := orYeast(b.Strain)
	releases, retrieved, err := b.release(ctx, b.now())
	if err != nil {
		return "", err
	}
	ctx, runLog, err := b.open(ctx, ProteinMetadata, releases)
	if err != nil {
		return "", err
	}
	defer runLog.Close()

	genes, err := b.loadGenes(ctx)
	if err != nil {
		return runLog.Path(), err
	}
	gene2wd, err := b.Mapper.Map(ctx, PropEntrezGene, strainFilter(strain))
	if err != nil {
		return runLog.Path(), err
	}
	go2wd, err := b.Mapper.Map(ctx, PropGOTerm, nil)
	if err != nil {
		return runLog.Path(), err
	}

	bar := bot.NewBar(int64(len(genes)), b.Progress)
	for _, g := range genes {
		if err := ctx.Err(); err != nil {
			return runLog.Path(), err
		}
		bar.Increment()
		geneQID, ok := gene2wd[g.ID]
		if !ok {
			runLog.Error(g.ID, "gene_not_found", "", PropEntrezGene)
			continue
		}
		b.writeProtein(ctx, g, strain, geneQID, go2wd, retrieved, runLog)
	}
	bar.Finish()

	protein2wd, err := idmapper.Fresh(ctx, b.Mapper, PropEnsemblProtein, strainFilter(strain))
	if err != nil {
		return runLog.Path(), err
	}
	for _, g := range genes {
		geneQID, ok := gene2wd[g.ID]
		if !ok {
			continue
		}
		if err := b.linkGene(ctx, g, geneQID, protein2wd, retrieved, runLog); err != nil {
			return runLog.Path(), err
		}
	}

	if err := runLog.Flush(); err != nil {
		return runLog.Path(), err
	}
	b.logger().InfoContext(ctx, "proteins done", "count", len(genes), "log", runLog.Path())
	return runLog.Path(), nil
}

func (b *ProteinBot) loadGenes(ctx context.Context) ([]Gene, error) {
	cur, err := b.Staging.Find(ctx, YeastCollection, staging.Filter{"type_of_gene": ProteinCoding})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var genes []Gene
	for cur.Next(ctx) {
		var g Gene
		if err := cur.Decode(&g); err != nil {
			return nil, fmt.Errorf("failed to decode gene: %w", err)
		}
		genes = append(genes, g)
	}
	return genes, cur.Err()
}

func (b *ProteinBot) writeProtein(ctx context.Context, g Gene, strain Strain, geneQID string, go2wd map[string]string, retrieved time.Time, runLog *botlog.Writer) {
	sts, err := ProteinStatements(g, strain, geneQID, go2wd, retrieved)
	if err != nil {
		runLog.Error(g.ID, err.Error(), "", PropEntrezGene)
		return
	}
	name := fmt.Sprintf("%s %s", g.Name, g.LocusTag)
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemName:    name,
		Domain:      ProteinDomain,
		Data:        sts,
		AppendValue: []string{types.PropSubclassOf},
		CoreProps:   []string{PropEnsemblProtein},
	})
	if err != nil {
		b.logError(ctx, runLog, g.ID, "", PropEntrezGene, err)
		return
	}
	eng.SetLabel(name, "en")
	eng.SetDescription(fmt.Sprintf("%s protein found in %s", strain.Type, strain.Name), "en")
	eng.SetAliases([]string{g.Symbol, g.LocusTag}, "en")
	if _, err := botlog.TryWrite(ctx, eng, g.ID, PropEntrezGene, runLog, "create/update yeast protein"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "id", g.ID, "error", err)
	}
}

// linkGene adds "encodes" to the gene item. A missing gene item is an error.
func (b *ProteinBot) linkGene(ctx context.Context, g Gene, geneQID string, protein2wd map[string]string, retrieved time.Time, runLog *botlog.Writer) error {
	protein := g.Ensembl.First().Protein.First()
	proteinQID, ok := protein2wd[protein]
	if !ok {
		runLog.Error(g.ID, "protein_not_found", geneQID, PropEntrezGene)
		return nil
	}
	ref := MakeReference(SourceEnsembl, PropEnsemblProtein, protein, retrieved)
	eng, err := engine.New(ctx, b.Items, engine.Options{
		ItemID:      geneQID,
		Domain:      GeneDomain,
		Data:        []types.Statement{types.ItemID(proteinQID, PropEncodes, ref)},
		AppendValue: []string{PropEncodes},
		SearchOnly:  true,
	})
	if err != nil {
		b.logError(ctx, runLog, g.ID, geneQID, PropEntrezGene, err)
		return nil
	}
	if eng.CreateNewItem() {
		return fmt.Errorf("%w: %s", ErrWouldCreate, g.ID)
	}
	if _, err := botlog.TryWrite(ctx, eng, g.ID, PropEntrezGene, runLog, "link gene to encoded protein"); err != nil {
		b.logger().WarnContext(ctx, "write failed", "id", g.ID, "error", err)
	}
	return nil
}

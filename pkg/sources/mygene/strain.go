// Package mygene loads yeast genes from MyGene.info and writes chromosome,
// gene, protein and scholarly-article items.
package mygene

import (
	"sort"
	"time"

	"github.com/soundprediction/go-biohub/pkg/types"
)

// Property ids used by the yeast bots.
const (
	PropEntrezGene     = "P351"
	PropEnsemblGene    = "P594"
	PropEnsemblProtein = "P705"
	PropUniProt        = "P352"
	PropRefSeqProtein  = "P637"
	PropRefSeqGenome   = "P2249"
	PropLocusTag       = "P2393"
	PropNCBITaxonomy   = "P685"
	PropStrand         = "P2548"
	PropGenomicStart   = "P644"
	PropGenomicEnd     = "P645"
	PropChromosome     = "P1057"
	PropEncodedBy      = "P702"
	PropEncodes        = "P688"
	PropGOTerm         = "P686"
	PropDetermination  = "P459"
	PropPubMed         = "P698"
	PropDOI            = "P356"
	PropTitle          = "P1476"
)

// Class items.
const (
	ChromosomeQID       = "Q37748"
	GeneQID             = "Q7187"
	ProteinQID          = "Q8054"
	ForwardStrandQID    = "Q22809680"
	ReverseStrandQID    = "Q22809711"
	ScholarlyArticleQID = "Q13442814"
	PubMedQID           = "Q180686"
)

// Strain describes the organism whose genes are loaded.
type Strain struct {
	Type    string
	Name    string
	QID     string
	TaxID   int
	Genomes map[string]string
}

// Chromosomes returns the chromosome names in sorted order.
func (s Strain) Chromosomes() []string {
	out := make([]string, 0, len(s.Genomes))
	for c := range s.Genomes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Yeast is Saccharomyces cerevisiae S288c with its RefSeq genome per chromosome.
var Yeast = Strain{
	Type:  "fungal",
	Name:  "Saccharomyces cerevisiae S288c",
	QID:   "Q27510868",
	TaxID: 559292,
	Genomes: map[string]string{
		"I":    "NC_001133.9",
		"II":   "NC_001134.8",
		"III":  "NC_001135.5",
		"IV":   "NC_001136.10",
		"IX":   "NC_001141.2",
		"MT":   "NC_001224.1",
		"V":    "NC_001137.3",
		"VI":   "NC_001138.5",
		"VII":  "NC_001139.9",
		"VIII": "NC_001140.6",
		"X":    "NC_001142.9",
		"XI":   "NC_001143.9",
		"XII":  "NC_001144.5",
		"XIII": "NC_001145.3",
		"XIV":  "NC_001146.8",
		"XV":   "NC_001147.6",
		"XVI":  "NC_001148.4",
	},
}

// GOProps maps a GO aspect to its property.
var GOProps = map[string]string{
	"MF": "P680",
	"CC": "P681",
	"BP": "P682",
}

// EvidenceCodes maps GO evidence codes to their items.
var EvidenceCodes = map[string]string{
	"EXP": "Q23173789",
	"IDA": "Q23174122",
	"IPI": "Q23174389",
	"IMP": "Q23174671",
	"IGI": "Q23174952",
	"IEP": "Q23175251",
	"ISS": "Q23175558",
	"ISO": "Q23190637",
	"ISA": "Q23190738",
	"ISM": "Q23190825",
	"IGC": "Q23190826",
	"IBA": "Q23190827",
	"IBD": "Q23190833",
	"IKR": "Q23190842",
	"IRD": "Q23190850",
	"RCA": "Q23190852",
	"TAS": "Q23190853",
	"NAS": "Q23190854",
	"IC":  "Q23190856",
	"ND":  "Q23190857",
	"IEA": "Q23190881",
	"IMR": "Q23190842",
}

// SourceItems are the "stated in" items of each upstream database.
var SourceItems = map[string]string{
	"uniprot":       "Q905695",
	"entrez":        "Q20641742",
	"ncbi_gene":     "Q20641742",
	"ncbi_taxonomy": "Q13711410",
	"swiss_prot":    "Q2629752",
	"trembl":        "Q22935315",
	"ensembl":       "Q1344256",
}

// MakeReference cites source for identifier stored under idProp.
// A zero retrieved time leaves out the retrieved date.
func MakeReference(source, idProp, identifier string, retrieved time.Time) types.Reference {
	parts := []types.Statement{
		types.ItemID(SourceItems[source], types.PropStatedIn),
		types.ExternalID(identifier, idProp),
	}
	if !retrieved.IsZero() {
		parts = append(parts, types.Time(retrieved, types.PropRetrieved))
	}
	return types.NewReference(parts...)
}

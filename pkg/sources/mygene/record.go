package mygene

import (
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Errors for records that cannot be placed on a chromosome.
var (
	ErrNoPosition        = errors.New("no_position")
	ErrMultiplePositions = errors.New("multiple_positions")
)

// OneOrMany decodes a field that MyGene returns either as a single
// document or as a list of them.
type OneOrMany[T any] []T

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (o *OneOrMany[T]) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*o = nil
		return nil
	case bsontype.Array:
		var many []T
		if err := raw.Unmarshal(&many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := raw.Unmarshal(&one); err != nil {
		return err
	}
	*o = OneOrMany[T]{one}
	return nil
}

// First returns the first value or the zero value.
func (o OneOrMany[T]) First() T {
	var zero T
	if len(o) == 0 {
		return zero
	}
	return o[0]
}

// GenomicPos is a gene location on a chromosome.
type GenomicPos struct {
	Chr    string `bson:"chr" json:"chr"`
	Start  int64  `bson:"start" json:"start"`
	End    int64  `bson:"end" json:"end"`
	Strand int    `bson:"strand" json:"strand"`
}

// Ensembl holds the Ensembl accessions of a gene.
type Ensembl struct {
	Gene       string            `bson:"gene" json:"gene"`
	Protein    OneOrMany[string] `bson:"protein" json:"protein"`
	Transcript OneOrMany[string] `bson:"transcript" json:"transcript"`
}

// RefSeq holds the RefSeq accessions of a gene.
type RefSeq struct {
	Genomic OneOrMany[string] `bson:"genomic" json:"genomic"`
	Protein OneOrMany[string] `bson:"protein" json:"protein"`
	RNA     OneOrMany[string] `bson:"rna" json:"rna"`
}

// UniProt holds the UniProt accessions of a gene.
type UniProt struct {
	SwissProt OneOrMany[string] `bson:"Swiss-Prot" json:"Swiss-Prot"`
	TrEMBL    OneOrMany[string] `bson:"TrEMBL" json:"TrEMBL"`
}

// GOTerm is one GO annotation of a gene.
type GOTerm struct {
	ID       string  `bson:"id" json:"id"`
	Term     string  `bson:"term" json:"term"`
	Evidence string  `bson:"evidence" json:"evidence"`
	PubMed   []int64 `bson:"pubmed,omitempty" json:"pubmed,omitempty"`
}

// Gene is a MyGene.info hit as staged in the yeast collection.
type Gene struct {
	ID         string                       `bson:"_id" json:"_id"`
	EntrezGene int64                        `bson:"entrezgene" json:"entrezgene"`
	Name       string                       `bson:"name" json:"name"`
	Symbol     string                       `bson:"symbol" json:"symbol"`
	LocusTag   string                       `bson:"locus_tag" json:"locus_tag"`
	TypeOfGene string                       `bson:"type_of_gene" json:"type_of_gene"`
	TaxID      int64                        `bson:"taxid" json:"taxid"`
	Ensembl    OneOrMany[Ensembl]           `bson:"ensembl" json:"ensembl"`
	GenomicPos OneOrMany[GenomicPos]        `bson:"genomic_pos" json:"genomic_pos"`
	GO         map[string]OneOrMany[GOTerm] `bson:"go" json:"go"`
	RefSeq     RefSeq                       `bson:"refseq" json:"refseq"`
	UniProt    UniProt                      `bson:"uniprot" json:"uniprot"`
}

// Position returns the single genomic position of the gene.
func (g Gene) Position() (GenomicPos, error) {
	switch len(g.GenomicPos) {
	case 0:
		return GenomicPos{}, ErrNoPosition
	case 1:
		return g.GenomicPos[0], nil
	default:
		return GenomicPos{}, ErrMultiplePositions
	}
}

var rootGOTerms = map[string]bool{
	"molecular_function": true,
	"biological_process": true,
	"cellular_component": true,
}

// ProcessedGO maps aspect -> GO id -> sorted evidence codes.
type ProcessedGO map[string]map[string][]string

// PreFilterGO drops the three root terms and merges the evidence codes of
// duplicate GO ids within each aspect.
func PreFilterGO(terms map[string]OneOrMany[GOTerm]) ProcessedGO {
	out := make(ProcessedGO, len(terms))
	for aspect, list := range terms {
		ids := make(map[string]map[string]bool)
		for _, t := range list {
			if rootGOTerms[t.Term] {
				continue
			}
			if ids[t.ID] == nil {
				ids[t.ID] = make(map[string]bool)
			}
			ids[t.ID][t.Evidence] = true
		}
		merged := make(map[string][]string, len(ids))
		for id, codes := range ids {
			ev := make([]string, 0, len(codes))
			for c := range codes {
				ev = append(ev, c)
			}
			sort.Strings(ev)
			merged[id] = ev
		}
		out[aspect] = merged
	}
	return out
}

// GOIDs lists every GO id of a processed record, sorted.
func (p ProcessedGO) GOIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ids := range p {
		for id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (g Gene) String() string {
	return fmt.Sprintf("%s (%s)", g.ID, g.Symbol)
}

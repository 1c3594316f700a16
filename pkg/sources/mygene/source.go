package mygene

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// SourceDateLayout is the layout of Source.Timestamp.
const SourceDateLayout = "20060102"

// Source identifies the upstream release a field was taken from.
type Source struct {
	ID        string `bson:"_id" json:"_id"`
	Release   string `bson:"release,omitempty" json:"release,omitempty"`
	Timestamp string `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
}

// Retrieved parses Timestamp. It returns the zero time when unset or invalid.
func (s Source) Retrieved() time.Time {
	t, err := time.Parse(SourceDateLayout, s.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Reference cites the source for identifier under idProp.
func (s Source) Reference(idProp, identifier string) types.Reference {
	return MakeReference(s.ID, idProp, identifier, s.Retrieved())
}

// Tagged is a field value together with the source it came from.
type Tagged[T any] struct {
	Value  T      `bson:"@value" json:"@value"`
	Source Source `bson:"@source" json:"@source"`
}

// Upstream databases a MyGene record is merged from.
const (
	SourceEntrez  = "entrez"
	SourceEnsembl = "ensembl"
	SourceUniProt = "uniprot"
)

// fieldSources names the upstream database of each merged field.
// Fields not listed come from Entrez.
var fieldSources = map[string]string{
	"ensembl":     SourceEnsembl,
	"genomic_pos": SourceEnsembl,
	"uniprot":     SourceUniProt,
}

// FieldSource returns the upstream database of a record field.
func FieldSource(field string) string {
	if s, ok := fieldSources[field]; ok {
		return s
	}
	return SourceEntrez
}

// Versions holds the release of each upstream database, keyed by source id.
type Versions map[string]Source

// LoadVersions reads the releases of entrez, ensembl and uniprot from src_dump.
// Sources never dumped on their own fall back to the mygene release.
func LoadVersions(ctx context.Context, store staging.Store) (Versions, error) {
	var fallback *Source
	v := make(Versions, 3)
	for _, id := range []string{SourceEntrez, SourceEnsembl, SourceUniProt} {
		st, err := store.SourceStatus(ctx, id)
		if err == nil {
			v[id] = sourceFromDump(id, st)
			continue
		}
		if !errors.Is(err, staging.ErrNotFound) {
			return nil, err
		}
		if fallback == nil {
			mg, err := store.SourceStatus(ctx, MainSource)
			if err != nil {
				return nil, fmt.Errorf("no release found for %s: %w", id, err)
			}
			s := sourceFromDump(MainSource, mg)
			fallback = &s
		}
		v[id] = Source{ID: id, Release: fallback.Release, Timestamp: fallback.Timestamp}
	}
	return v, nil
}

func sourceFromDump(id string, st *staging.SrcDump) Source {
	s := Source{ID: id, Release: st.Release}
	if !st.Download.StartedAt.IsZero() {
		s.Timestamp = st.Download.StartedAt.UTC().Format(SourceDateLayout)
	}
	return s
}

// TagWithSource wraps every field of doc as {"@value": v, "@source": src}.
func TagWithSource(doc staging.Doc, src Source) staging.Doc {
	out := make(staging.Doc, len(doc))
	for k, v := range doc {
		out[k] = staging.Doc{"@value": v, "@source": src}
	}
	return out
}

// MergeRecords merges the documents of one gene into a single record whose
// fields are tagged with their upstream source. Later documents win.
func MergeRecords(versions Versions, docs ...staging.Doc) staging.Doc {
	out := make(staging.Doc)
	for _, d := range docs {
		bySource := make(map[string]staging.Doc)
		for k, v := range d {
			id := FieldSource(k)
			if bySource[id] == nil {
				bySource[id] = make(staging.Doc)
			}
			bySource[id][k] = v
		}
		for id, part := range bySource {
			src, ok := versions[id]
			if !ok {
				src = Source{ID: id}
			}
			for k, v := range TagWithSource(part, src) {
				out[k] = v
			}
		}
	}
	return out
}

// TaggedGene is the typed view of a merged record.
type TaggedGene struct {
	ID         Tagged[string]                `bson:"_id"`
	EntrezGene Tagged[int64]                 `bson:"entrezgene"`
	Name       Tagged[string]                `bson:"name"`
	Symbol     Tagged[string]                `bson:"symbol"`
	LocusTag   Tagged[string]                `bson:"locus_tag"`
	Ensembl    Tagged[OneOrMany[Ensembl]]    `bson:"ensembl"`
	GenomicPos Tagged[OneOrMany[GenomicPos]] `bson:"genomic_pos"`
}

// DecodeTagged decodes a merged record.
func DecodeTagged(doc staging.Doc) (TaggedGene, error) {
	var g TaggedGene
	if err := staging.FromDoc(doc, &g); err != nil {
		return g, fmt.Errorf("failed to decode record: %w", err)
	}
	return g, nil
}

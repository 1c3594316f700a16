// Package mondo stages Mondo equivalence classes and adds UMLS identifiers
// to disease items.
package mondo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knakk/rdf"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// OntologyFile is the dumped file name.
const OntologyFile = "mondo.owl"

const equivalentClass = "http://www.w3.org/2002/07/owl#equivalentClass"

// Equivalence lists every identifier equivalent to ID, ID included.
type Equivalence struct {
	ID              string   `bson:"_id" json:"_id"`
	EquivalentClass []string `bson:"equivalent_class" json:"equivalent_class"`
}

// CURIE turns an ontology IRI such as .../obo/DOID_1386 into DOID:1386.
func CURIE(iri string) string {
	tail := iri[strings.LastIndexAny(iri, "/#")+1:]
	return strings.Replace(tail, "_", ":", 1)
}

// EquivalenceGraph accumulates equivalentClass edges between IRIs.
type EquivalenceGraph struct {
	g   *simple.UndirectedGraph
	ids map[string]int64
	iri []string
}

// NewEquivalenceGraph returns an empty graph.
func NewEquivalenceGraph() *EquivalenceGraph {
	return &EquivalenceGraph{g: simple.NewUndirectedGraph(), ids: make(map[string]int64)}
}

func (e *EquivalenceGraph) node(iri string) simple.Node {
	id, ok := e.ids[iri]
	if !ok {
		id = int64(len(e.iri))
		e.ids[iri] = id
		e.iri = append(e.iri, iri)
	}
	return simple.Node(id)
}

// Add records that a and b are equivalent. Self loops are ignored.
func (e *EquivalenceGraph) Add(a, b string) {
	if a == b {
		return
	}
	e.g.SetEdge(e.g.NewEdge(e.node(a), e.node(b)))
}

// Len is the number of identifiers seen.
func (e *EquivalenceGraph) Len() int {
	return len(e.iri)
}

// Classes returns one Equivalence per identifier, sorted by id. The
// equivalence is the symmetric transitive closure of the added edges.
func (e *EquivalenceGraph) Classes() []Equivalence {
	var out []Equivalence
	for _, comp := range topo.ConnectedComponents(e.g) {
		curies := make([]string, 0, len(comp))
		for _, n := range comp {
			curies = append(curies, CURIE(e.iri[n.ID()]))
		}
		sort.Strings(curies)
		for _, c := range curies {
			out = append(out, Equivalence{ID: c, EquivalentClass: curies})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParseOWL reads RDF/XML and collects equivalentClass triples between IRIs.
func ParseOWL(ctx context.Context, r io.Reader) (*EquivalenceGraph, error) {
	g := NewEquivalenceGraph()
	dec := rdf.NewTripleDecoder(r, rdf.RDFXML)
	for n := 0; ; n++ {
		if n%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return g, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode triple: %w", err)
		}
		if tr.Pred.String() != equivalentClass {
			continue
		}
		subj, ok := tr.Subj.(rdf.IRI)
		if !ok {
			continue
		}
		obj, ok := tr.Obj.(rdf.IRI)
		if !ok {
			continue
		}
		g.Add(subj.String(), obj.String())
	}
}

// ParseFile parses <folder>/mondo.owl into equivalence classes.
func ParseFile(ctx context.Context, folder string) ([]Equivalence, error) {
	f, err := os.Open(filepath.Join(folder, OntologyFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := ParseOWL(ctx, f)
	if err != nil {
		return nil, err
	}
	return g.Classes(), nil
}

// UMLS returns the UMLS identifiers of the class without their prefix.
func (e Equivalence) UMLS() []string {
	var out []string
	for _, c := range e.EquivalentClass {
		if strings.HasPrefix(c, "UMLS:") {
			out = append(out, strings.TrimPrefix(c, "UMLS:"))
		}
	}
	return out
}

// Package interpro loads InterPro releases and writes InterPro terms and
// protein memberships to the item store.
package interpro

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/soundprediction/go-biohub/pkg/staging"
	"github.com/soundprediction/go-biohub/pkg/utils"
)

// Release file names inside a data folder.
const (
	EntriesFile  = "interpro.xml.gz"
	ProteinsFile = "protein2ipr.dat.gz"
)

// Entry is one <interpro> element.
type Entry struct {
	ID           string   `bson:"_id" json:"_id"`
	Name         string   `bson:"name" json:"name"`
	ShortName    string   `bson:"short_name" json:"short_name"`
	Type         string   `bson:"type" json:"type"`
	ProteinCount int      `bson:"protein_count" json:"protein_count"`
	Parent       string   `bson:"parent,omitempty" json:"parent,omitempty"`
	Children     []string `bson:"children" json:"children"`
	Contains     []string `bson:"contains" json:"contains"`
	FoundIn      []string `bson:"found_in" json:"found_in"`
}

// Protein lists the InterPro entries a UniProt protein belongs to.
type Protein struct {
	ID       string   `bson:"_id" json:"_id"`
	Subclass []string `bson:"subclass" json:"subclass"`
	HasPart  []string `bson:"has_part" json:"has_part"`
}

type xmlRef struct {
	Ref string `xml:"ipr_ref,attr"`
}

type xmlEntry struct {
	ID           string   `xml:"id,attr"`
	ShortName    string   `xml:"short_name,attr"`
	Type         string   `xml:"type,attr"`
	ProteinCount string   `xml:"protein_count,attr"`
	Name         string   `xml:"name"`
	Parents      []xmlRef `xml:"parent_list>rel_ref"`
	Children     []xmlRef `xml:"child_list>rel_ref"`
	Contains     []xmlRef `xml:"contains>rel_ref"`
	FoundIn      []xmlRef `xml:"found_in>rel_ref"`
}

func refs(rs []xmlRef) []string {
	if len(rs) == 0 {
		return nil
	}
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Ref
	}
	return out
}

type gzipFile struct {
	f  *os.File
	gz *pgzip.Reader
}

func openGzip(path string) (*gzipFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &gzipFile{f: f, gz: gz}, nil
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipFile) Close() error {
	return errors.Join(g.gz.Close(), g.f.Close())
}

// walkXML calls fn for every start element named in names.
func walkXML(ctx context.Context, path string, fn func(dec *xml.Decoder, se xml.StartElement) error, names ...string) error {
	r, err := openGzip(path)
	if err != nil {
		return err
	}
	defer r.Close()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	dec := xml.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || !want[se.Name.Local] {
			continue
		}
		if err := fn(dec, se); err != nil {
			return err
		}
	}
}

// ParseReleaseInfo yields the attributes of every <dbinfo>, keyed by dbname.
func ParseReleaseInfo(ctx context.Context, folder string, fn func(staging.Doc) error) error {
	return walkXML(ctx, filepath.Join(folder, EntriesFile), func(dec *xml.Decoder, se xml.StartElement) error {
		doc := staging.Doc{}
		for _, a := range se.Attr {
			doc[a.Name.Local] = a.Value
		}
		name, _ := doc["dbname"].(string)
		if name == "" {
			return fmt.Errorf("dbinfo without dbname")
		}
		doc["_id"] = name
		return fn(doc)
	}, "dbinfo")
}

// ParseEntries yields every <interpro> entry.
func ParseEntries(ctx context.Context, folder string, fn func(Entry) error) error {
	return walkXML(ctx, filepath.Join(folder, EntriesFile), func(dec *xml.Decoder, se xml.StartElement) error {
		var x xmlEntry
		if err := dec.DecodeElement(&x, &se); err != nil {
			return fmt.Errorf("failed to decode entry: %w", err)
		}
		e, err := x.entry()
		if err != nil {
			return err
		}
		return fn(e)
	}, "interpro")
}

func (x xmlEntry) entry() (Entry, error) {
	count, err := strconv.Atoi(x.ProteinCount)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: invalid protein_count %q", x.ID, x.ProteinCount)
	}
	e := Entry{
		ID:           x.ID,
		Name:         strings.TrimSpace(x.Name),
		ShortName:    x.ShortName,
		Type:         x.Type,
		ProteinCount: count,
		Children:     refs(x.Children),
		Contains:     refs(x.Contains),
		FoundIn:      refs(x.FoundIn),
	}
	switch len(x.Parents) {
	case 0:
	case 1:
		e.Parent = x.Parents[0].Ref
	default:
		return Entry{}, fmt.Errorf("entry %s has %d parents", x.ID, len(x.Parents))
	}
	return e, nil
}

// LoadEntries reads every entry into a map keyed by id.
func LoadEntries(ctx context.Context, folder string) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	err := ParseEntries(ctx, folder, func(e Entry) error {
		entries[e.ID] = e
		return nil
	})
	return entries, err
}

// ParseProteins groups protein2ipr lines by consecutive UniProt id.
// Lines are uniprot, ipr, name, ext_id, start, stop separated by tabs.
// Entries missing from entries are ignored.
func ParseProteins(ctx context.Context, folder string, entries map[string]Entry, fn func(Protein) error) error {
	path := filepath.Join(folder, ProteinsFile)
	r, err := openGzip(path)
	if err != nil {
		return err
	}
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var current string
	var iprs []string
	flush := func() error {
		if current == "" {
			return nil
		}
		return fn(groupProtein(current, iprs, entries))
	}

	for n := 1; sc.Scan(); n++ {
		if n%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return fmt.Errorf("%s:%d: expected tab separated fields", path, n)
		}
		uniprot, ipr := fields[0], fields[1]
		if uniprot != current {
			if err := flush(); err != nil {
				return err
			}
			current, iprs = uniprot, nil
		}
		iprs = append(iprs, ipr)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return flush()
}

// groupProtein keeps the most specific families as subclasses: a family that
// is the parent of another family of the protein is dropped. Other entry types
// become parts.
func groupProtein(id string, iprs []string, entries map[string]Entry) Protein {
	var families, parts []string
	parents := make(map[string]bool)
	for _, ipr := range utils.SortedUnique(iprs) {
		e, ok := entries[ipr]
		if !ok {
			continue
		}
		if e.Type == TypeFamily {
			families = append(families, ipr)
			if e.Parent != "" {
				parents[e.Parent] = true
			}
			continue
		}
		parts = append(parts, ipr)
	}
	p := Protein{ID: id, Subclass: []string{}, HasPart: []string{}}
	for _, f := range families {
		if !parents[f] {
			p.Subclass = append(p.Subclass, f)
		}
	}
	if parts != nil {
		p.HasPart = parts
	}
	return p
}

package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Datatype is the value type of a snak.
type Datatype string

const (
	ItemDatatype            Datatype = "wikibase-item"
	StringDatatype          Datatype = "string"
	ExternalIDDatatype      Datatype = "external-id"
	TimeDatatype            Datatype = "time"
	URLDatatype             Datatype = "url"
	MonolingualTextDatatype Datatype = "monolingualtext"
	QuantityDatatype        Datatype = "quantity"
)

// Property ids shared by several bots.
const (
	PropInstanceOf   = "P31"
	PropSubclassOf   = "P279"
	PropPartOf       = "P361"
	PropHasPart      = "P527"
	PropStatedIn     = "P248"
	PropRetrieved    = "P813"
	PropReferenceURL = "P854"
	PropFoundInTaxon = "P703"
)

// TimeFormat is the day-precision timestamp layout used for time snaks.
const TimeFormat = "+2006-01-02T00:00:00Z"

// Snak is a single property/value pair.
type Snak struct {
	Property string   `json:"property"`
	Datatype Datatype `json:"datatype"`
	Value    string   `json:"value"`
	Lang     string   `json:"lang,omitempty"`
}

func (s Snak) String() string {
	if s.Lang != "" {
		return fmt.Sprintf("%s=%s@%s", s.Property, s.Value, s.Lang)
	}
	return fmt.Sprintf("%s=%s", s.Property, s.Value)
}

// key identifies a snak independent of its datatype tag.
func (s Snak) key() string {
	return s.Property + "\x00" + s.Value + "\x00" + s.Lang
}

// Reference is the provenance block attached to a statement.
type Reference []Snak

// Statement is a main snak plus its qualifiers and references.
type Statement struct {
	Snak
	Qualifiers []Snak      `json:"qualifiers,omitempty"`
	References []Reference `json:"references,omitempty"`
}

// ItemID builds a wikibase-item statement.
func ItemID(value, prop string, refs ...Reference) Statement {
	return Statement{Snak: Snak{Property: prop, Datatype: ItemDatatype, Value: value}, References: refs}
}

// String builds a string statement.
func String(value, prop string, refs ...Reference) Statement {
	return Statement{Snak: Snak{Property: prop, Datatype: StringDatatype, Value: value}, References: refs}
}

// ExternalID builds an external-id statement.
func ExternalID(value, prop string, refs ...Reference) Statement {
	return Statement{Snak: Snak{Property: prop, Datatype: ExternalIDDatatype, Value: value}, References: refs}
}

// Time builds a day-precision time statement.
func Time(t time.Time, prop string, refs ...Reference) Statement {
	return Statement{Snak: Snak{Property: prop, Datatype: TimeDatatype, Value: t.UTC().Format(TimeFormat)}, References: refs}
}

// URL builds a url statement.
func URL(value, prop string, refs ...Reference) Statement {
	return Statement{Snak: Snak{Property: prop, Datatype: URLDatatype, Value: value}, References: refs}
}

// MonolingualText builds a monolingual text statement. An empty lang means "en".
func MonolingualText(value, lang, prop string, refs ...Reference) Statement {
	if lang == "" {
		lang = "en"
	}
	return Statement{Snak: Snak{Property: prop, Datatype: MonolingualTextDatatype, Value: value, Lang: lang}, References: refs}
}

// WithQualifiers returns a copy of s carrying the given qualifiers.
func (s Statement) WithQualifiers(q ...Statement) Statement {
	out := s
	out.Qualifiers = make([]Snak, 0, len(q))
	for _, st := range q {
		out.Qualifiers = append(out.Qualifiers, st.Snak)
	}
	return out
}

// NewReference collects the main snaks of the given statements into a reference block.
func NewReference(parts ...Statement) Reference {
	ref := make(Reference, 0, len(parts))
	for _, p := range parts {
		ref = append(ref, p.Snak)
	}
	return ref
}

func snakSet(snaks []Snak, skipProp string) []string {
	keys := make([]string, 0, len(snaks))
	for _, s := range snaks {
		if skipProp != "" && s.Property == skipProp {
			keys = append(keys, s.Property)
			continue
		}
		keys = append(keys, s.key())
	}
	sort.Strings(keys)
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SameClaim reports whether two statements assert the same value with the same qualifiers.
// References are not compared.
func (s Statement) SameClaim(o Statement) bool {
	if s.Snak.key() != o.Snak.key() {
		return false
	}
	return equalKeys(snakSet(s.Qualifiers, ""), snakSet(o.Qualifiers, ""))
}

// Equal compares two references. Retrieved dates (P813) only need to be present on both sides.
func (r Reference) Equal(o Reference) bool {
	return equalKeys(snakSet(r, PropRetrieved), snakSet(o, PropRetrieved))
}

// HasReference reports whether s carries a reference equal to ref.
func (s Statement) HasReference(ref Reference) bool {
	for _, r := range s.References {
		if r.Equal(ref) {
			return true
		}
	}
	return false
}

// Item is an entity in the knowledge-graph item store.
type Item struct {
	ID           string                 `json:"id"`
	Labels       map[string]string      `json:"labels,omitempty"`
	Descriptions map[string]string      `json:"descriptions,omitempty"`
	Aliases      map[string][]string    `json:"aliases,omitempty"`
	Claims       map[string][]Statement `json:"claims,omitempty"`
	Domain       string                 `json:"domain,omitempty"`
	Modified     time.Time              `json:"modified"`
}

// NewItem returns an empty item with initialised maps.
func NewItem(id string) *Item {
	return &Item{
		ID:           id,
		Labels:       map[string]string{},
		Descriptions: map[string]string{},
		Aliases:      map[string][]string{},
		Claims:       map[string][]Statement{},
	}
}

// ClaimValues returns the main snak values recorded for prop.
func (it *Item) ClaimValues(prop string) []string {
	var out []string
	for _, s := range it.Claims[prop] {
		out = append(out, s.Value)
	}
	return out
}

// AddStatement appends st to the item's claims.
func (it *Item) AddStatement(st Statement) {
	if it.Claims == nil {
		it.Claims = map[string][]Statement{}
	}
	it.Claims[st.Property] = append(it.Claims[st.Property], st)
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := NewItem(it.ID)
	out.Domain = it.Domain
	out.Modified = it.Modified
	for k, v := range it.Labels {
		out.Labels[k] = v
	}
	for k, v := range it.Descriptions {
		out.Descriptions[k] = v
	}
	for k, v := range it.Aliases {
		out.Aliases[k] = append([]string(nil), v...)
	}
	for k, v := range it.Claims {
		sts := make([]Statement, len(v))
		for i, st := range v {
			sts[i] = st
			sts[i].Qualifiers = append([]Snak(nil), st.Qualifiers...)
			sts[i].References = make([]Reference, len(st.References))
			for j, r := range st.References {
				sts[i].References[j] = append(Reference(nil), r...)
			}
		}
		out.Claims[k] = sts
	}
	return out
}

// Label returns the english label, or the first one found.
func (it *Item) Label() string {
	if l, ok := it.Labels["en"]; ok {
		return l
	}
	for _, l := range it.Labels {
		return l
	}
	return ""
}

// NormalizeID upper-cases and trims an entity id such as "q42 ".
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

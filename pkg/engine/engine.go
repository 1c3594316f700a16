// Package engine plans writes of referenced statements onto knowledge-graph items.
//
// An Engine resolves the item a batch of statements belongs to, merges the new
// statements into the stored ones and reports whether a write is needed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soundprediction/go-biohub/pkg/driver"
	"github.com/soundprediction/go-biohub/pkg/types"
)

var (
	// ErrAmbiguousItem is returned when core identifiers point at more than one item.
	ErrAmbiguousItem = errors.New("core identifiers match more than one item")
	// ErrNoMatch is returned in search-only mode when no item matches.
	ErrNoMatch = errors.New("no item matches the core identifiers")
)

// Options configure how an Engine resolves and merges an item.
type Options struct {
	// ItemID targets an existing item directly.
	ItemID string
	// ItemName is used as the english label of a new item when no label is set.
	ItemName string
	Domain   string
	Data     []types.Statement
	// AppendValue lists properties whose new statements are added to the
	// existing ones instead of replacing them.
	AppendValue []string
	// CoreProps are the identifying properties used to find the item.
	// Defaults to the properties of the external-id statements in Data.
	CoreProps []string
	// SearchOnly forbids creating a new item.
	SearchOnly bool
}

// Engine holds the stored and merged version of one item.
type Engine struct {
	store    driver.ItemStore
	opts     Options
	original *types.Item
	item     *types.Item
	create   bool
}

// New resolves the target item and merges opts.Data into it.
func New(ctx context.Context, store driver.ItemStore, opts Options) (*Engine, error) {
	e := &Engine{store: store, opts: opts}

	qid, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}

	if qid == "" {
		if opts.SearchOnly {
			return nil, ErrNoMatch
		}
		e.create = true
		e.original = types.NewItem("")
		e.item = types.NewItem("")
		e.item.Domain = opts.Domain
		if opts.ItemName != "" {
			e.item.Labels["en"] = opts.ItemName
		}
	} else {
		stored, err := store.GetItem(ctx, qid)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", qid, err)
		}
		e.original = stored
		e.item = stored.Clone()
		if e.item.Domain == "" {
			e.item.Domain = opts.Domain
		}
	}

	e.merge(opts.Data, opts.AppendValue)
	return e, nil
}

func (e *Engine) resolve(ctx context.Context) (string, error) {
	if e.opts.ItemID != "" {
		return types.NormalizeID(e.opts.ItemID), nil
	}

	core := e.opts.CoreProps
	if len(core) == 0 {
		for _, st := range e.opts.Data {
			if st.Datatype == types.ExternalIDDatatype {
				core = append(core, st.Property)
			}
		}
	}
	isCore := make(map[string]bool, len(core))
	for _, p := range core {
		isCore[p] = true
	}

	found := make(map[string]bool)
	for _, st := range e.opts.Data {
		if !isCore[st.Property] {
			continue
		}
		ids, err := e.store.FindByClaim(ctx, st.Property, st.Value)
		if err != nil {
			return "", err
		}
		for _, id := range ids {
			found[id] = true
		}
	}

	switch len(found) {
	case 0:
		return "", nil
	case 1:
		for id := range found {
			return id, nil
		}
	}
	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", fmt.Errorf("%w: %v", ErrAmbiguousItem, ids)
}

// merge folds data into the working item, grouped by property.
func (e *Engine) merge(data []types.Statement, appendValue []string) {
	appendSet := make(map[string]bool, len(appendValue))
	for _, p := range appendValue {
		appendSet[p] = true
	}

	byProp := make(map[string][]types.Statement)
	var order []string
	for _, st := range data {
		if _, seen := byProp[st.Property]; !seen {
			order = append(order, st.Property)
		}
		byProp[st.Property] = append(byProp[st.Property], st)
	}

	for _, prop := range order {
		incoming := byProp[prop]
		existing := e.item.Claims[prop]
		if appendSet[prop] {
			e.item.Claims[prop] = appendStatements(existing, incoming)
		} else {
			e.item.Claims[prop] = replaceStatements(existing, incoming)
		}
	}
}

// appendStatements keeps existing statements and adds the incoming ones that are
// missing. New references on already present statements are added.
func appendStatements(existing, incoming []types.Statement) []types.Statement {
	out := append([]types.Statement(nil), existing...)
	for _, st := range incoming {
		idx := indexOf(out, st)
		if idx < 0 {
			out = append(out, st)
			continue
		}
		for _, ref := range st.References {
			if !out[idx].HasReference(ref) {
				out[idx].References = append(append([]types.Reference(nil), out[idx].References...), ref)
			}
		}
	}
	return out
}

// replaceStatements swaps the property's statements for the incoming set.
// A value that is already stored keeps its references, and new ones are
// added alongside them.
func replaceStatements(existing, incoming []types.Statement) []types.Statement {
	out := make([]types.Statement, 0, len(incoming))
	for _, st := range incoming {
		if idx := indexOf(out, st); idx >= 0 {
			for _, ref := range st.References {
				if !out[idx].HasReference(ref) {
					out[idx].References = append(append([]types.Reference(nil), out[idx].References...), ref)
				}
			}
			continue
		}
		if idx := indexOf(existing, st); idx >= 0 {
			if sameReferences(existing[idx].References, st.References) {
				out = append(out, existing[idx])
				continue
			}
			st.References = append([]types.Reference(nil), st.References...)
			for _, ref := range existing[idx].References {
				if !st.HasReference(ref) {
					st.References = append(st.References, ref)
				}
			}
		}
		out = append(out, st)
	}
	return out
}

func indexOf(sts []types.Statement, st types.Statement) int {
	for i := range sts {
		if sts[i].SameClaim(st) {
			return i
		}
	}
	return -1
}

func sameReferences(a, b []types.Reference) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, ra := range a {
		matched := false
		for j, rb := range b {
			if !used[j] && ra.Equal(rb) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Update merges more statements into the item.
func (e *Engine) Update(data []types.Statement, appendValue ...string) {
	e.merge(data, appendValue)
}

// SetLabel sets the label for lang, "en" when empty.
func (e *Engine) SetLabel(label, lang string) {
	e.item.Labels[langOrDefault(lang)] = label
}

// SetDescription sets the description for lang, "en" when empty.
func (e *Engine) SetDescription(description, lang string) {
	e.item.Descriptions[langOrDefault(lang)] = description
}

// SetAliases appends aliases for lang, skipping empty and duplicate values.
func (e *Engine) SetAliases(aliases []string, lang string) {
	lang = langOrDefault(lang)
	current := e.item.Aliases[lang]
	seen := make(map[string]bool, len(current))
	for _, a := range current {
		seen[a] = true
	}
	for _, a := range aliases {
		if a == "" || seen[a] || a == e.item.Labels[lang] {
			continue
		}
		seen[a] = true
		current = append(current, a)
	}
	if len(current) > 0 {
		e.item.Aliases[lang] = current
	}
}

func langOrDefault(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}

// CreateNewItem reports whether Write would create a new item.
func (e *Engine) CreateNewItem() bool {
	return e.create
}

// ItemID returns the id of the target item, empty until a new item is written.
func (e *Engine) ItemID() string {
	return e.item.ID
}

// Item returns the merged item.
func (e *Engine) Item() *types.Item {
	return e.item
}

// RequireWrite reports whether the merged item differs from the stored one.
func (e *Engine) RequireWrite() bool {
	if e.create {
		return true
	}
	if !equalStringMaps(e.original.Labels, e.item.Labels) ||
		!equalStringMaps(e.original.Descriptions, e.item.Descriptions) ||
		!equalAliases(e.original.Aliases, e.item.Aliases) {
		return true
	}
	return !equalClaims(e.original.Claims, e.item.Claims)
}

// Write persists the item if needed and returns its id.
func (e *Engine) Write(ctx context.Context, summary string) (string, error) {
	if e.create {
		qid, err := e.store.CreateItem(ctx, e.item, summary)
		if err != nil {
			return "", fmt.Errorf("failed to create item: %w", err)
		}
		e.item.ID = qid
		e.create = false
		e.original = e.item.Clone()
		return qid, nil
	}
	if !e.RequireWrite() {
		return e.item.ID, nil
	}
	if err := e.store.UpdateItem(ctx, e.item, summary); err != nil {
		return e.item.ID, fmt.Errorf("failed to update %s: %w", e.item.ID, err)
	}
	e.original = e.item.Clone()
	return e.item.ID, nil
}

func equalStringMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func equalAliases(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func equalClaims(a, b map[string][]types.Statement) bool {
	count := func(m map[string][]types.Statement) int {
		n := 0
		for _, sts := range m {
			if len(sts) > 0 {
				n++
			}
		}
		return n
	}
	if count(a) != count(b) {
		return false
	}
	for prop, as := range a {
		bs := b[prop]
		if len(as) != len(bs) {
			return false
		}
		for _, st := range as {
			idx := indexOf(bs, st)
			if idx < 0 || !sameReferences(st.References, bs[idx].References) {
				return false
			}
		}
	}
	return true
}

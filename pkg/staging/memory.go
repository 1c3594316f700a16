package staging

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore is an in-memory Store. Documents are copied through BSON so
// decoding behaves as it does against MongoDB.
type MemoryStore struct {
	mu          sync.RWMutex
	status      map[string]*SrcDump
	collections map[string][]Doc
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		status:      make(map[string]*SrcDump),
		collections: make(map[string][]Doc),
	}
}

// SetStatus replaces the src_dump document of dump.ID.
func (s *MemoryStore) SetStatus(dump SrcDump) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := dump
	s.status[dump.ID] = &cp
}

// Insert appends docs to a collection.
func (s *MemoryStore) Insert(name string, docs ...Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		cp, err := copyDoc(d)
		if err != nil {
			return err
		}
		s.collections[name] = append(s.collections[name], cp)
	}
	return nil
}

// PendingSources implements Store.
func (s *MemoryStore) PendingSources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var srcs []string
	for id, st := range s.status {
		if st.PendingToUpload {
			srcs = append(srcs, id)
		}
	}
	sort.Strings(srcs)
	return srcs, nil
}

// MarkUploadStarted implements Store.
func (s *MemoryStore) MarkUploadStarted(ctx context.Context, src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[src]; ok {
		st.PendingToUpload = false
		st.Upload = UploadStatus{}
	}
	return nil
}

// SourceStatus implements Store.
func (s *MemoryStore) SourceStatus(ctx context.Context, src string) (*SrcDump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[src]
	if !ok {
		return nil, fmt.Errorf("src_dump %s: %w", src, ErrNotFound)
	}
	cp := *st
	if st.Upload.Jobs != nil {
		cp.Upload.Jobs = make(map[string]UploadJob, len(st.Upload.Jobs))
		for k, v := range st.Upload.Jobs {
			cp.Upload.Jobs[k] = v
		}
	}
	return &cp, nil
}

// RegisterDump implements Store.
func (s *MemoryStore) RegisterDump(ctx context.Context, src string, rec DumpRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[src]
	if !ok {
		st = &SrcDump{ID: src}
		s.status[src] = st
	}
	st.Download = DownloadStatus{
		Status:    rec.Status,
		StartedAt: rec.StartedAt,
		Time:      FormatElapsed(rec.Elapsed),
		Error:     rec.Err,
	}
	if rec.Status == StatusSuccess {
		st.Release = rec.Release
		st.DataFolder = rec.DataFolder
		if rec.PendingToUpload {
			st.PendingToUpload = true
		}
	}
	if rec.LogFile != "" {
		st.LogFile = rec.LogFile
	}
	return nil
}

// RegisterUpload implements Store.
func (s *MemoryStore) RegisterUpload(ctx context.Context, src, uploader string, job UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[src]
	if !ok {
		st = &SrcDump{ID: src}
		s.status[src] = st
	}
	if st.Upload.Jobs == nil {
		st.Upload.Jobs = make(map[string]UploadJob)
	}
	st.Upload.Status = job.Status
	st.Upload.Jobs[uploader] = job
	return nil
}

// ReplaceCollection implements Store.
func (s *MemoryStore) ReplaceCollection(ctx context.Context, name string, docs <-chan Doc) (int64, error) {
	var loaded []Doc
	for {
		select {
		case <-ctx.Done():
			return int64(len(loaded)), ctx.Err()
		case d, ok := <-docs:
			if !ok {
				s.mu.Lock()
				s.collections[name] = loaded
				s.mu.Unlock()
				return int64(len(loaded)), nil
			}
			cp, err := copyDoc(d)
			if err != nil {
				return int64(len(loaded)), err
			}
			loaded = append(loaded, cp)
		}
	}
}

// Find implements Store.
func (s *MemoryStore) Find(ctx context.Context, name string, filter Filter) (Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Doc
	for _, d := range s.collections[name] {
		if matches(d, filter) {
			out = append(out, d)
		}
	}
	return &memoryCursor{docs: out, pos: -1}, nil
}

// FindOne implements Store.
func (s *MemoryStore) FindOne(ctx context.Context, name, id string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.collections[name] {
		if d["_id"] == id {
			return FromDoc(d, v)
		}
	}
	return fmt.Errorf("%s/%s: %w", name, id, ErrNotFound)
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, name string, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, d := range s.collections[name] {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

type memoryCursor struct {
	docs []Doc
	pos  int
	err  error
}

// Next stops with Err set when ctx is done before the last document.
func (c *memoryCursor) Next(ctx context.Context) bool {
	if c.err != nil || c.pos+1 >= len(c.docs) {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	c.pos++
	return true
}

func (c *memoryCursor) Decode(v any) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return fmt.Errorf("cursor is not positioned on a document")
	}
	return FromDoc(c.docs[c.pos], v)
}

func (c *memoryCursor) Err() error                      { return c.err }
func (c *memoryCursor) Close(ctx context.Context) error { return nil }

func matches(d Doc, filter Filter) bool {
	for k, want := range filter {
		got, ok := d[k]
		if in, isIn := asIn(want); isIn {
			if !ok || !containsValue(in, got) {
				return false
			}
			continue
		}
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func asIn(v any) ([]any, bool) {
	var m map[string]any
	switch t := v.(type) {
	case map[string]any:
		m = t
	case bson.M:
		m = t
	default:
		return nil, false
	}
	raw, ok := m["$in"]
	if !ok {
		return nil, false
	}
	switch vals := raw.(type) {
	case []any:
		return vals, true
	case bson.A:
		return vals, true
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func containsValue(vals []any, v any) bool {
	for _, x := range vals {
		if reflect.DeepEqual(x, v) {
			return true
		}
	}
	return false
}

func copyDoc(d Doc) (Doc, error) {
	return ToDoc(d)
}


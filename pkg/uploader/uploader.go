// Package uploader loads dumped source files into staging collections.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/soundprediction/go-biohub/pkg/staging"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownSource is returned when no uploader matches a source name.
var ErrUnknownSource = errors.New("unknown source")

// SourceUploader produces the documents of one staging collection.
type SourceUploader interface {
	// Name is the collection the documents are stored in.
	Name() string
	// MainSource is the src_dump entry holding the data folder.
	MainSource() string
	// Load sends documents to out. It must not close out.
	Load(ctx context.Context, dataFolder string, out chan<- staging.Doc) error
}

// Manager runs uploaders against a staging store.
type Manager struct {
	store     staging.Store
	uploaders []SourceUploader
	logger    *slog.Logger
	// Parallelism bounds UploadAll.
	Parallelism int
	now         func() time.Time
}

// NewManager creates a manager.
func NewManager(store staging.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, Parallelism: 2, now: time.Now}
}

// Register adds uploaders.
func (m *Manager) Register(us ...SourceUploader) {
	m.uploaders = append(m.uploaders, us...)
}

// Sources lists the main sources with at least one uploader.
func (m *Manager) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range m.uploaders {
		if !seen[u.MainSource()] {
			seen[u.MainSource()] = true
			out = append(out, u.MainSource())
		}
	}
	sort.Strings(out)
	return out
}

func (m *Manager) matching(src string) []SourceUploader {
	var out []SourceUploader
	for _, u := range m.uploaders {
		if u.Name() == src || u.MainSource() == src {
			out = append(out, u)
		}
	}
	return out
}

// UploadSrc runs every uploader whose name or main source is src.
func (m *Manager) UploadSrc(ctx context.Context, src string) error {
	us := m.matching(src)
	if len(us) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSource, src)
	}
	var errs []error
	for _, u := range us {
		if err := m.run(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) run(ctx context.Context, u SourceUploader) error {
	log := m.logger.With("source", u.MainSource(), "uploader", u.Name())
	status, err := m.store.SourceStatus(ctx, u.MainSource())
	if err != nil {
		return fmt.Errorf("no dump registered for %s: %w", u.MainSource(), err)
	}

	started := m.now()
	job := staging.UploadJob{Status: staging.StatusUploading, StartedAt: started}
	if err := m.store.RegisterUpload(ctx, u.MainSource(), u.Name(), job); err != nil {
		return err
	}
	log.Info("upload started", "data_folder", status.DataFolder)

	count, loadErr := m.load(ctx, u, status.DataFolder)

	job.Time = staging.FormatElapsed(m.now().Sub(started))
	job.Count = count
	if loadErr != nil {
		job.Status = staging.StatusFailed
		job.Error = loadErr.Error()
		log.Error("upload failed", "error", loadErr)
	} else {
		job.Status = staging.StatusSuccess
		log.Info("upload finished", "count", count, "time", job.Time)
	}
	if err := m.store.RegisterUpload(context.WithoutCancel(ctx), u.MainSource(), u.Name(), job); err != nil {
		return errors.Join(loadErr, err)
	}
	return loadErr
}

// load streams the uploader's documents into its collection. The collection
// is only replaced when Load succeeds.
func (m *Manager) load(ctx context.Context, u SourceUploader, folder string) (int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	docs := make(chan staging.Doc, 256)

	g.Go(func() error {
		if err := u.Load(gctx, folder, docs); err != nil {
			return err
		}
		close(docs)
		return nil
	})

	var count int64
	g.Go(func() error {
		n, err := m.store.ReplaceCollection(gctx, u.Name(), docs)
		count = n
		return err
	})

	err := g.Wait()
	return count, err
}

// UploadAll uploads every main source, Parallelism at a time.
func (m *Manager) UploadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if m.Parallelism > 0 {
		g.SetLimit(m.Parallelism)
	}
	for _, src := range m.Sources() {
		g.Go(func() error {
			return m.UploadSrc(gctx, src)
		})
	}
	return g.Wait()
}

// PollPending uploads the pending sources this manager knows about.
func (m *Manager) PollPending(ctx context.Context) error {
	pending, err := m.store.PendingSources(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, src := range pending {
		if len(m.matching(src)) == 0 {
			continue
		}
		if err := m.store.MarkUploadStarted(ctx, src); err != nil {
			return err
		}
		m.logger.Info("pending upload", "source", src)
		if err := m.UploadSrc(ctx, src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers doc unless ctx is done. Uploaders use it inside Load.
func Send(ctx context.Context, out chan<- staging.Doc, doc staging.Doc) error {
	select {
	case out <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

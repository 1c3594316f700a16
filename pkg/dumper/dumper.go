// Package dumper downloads upstream releases into the data archive and
// records the outcome in src_dump.
package dumper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/soundprediction/go-biohub/pkg/staging"
)

// ErrUnknownSource is returned for a source no dumper is registered for.
var ErrUnknownSource = errors.New("unknown source")

// Request is the input of one dump.
type Request struct {
	// Current is the stored status of the source, nil on the first dump.
	Current *staging.SrcDump
	Force   bool
	Logger  *slog.Logger
}

func (r Request) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Result describes a dump. Skipped results are not registered.
type Result struct {
	Release    string
	DataFolder string
	Files      []string
	Bytes      int64
	Skipped    bool
}

// Dumper fetches one data source.
type Dumper interface {
	Name() string
	Dump(ctx context.Context, req Request) (*Result, error)
}

// Archive lays out <root>/<src>/<release>/ folders.
type Archive struct {
	Root string
	// Keep retains older releases. Otherwise they are removed after a dump.
	Keep bool
}

// Folder returns the data folder of a release.
func (a Archive) Folder(src, release string) string {
	return filepath.Join(a.Root, src, release)
}

// Prune removes every release folder of src except keep, unless Keep is set.
func (a Archive) Prune(src, keep string) error {
	if a.Keep {
		return nil
	}
	dir := filepath.Join(a.Root, src)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove old release %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Manager runs registered dumpers and records their status.
type Manager struct {
	store     staging.Store
	archive   Archive
	logFolder string
	logger    *slog.Logger
	dumpers   map[string]Dumper
	now       func() time.Time
}

// NewManager creates a manager. Dump logs go to logFolder when it is set.
func NewManager(store staging.Store, archive Archive, logFolder string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		archive:   archive,
		logFolder: logFolder,
		logger:    logger,
		dumpers:   make(map[string]Dumper),
		now:       time.Now,
	}
}

// Register adds dumpers keyed by name.
func (m *Manager) Register(ds ...Dumper) {
	for _, d := range ds {
		m.dumpers[d.Name()] = d
	}
}

// Names lists registered sources.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.dumpers))
	for n := range m.dumpers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DumpSrc dumps one source and registers the outcome.
func (m *Manager) DumpSrc(ctx context.Context, name string, force bool) (*Result, error) {
	d, ok := m.dumpers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	current, err := m.store.SourceStatus(ctx, name)
	if err != nil && !errors.Is(err, staging.ErrNotFound) {
		return nil, err
	}

	log := m.logger.With("source", name)
	logFile := ""
	if m.logFolder != "" {
		if err := os.MkdirAll(m.logFolder, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log folder: %w", err)
		}
		logFile = filepath.Join(m.logFolder, fmt.Sprintf("%s_%s_dump.log", name, m.now().Format("20060102")))
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open dump log: %w", err)
		}
		defer f.Close()
		log = slog.New(slog.NewTextHandler(f, nil)).With("source", name)
	}

	started := m.now()
	res, dumpErr := d.Dump(ctx, Request{Current: current, Force: force, Logger: log})
	elapsed := m.now().Sub(started)

	if dumpErr != nil {
		log.Error("dump failed", "error", dumpErr)
		m.logger.Error("dump failed", "source", name, "error", dumpErr)
		rec := staging.DumpRecord{
			Status:    staging.StatusFailed,
			LogFile:   logFile,
			StartedAt: started,
			Elapsed:   elapsed,
			Err:       dumpErr.Error(),
		}
		if err := m.store.RegisterDump(context.WithoutCancel(ctx), name, rec); err != nil {
			return nil, errors.Join(dumpErr, err)
		}
		return nil, dumpErr
	}
	if res.Skipped {
		log.Info("nothing to dump")
		m.logger.Info("nothing to dump", "source", name)
		return res, nil
	}

	rec := staging.DumpRecord{
		Status:          staging.StatusSuccess,
		Release:         res.Release,
		DataFolder:      res.DataFolder,
		LogFile:         logFile,
		StartedAt:       started,
		Elapsed:         elapsed,
		PendingToUpload: true,
	}
	if err := m.store.RegisterDump(ctx, name, rec); err != nil {
		return res, err
	}
	if res.DataFolder != "" {
		if err := m.archive.Prune(name, filepath.Base(res.DataFolder)); err != nil {
			log.Warn("failed to prune archive", "error", err)
		}
	}
	log.Info("dump finished", "release", res.Release, "files", len(res.Files), "size", humanize.Bytes(uint64(res.Bytes)), "elapsed", staging.FormatElapsed(elapsed))
	m.logger.Info("dump finished", "source", name, "release", res.Release, "size", humanize.Bytes(uint64(res.Bytes)))
	return res, nil
}

// DumpAll dumps every registered source and joins the errors.
func (m *Manager) DumpAll(ctx context.Context, force bool) error {
	var errs []error
	for _, name := range m.Names() {
		if _, err := m.DumpSrc(ctx, name, force); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

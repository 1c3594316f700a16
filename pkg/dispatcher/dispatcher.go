// Package dispatcher watches src_dump for sources pending upload, runs
// their uploads as subprocesses and triggers builders when uploads succeed.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/soundprediction/go-biohub/pkg/staging"
)

// DefaultSleepTime is the pause between two polls.
const DefaultSleepTime = 10 * time.Second

// EventKind names a dispatcher event.
type EventKind string

const (
	UploadSucceeded EventKind = "upload_succeeded"
	UploadFailed    EventKind = "upload_failed"
	BuildSucceeded  EventKind = "build_succeeded"
	BuildFailed     EventKind = "build_failed"
)

// Event reports the end of an upload or a build.
type Event struct {
	Kind    EventKind
	Source  string
	Elapsed time.Duration
	Err     error
}

// Config configures a Dispatcher.
type Config struct {
	SleepTime time.Duration
	// ArchiveRoot holds upload logs of sources without a dump log file.
	ArchiveRoot string
	// WWWRoot prefixes the log links of notifications.
	WWWRoot string
}

type running struct {
	job     Job
	started time.Time
}

// Dispatcher runs pending uploads.
type Dispatcher struct {
	store    staging.Store
	launcher Launcher
	notifier Notifier
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	running map[string]*running
	// OnEvent is called for every event after the built-in handling.
	OnEvent func(Event)
	now     func() time.Time
}

// New creates a dispatcher. A nil notifier logs notifications.
func New(store staging.Store, launcher Launcher, notifier Notifier, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if cfg.SleepTime <= 0 {
		cfg.SleepTime = DefaultSleepTime
	}
	return &Dispatcher{
		store:    store,
		launcher: launcher,
		notifier: notifier,
		logger:   logger.With("component", "dispatcher"),
		cfg:      cfg,
		running:  make(map[string]*running),
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled. Without daemon it returns once no
// upload is running and none is pending.
func (d *Dispatcher) Run(ctx context.Context, daemon bool) error {
	for {
		if err := d.CheckSrcDump(ctx); err != nil {
			d.logger.ErrorContext(ctx, "failed to check src_dump", "error", err)
		}
		d.CheckUploads(ctx)
		if !daemon && d.Running() == 0 {
			return nil
		}
		if n := d.Running(); n > 0 {
			d.logger.InfoContext(ctx, "active jobs", "count", n)
			fmt.Println(d.ProcessInfo())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.SleepTime):
		}
	}
}

// Running is the number of uploads in flight.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// CheckSrcDump starts an upload for every pending source not already running.
func (d *Dispatcher) CheckSrcDump(ctx context.Context) error {
	pending, err := d.store.PendingSources(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		d.logger.InfoContext(ctx, "found pending jobs", "sources", pending)
	}
	var errs []error
	for _, src := range pending {
		d.mu.Lock()
		_, busy := d.running[src]
		d.mu.Unlock()
		if busy {
			continue
		}
		if err := d.dispatch(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
		}
	}
	return errors.Join(errs...)
}

// UploadLogPath places the upload log next to the dump log, or in the
// archive root when the source has none.
func (d *Dispatcher) UploadLogPath(status *staging.SrcDump, src string) string {
	dir := d.cfg.ArchiveRoot
	if status != nil && status.LogFile != "" {
		dir = filepath.Dir(status.LogFile)
	}
	return filepath.Join(dir, src+"_upload.log")
}

func (d *Dispatcher) dispatch(ctx context.Context, src string) error {
	status, err := d.store.SourceStatus(ctx, src)
	if err != nil {
		return err
	}
	if err := d.store.MarkUploadStarted(ctx, src); err != nil {
		return err
	}
	logPath := d.UploadLogPath(status, src)
	job, err := d.launcher.Upload(ctx, src, logPath)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.running[src] = &running{job: job, started: d.now()}
	d.mu.Unlock()
	d.logger.InfoContext(ctx, "upload started", "source", src, "pid", job.PID(), "log", logPath)
	return nil
}

// CheckUploads reaps finished uploads and fires their events.
func (d *Dispatcher) CheckUploads(ctx context.Context) {
	type finished struct {
		src string
		r   *running
	}
	var done []finished
	d.mu.Lock()
	for src, r := range d.running {
		select {
		case <-r.job.Done():
			done = append(done, finished{src, r})
			delete(d.running, src)
		default:
		}
	}
	d.mu.Unlock()
	sort.Slice(done, func(i, j int) bool { return done[i].src < done[j].src })

	for _, f := range done {
		ev := Event{Kind: UploadSucceeded, Source: f.src, Elapsed: d.now().Sub(f.r.started), Err: f.r.job.Err()}
		if ev.Err != nil {
			ev.Kind = UploadFailed
		}
		d.handle(ctx, ev)
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	elapsed := ev.Elapsed.Round(time.Second)
	var msg Message
	switch ev.Kind {
	case UploadSucceeded:
		msg = Message{
			Text:  fmt.Sprintf("%q uploader finished successfully (time: %s)", ev.Source, elapsed),
			Level: LevelSuccess,
			Links: LogLinks(d.cfg.WWWRoot, ev.Source, "dump", "upload"),
		}
	case UploadFailed:
		msg = Message{
			Text:  fmt.Sprintf("%q uploader failed: %v (time: %s)", ev.Source, ev.Err, elapsed),
			Level: LevelFailure,
			Links: LogLinks(d.cfg.WWWRoot, ev.Source, "upload"),
		}
	case BuildSucceeded:
		msg = Message{
			Text:  fmt.Sprintf("%q builder finished successfully (time: %s)", ev.Source, elapsed),
			Level: LevelSuccess,
			Links: LogLinks(d.cfg.WWWRoot, ev.Source, "build"),
		}
	case BuildFailed:
		msg = Message{
			Text:  fmt.Sprintf("%q builder failed: %v (time: %s)", ev.Source, ev.Err, elapsed),
			Level: LevelFailure,
			Links: LogLinks(d.cfg.WWWRoot, ev.Source, "build"),
		}
	}
	if err := d.notifier.Notify(ctx, msg); err != nil {
		d.logger.WarnContext(ctx, "notification failed", "error", err)
	}
	if d.OnEvent != nil {
		d.OnEvent(ev)
	}
	if ev.Kind == UploadSucceeded && d.launcher.Builds(ev.Source) {
		d.build(ctx, ev.Source)
	}
}

// build runs the builder synchronously, as the next poll waits for it.
func (d *Dispatcher) build(ctx context.Context, src string) {
	started := d.now()
	d.logger.InfoContext(ctx, "builder started", "source", src)
	err := d.launcher.Build(ctx, src)
	ev := Event{Kind: BuildSucceeded, Source: src, Elapsed: d.now().Sub(started), Err: err}
	if err != nil {
		ev.Kind = BuildFailed
	}
	d.handle(ctx, ev)
}

// ProcessInfo renders the running uploads as a JOB PID STATUS ELAPSED table.
func (d *Dispatcher) ProcessInfo() string {
	d.mu.Lock()
	srcs := make([]string, 0, len(d.running))
	for src := range d.running {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	rows := make([][]string, 0, len(srcs))
	now := d.now()
	for _, src := range srcs {
		r := d.running[src]
		rows = append(rows, []string{
			src,
			strconv.Itoa(r.job.PID()),
			"running",
			now.Sub(r.started).Round(time.Second).String(),
		})
	}
	d.mu.Unlock()

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("JOB", "PID", "STATUS", "ELAPSED").
		Rows(rows...).
		String()
}

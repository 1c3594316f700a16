// Package hub schedules dumps and polls for pending uploads in one process.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/soundprediction/go-biohub/pkg/dumper"
	"github.com/soundprediction/go-biohub/pkg/uploader"
)

// DefaultPollSchedule checks for pending uploads every ten seconds.
const DefaultPollSchedule = "*/10 * * * * *"

// Config holds cron specs with a leading seconds field.
type Config struct {
	// DumpSchedules maps a source to the schedule of its dumper.
	DumpSchedules map[string]string
	PollSchedule  string
}

// Hub runs dumpers and the upload poll on a cron.
type Hub struct {
	cron    *cron.Cron
	dumps   *dumper.Manager
	uploads *uploader.Manager
	logger  *slog.Logger
	ctx     context.Context
	entries map[string]cron.EntryID
}

type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}

// New validates the schedules and registers one entry per dumper plus the poll.
func New(cfg Config, dumps *dumper.Manager, uploads *uploader.Manager, logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hub")
	cl := cronLogger{l: logger}
	h := &Hub{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		dumps:   dumps,
		uploads: uploads,
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}

	srcs := make([]string, 0, len(cfg.DumpSchedules))
	for src := range cfg.DumpSchedules {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	for _, src := range srcs {
		if err := h.add("dump:"+src, cfg.DumpSchedules[src], func() { h.dump(src) }); err != nil {
			return nil, err
		}
	}

	poll := cfg.PollSchedule
	if poll == "" {
		poll = DefaultPollSchedule
	}
	if uploads != nil {
		if err := h.add("upload:poll", poll, h.poll); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hub) add(name, spec string, fn func()) error {
	id, err := h.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	h.entries[name] = id
	return nil
}

func (h *Hub) dump(src string) {
	if h.dumps == nil {
		return
	}
	if _, err := h.dumps.DumpSrc(h.ctx, src, false); err != nil {
		h.logger.ErrorContext(h.ctx, "scheduled dump failed", "source", src, "error", err)
	}
}

func (h *Hub) poll() {
	if err := h.uploads.PollPending(h.ctx); err != nil {
		h.logger.ErrorContext(h.ctx, "upload poll failed", "error", err)
	}
}

// Entries lists the scheduled job names.
func (h *Hub) Entries() []string {
	out := make([]string, 0, len(h.entries))
	for name := range h.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run starts the scheduler and blocks until ctx is cancelled and running
// jobs have returned.
func (h *Hub) Run(ctx context.Context) error {
	h.ctx = ctx
	h.cron.Start()
	h.logger.InfoContext(ctx, "hub started", "jobs", h.Entries())
	<-ctx.Done()
	<-h.cron.Stop().Done()
	h.logger.InfoContext(context.WithoutCancel(ctx), "hub stopped")
	return ctx.Err()
}

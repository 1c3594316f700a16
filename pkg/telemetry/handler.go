// Package telemetry persists error-level log records next to the run report.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/soundprediction/go-biohub/pkg/types"
)

// DuckDBHandler is a slog.Handler that writes error logs to DuckDB
type DuckDBHandler struct {
	next  slog.Handler
	db    *sql.DB
	attrs []slog.Attr
	wg    *sync.WaitGroup
}

// NewDuckDBHandler creates a new DuckDBHandler
func NewDuckDBHandler(next slog.Handler, db *sql.DB) (*DuckDBHandler, error) {
	h := &DuckDBHandler{
		next: next,
		db:   db,
		wg:   &sync.WaitGroup{},
	}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// initSchema creates the execution_errors table
func (h *DuckDBHandler) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS execution_errors (
		id VARCHAR,
		timestamp TIMESTAMP,
		level VARCHAR,
		message VARCHAR,
		run_id VARCHAR,
		bot_name VARCHAR,
		source VARCHAR,
		source_file VARCHAR,
		line_number INTEGER,
		attributes JSON
	);
	`
	_, err := h.db.Exec(query)
	return err
}

// Enabled implements slog.Handler
func (h *DuckDBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *DuckDBHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	// Only errors are persisted.
	if r.Level < slog.LevelError {
		return nil
	}

	var runID, botName, source string
	if v, ok := ctx.Value(types.ContextKeyRunID).(string); ok {
		runID = v
	}
	if v, ok := ctx.Value(types.ContextKeyBotName).(string); ok {
		botName = v
	}
	if v, ok := ctx.Value(types.ContextKeySource).(string); ok {
		source = v
	}

	attrs := make(map[string]any)
	collect := func(a slog.Attr) bool {
		v := a.Value.Resolve().Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs[a.Key] = v
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)
	if source == "" {
		if s, ok := attrs["source"].(string); ok {
			source = s
		}
	}
	attrsJSON, _ := json.Marshal(attrs)

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	query := `
	INSERT INTO execution_errors (
		id, timestamp, level, message,
		run_id, bot_name, source,
		source_file, line_number, attributes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	args := []any{
		uuid.New().String(), r.Time.UTC(), r.Level.String(), r.Message,
		runID, botName, source,
		f.File, f.Line, string(attrsJSON),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.db.Exec(query, args...); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to log error to DuckDB: %v\n", err)
		}
	}()

	return nil
}

// Wait blocks until pending inserts are done.
func (h *DuckDBHandler) Wait() {
	h.wg.Wait()
}

// WithAttrs implements slog.Handler
func (h *DuckDBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DuckDBHandler{
		next:  h.next.WithAttrs(attrs),
		db:    h.db,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
		wg:    h.wg,
	}
}

// WithGroup implements slog.Handler
func (h *DuckDBHandler) WithGroup(name string) slog.Handler {
	return &DuckDBHandler{
		next:  h.next.WithGroup(name),
		db:    h.db,
		attrs: h.attrs,
		wg:    h.wg,
	}
}

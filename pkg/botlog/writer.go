// Package botlog writes and reads bot run logs.
//
// A run log starts with a "#" + JSON header line followed by one entry per
// action:
//
//	INFO, 10/25/2016 11:40:24, 851487, "UPDATE", Q21, P351
package botlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Levels used in run logs.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Actions recorded in the message field of INFO entries.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionSkip   = "SKIP"
)

// TimeLayout is the entry timestamp layout.
const TimeLayout = "01/02/2006 15:04:05"

// Writer appends entries to a run log.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	buf    *bufio.Writer
	path   string
	header Header
	now    func() time.Time
}

// Open creates dir/name, truncating any previous file, and writes the header.
func Open(dir, name string, header Header) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}
	w := &Writer{f: f, buf: bufio.NewWriter(f), path: path, header: header, now: time.Now}

	line, err := header.line()
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := w.buf.WriteString(line); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Header returns the header the log was opened with.
func (w *Writer) Header() Header {
	return w.header
}

// Log appends an entry.
func (w *Writer) Log(level, externalID, msg, wdid, prop string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return fmt.Errorf("run log %s is closed", w.path)
	}
	_, err := fmt.Fprintf(w.buf, "%s, %s, %s, %s, %s, %s\n",
		level, w.now().Format(TimeLayout), externalID, quote(msg), wdid, prop)
	return err
}

// Info logs an INFO entry.
func (w *Writer) Info(externalID, msg, wdid, prop string) error {
	return w.Log(LevelInfo, externalID, msg, wdid, prop)
}

// Error logs an ERROR entry.
func (w *Writer) Error(externalID, msg, wdid, prop string) error {
	return w.Log(LevelError, externalID, msg, wdid, prop)
}

// Flush writes buffered entries to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.buf = nil
	return err
}

// Writable is an item write plan, as produced by the engine package.
type Writable interface {
	CreateNewItem() bool
	RequireWrite() bool
	ItemID() string
	Write(ctx context.Context, summary string) (string, error)
}

// TryWrite writes item if needed and records the outcome in log.
// A failed write is logged as ERROR and returned; it never panics or exits.
func TryWrite(ctx context.Context, item Writable, externalID, prop string, log *Writer, summary string) (string, error) {
	if !item.RequireWrite() {
		return item.ItemID(), log.Info(externalID, ActionSkip, item.ItemID(), prop)
	}
	action := ActionUpdate
	if item.CreateNewItem() {
		action = ActionCreate
	}
	qid, err := item.Write(ctx, summary)
	if err != nil {
		if lerr := log.Error(externalID, err.Error(), qid, prop); lerr != nil {
			return qid, fmt.Errorf("%w (log: %v)", err, lerr)
		}
		return qid, err
	}
	return qid, log.Info(externalID, action, qid, prop)
}

package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/soundprediction/go-biohub/pkg/botlog"
)

// Ingested describes one processed log file.
type Ingested struct {
	Path     string `json:"path"`
	BotRun   int64  `json:"bot_run"`
	Bot      string `json:"bot"`
	RunID    string `json:"run_id"`
	RunName  string `json:"run_name"`
	Entries  int    `json:"entries"`
	Replaced int64  `json:"replaced"`
}

// ProcessLog loads a run log. The bot named in the header must exist unless
// AutoRegister is set. Loading the same log again replaces its rows.
func (s *Store) ProcessLog(ctx context.Context, path string) (*Ingested, error) {
	h, entries, err := botlog.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	name := h.Bot()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM bot WHERE name = ?`, name).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		if !s.AutoRegister {
			return nil, fmt.Errorf("%w: %q in %s", ErrUnknownBot, name, path)
		}
		if _, err := getOrCreateBot(ctx, tx, name, h.Maintainer, []string{h.Domain}); err != nil {
			return nil, err
		}
	}

	spec := RunSpec{
		Bot:     name,
		RunID:   h.RunID,
		RunName: h.RunName,
		Domain:  h.Domain,
		Sources: h.Releases(),
	}
	for _, e := range entries {
		if spec.Started.IsZero() || e.Time.Before(spec.Started) {
			spec.Started = e.Time
		}
		if e.Time.After(spec.Ended) {
			spec.Ended = e.Time
		}
	}
	runID, err := s.getOrCreateBotRun(ctx, tx, spec)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM log WHERE bot_run = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear previous rows: %w", err)
	}
	replaced, _ := res.RowsAffected()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO log (bot_run, wdid, time, action, external_id, external_id_prop, msg)
		 VALUES (?, NULLIF(?::VARCHAR, ''), ?, ?, NULLIF(?::VARCHAR, ''), NULLIF(?::VARCHAR, ''), NULLIF(?::VARCHAR, ''))`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	props := make(map[string]bool)
	for _, e := range entries {
		if e.Prop != "" && !props[e.Prop] {
			if err := ensureProperty(ctx, tx, e.Prop); err != nil {
				return nil, err
			}
			props[e.Prop] = true
		}
		msg := ""
		if e.Level == botlog.LevelError {
			msg = e.Msg
		}
		if _, err := stmt.ExecContext(ctx, runID, e.WDID, wallClock(e.Time), e.Action(), e.ExternalID, e.Prop, msg); err != nil {
			return nil, fmt.Errorf("failed to insert log row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := &Ingested{
		Path:     path,
		BotRun:   runID,
		Bot:      name,
		RunID:    h.RunID,
		RunName:  h.RunName,
		Entries:  len(entries),
		Replaced: replaced,
	}
	s.logger.Info("run log loaded", "path", path, "bot", name, "bot_run", runID, "entries", len(entries))
	return out, nil
}

// ProcessLogs loads every *.log file in dir. A failing file does not stop
// the others; their errors are joined.
func (s *Store) ProcessLogs(ctx context.Context, dir string) ([]Ingested, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var (
		out  []Ingested
		errs []error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ProcessLog(ctx, p)
		if err != nil {
			s.logger.Error("failed to load run log", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, *res)
	}
	return out, errors.Join(errs...)
}

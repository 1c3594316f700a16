package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Person maintains bots.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Property is an identifier property tracked by the report.
type Property struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Bot is a registered bot.
type Bot struct {
	Name       string   `json:"bot_name"`
	Maintainer string   `json:"maintainer"`
	Email      string   `json:"email,omitempty"`
	Domains    []string `json:"domains,omitempty"`
}

// BotRun is one run of a bot. Started and Ended come from the first and
// last log rows when the run has any.
type BotRun struct {
	ID         int64             `json:"id"`
	Bot        string            `json:"bot_name"`
	RunID      string            `json:"run_id"`
	RunName    string            `json:"run_name"`
	Maintainer string            `json:"maintainer"`
	Domain     string            `json:"domain,omitempty"`
	Started    time.Time         `json:"started"`
	Ended      time.Time         `json:"ended"`
	Actions    map[string]int    `json:"actions"`
	Sources    map[string]string `json:"sources,omitempty"`
}

// Log is one stored run log row.
type Log struct {
	ID             int64     `json:"id"`
	BotRun         int64     `json:"bot_run"`
	WDID           string    `json:"wdid"`
	Time           time.Time `json:"time"`
	Action         string    `json:"action"`
	ExternalID     string    `json:"external_id,omitempty"`
	ExternalIDProp string    `json:"external_id_prop,omitempty"`
	Msg            string    `json:"msg,omitempty"`
}

// LogFilter narrows Logs. Zero fields are ignored.
type LogFilter struct {
	WDID   string
	Action string
	BotRun int64
	Limit  int
	Offset int
}

// Bots lists every bot by name.
func (s *Store) Bots(ctx context.Context) ([]Bot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.name, b.maintainer, coalesce(p.email, '')
		FROM bot b LEFT JOIN person p ON p.name = b.maintainer
		ORDER BY b.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bots: %w", err)
	}
	defer rows.Close()

	var bots []Bot
	for rows.Next() {
		var b Bot
		if err := rows.Scan(&b.Name, &b.Maintainer, &b.Email); err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range bots {
		if bots[i].Domains, err = s.botDomains(ctx, bots[i].Name); err != nil {
			return nil, err
		}
	}
	return bots, nil
}

// Bot returns one bot.
func (s *Store) Bot(ctx context.Context, name string) (*Bot, error) {
	var b Bot
	err := s.db.QueryRowContext(ctx, `
		SELECT b.name, b.maintainer, coalesce(p.email, '')
		FROM bot b LEFT JOIN person p ON p.name = b.maintainer
		WHERE b.name = ?`, name).Scan(&b.Name, &b.Maintainer, &b.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if b.Domains, err = s.botDomains(ctx, name); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) botDomains(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM bot_domain WHERE bot = ? ORDER BY domain`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const botRunSelect = `
	SELECT r.id, r.bot, r.run_id, r.run_name, b.maintainer, coalesce(r.domain, ''),
		coalesce(min(l.time), r.started), coalesce(max(l.time), r.ended)
	FROM bot_run r
	JOIN bot b ON b.name = r.bot
	LEFT JOIN log l ON l.bot_run = r.id`

const botRunGroup = `
	GROUP BY r.id, r.bot, r.run_id, r.run_name, b.maintainer, r.domain, r.started, r.ended`

// BotRuns lists runs ordered by run id. A non-empty runName filters them.
func (s *Store) BotRuns(ctx context.Context, runName string) ([]BotRun, error) {
	query := botRunSelect
	var args []any
	if runName != "" {
		query += ` WHERE r.run_name = ?`
		args = append(args, runName)
	}
	query += botRunGroup + ` ORDER BY r.run_id, r.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot runs: %w", err)
	}
	defer rows.Close()

	var runs []BotRun
	for rows.Next() {
		r, err := scanBotRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if err := s.fillRun(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// BotRun returns one run with its action counts and sources.
func (s *Store) BotRun(ctx context.Context, id int64) (*BotRun, error) {
	row := s.db.QueryRowContext(ctx, botRunSelect+` WHERE r.id = ?`+botRunGroup, id)
	r, err := scanBotRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bot run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.fillRun(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBotRun(sc scanner) (BotRun, error) {
	var r BotRun
	err := sc.Scan(&r.ID, &r.Bot, &r.RunID, &r.RunName, &r.Maintainer, &r.Domain, &r.Started, &r.Ended)
	return r, err
}

func (s *Store) fillRun(ctx context.Context, r *BotRun) error {
	actions, err := s.ActionCounts(ctx, r.ID)
	if err != nil {
		return err
	}
	r.Actions = actions

	rows, err := s.db.QueryContext(ctx, `
		SELECT src.name, src.release
		FROM bot_run_source rs JOIN source src ON src.id = rs.source
		WHERE rs.bot_run = ?`, r.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name, release string
		if err := rows.Scan(&name, &release); err != nil {
			return err
		}
		if r.Sources == nil {
			r.Sources = make(map[string]string)
		}
		r.Sources[name] = release
	}
	return rows.Err()
}

// ActionCounts counts the log rows of a run by action.
func (s *Store) ActionCounts(ctx context.Context, botRun int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, count(*) FROM log WHERE bot_run = ? GROUP BY action`, botRun)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[action] = int(n)
	}
	return out, rows.Err()
}

// Logs returns log rows matching f ordered by time.
func (s *Store) Logs(ctx context.Context, f LogFilter) ([]Log, error) {
	var (
		where []string
		args  []any
	)
	if f.WDID != "" {
		where = append(where, "wdid = ?")
		args = append(args, f.WDID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.BotRun != 0 {
		where = append(where, "bot_run = ?")
		args = append(args, f.BotRun)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, bot_run, coalesce(wdid, ''), time, action,
		coalesce(external_id, ''), coalesce(external_id_prop, ''), coalesce(msg, '') FROM log`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY time, id")
	if f.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", f.Limit)
		if f.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.BotRun, &l.WDID, &l.Time, &l.Action, &l.ExternalID, &l.ExternalIDProp, &l.Msg); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Package report loads bot run logs into a DuckDB database and answers the
// queries behind the report API.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

var (
	// ErrNotFound is returned when a bot or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownBot is returned when a log names a bot that was never registered.
	ErrUnknownBot = errors.New("unknown bot")
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the report database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// AutoRegister creates bots found in log headers instead of failing.
	AutoRegister bool
}

// Open opens or creates the database at path. An empty path is in memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.With("component", "report"), now: time.Now}
	if err := s.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// DB exposes the connection, e.g. for the telemetry handler.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS source_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS bot_run_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS log_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS person (
		name VARCHAR PRIMARY KEY,
		email VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS source (
		id INTEGER PRIMARY KEY DEFAULT nextval('source_id_seq'),
		name VARCHAR NOT NULL,
		url VARCHAR,
		release VARCHAR NOT NULL DEFAULT '',
		UNIQUE (name, release)
	)`,
	`CREATE TABLE IF NOT EXISTS property (
		id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS domain (
		name VARCHAR PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS domain_property (
		domain VARCHAR NOT NULL,
		property VARCHAR NOT NULL,
		PRIMARY KEY (domain, property)
	)`,
	`CREATE TABLE IF NOT EXISTS bot (
		name VARCHAR PRIMARY KEY,
		maintainer VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_domain (
		bot VARCHAR NOT NULL,
		domain VARCHAR NOT NULL,
		PRIMARY KEY (bot, domain)
	)`,
	`CREATE TABLE IF NOT EXISTS bot_run (
		id INTEGER PRIMARY KEY DEFAULT nextval('bot_run_id_seq'),
		bot VARCHAR NOT NULL,
		run_id VARCHAR NOT NULL,
		run_name VARCHAR NOT NULL DEFAULT '',
		started TIMESTAMP NOT NULL,
		ended TIMESTAMP NOT NULL,
		domain VARCHAR,
		UNIQUE (bot, run_id, run_name)
	)`,
	`CREATE TABLE IF NOT EXISTS bot_run_source (
		bot_run INTEGER NOT NULL,
		source INTEGER NOT NULL,
		PRIMARY KEY (bot_run, source)
	)`,
	`CREATE TABLE IF NOT EXISTS log (
		id INTEGER PRIMARY KEY DEFAULT nextval('log_id_seq'),
		bot_run INTEGER NOT NULL,
		wdid VARCHAR,
		time TIMESTAMP NOT NULL,
		action VARCHAR NOT NULL,
		external_id VARCHAR,
		external_id_prop VARCHAR,
		msg VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS log_bot_run_idx ON log (bot_run)`,
	`CREATE INDEX IF NOT EXISTS log_wdid_idx ON log (wdid)`,
}

func (s *Store) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Seed data written by InitialSetup.
var (
	defaultPerson  = Person{Name: "GSS", Email: "gstupp@scripps.edu"}
	defaultDomains = map[string][]Property{
		"gene": {
			{ID: "P351", Name: "entrez_gene_id"},
			{ID: "P594", Name: "ensembl_gene_id"},
		},
		"protein": {
			{ID: "P352", Name: "uniprot_id"},
			{ID: "P705", Name: "ensembl_protein_id"},
		},
		"disease": {
			{ID: "P699", Name: "disease_ontology_id"},
			{ID: "P486", Name: "mesh_id"},
		},
		"chromosome": {
			{ID: "P2248", Name: "refseq_genome_id"},
		},
	}
)

// InitialSetup seeds the maintainer, the domains with their identifier
// properties and the YeastBot. It can be run more than once.
func (s *Store) InitialSetup(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensurePerson(ctx, tx, defaultPerson); err != nil {
		return err
	}
	for domain, props := range defaultDomains {
		if err := ensureDomain(ctx, tx, domain); err != nil {
			return err
		}
		for _, p := range props {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO property (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
				p.ID, p.Name); err != nil {
				return fmt.Errorf("failed to insert property %s: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO domain_property (domain, property) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				domain, p.ID); err != nil {
				return err
			}
		}
	}
	if _, err := getOrCreateBot(ctx, tx, "YeastBot", defaultPerson.Name, []string{"gene", "protein"}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("report database initialized")
	return nil
}

func ensurePerson(ctx context.Context, q querier, p Person) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO person (name, email) VALUES (?, NULLIF(?::VARCHAR, '')) ON CONFLICT (name) DO NOTHING`,
		p.Name, p.Email)
	if err != nil {
		return fmt.Errorf("failed to insert person %s: %w", p.Name, err)
	}
	return nil
}

func ensureDomain(ctx context.Context, q querier, name string) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO domain (name) VALUES (?) ON CONFLICT DO NOTHING`, name); err != nil {
		return fmt.Errorf("failed to insert domain %s: %w", name, err)
	}
	return nil
}

func ensureProperty(ctx context.Context, q querier, id string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO property (id) VALUES (?) ON CONFLICT DO NOTHING`, id)
	return err
}

// GetOrCreateBot returns the bot, registering it when it does not exist.
// A new bot needs a maintainer.
func (s *Store) GetOrCreateBot(ctx context.Context, name, maintainer string, domains ...string) (*Bot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	created, err := getOrCreateBot(ctx, tx, name, maintainer, domains)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("bot registered", "bot", name, "maintainer", maintainer)
	}
	return s.Bot(ctx, name)
}

func getOrCreateBot(ctx context.Context, q querier, name, maintainer string, domains []string) (bool, error) {
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM bot WHERE name = ?`, name).Scan(&exists); err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}
	if maintainer == "" {
		return false, fmt.Errorf("bot %s needs a maintainer", name)
	}
	if err := ensurePerson(ctx, q, Person{Name: maintainer}); err != nil {
		return false, err
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO bot (name, maintainer) VALUES (?, ?)`, name, maintainer); err != nil {
		return false, fmt.Errorf("failed to insert bot %s: %w", name, err)
	}
	for _, d := range domains {
		if d == "" {
			continue
		}
		if err := ensureDomain(ctx, q, d); err != nil {
			return false, err
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO bot_domain (bot, domain) VALUES (?, ?) ON CONFLICT DO NOTHING`, name, d); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RunSpec identifies a run and carries the values used when it is created.
type RunSpec struct {
	Bot     string
	RunID   string
	RunName string
	Started time.Time
	Ended   time.Time
	Domain  string
	// Sources maps source name to release.
	Sources map[string]string
}

// GetOrCreateBotRun returns the id of the (bot, run id, run name) run,
// creating it when needed, and links its source releases.
func (s *Store) GetOrCreateBotRun(ctx context.Context, spec RunSpec) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	id, err := s.getOrCreateBotRun(ctx, tx, spec)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *Store) getOrCreateBotRun(ctx context.Context, q querier, spec RunSpec) (int64, error) {
	if spec.Ended.IsZero() {
		spec.Ended = s.now()
	}
	if spec.Started.IsZero() {
		spec.Started = spec.Ended.Add(-time.Minute)
	}
	if spec.Domain != "" {
		if err := ensureDomain(ctx, q, spec.Domain); err != nil {
			return 0, err
		}
	}

	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM bot_run WHERE bot = ? AND run_id = ? AND run_name = ?`,
		spec.Bot, spec.RunID, spec.RunName).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = q.QueryRowContext(ctx,
			`INSERT INTO bot_run (bot, run_id, run_name, started, ended, domain)
			 VALUES (?, ?, ?, ?, ?, NULLIF(?::VARCHAR, '')) RETURNING id`,
			spec.Bot, spec.RunID, spec.RunName, wallClock(spec.Started), wallClock(spec.Ended), spec.Domain).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert bot run: %w", err)
		}
	case err != nil:
		return 0, err
	}

	for name, release := range spec.Sources {
		var srcID int64
		if _, err := q.ExecContext(ctx,
			`INSERT INTO source (name, release) VALUES (?, ?) ON CONFLICT DO NOTHING`, name, release); err != nil {
			return 0, fmt.Errorf("failed to insert source %s: %w", name, err)
		}
		if err := q.QueryRowContext(ctx,
			`SELECT id FROM source WHERE name = ? AND release = ?`, name, release).Scan(&srcID); err != nil {
			return 0, err
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO bot_run_source (bot_run, source) VALUES (?, ?) ON CONFLICT DO NOTHING`, id, srcID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// wallClock keeps the local wall-clock reading. Run logs carry no zone and
// TIMESTAMP columns are stored without one.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

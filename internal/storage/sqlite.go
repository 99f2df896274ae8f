package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the interaction and dispatch audit log.
type Store struct {
	db *sql.DB
}

// pragmas run on every new database handle.
var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
}

// Open opens (or creates) replybot.db in dataDir and applies pending
// migrations. dataDir ":memory:" gives a private in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "replybot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: writers never see "database is locked" and an
	// in-memory database is shared by every query.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies every embedded migrations/NNN_*.sql file whose version
// is not yet in schema_version, in file name order.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	applied, err := s.AppliedMigrations()
	if err != nil {
		return err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	// ReadDir returns entries sorted by name.
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(e.Name())
		if err != nil {
			return err
		}
		if done[version] {
			continue
		}
		if err := s.applyMigration(version, "migrations/"+e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, name string) error {
	script, err := migrationsFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(script)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	return tx.Commit()
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("migration %q has no numeric prefix: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// timeLayout is RFC 3339 with fixed-width nanoseconds so that text order
// matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// --- Interactions ---

const interactionColumns = `id, created_at, channel, sender, query, reply, path, score`

func (s *Store) SaveInteraction(i Interaction) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, formatTime(i.CreatedAt), i.Channel, i.Sender, i.Query, i.Reply, i.Path, i.Score,
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	i, err := scanInteraction(s.db.QueryRow(`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Interaction{}, ErrNotFound
	}
	return i, err
}

// GetRecentInteractions returns up to limit interactions, newest first.
func (s *Store) GetRecentInteractions(limit int) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT `+interactionColumns+`
		FROM interactions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// CountInteractionsByPath returns how many replies each decision path produced.
func (s *Store) CountInteractionsByPath() (map[string]int, error) {
	return s.countBy(`SELECT path, COUNT(*) FROM interactions GROUP BY path`)
}

// --- Dispatches ---

const dispatchColumns = `id, created_at, origin, recipient, text, status, error, external_id`

func (s *Store) SaveDispatch(d Dispatch) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO dispatches (`+dispatchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, formatTime(d.CreatedAt), d.Origin, d.Recipient, d.Text, d.Status, d.Error, d.ExternalID,
	)
	return err
}

func (s *Store) GetDispatch(id string) (Dispatch, error) {
	d, err := scanDispatch(s.db.QueryRow(`SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Dispatch{}, ErrNotFound
	}
	return d, err
}

// GetRecentDispatches returns up to limit dispatches, newest first. A
// non-empty status restricts the result to that status.
func (s *Store) GetRecentDispatches(limit int, status string) ([]Dispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatches`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// CountDispatchesByStatus returns the number of dispatches per status.
func (s *Store) CountDispatchesByStatus() (map[string]int, error) {
	return s.countBy(`SELECT status, COUNT(*) FROM dispatches GROUP BY status`)
}

// --- helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInteraction(row scanner) (Interaction, error) {
	var i Interaction
	var createdAt string
	if err := row.Scan(&i.ID, &createdAt, &i.Channel, &i.Sender, &i.Query, &i.Reply, &i.Path, &i.Score); err != nil {
		return Interaction{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

func scanDispatch(row scanner) (Dispatch, error) {
	var d Dispatch
	var createdAt string
	if err := row.Scan(&d.ID, &createdAt, &d.Origin, &d.Recipient, &d.Text, &d.Status, &d.Error, &d.ExternalID); err != nil {
		return Dispatch{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Dispatch{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

func (s *Store) countBy(query string) (map[string]int, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		result[k] = n
	}
	return result, rows.Err()
}

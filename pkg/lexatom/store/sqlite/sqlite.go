package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/lexatom/pkg/lexatom/idmap"
	"github.com/cognicore/lexatom/pkg/lexatom/internalerr"
	"github.com/cognicore/lexatom/pkg/lexatom/span"
	"github.com/cognicore/lexatom/pkg/lexatom/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode and foreign keys enabled
// and creates the schema if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS fragments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS atoms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fragment_id INTEGER NOT NULL,
	predicate TEXT NOT NULL,
	description TEXT,
	is_fact INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(fragment_id) REFERENCES fragments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS atom_spans (
	atom_id INTEGER NOT NULL,
	span_start INTEGER NOT NULL,
	span_end INTEGER NOT NULL,
	FOREIGN KEY(atom_id) REFERENCES atoms(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fragment_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT,
	is_goal INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(fragment_id) REFERENCES fragments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS validation_attempts (
	id TEXT PRIMARY KEY,
	fragment_id INTEGER NOT NULL,
	number INTEGER NOT NULL,
	knowledge_base TEXT NOT NULL,
	goal TEXT NOT NULL,
	status TEXT NOT NULL,
	feedback TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY(fragment_id) REFERENCES fragments(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_atoms_fragment ON atoms(fragment_id);
CREATE INDEX IF NOT EXISTS idx_rules_fragment ON rules(fragment_id);
CREATE INDEX IF NOT EXISTS idx_spans_atom ON atom_spans(atom_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", internalerr.ErrNotFound, kind, id)
}

// CreateFragment inserts a fragment and returns it with its id.
func (s *sqliteStore) CreateFragment(ctx context.Context, f store.Fragment) (store.Fragment, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO fragments (title, content, created_at) VALUES (?, ?, ?) RETURNING id`,
		f.Title, f.Content, f.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Scan(&f.ID)
	if err != nil {
		return store.Fragment{}, err
	}
	return f, nil
}

// GetFragment retrieves a fragment by ID
func (s *sqliteStore) GetFragment(ctx context.Context, id int64) (store.Fragment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, content, created_at FROM fragments WHERE id = ?`, id)
	f, err := scanFragment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Fragment{}, notFound("fragment", id)
	}
	return f, err
}

// ListFragments returns all fragments ordered by id.
func (s *sqliteStore) ListFragments(ctx context.Context) ([]store.Fragment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, content, created_at FROM fragments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Fragment
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFragment(row scanner) (store.Fragment, error) {
	var (
		f       store.Fragment
		created string
	)
	if err := row.Scan(&f.ID, &f.Title, &f.Content, &created); err != nil {
		return store.Fragment{}, err
	}
	f.CreatedAt = parseTime(created)
	return f, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateAtom inserts an atom for an existing fragment.
func (s *sqliteStore) CreateAtom(ctx context.Context, a store.Atom) (store.Atom, error) {
	if _, err := s.GetFragment(ctx, a.FragmentID); err != nil {
		return store.Atom{}, err
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO atoms (fragment_id, predicate, description, is_fact) VALUES (?, ?, ?, ?) RETURNING id`,
		a.FragmentID, a.Predicate, a.Description, a.IsFact,
	).Scan(&a.ID)
	if err != nil {
		return store.Atom{}, err
	}
	return a, nil
}

// GetAtom retrieves an atom by ID
func (s *sqliteStore) GetAtom(ctx context.Context, id int64) (store.Atom, error) {
	var a store.Atom
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fragment_id, predicate, description, is_fact FROM atoms WHERE id = ?`, id,
	).Scan(&a.ID, &a.FragmentID, &a.Predicate, &a.Description, &a.IsFact)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Atom{}, notFound("atom", id)
	}
	return a, err
}

// UpdateAtom overwrites predicate, description and fact flag.
func (s *sqliteStore) UpdateAtom(ctx context.Context, a store.Atom) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE atoms SET predicate = ?, description = ?, is_fact = ? WHERE id = ?`,
		a.Predicate, a.Description, a.IsFact, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("atom", a.ID)
	}
	return nil
}

// ListAtoms returns a fragment's atoms ordered by id.
func (s *sqliteStore) ListAtoms(ctx context.Context, fragmentID int64) ([]store.Atom, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fragment_id, predicate, description, is_fact FROM atoms WHERE fragment_id = ? ORDER BY id`,
		fragmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Atom
	for rows.Next() {
		var a store.Atom
		if err := rows.Scan(&a.ID, &a.FragmentID, &a.Predicate, &a.Description, &a.IsFact); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAtoms removes a fragment's atoms; spans go with them.
func (s *sqliteStore) DeleteAtoms(ctx context.Context, fragmentID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM atoms WHERE fragment_id = ?`, fragmentID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReplaceAtoms deletes a fragment's atoms and inserts atoms and spans in a
// single transaction.
func (s *sqliteStore) ReplaceAtoms(ctx context.Context, fragmentID int64, atoms []store.Atom, spans []span.Span) ([]store.Atom, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := fragmentExists(ctx, tx, fragmentID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM atoms WHERE fragment_id = ?`, fragmentID); err != nil {
		return nil, err
	}

	insertAtom, err := tx.PrepareContext(ctx,
		`INSERT INTO atoms (fragment_id, predicate, description, is_fact) VALUES (?, ?, ?, ?) RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer insertAtom.Close()

	saved := make([]store.Atom, len(atoms))
	ids := make([]int64, len(atoms))
	for i, a := range atoms {
		a.FragmentID = fragmentID
		if err := insertAtom.QueryRowContext(ctx, a.FragmentID, a.Predicate, a.Description, a.IsFact).Scan(&a.ID); err != nil {
			return nil, err
		}
		saved[i] = a
		ids[i] = a.ID
	}

	m, err := idmap.Build(ids)
	if err != nil {
		return nil, err
	}
	persisted, err := m.DenormalizeSpans(spans)
	if err != nil {
		return nil, err
	}
	insertSpan, err := tx.PrepareContext(ctx, `INSERT INTO atom_spans (atom_id, span_start, span_end) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer insertSpan.Close()
	for _, sp := range persisted {
		if _, err := insertSpan.ExecContext(ctx, sp.AtomID, sp.Start, sp.End); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func fragmentExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments WHERE id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return notFound("fragment", id)
	}
	return nil
}

// SaveSpans replaces the spans of a fragment. Every span must reference an
// atom of that fragment.
func (s *sqliteStore) SaveSpans(ctx context.Context, fragmentID int64, spans []idmap.PersistedSpan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM atom_spans WHERE atom_id IN (SELECT id FROM atoms WHERE fragment_id = ?)`, fragmentID); err != nil {
		return err
	}

	owned, err := tx.PrepareContext(ctx, `SELECT COUNT(*) FROM atoms WHERE id = ? AND fragment_id = ?`)
	if err != nil {
		return err
	}
	defer owned.Close()
	insert, err := tx.PrepareContext(ctx, `INSERT INTO atom_spans (atom_id, span_start, span_end) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insert.Close()

	for _, sp := range spans {
		var n int
		if err := owned.QueryRowContext(ctx, sp.AtomID, fragmentID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: atom %d is not part of fragment %d", internalerr.ErrUnknownAtomReference, sp.AtomID, fragmentID)
		}
		if _, err := insert.ExecContext(ctx, sp.AtomID, sp.Start, sp.End); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSpans returns a fragment's spans ordered by position.
func (s *sqliteStore) ListSpans(ctx context.Context, fragmentID int64) ([]idmap.PersistedSpan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sp.atom_id, sp.span_start, sp.span_end
FROM atom_spans sp
JOIN atoms a ON a.id = sp.atom_id
WHERE a.fragment_id = ?
ORDER BY sp.span_start, sp.span_end, sp.atom_id`, fragmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []idmap.PersistedSpan
	for rows.Next() {
		var sp idmap.PersistedSpan
		if err := rows.Scan(&sp.AtomID, &sp.Start, &sp.End); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// CreateRule inserts a rule or goal for an existing fragment.
func (s *sqliteStore) CreateRule(ctx context.Context, r store.Rule) (store.Rule, error) {
	if _, err := s.GetFragment(ctx, r.FragmentID); err != nil {
		return store.Rule{}, err
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO rules (fragment_id, definition, description, is_goal) VALUES (?, ?, ?, ?) RETURNING id`,
		r.FragmentID, r.Definition, r.Description, r.IsGoal,
	).Scan(&r.ID)
	if err != nil {
		return store.Rule{}, err
	}
	return r, nil
}

// ListRules returns a fragment's rules and goals ordered by id.
func (s *sqliteStore) ListRules(ctx context.Context, fragmentID int64) ([]store.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fragment_id, definition, description, is_goal FROM rules WHERE fragment_id = ? ORDER BY id`,
		fragmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Rule
	for rows.Next() {
		var r store.Rule
		if err := rows.Scan(&r.ID, &r.FragmentID, &r.Definition, &r.Description, &r.IsGoal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRules removes a fragment's rules and goals.
func (s *sqliteStore) DeleteRules(ctx context.Context, fragmentID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE fragment_id = ?`, fragmentID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReplaceRules deletes a fragment's rules and goals and inserts rules in a
// single transaction.
func (s *sqliteStore) ReplaceRules(ctx context.Context, fragmentID int64, rules []store.Rule) ([]store.Rule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := fragmentExists(ctx, tx, fragmentID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE fragment_id = ?`, fragmentID); err != nil {
		return nil, err
	}
	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO rules (fragment_id, definition, description, is_goal) VALUES (?, ?, ?, ?) RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer insert.Close()

	saved := make([]store.Rule, len(rules))
	for i, r := range rules {
		r.FragmentID = fragmentID
		if err := insert.QueryRowContext(ctx, r.FragmentID, r.Definition, r.Description, r.IsGoal).Scan(&r.ID); err != nil {
			return nil, err
		}
		saved[i] = r
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

// AppendAttempt records a validation attempt.
func (s *sqliteStore) AppendAttempt(ctx context.Context, a store.AttemptRecord) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO validation_attempts (id, fragment_id, number, knowledge_base, goal, status, feedback, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FragmentID, a.Number, a.KnowledgeBase, a.Goal, a.Status, a.Feedback,
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListAttempts returns a fragment's attempts in id order. Ids are ULIDs, so
// this is also insertion order.
func (s *sqliteStore) ListAttempts(ctx context.Context, fragmentID int64) ([]store.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, fragment_id, number, knowledge_base, goal, status, feedback, created_at
FROM validation_attempts WHERE fragment_id = ? ORDER BY id`, fragmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AttemptRecord
	for rows.Next() {
		var (
			a       store.AttemptRecord
			created string
		)
		if err := rows.Scan(&a.ID, &a.FragmentID, &a.Number, &a.KnowledgeBase, &a.Goal, &a.Status, &a.Feedback, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

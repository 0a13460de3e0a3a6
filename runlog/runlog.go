// Package runlog persists augmentation sessions in SQLite: activities, diary versions and
// the responses returned to the user.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrStorage  = errors.New("runlog storage error")
	ErrNotFound = errors.New("session not found")
)

// VersionKind classifies a stored diary version.
type VersionKind string

const (
	VersionInitial VersionKind = "initial"
	VersionWorking VersionKind = "working"
	VersionSaved   VersionKind = "saved"
)

func ParseVersionKind(s string) (VersionKind, error) {
	switch k := VersionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case VersionInitial, VersionWorking, VersionSaved:
		return k, nil
	default:
		return "", fmt.Errorf("unknown version kind %q", s)
	}
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

type Activity struct {
	SessionID string    `json:"session_id"`
	Activity  string    `json:"activity"`
	At        time.Time `json:"timestamp"`
}

// Version is one stored copy of the diary. Seq counts per session and kind, from 1.
type Version struct {
	SessionID string      `json:"session_id"`
	Kind      VersionKind `json:"kind"`
	Seq       int         `json:"seq"`
	Entry     string      `json:"entry"`
	At        time.Time   `json:"timestamp"`
}

// ResponseRecord is one augmentation request and its outcome. Err is empty on success.
type ResponseRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Orientation string    `json:"life_orientation"`
	Tone        string    `json:"tone"`
	Method      string    `json:"method"`
	Input       string    `json:"input_entry"`
	Result      string    `json:"result,omitempty"`
	Err         string    `json:"error,omitempty"`
	At          time.Time `json:"timestamp"`
}

// Store is a SQLite-backed run log. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %v", ErrStorage, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStorage, err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: enabling WAL mode: %v", ErrStorage, err)
		}
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			started_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS activities (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			activity   TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS versions (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			kind       TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			entry      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (session_id, kind, seq)
		);
		CREATE TABLE IF NOT EXISTS responses (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL REFERENCES sessions(id),
			orientation TEXT NOT NULL,
			tone        TEXT NOT NULL,
			method      TEXT NOT NULL,
			input_entry TEXT NOT NULL,
			result      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activities_session ON activities(session_id, id);
		CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(session_id, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("%w: creating schema: %v", ErrStorage, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() (time.Time, string) {
	t := s.now().UTC().Truncate(time.Second)
	return t, t.Format(time.RFC3339)
}

// StartSession creates a session and records a "Logged in" activity.
func (s *Store) StartSession(ctx context.Context, userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, errors.New("user id is required")
	}
	at, ts := s.timestamp()
	sess := Session{ID: uuid.NewString(), UserID: userID, StartedAt: at}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, started_at) VALUES (?, ?, ?)",
		sess.ID, sess.UserID, ts,
	); err != nil {
		return Session{}, fmt.Errorf("%w: inserting session: %v", ErrStorage, err)
	}
	if err := s.LogActivity(ctx, sess.ID, "Logged in"); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Session looks up a session by id.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	var sess Session
	var startedStr string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, started_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.UserID, &startedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: querying session: %v", ErrStorage, err)
	}
	if sess.StartedAt, err = time.Parse(time.RFC3339, startedStr); err != nil {
		return Session{}, fmt.Errorf("%w: parsing started_at: %v", ErrStorage, err)
	}
	return sess, nil
}

func (s *Store) LogActivity(ctx context.Context, sessionID, activity string) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}
	_, ts := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO activities (session_id, activity, created_at) VALUES (?, ?, ?)",
		sessionID, activity, ts,
	); err != nil {
		return fmt.Errorf("%w: inserting activity: %v", ErrStorage, err)
	}
	return nil
}

// SaveVersion stores entry under the next sequence number for its session and kind.
func (s *Store) SaveVersion(ctx context.Context, sessionID string, kind VersionKind, entry string) (Version, error) {
	if _, err := ParseVersionKind(string(kind)); err != nil {
		return Version{}, err
	}
	if strings.TrimSpace(entry) == "" {
		return Version{}, errors.New("diary entry is empty")
	}
	if err := s.requireSession(ctx, sessionID); err != nil {
		return Version{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Version{}, fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM versions WHERE session_id = ? AND kind = ?",
		sessionID, string(kind),
	).Scan(&seq); err != nil {
		return Version{}, fmt.Errorf("%w: next version: %v", ErrStorage, err)
	}
	at, ts := s.timestamp()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO versions (session_id, kind, seq, entry, created_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, string(kind), seq, entry, ts,
	); err != nil {
		return Version{}, fmt.Errorf("%w: inserting version: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return Version{SessionID: sessionID, Kind: kind, Seq: seq, Entry: entry, At: at}, nil
}

func (s *Store) RecordResponse(ctx context.Context, rec ResponseRecord) (ResponseRecord, error) {
	if err := s.requireSession(ctx, rec.SessionID); err != nil {
		return ResponseRecord{}, err
	}
	var ts string
	rec.ID = uuid.NewString()
	rec.At, ts = s.timestamp()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO responses
		(id, session_id, orientation, tone, method, input_entry, result, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Orientation, rec.Tone, rec.Method, rec.Input, rec.Result, rec.Err, ts,
	); err != nil {
		return ResponseRecord{}, fmt.Errorf("%w: inserting response: %v", ErrStorage, err)
	}
	return rec, nil
}

// Responses lists a session's recorded responses, oldest first.
func (s *Store) Responses(ctx context.Context, sessionID string) ([]ResponseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, orientation, tone, method, input_entry, result, error, created_at
		FROM responses WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing responses: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []ResponseRecord
	for rows.Next() {
		var r ResponseRecord
		var at string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Orientation, &r.Tone, &r.Method, &r.Input, &r.Result, &r.Err, &at); err != nil {
			return nil, fmt.Errorf("%w: scanning response: %v", ErrStorage, err)
		}
		if r.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("%w: parsing created_at: %v", ErrStorage, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating responses: %v", ErrStorage, err)
	}
	return out, nil
}

// Activities lists a session's activities in the order they were logged.
func (s *Store) Activities(ctx context.Context, sessionID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, activity, created_at FROM activities WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing activities: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var at string
		if err := rows.Scan(&a.SessionID, &a.Activity, &at); err != nil {
			return nil, fmt.Errorf("%w: scanning activity: %v", ErrStorage, err)
		}
		if a.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("%w: parsing created_at: %v", ErrStorage, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating activities: %v", ErrStorage, err)
	}
	return out, nil
}

// Versions lists a session's versions of one kind by sequence number.
func (s *Store) Versions(ctx context.Context, sessionID string, kind VersionKind) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, kind, seq, entry, created_at FROM versions WHERE session_id = ? AND kind = ? ORDER BY seq",
		sessionID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: listing versions: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var k, at string
		if err := rows.Scan(&v.SessionID, &k, &v.Seq, &v.Entry, &at); err != nil {
			return nil, fmt.Errorf("%w: scanning version: %v", ErrStorage, err)
		}
		v.Kind = VersionKind(k)
		if v.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("%w: parsing created_at: %v", ErrStorage, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating versions: %v", ErrStorage, err)
	}
	return out, nil
}

func (s *Store) requireSession(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: querying session: %v", ErrStorage, err)
	}
	return nil
}

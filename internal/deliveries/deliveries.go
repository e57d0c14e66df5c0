package deliveries

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Status is the lifecycle state of a webhook delivery
type Status string

const (
	StatusReceived Status = "received"
	StatusNoOp     Status = "noop"
	StatusApplied  Status = "applied"
	StatusFailed   Status = "failed"
)

// Done reports whether a delivery in this state must not be run again
func (s Status) Done() bool {
	return s == StatusNoOp || s == StatusApplied
}

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("delivery not found")

// Delivery is one recorded push delivery
type Delivery struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Repository string    `json:"repository"`
	Ref        string    `json:"ref"`
	After      string    `json:"after"`
	Status     Status    `json:"status"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
	Modified   int       `json:"modified"`
	CommitSHA  string    `json:"commit_sha,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	ReceivedAt time.Time `json:"received_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Outcome is what a finished delivery produced
type Outcome struct {
	Added     int
	Removed   int
	Modified  int
	CommitSHA string
	Err       error
}

// DefaultInFlightWindow is how long a received delivery is assumed to still
// be running before a redelivery may take it over
const DefaultInFlightWindow = 10 * time.Minute

// Store is the SQLite backed delivery log
type Store struct {
	db       *sql.DB
	now      func() time.Time
	inFlight time.Duration
}

// Open creates or opens the delivery log at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now, inFlight: DefaultInFlightWindow}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetInFlightWindow sets how long a delivery may stay received before a
// redelivery is allowed to run it again
func (s *Store) SetInFlightWindow(d time.Duration) {
	if d > 0 {
		s.inFlight = d
	}
}

// InFlight reports whether d is still being processed by an earlier attempt
func (s *Store) InFlight(d *Delivery) bool {
	return d.Status == StatusReceived && s.now().UTC().Sub(d.UpdatedAt) < s.inFlight
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Begin records a delivery as received. When the id was already seen and
// finished as noop or applied, or an earlier attempt is still in flight, the
// stored delivery is returned with proceed=false. A failed delivery, or one
// left received past the in-flight window, is reset and retried.
// An empty id gets a random one.
func (s *Store) Begin(ctx context.Context, d Delivery) (*Delivery, bool, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	existing, err := get(ctx, tx, d.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deliveries (id, event, repository, ref, after_sha, status, received_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Event, d.Repository, d.Ref, d.After, StatusReceived, now.UnixNano(), now.UnixNano())
		if err != nil {
			return nil, false, fmt.Errorf("insert delivery %s: %w", d.ID, err)
		}
	case err != nil:
		return nil, false, err
	case existing.Status.Done(), s.InFlight(existing):
		return existing, false, tx.Commit()
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE deliveries
			SET status = ?, error = '', attempts = attempts + 1, updated_at = ?
			WHERE id = ?`,
			StatusReceived, now.UnixNano(), d.ID)
		if err != nil {
			return nil, false, fmt.Errorf("reset delivery %s: %w", d.ID, err)
		}
	}

	stored, err := get(ctx, tx, d.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, tx.Commit()
}

// Finish stores the final status of a delivery
func (s *Store) Finish(ctx context.Context, id string, status Status, out Outcome) error {
	var msg string
	if out.Err != nil {
		msg = out.Err.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = ?, added = ?, removed = ?, modified = ?, commit_sha = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		status, out.Added, out.Removed, out.Modified, out.CommitSHA, msg, s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish delivery %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish delivery %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns one delivery
func (s *Store) Get(ctx context.Context, id string) (*Delivery, error) {
	return get(ctx, s.db, id)
}

// List returns the most recent deliveries, newest first
func (s *Store) List(ctx context.Context, limit, offset int) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM deliveries
		ORDER BY received_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	out := []Delivery{}
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

const columns = `id, event, repository, ref, after_sha, status, added, removed, modified,
	commit_sha, error, attempts, received_at, updated_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func get(ctx context.Context, q queryer, id string) (*Delivery, error) {
	row := q.QueryRowContext(ctx, `SELECT `+columns+` FROM deliveries WHERE id = ?`, id)
	d, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func scan(s scanner) (*Delivery, error) {
	var (
		d                 Delivery
		received, updated int64
	)
	err := s.Scan(&d.ID, &d.Event, &d.Repository, &d.Ref, &d.After, &d.Status,
		&d.Added, &d.Removed, &d.Modified, &d.CommitSHA, &d.Error, &d.Attempts, &received, &updated)
	if err != nil {
		return nil, err
	}
	d.ReceivedAt = time.Unix(0, received).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	// Pure Go SQLite driver, registered as "sqlite". The gorm ledger
	// dialector uses the same driver, so both can live in one binary.
	_ "github.com/glebarez/go-sqlite"
)

// resultColumns are added to an emails table imported without them.
var resultColumns = []struct{ name, decl string }{
	{"successful_requests", "INTEGER NOT NULL DEFAULT 0"},
	{"total_tokens", "INTEGER NOT NULL DEFAULT 0"},
	{"prompt_tokens", "INTEGER NOT NULL DEFAULT 0"},
	{"completion_tokens", "INTEGER NOT NULL DEFAULT 0"},
	{"total_cost", "REAL NOT NULL DEFAULT 0"},
	{"start_time", "TEXT NOT NULL DEFAULT ''"},
	{"end_time", "TEXT NOT NULL DEFAULT ''"},
	{"total_time", "TEXT NOT NULL DEFAULT ''"},
	{"full_logs", "TEXT NOT NULL DEFAULT ''"},
	{"response", "TEXT NOT NULL DEFAULT ''"},
}

// SQLiteStore keeps documents in a SQLite emails table.
// Cursors stream rows while results are written, so the database must be
// a file; WAL mode lets the two proceed side by side.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the emails database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withBusyTimeout(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS emails (
			email_id TEXT PRIMARY KEY,
			sender TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			attachment TEXT,
			process_status TEXT NOT NULL DEFAULT 'NOT_STARTED'
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if err := addResultColumns(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func withBusyTimeout(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

func addResultColumns(db *sql.DB) error {
	rows, err := db.Query("PRAGMA table_info(emails)")
	if err != nil {
		return fmt.Errorf("inspect emails table: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan column info: %w", err)
		}
		existing[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate column info: %w", err)
	}
	rows.Close()

	for _, col := range resultColumns {
		if existing[col.name] {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE emails ADD COLUMN %s %s", col.name, col.decl)); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

// Open implements Source. The query is wrapped so the cursor always sees
// the seven document columns in table order.
func (s *SQLiteStore) Open(ctx context.Context, query string, limit int) (Cursor, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	inner := strings.TrimRight(strings.TrimSpace(query), "; \t\n")
	stmt := `SELECT email_id, sender, recipient, subject, body, attachment, process_status FROM (` + inner + `)`
	args := []any{}
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("open cursor: %w", err)
	}
	return &sqliteCursor{rows: rows}, nil
}

type sqliteCursor struct {
	mu   sync.Mutex
	rows *sql.Rows
	done bool
}

func (c *sqliteCursor) Next(ctx context.Context, n int) ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done || n <= 0 {
		return nil, nil
	}

	var batch []Document
	for len(batch) < n {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if !c.rows.Next() {
			c.done = true
			if err := c.rows.Err(); err != nil {
				return batch, fmt.Errorf("iterate documents: %w", err)
			}
			break
		}
		var id, sender, recipient, subject, body, attachment, status sql.NullString
		if err := c.rows.Scan(&id, &sender, &recipient, &subject, &body, &attachment, &status); err != nil {
			return batch, fmt.Errorf("scan document: %w", err)
		}
		batch = append(batch, Document{
			EmailID:       id.String,
			Sender:        sender.String,
			Recipient:     recipient.String,
			Subject:       subject.String,
			Body:          body.String,
			Attachment:    attachment.String,
			ProcessStatus: normalizeStatus(status.String),
		})
	}
	return batch, nil
}

func (c *sqliteCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	return c.rows.Close()
}

// SaveResult implements ResultSink.
func (s *SQLiteStore) SaveResult(ctx context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE emails SET
			successful_requests = ?,
			total_tokens = ?,
			prompt_tokens = ?,
			completion_tokens = ?,
			total_cost = ?,
			start_time = ?,
			end_time = ?,
			total_time = ?,
			full_logs = ?,
			response = ?,
			process_status = ?
		WHERE email_id = ?
	`,
		r.Usage.SuccessfulRequests,
		r.Usage.TotalTokens,
		r.Usage.PromptTokens,
		r.Usage.CompletionTokens,
		r.Usage.TotalCost,
		formatTime(r.StartTime),
		formatTime(r.EndTime),
		strconv.FormatFloat(r.TotalTime().Seconds(), 'f', 4, 64),
		r.Transcript,
		r.Response,
		r.Status,
		r.EmailID,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.EmailID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.EmailID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.EmailID)
	}
	return nil
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, docs ...Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, d := range docs {
		var attachment any
		if d.HasAttachment() {
			attachment = d.Attachment
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO emails (email_id, sender, recipient, subject, body, attachment, process_status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, d.EmailID, d.Sender, d.Recipient, d.Subject, d.Body, attachment, normalizeStatus(d.ProcessStatus)); err != nil {
			return fmt.Errorf("insert document %s: %w", d.EmailID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE emails SET
			successful_requests = 0,
			total_tokens = 0,
			prompt_tokens = 0,
			completion_tokens = 0,
			total_cost = 0,
			start_time = '',
			end_time = '',
			total_time = '',
			full_logs = '',
			response = '',
			process_status = ?
	`, StatusNotStarted)
	if err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	return nil
}

// CountByStatus implements Stats.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT process_status, COUNT(*) FROM emails GROUP BY process_status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status sql.NullString
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[normalizeStatus(status.String)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// CountUnprocessed implements Stats.
func (s *SQLiteStore) CountUnprocessed(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM emails WHERE process_status = ?
	`, StatusNotStarted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed: %w", err)
	}
	return n, nil
}

// Outcomes implements Stats.
func (s *SQLiteStore) Outcomes(ctx context.Context) ([]Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT email_id, process_status, total_time FROM emails ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var id, status, total sql.NullString
		if err := rows.Scan(&id, &status, &total); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o := Outcome{EmailID: id.String, Status: normalizeStatus(status.String)}
		if secs, err := strconv.ParseFloat(strings.TrimSpace(total.String), 64); err == nil {
			o.TotalTime = time.Duration(secs * float64(time.Second))
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// LatestTranscript implements Stats.
func (s *SQLiteStore) LatestTranscript(ctx context.Context) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", "", ErrStoreClosed
	}

	var id, logs string
	err := s.db.QueryRowContext(ctx, `
		SELECT email_id, full_logs FROM emails
		WHERE full_logs != ''
		ORDER BY end_time DESC, rowid DESC
		LIMIT 1
	`).Scan(&id, &logs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("load latest transcript: %w", err)
	}
	return id, logs, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// Package store reads inbound documents and records their processing
// outcome.
//
// Documents live in an "emails" table. The batch controller pulls them
// through a Cursor and writes one Result per document back to the same row.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// Processing status codes stored in emails.process_status.
const (
	StatusNotStarted     = "NOT_STARTED"
	StatusSuccess        = "SUCCESS"
	StatusError          = "ERROR"
	StatusNotInvoice     = "NOT_INVOICE"
	StatusRecursionLimit = "RECURSION_LIMIT_REACHED"
	StatusAPIError       = "API_ERROR"
)

// DefaultQuery selects every document.
const DefaultQuery = "SELECT * FROM emails"

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")

	// ErrInvalidQuery indicates a document query that is not a single SELECT.
	ErrInvalidQuery = errors.New("query must be a single SELECT statement")
)

// Document is one inbound email. Field order matches the emails table.
type Document struct {
	EmailID       string `json:"email_id"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	Attachment    string `json:"attachment,omitempty"`
	ProcessStatus string `json:"process_status"`
}

// HasAttachment reports whether the document references an attachment.
func (d Document) HasAttachment() bool {
	return strings.TrimSpace(d.Attachment) != ""
}

// Result is the terminal record for one document.
type Result struct {
	EmailID    string
	Status     string
	Response   string
	Transcript string // JSON export of the full conversation
	Usage      usage.Totals
	StartTime  time.Time
	EndTime    time.Time
}

// TotalTime is the wall time spent on the document.
func (r Result) TotalTime() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Outcome is the per-document view used by run reports.
type Outcome struct {
	EmailID   string
	Status    string
	TotalTime time.Duration
}

// Cursor yields documents in batches.
type Cursor interface {
	// Next returns up to n documents. An empty slice means the cursor is
	// exhausted.
	Next(ctx context.Context, n int) ([]Document, error)

	// Close releases the cursor.
	Close() error
}

// Source opens document cursors.
type Source interface {
	// Open runs query and returns a cursor over its rows. A positive limit
	// caps the number of documents returned.
	Open(ctx context.Context, query string, limit int) (Cursor, error)
}

// ResultSink persists document outcomes.
type ResultSink interface {
	// SaveResult records r against its document. It returns ErrNotFound
	// when the document does not exist.
	SaveResult(ctx context.Context, r Result) error
}

// Stats summarizes processing progress.
type Stats interface {
	// CountByStatus counts documents per process_status.
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// CountUnprocessed counts documents still NOT_STARTED.
	CountUnprocessed(ctx context.Context) (int64, error)

	// Outcomes lists every document's status and processing time.
	Outcomes(ctx context.Context) ([]Outcome, error)

	// LatestTranscript returns the transcript of the most recently stored
	// document that has one.
	LatestTranscript(ctx context.Context) (emailID, transcript string, err error)
}

// Store is a complete document store.
type Store interface {
	Source
	ResultSink
	Stats

	// Insert adds documents. Documents without a status start NOT_STARTED.
	Insert(ctx context.Context, docs ...Document) error

	// Reset returns every document to NOT_STARTED and clears its result.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ValidateQuery checks that query is a single SELECT statement.
func ValidateQuery(query string) error {
	q := strings.TrimSpace(query)
	if len(q) < len("SELECT ") || !strings.EqualFold(q[:len("SELECT ")], "SELECT ") {
		return fmt.Errorf("%w: %q", ErrInvalidQuery, query)
	}
	if strings.Contains(strings.TrimRight(q, "; \t\n"), ";") {
		return fmt.Errorf("%w: %q", ErrInvalidQuery, query)
	}
	return nil
}

func normalizeStatus(status string) string {
	if strings.TrimSpace(status) == "" {
		return StatusNotStarted
	}
	return status
}

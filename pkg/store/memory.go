package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in memory. It is meant for tests.
//
// Queries are validated but not interpreted: cursors walk every document
// in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	docs    map[string]Document
	results map[string]Result
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding docs.
func NewMemoryStore(docs ...Document) *MemoryStore {
	s := &MemoryStore{
		docs:    make(map[string]Document),
		results: make(map[string]Result),
	}
	_ = s.Insert(context.Background(), docs...)
	return s
}

// Open implements Source. The cursor snapshots the document list.
func (s *MemoryStore) Open(_ context.Context, query string, limit int) (Cursor, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	snapshot := make([]Document, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.docs[id])
	}
	if limit > 0 && len(snapshot) > limit {
		snapshot = snapshot[:limit]
	}
	return &memoryCursor{docs: snapshot}, nil
}

type memoryCursor struct {
	mu   sync.Mutex
	docs []Document
	pos  int
}

func (c *memoryCursor) Next(ctx context.Context, n int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || c.pos >= len(c.docs) {
		return nil, nil
	}
	end := min(c.pos+n, len(c.docs))
	batch := append([]Document(nil), c.docs[c.pos:end]...)
	c.pos = end
	return batch, nil
}

func (c *memoryCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = len(c.docs)
	return nil
}

// SaveResult implements ResultSink.
func (s *MemoryStore) SaveResult(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	doc, ok := s.docs[r.EmailID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, r.EmailID)
	}
	doc.ProcessStatus = r.Status
	s.docs[r.EmailID] = doc
	s.results[r.EmailID] = r
	return nil
}

// Result returns the stored result for a document.
func (s *MemoryStore) Result(emailID string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[emailID]
	return r, ok
}

// Results returns the number of stored results.
func (s *MemoryStore) Results() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, docs ...Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, d := range docs {
		if _, ok := s.docs[d.EmailID]; ok {
			return fmt.Errorf("insert document %s: duplicate email_id", d.EmailID)
		}
		d.ProcessStatus = normalizeStatus(d.ProcessStatus)
		s.docs[d.EmailID] = d
		s.order = append(s.order, d.EmailID)
	}
	return nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for id, d := range s.docs {
		d.ProcessStatus = StatusNotStarted
		s.docs[id] = d
	}
	s.results = make(map[string]Result)
	return nil
}

// CountByStatus implements Stats.
func (s *MemoryStore) CountByStatus(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	counts := make(map[string]int64)
	for _, d := range s.docs {
		counts[d.ProcessStatus]++
	}
	return counts, nil
}

// CountUnprocessed implements Stats.
func (s *MemoryStore) CountUnprocessed(ctx context.Context) (int64, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	return counts[StatusNotStarted], nil
}

// Outcomes implements Stats.
func (s *MemoryStore) Outcomes(_ context.Context) ([]Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	outcomes := make([]Outcome, 0, len(s.order))
	for _, id := range s.order {
		o := Outcome{EmailID: id, Status: s.docs[id].ProcessStatus}
		if r, ok := s.results[id]; ok {
			o.TotalTime = r.TotalTime()
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// LatestTranscript implements Stats.
func (s *MemoryStore) LatestTranscript(_ context.Context) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", "", ErrStoreClosed
	}
	var latest Result
	found := false
	for _, r := range s.results {
		if r.Transcript == "" {
			continue
		}
		if !found || r.EndTime.After(latest.EndTime) {
			latest, found = r, true
		}
	}
	if !found {
		return "", "", ErrNotFound
	}
	return latest.EmailID, latest.Transcript, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Package recontest provides scripted models and an in-memory ledger for
// testing reconciliation workflows.
package recontest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/randalmurphal/invoicegraph/pkg/ledger"
	"github.com/randalmurphal/invoicegraph/pkg/llm"
)

// Role identifies which workflow role a request comes from.
type Role string

// Roles, identified by the tools offered in the request.
const (
	Clerk      Role = "finance_clerk"
	Supervisor Role = "senior_reconciliation_agent"
	Query      Role = "invoice_data_engineer"
	Update     Role = "invoice_update_data_engineer"
	Vision     Role = "vision"
)

// DefaultUsage is reported by every scripted reply.
var DefaultUsage = llm.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}

// RoleOf classifies a request.
func RoleOf(req llm.CompletionRequest) Role {
	for _, m := range req.Messages {
		if len(m.Images) > 0 {
			return Vision
		}
	}
	for _, t := range req.Tools {
		switch t.Name {
		case "ocr_tool":
			return Clerk
		case "invoice_db_query_tool":
			return Query
		case "invoice_db_update_tool":
			return Update
		}
	}
	return Supervisor
}

// Reply is one scripted model answer.
type Reply struct {
	Response llm.CompletionResponse
	Err      error
}

// Text is a plain text reply.
func Text(content string) Reply {
	return Reply{Response: llm.CompletionResponse{Content: content}}
}

// ToolCall is a reply requesting one tool call with JSON arguments.
func ToolCall(name, args string) Reply {
	return Reply{Response: llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{Name: name, Arguments: json.RawMessage(args)}},
	}}
}

// Fail is a reply that fails the model call.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Script is an llm.Client answering each role from its own queue. Once a
// queue is exhausted its last reply repeats.
type Script struct {
	mu       sync.Mutex
	replies  map[Role][]Reply
	pos      map[Role]int
	requests map[Role][]llm.CompletionRequest
}

var _ llm.Client = (*Script)(nil)

// NewScript creates an empty script.
func NewScript() *Script {
	return &Script{
		replies:  make(map[Role][]Reply),
		pos:      make(map[Role]int),
		requests: make(map[Role][]llm.CompletionRequest),
	}
}

// On appends replies to role's queue.
func (s *Script) On(role Role, replies ...Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[role] = append(s.replies[role], replies...)
	return s
}

// Complete implements llm.Client.
func (s *Script) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	role := RoleOf(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[role] = append(s.requests[role], req)

	queue := s.replies[role]
	if len(queue) == 0 {
		return nil, fmt.Errorf("recontest: no reply scripted for %s", role)
	}
	i := min(s.pos[role], len(queue)-1)
	s.pos[role]++

	reply := queue[i]
	if reply.Err != nil {
		return nil, reply.Err
	}
	resp := reply.Response
	resp.ToolCalls = append([]llm.ToolCall(nil), resp.ToolCalls...)
	if resp.Usage == (llm.TokenUsage{}) {
		resp.Usage = DefaultUsage
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// Calls returns how many requests role made.
func (s *Script) Calls(role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests[role])
}

// Requests returns the requests role made.
func (s *Script) Requests(role Role) []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.CompletionRequest(nil), s.requests[role]...)
}

// Ledger is an in-memory ledger.Store.
type Ledger struct {
	mu  sync.Mutex
	txs map[string]ledger.Transaction

	// Err, when set, fails every operation.
	Err error
}

var _ ledger.Store = (*Ledger)(nil)

// NewLedger creates a ledger holding txs.
func NewLedger(txs ...ledger.Transaction) *Ledger {
	l := &Ledger{txs: make(map[string]ledger.Transaction)}
	for _, tx := range txs {
		if tx.ReconciliationState == "" {
			tx.ReconciliationState = ledger.StateUnpaid
		}
		l.txs[tx.InvoiceID] = tx
	}
	return l
}

// Lookup implements ledger.Store.
func (l *Ledger) Lookup(_ context.Context, invoiceID string) (ledger.Transaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return ledger.Transaction{}, false, l.Err
	}
	tx, ok := l.txs[strings.TrimSpace(invoiceID)]
	return tx, ok, nil
}

// MarkReconciled implements ledger.Store.
func (l *Ledger) MarkReconciled(_ context.Context, invoiceID, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	id := strings.TrimSpace(invoiceID)
	tx, ok := l.txs[id]
	if !ok {
		return fmt.Errorf("%w: invoice %s", ledger.ErrNotFound, id)
	}
	tx.ReconciliationState = ledger.StatePaid
	tx.EmailDetails = details
	l.txs[id] = tx
	return nil
}

// CountUnreconciled implements ledger.Store.
func (l *Ledger) CountUnreconciled(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return 0, l.Err
	}
	var n int64
	for _, tx := range l.txs {
		if tx.ReconciliationState == ledger.StateUnpaid {
			n++
		}
	}
	return n, nil
}

// Get returns the transaction for invoiceID.
func (l *Ledger) Get(invoiceID string) (ledger.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[invoiceID]
	return tx, ok
}

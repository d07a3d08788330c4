// Package batch drives documents through the reconciliation workflow one
// at a time, retries failed runs, classifies each outcome and persists it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/invoicegraph/pkg/agent"
	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
	"github.com/randalmurphal/invoicegraph/pkg/ledger"
	"github.com/randalmurphal/invoicegraph/pkg/recon"
	"github.com/randalmurphal/invoicegraph/pkg/store"
	"github.com/randalmurphal/invoicegraph/pkg/usage"
)

// Defaults.
const (
	DefaultBatchSize  = 10
	DefaultMaxRetries = 3
)

// Attempt statuses. RunDone means the workflow reached its end; the
// business outcome is decided afterwards from the response.
const (
	RunDone           = "DONE"
	RunRecursionLimit = store.StatusRecursionLimit
	RunAPIError       = store.StatusAPIError
)

// Response prefixes for failed attempts.
const (
	recursionPrefix = "RECURSION ERROR: "
	exceptionPrefix = "EXCEPTION: "
)

// Runner runs one reconciliation conversation.
type Runner interface {
	Run(ctx context.Context, logger *slog.Logger, request string) (recon.Outcome, error)
}

// Factory builds a fresh Runner for every attempt.
type Factory func() (Runner, error)

// RunResult is the outcome of one attempt.
type RunResult struct {
	Status     string
	Response   string
	Usage      usage.Totals
	Transcript []conversation.Message
	Err        error
}

// Summary reports a batch run.
type Summary struct {
	Processed    int
	ByStatus     map[string]int
	SaveFailures int
	Usage        usage.Totals
	Duration     time.Duration
}

// Controller processes documents sequentially.
type Controller struct {
	docs       store.Store
	factory    Factory
	ledger     ledger.Store
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	batchSize  int
	maxRetries int
	sessions   *conversation.Store
	now        func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLedger enables reporting unreconciled ledger rows before and after
// a run.
func WithLedger(l ledger.Store) Option {
	return func(c *Controller) { c.ledger = l }
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records document outcomes through recorder.
func WithMetrics(recorder observability.MetricsRecorder) Option {
	return func(c *Controller) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithBatchSize sets how many documents are fetched at a time.
func WithBatchSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxRetries sets how many extra attempts a document gets after its
// first run fails. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// NewController creates a controller reading from and writing to docs.
func NewController(docs store.Store, factory Factory, opts ...Option) *Controller {
	c := &Controller{
		docs:       docs,
		factory:    factory,
		logger:     slog.New(slog.DiscardHandler),
		metrics:    observability.NoopMetrics{},
		batchSize:  DefaultBatchSize,
		maxRetries: DefaultMaxRetries,
		sessions:   conversation.NewStore(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every document selected by query, at most limit of them
// when limit is positive. A document's failure never stops the run; only
// cursor errors and cancellation do.
func (c *Controller) Run(ctx context.Context, query string, limit int) (Summary, error) {
	start := c.now()
	summary := Summary{ByStatus: make(map[string]int)}

	c.logProgress(ctx, "before run")

	cur, err := c.docs.Open(ctx, query, limit)
	if err != nil {
		return summary, fmt.Errorf("open documents: %w", err)
	}
	defer cur.Close()

	var runErr error
loop:
	for {
		docs, err := cur.Next(ctx, c.batchSize)
		if err != nil {
			runErr = fmt.Errorf("fetch documents: %w", err)
			break
		}
		if len(docs) == 0 {
			break
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				runErr = err
				break loop
			}
			result, attempts := c.Process(ctx, doc)
			summary.Processed++
			summary.ByStatus[result.Status]++
			summary.Usage = summary.Usage.Add(result.Usage)

			if err := c.docs.SaveResult(context.WithoutCancel(ctx), result); err != nil {
				summary.SaveFailures++
				c.logger.Error("failed to save result", "email_id", doc.EmailID, "error", err)
			}
			c.metrics.RecordDocument(ctx, result.Status, attempts, result.TotalTime())
			observability.LogDocumentProcessed(c.logger, doc.EmailID, result.Status, attempts, result.TotalTime())
			c.logger.Info("progress", "processed", summary.Processed, "by_status", summary.ByStatus)
		}
	}

	summary.Duration = c.now().Sub(start)
	c.logProgress(context.WithoutCancel(ctx), "after run")
	return summary, runErr
}

// Process runs one document to a terminal result, retrying attempts that
// did not finish. It returns the result and the number of attempts made.
func (c *Controller) Process(ctx context.Context, doc store.Document) (store.Result, int) {
	start := c.now()
	logger := c.logger.With("email_id", doc.EmailID)
	request := FormatRequest(doc)
	defer c.sessions.Clear(doc.EmailID)

	var (
		total    usage.Totals
		last     RunResult
		attempts int
	)
	for {
		attempts++
		last = c.attempt(ctx, logger, request)
		total = total.Add(last.Usage)
		c.sessions.Append(doc.EmailID, last.Transcript...)
		logger.Debug("attempt finished",
			"attempt", attempts,
			"status", last.Status,
			"transcript_messages", c.sessions.Len(doc.EmailID))

		if last.Status == RunDone || attempts > c.maxRetries || ctx.Err() != nil {
			break
		}
		logger.Warn("retrying document", "attempt", attempts, "status", last.Status, "error", last.Err)
	}

	result := store.Result{
		EmailID:   doc.EmailID,
		Status:    Classify(last),
		Response:  last.Response,
		Usage:     total,
		StartTime: start,
	}
	transcript, err := conversation.ExportJSON(c.sessions.Get(doc.EmailID))
	if err != nil {
		logger.Error("failed to export transcript", "error", err)
	} else {
		result.Transcript = string(transcript)
	}
	result.EndTime = c.now()
	return result, attempts
}

func (c *Controller) attempt(ctx context.Context, logger *slog.Logger, request string) RunResult {
	runner, err := c.factory()
	if err != nil {
		return RunResult{
			Status:     RunAPIError,
			Response:   exceptionPrefix + err.Error(),
			Transcript: []conversation.Message{conversation.NewHumanMessage(request)},
			Err:        err,
		}
	}

	out, err := runner.Run(ctx, logger, request)
	res := RunResult{
		Status:     RunDone,
		Response:   out.Response(),
		Usage:      out.Usage,
		Transcript: out.State.Messages,
		Err:        err,
	}
	switch {
	case err == nil:
	case errors.Is(err, flowgraph.ErrStepLimit):
		res.Status = RunRecursionLimit
		res.Response = recursionPrefix + err.Error()
	default:
		res.Status = RunAPIError
		res.Response = exceptionPrefix + err.Error()
	}
	return res
}

// Classify maps an attempt to a final document status. Failed runs keep
// their failure status; finished runs are judged by the response tokens.
// NA must stand alone as a word; ERROR counts anywhere in the response.
func Classify(r RunResult) string {
	switch {
	case r.Status == RunRecursionLimit:
		return store.StatusRecursionLimit
	case r.Status == RunAPIError:
		return store.StatusAPIError
	case agent.HasWord(r.Response, recon.TokenNA):
		return store.StatusNotInvoice
	case agent.HasToken(r.Response, recon.TokenError):
		return store.StatusError
	default:
		return store.StatusSuccess
	}
}

// FormatRequest renders a document as the opening human message.
func FormatRequest(doc store.Document) string {
	s := fmt.Sprintf("Help to reconcile invoices using the following email:\n Sender: %s\n Subject: %s\n Body: %s",
		doc.Sender, doc.Subject, doc.Body)
	if doc.HasAttachment() {
		s += "\n Attachment: " + doc.Attachment
	}
	return s
}

func (c *Controller) logProgress(ctx context.Context, phase string) {
	if c.ledger != nil {
		n, err := c.ledger.CountUnreconciled(ctx)
		if err != nil {
			c.logger.Warn("failed to count unreconciled transactions", "phase", phase, "error", err)
		} else {
			c.logger.Info("unreconciled transactions", "phase", phase, "count", n)
		}
	}
	n, err := c.docs.CountUnprocessed(ctx)
	if err != nil {
		c.logger.Warn("failed to count unprocessed documents", "phase", phase, "error", err)
		return
	}
	c.logger.Info("unprocessed documents", "phase", phase, "count", n)
}

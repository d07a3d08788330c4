package batch

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/randalmurphal/invoicegraph/pkg/store"
)

// Report summarizes the processing state of the whole document store.
type Report struct {
	TotalTasks         int
	CompletionRate     float64 // share of documents no longer NOT_STARTED
	SuccessRate        float64 // share of documents that ended SUCCESS
	MeanExecutionTime  time.Duration
	TotalExecutionTime time.Duration
	StatusCounts       map[string]int
	EstimatedRemaining time.Duration
}

// BuildReport computes a report from per-document outcomes. Timing only
// considers processed documents.
func BuildReport(outcomes []store.Outcome) Report {
	r := Report{
		TotalTasks:   len(outcomes),
		StatusCounts: make(map[string]int),
	}
	if len(outcomes) == 0 {
		return r
	}

	var processed int
	for _, o := range outcomes {
		r.StatusCounts[o.Status]++
		if o.Status == store.StatusNotStarted {
			continue
		}
		processed++
		r.TotalExecutionTime += o.TotalTime
	}

	total := float64(len(outcomes))
	pending := r.StatusCounts[store.StatusNotStarted]
	r.CompletionRate = 1 - float64(pending)/total
	r.SuccessRate = float64(r.StatusCounts[store.StatusSuccess]) / total
	if processed > 0 {
		r.MeanExecutionTime = r.TotalExecutionTime / time.Duration(processed)
		r.EstimatedRemaining = (r.MeanExecutionTime * time.Duration(pending)).Truncate(time.Second)
	}
	return r
}

// LoadReport builds a report from stats.
func LoadReport(ctx context.Context, stats store.Stats) (Report, error) {
	outcomes, err := stats.Outcomes(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load outcomes: %w", err)
	}
	return BuildReport(outcomes), nil
}

// WriteTo prints the report as aligned text.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var n int64
	printf := func(format string, args ...any) error {
		written, err := fmt.Fprintf(w, format, args...)
		n += int64(written)
		return err
	}

	lines := []struct {
		format string
		args   []any
	}{
		{"Total number of tasks:\t\t%s\n", []any{humanize.Comma(int64(r.TotalTasks))}},
		{"Task completion rate:\t\t%.2f%%\n", []any{r.CompletionRate * 100}},
		{"Task success rate:\t\t%.2f%%\n", []any{r.SuccessRate * 100}},
		{"Mean execution time:\t\t%s\n", []any{r.MeanExecutionTime.Round(time.Millisecond)}},
		{"Total execution time:\t\t%s\n", []any{r.TotalExecutionTime.Truncate(time.Second)}},
	}
	for _, l := range lines {
		if err := printf(l.format, l.args...); err != nil {
			return n, err
		}
	}
	for _, status := range slices.Sorted(maps.Keys(r.StatusCounts)) {
		if err := printf("  %-24s%s\n", status, humanize.Comma(int64(r.StatusCounts[status]))); err != nil {
			return n, err
		}
	}
	if r.StatusCounts[store.StatusNotStarted] > 0 {
		if err := printf("Estimated remaining time:\t%s\n", r.EstimatedRemaining); err != nil {
			return n, err
		}
	}
	return n, nil
}

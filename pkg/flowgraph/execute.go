package flowgraph

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
)

// Run executes the graph with the given initial state.
// Returns the final state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure.
//
// Execution flow:
//  1. Start at the entry point node
//  2. Check the step ceiling and cancellation
//  3. Execute the current node
//  4. Determine the next node (router and label map, or simple edge)
//  5. Repeat until END is reached or an error occurs
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background())
//	result, err := compiled.Run(ctx, initialState, flowgraph.WithMaxSteps(150))
//	if errors.Is(err, flowgraph.ErrStepLimit) {
//	    // result holds the state when the ceiling was hit
//	}
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (result S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	done := observability.TimedOperation()
	observability.LogRunStart(cfg.logger, runID)

	var spanCtx context.Context = ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		spanCtx, runSpan = cfg.spans.StartRunSpan(ctx, cfg.graphName, runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	start := time.Now()
	var steps int
	result, steps, runErr = cg.loop(spanCtx, ctx, state, &cfg)
	cfg.metrics.RecordGraphRun(spanCtx, runErr == nil, time.Since(start))

	if runErr != nil {
		observability.LogRunError(cfg.logger, runID, runErr, done(), failedNode(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, runID, done(), steps)
	}

	return result, runErr
}

// loop drives the node sequence. spanCtx carries trace context;
// fgCtx is the caller's flowgraph Context.
func (cg *CompiledGraph[S]) loop(spanCtx context.Context, fgCtx Context, state S, cfg *runConfig) (S, int, error) {
	current := cg.entryPoint
	steps := 0

	for current != END {
		if steps >= cfg.maxSteps {
			return state, steps, &StepLimitError{
				Max:        cfg.maxSteps,
				LastNodeID: current,
				State:      state,
			}
		}

		if err := fgCtx.Err(); err != nil {
			return state, steps, &CancellationError{
				NodeID: current,
				State:  state,
				Cause:  err,
			}
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeSpanCtx := spanCtx
		var nodeSpan trace.Span
		var carried context.Context
		if cfg.tracingEnabled {
			nodeSpanCtx, nodeSpan = cfg.spans.StartNodeSpan(spanCtx, current)
			carried = nodeSpanCtx
		}

		nodeStart := time.Now()
		var nodeErr error
		state, nodeErr = cg.executeNode(nodeContext(fgCtx, carried, current), current, state)
		elapsed := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(nodeSpanCtx, current, elapsed, nodeErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		steps++
		if nodeErr != nil {
			observability.LogNodeError(cfg.logger, current, nodeErr)
			return state, steps, nodeErr
		}
		observability.LogNodeComplete(cfg.logger, current, float64(elapsed.Milliseconds()))

		next, err := cg.nextNode(fgCtx, state, current)
		if err != nil {
			return state, steps, err
		}
		current = next
	}

	return state, steps, nil
}

// nodeContext scopes the caller's context to a node. A non-nil spanCtx
// replaces the underlying context so nodes can start child spans.
func nodeContext(fgCtx Context, spanCtx context.Context, nodeID string) Context {
	ec, ok := fgCtx.(*executionContext)
	if !ok {
		return fgCtx
	}
	scoped := ec.withNodeID(nodeID)
	if spanCtx != nil {
		scoped = scoped.withStd(spanCtx)
	}
	return scoped
}

// executeNode executes a single node with panic recovery.
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (result S, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		return state, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result = state
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(ctx, state)
	if err != nil {
		return result, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// nextNode determines the next node to execute.
// Conditional edges take precedence over simple edges.
func (cg *CompiledGraph[S]) nextNode(ctx Context, state S, current string) (string, error) {
	edge, ok := cg.getConditional(current)
	if !ok {
		targets := cg.edges[current]
		if len(targets) == 0 {
			return "", &NodeError{
				NodeID: current,
				Op:     "routing",
				Err:    fmt.Errorf("no outgoing edge from node %s", current),
			}
		}
		return targets[0], nil
	}

	returned := edge.router(nodeContext(ctx, nil, current), state)
	if returned == "" {
		return "", &RouterError{FromNode: current, Returned: returned, Err: ErrInvalidRouterResult}
	}

	next := returned
	if edge.labels != nil {
		dest, found := edge.labels[returned]
		if !found {
			return "", &RouterError{FromNode: current, Returned: returned, Err: ErrRouterTargetNotFound}
		}
		next = dest
	}

	if next != END && !cg.HasNode(next) {
		return "", &RouterError{FromNode: current, Returned: returned, Err: ErrRouterTargetNotFound}
	}
	return next, nil
}

/*
Package flowgraph runs directed graphs of agent and tool nodes over a
shared, typed state.

# Overview

A Graph is built with named nodes, simple edges and conditional edges,
compiled once into an immutable CompiledGraph, then run any number of
times. Each run starts at the entry node and follows edges until it
reaches END, a node fails, or the step ceiling is hit.

	type State struct {
	    Messages []string
	    Sender   string
	}

	graph := flowgraph.NewGraph[State]().
	    AddNode("clerk", clerk).
	    AddNode("ocr", ocr).
	    AddConditionalEdges("clerk", clerkRouter, map[string]string{
	        "call_tool": "ocr",
	        "continue":  flowgraph.END,
	    }).
	    AddEdge("ocr", "clerk").
	    SetEntry("clerk")

	compiled, err := graph.Compile()
	if err != nil {
	    return err
	}

	ctx := flowgraph.NewContext(context.Background())
	final, err := compiled.Run(ctx, State{}, flowgraph.WithMaxSteps(150))

# Conditional edges

AddConditionalEdges registers a router whose result is a label, resolved
through a label map to a node ID or END. Every destination is checked at
Compile time. AddConditionalEdge registers a router that returns node
IDs directly. A router result that cannot be resolved fails the run with
a *RouterError.

# Step ceiling

Loops are allowed. Every run is bounded by WithMaxSteps (default 150):
the run that would execute one node more fails with a *StepLimitError,
which matches ErrStepLimit under errors.Is and carries the state at
termination.

# Errors

	var nodeErr *flowgraph.NodeError
	if errors.As(err, &nodeErr) {
	    log.Printf("node %s failed: %v", nodeErr.NodeID, nodeErr.Err)
	}

Panics in nodes are recovered into *PanicError with a stack trace.
Cancellation of the run's context is observed between nodes and
reported as *CancellationError. In every case Run returns the state at
the point of failure.

# Observability

	result, err := compiled.Run(ctx, state,
	    flowgraph.WithRunLogger(logger),
	    flowgraph.WithMetrics(observability.NewMetricsRecorder()),
	    flowgraph.WithTracing())

# Thread Safety

Graph is not safe for concurrent use while building. CompiledGraph is
immutable and may be run concurrently.
*/
package flowgraph

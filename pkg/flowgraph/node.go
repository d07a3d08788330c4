package flowgraph

// END is the terminal node identifier.
// Use this as an edge target (or a conditional edge destination) to
// indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and current state,
// and return the updated state (or the same state) and any error.
//
// The state parameter is passed by value. Nodes should modify and return
// a new state value, not rely on pointer mutation.
//
// Example:
//
//	func increment(ctx flowgraph.Context, s Counter) (Counter, error) {
//	    s.Value++
//	    return s, nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc determines the next hop based on the state a node just produced.
//
// For edges registered with AddConditionalEdge the returned value is a
// node ID or END. For edges registered with AddConditionalEdges the
// returned value is a label that is looked up in the edge's label map.
//
// Routers must be pure: given the same state they return the same value.
// Returning an empty string or an unknown node ID or label causes a
// runtime RouterError.
//
// Example:
//
//	func router(ctx flowgraph.Context, s State) string {
//	    if s.Done {
//	        return flowgraph.END
//	    }
//	    return "process"
//	}
type RouterFunc[S any] func(ctx Context, state S) string

package flowgraph

import (
	"fmt"
	"maps"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdges and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph.
//
// Example:
//
//	graph := flowgraph.NewGraph[MyState]().
//	    AddNode("clerk", clerkNode).
//	    AddNode("ocr", ocrNode).
//	    AddConditionalEdges("clerk", clerkRouter, map[string]string{
//	        "call_tool": "ocr",
//	        "done":      flowgraph.END,
//	    }).
//	    AddEdge("ocr", "clerk").
//	    SetEntry("clerk")
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu               sync.RWMutex
	nodes            map[string]NodeFunc[S]
	edges            map[string][]string
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string
}

// conditionalEdge pairs a router with its optional label map.
// A nil label map means the router returns node IDs directly.
type conditionalEdge[S any] struct {
	router RouterFunc[S]
	labels map[string]string
}

// NewGraph creates a new graph builder for state type S.
// The type parameter S defines the state that flows through the graph.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:            make(map[string]NodeFunc[S]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == END {
		panic("flowgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge whose router returns
// a node ID (or END) directly.
// Returns the graph for method chaining.
//
// A node can have either simple edges or a conditional edge, not both.
// If both are present, the conditional edge takes precedence.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S]) *Graph[S] {
	return g.addConditional(from, router, nil)
}

// AddConditionalEdges adds a conditional edge whose router returns a label.
// The label is resolved through labels to a destination node ID or END.
// Returns the graph for method chaining.
//
// Every destination in labels is validated at Compile() time. A label
// that is missing from the map at runtime causes a RouterError.
//
// Panics if router is nil or labels is empty.
func (g *Graph[S]) AddConditionalEdges(from string, router RouterFunc[S], labels map[string]string) *Graph[S] {
	if len(labels) == 0 {
		panic("flowgraph: conditional edge label map cannot be empty")
	}
	return g.addConditional(from, router, maps.Clone(labels))
}

func (g *Graph[S]) addConditional(from string, router RouterFunc[S], labels map[string]string) *Graph[S] {
	if router == nil {
		panic("flowgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = conditionalEdge[S]{router: router, labels: labels}
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

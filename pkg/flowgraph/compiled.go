package flowgraph

import (
	"maps"
	"slices"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph can be used for multiple Run() calls. The graph
// structure cannot be modified after compilation.
type CompiledGraph[S any] struct {
	nodes            map[string]NodeFunc[S]
	edges            map[string][]string
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string

	predecessors map[string][]string
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph, sorted.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return slices.Sorted(maps.Keys(cg.nodes))
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns the node IDs that can be reached from the given node
// via simple edges or labelled conditional edges, sorted.
// Returns nil for END, unknown nodes, and nodes with an unlabelled router.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	if id == END {
		return nil
	}
	if edge, ok := cg.conditionalEdges[id]; ok {
		if edge.labels == nil {
			return nil
		}
		out := slices.Sorted(maps.Values(edge.labels))
		return slices.Compact(out)
	}
	return slices.Clone(cg.edges[id])
}

// Predecessors returns the node IDs that have statically known edges to the given node.
func (cg *CompiledGraph[S]) Predecessors(id string) []string {
	return slices.Clone(cg.predecessors[id])
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.conditionalEdges[id]
	return ok
}

// Labels returns a copy of the label map registered for a conditional
// edge, or nil if the node has none.
func (cg *CompiledGraph[S]) Labels(id string) map[string]string {
	edge, ok := cg.conditionalEdges[id]
	if !ok {
		return nil
	}
	return maps.Clone(edge.labels)
}

func (cg *CompiledGraph[S]) getNode(id string) (NodeFunc[S], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

func (cg *CompiledGraph[S]) getConditional(id string) (conditionalEdge[S], bool) {
	edge, exists := cg.conditionalEdges[id]
	return edge, exists
}

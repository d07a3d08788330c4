package flowgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. Entry point must be set
//  2. Entry point must reference an existing node
//  3. All edge sources must reference existing nodes
//  4. All edge targets and label destinations must reference existing nodes or END
//  5. The entry point must have a path to END
//
// Unreachable nodes (not reachable from entry) are logged as warnings
// but do not cause compilation to fail.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for _, from := range slices.Sorted(maps.Keys(g.edges)) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to != END && !g.hasNode(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, from := range slices.Sorted(maps.Keys(g.conditionalEdges)) {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		edge := g.conditionalEdges[from]
		for _, label := range slices.Sorted(maps.Keys(edge.labels)) {
			to := edge.labels[label]
			if to != END && !g.hasNode(to) {
				errs = append(errs, fmt.Errorf("%w: label '%s' from '%s' targets '%s'", ErrNodeNotFound, label, from, to))
			}
		}
	}

	if g.hasNode(g.entryPoint) && !g.hasPathToEnd() {
		errs = append(errs, ErrNoPathToEnd)
	}

	g.warnUnreachableNodes()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(), nil
}

func (g *Graph[S]) hasNode(id string) bool {
	_, exists := g.nodes[id]
	return exists
}

// targets returns every node a source can hand control to.
// The second result is false when the source has an unlabelled router,
// whose targets are only known at runtime.
func (g *Graph[S]) targets(from string) ([]string, bool) {
	if edge, ok := g.conditionalEdges[from]; ok {
		if edge.labels == nil {
			return nil, false
		}
		return slices.Collect(maps.Values(edge.labels)), true
	}
	return g.edges[from], true
}

// hasPathToEnd checks if there's a path from entry to END.
// Unlabelled routers are assumed to be able to return END.
func (g *Graph[S]) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}

	changed := true
	for changed {
		changed = false
		for id := range g.nodes {
			if canReachEnd[id] {
				continue
			}
			targets, known := g.targets(id)
			if !known {
				canReachEnd[id] = true
				changed = true
				continue
			}
			for _, to := range targets {
				if canReachEnd[to] {
					canReachEnd[id] = true
					changed = true
					break
				}
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// warnUnreachableNodes logs warnings for nodes not reachable from entry.
func (g *Graph[S]) warnUnreachableNodes() {
	if g.entryPoint == "" {
		return
	}

	reachable := g.findReachableNodes()
	for _, nodeID := range slices.Sorted(maps.Keys(g.nodes)) {
		if !reachable[nodeID] {
			slog.Warn("node is unreachable from entry", "node_id", nodeID)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry point.
func (g *Graph[S]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)
	if !g.hasNode(g.entryPoint) {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		targets, known := g.targets(current)
		if !known {
			// An unlabelled router may return any node.
			targets = slices.Collect(maps.Keys(g.nodes))
		}
		for _, target := range targets {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S]) buildCompiledGraph() *CompiledGraph[S] {
	nodes := maps.Clone(g.nodes)

	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = slices.Clone(targets)
	}

	conditionalEdges := make(map[string]conditionalEdge[S], len(g.conditionalEdges))
	for from, edge := range g.conditionalEdges {
		conditionalEdges[from] = conditionalEdge[S]{router: edge.router, labels: maps.Clone(edge.labels)}
	}

	predecessors := make(map[string][]string)
	for _, from := range slices.Sorted(maps.Keys(nodes)) {
		targets, known := g.targets(from)
		if !known {
			continue
		}
		for _, to := range targets {
			if to != END && !slices.Contains(predecessors[to], from) {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	return &CompiledGraph[S]{
		nodes:            nodes,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		entryPoint:       g.entryPoint,
		predecessors:     predecessors,
	}
}

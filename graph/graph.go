// Package graph parses and validates the pipeline DAG from its digraph
// edge-string representation.
package graph

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrDuplicateNode is returned when a node name appears twice.
var ErrDuplicateNode = errors.New("graph: duplicate node name")

// ErrCycle is returned when the graph is not acyclic.
var ErrCycle = errors.New("graph: cycle detected")

// ErrUnknownNode is returned when an edge references a node not declared
// in the node list.
var ErrUnknownNode = errors.New("graph: edge references undeclared node")

var edgeRe = regexp.MustCompile(`^\s*(\S+)\s*->\s*(\S+)\s*$`)

// Graph holds the node set, adjacency, and a verified topological order.
// Predecessor order for every node is recorded in edge-declaration order,
// resolving the deterministic fan-in ordering left open in DESIGN NOTES.
type Graph struct {
	nodes        []string
	predecessors map[string][]string
	successors   map[string][]string
	topo         []string
}

// ParseEdge splits a single "A -> B" digraph line into its two node names.
func ParseEdge(line string) (from, to string, err error) {
	m := edgeRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", fmt.Errorf("graph: malformed edge %q", line)
	}
	return m[1], m[2], nil
}

// New builds and validates a Graph from the declared node names and
// digraph edge strings. Returns ErrDuplicateNode, ErrUnknownNode, or
// ErrCycle as appropriate.
func New(nodeNames []string, digraph []string) (*Graph, error) {
	seen := make(map[string]struct{}, len(nodeNames))
	for _, n := range nodeNames {
		if _, ok := seen[n]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, n)
		}
		seen[n] = struct{}{}
	}

	g := &Graph{
		nodes:        append([]string(nil), nodeNames...),
		predecessors: make(map[string][]string, len(nodeNames)),
		successors:   make(map[string][]string, len(nodeNames)),
	}

	for _, line := range digraph {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		from, to, err := ParseEdge(line)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[from]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, from)
		}
		if _, ok := seen[to]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, to)
		}
		g.successors[from] = append(g.successors[from], to)
		g.predecessors[to] = append(g.predecessors[to], from)
	}

	topo, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.topo = topo

	return g, nil
}

// Nodes returns the declared node names in declaration order.
func (g *Graph) Nodes() []string { return g.nodes }

// Predecessors returns v's predecessors in edge-declaration order.
func (g *Graph) Predecessors(v string) []string { return g.predecessors[v] }

// Successors returns v's successors in edge-declaration order.
func (g *Graph) Successors(v string) []string { return g.successors[v] }

// InDegree returns the number of predecessors of v.
func (g *Graph) InDegree(v string) int { return len(g.predecessors[v]) }

// TopologicalOrder returns a valid topological order of the nodes.
func (g *Graph) TopologicalOrder() []string { return g.topo }

// Last returns the configured terminal node name when one is set, or the
// last node of the topological order when it is empty. A configured name
// that is not a node of the graph returns ErrUnknownNode.
func (g *Graph) Last(configured string) (string, error) {
	if configured != "" {
		for _, n := range g.nodes {
			if n == configured {
				return configured, nil
			}
		}
		return "", fmt.Errorf("%w: last=%q", ErrUnknownNode, configured)
	}
	if len(g.topo) == 0 {
		return "", errors.New("graph: empty graph has no terminal node")
	}
	return g.topo[len(g.topo)-1], nil
}

// topologicalSort runs Kahn's algorithm. A cycle leaves nodes with
// nonzero remaining in-degree once the queue drains.
func (g *Graph) topologicalSort() ([]string, error) {
	remaining := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		remaining[n] = len(g.predecessors[n])
	}

	queue := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if remaining[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range g.successors[v] {
			remaining[w]--
			if remaining[w] == 0 {
				queue = append(queue, w)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

package harness

import (
	"fmt"
	"strings"
)

// Cycle is a set of orders that wait on each other.
type Cycle struct {
	Path    []string `json:"path"`    // ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// predecessorGraph maps order name -> names it waits for.
type predecessorGraph struct {
	nodes []string // declaration order, for deterministic traversal
	edges map[string][]string
}

func buildPredecessorGraph(orders []OrderSpec) predecessorGraph {
	g := predecessorGraph{edges: make(map[string][]string, len(orders))}
	for _, o := range orders {
		g.nodes = append(g.nodes, o.Name)
		g.edges[o.Name] = append([]string(nil), o.After...)
	}
	return g
}

// FindCycles reports every predecessor cycle among orders.
//
// Orders built in code cannot form cycles because predecessors are fixed
// at construction, but scenario files name predecessors freely, so a
// scenario must be rejected before its orders are built.
//
// Strongly connected components are found with Tarjan's algorithm; every
// component with more than one order, or a single order waiting on
// itself, is a cycle.
func FindCycles(orders []OrderSpec) []Cycle {
	g := buildPredecessorGraph(orders)

	var cycles []Cycle
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], g)) {
			cycles = append(cycles, sccToCycle(scc, g))
		}
	}
	return cycles
}

func hasSelfLoop(node string, g predecessorGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC returns the strongly connected components of g.
func tarjanSCC(g predecessorGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToCycle(scc []string, g predecessorGraph) Cycle {
	if len(scc) == 1 {
		name := scc[0]
		return Cycle{
			Path:    []string{name, name},
			Message: fmt.Sprintf("order %s waits on itself", name),
		}
	}

	path := reconstructCyclePath(scc, g)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("orders wait on each other: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath walks edges inside the component from its root
// until it returns to the start.
func reconstructCyclePath(scc []string, g predecessorGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}

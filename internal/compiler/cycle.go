package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/lineage/internal/schema"
)

// CycleWarning reports a cycle between class declarations.
//
// Inheritance cycles are errors: a class cannot be its own ancestor.
// has_one cycles are informational: A has_one B and B has_one A is a
// legal pair of back references, but every record of either class then
// depends on the other being written first to fill both keys.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A", "B", "A"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "error" or "info"
}

// Cycle levels.
const (
	LevelError = "error"
	LevelInfo  = "info"
)

// AnalyzeCycles finds inheritance cycles and has_one cycles among decls.
//
// The algorithm:
//  1. Build an extends graph and a has_one graph over class names
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// A class whose has_one points at itself (a tree's Parent) is not reported.
// Results are sorted by level then path.
func AnalyzeCycles(decls []schema.ClassDescriptor) []CycleWarning {
	extends := make(dependencyGraph)
	hasOne := make(dependencyGraph)
	for _, d := range decls {
		if _, ok := extends[d.Name]; !ok {
			extends[d.Name] = []string{}
		}
		if d.Extends != "" {
			extends[d.Name] = append(extends[d.Name], d.Extends)
		}
		if _, ok := hasOne[d.Name]; !ok {
			hasOne[d.Name] = []string{}
		}
		for _, target := range sortedValues(d.HasOne) {
			if target != d.Name {
				hasOne[d.Name] = append(hasOne[d.Name], target)
			}
		}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(extends) {
		if len(scc) > 1 || hasSelfLoop(scc[0], extends) {
			w := cycleSCCToWarning(scc, extends)
			w.Level = LevelError
			w.Message = "Inheritance cycle: " + strings.Join(w.Path, " extends ")
			warnings = append(warnings, w)
		}
	}
	for _, scc := range tarjanSCC(hasOne) {
		if len(scc) > 1 {
			w := cycleSCCToWarning(scc, hasOne)
			w.Level = LevelInfo
			w.Message = "has_one cycle: " + strings.Join(w.Path, " → ")
			warnings = append(warnings, w)
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Level != warnings[j].Level {
			return warnings[i].Level == LevelError
		}
		return strings.Join(warnings[i].Path, ",") < strings.Join(warnings[j].Path, ",")
	})
	return warnings
}

// dependencyGraph maps class → classes it points at.
type dependencyGraph map[string][]string

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of class names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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

	// Visit all nodes in a stable order
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [class, class].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self reference: %s → %s", name, name),
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Cycle: %s", pathStr),
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at the smallest name
	start := scc[0]
	for _, node := range scc {
		if node < start {
			start = node
		}
	}
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

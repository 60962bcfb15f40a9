package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Graph is the task graph: a set of nodes and the dependency relation between
// them. After validation the relation is guaranteed to form a DAG with no
// dangling references. The graph is immutable-by-replacement: optimization
// passes operate on a Clone and hand the finished graph off by value, so no
// component ever holds two structurally inconsistent views.
type Graph struct {
	// nodes maps node ids to their task nodes.
	nodes map[string]*TaskNode

	// dependents maps node ids to the ids of nodes that depend on them.
	// Derived from node dependency lists, never authored directly.
	dependents map[string][]string
}

// NewGraph creates an empty task graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*TaskNode),
		dependents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. The node may carry dependency edges whose
// targets are not present yet; the validator reports those as dangling if they
// never materialize.
func (g *Graph) AddNode(node *TaskNode) error {
	if node == nil {
		return NewSchemaError("node is nil", nil).WithCode(ErrCodeValidation)
	}
	if node.ID == "" {
		return NewSchemaError("node has empty ID", nil).WithCode(ErrCodeValidation)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return NewSchemaError(fmt.Sprintf("duplicate node ID: %s", node.ID), nil).
			WithCode(ErrCodeDuplicateNode)
	}

	g.nodes[node.ID] = node
	g.reindex()
	return nil
}

// AddEdge adds a dependency edge: to depends on from. Both nodes must exist.
// Adding an existing edge is a no-op.
func (g *Graph) AddEdge(from, to string) error {
	return g.AddEdgeWithPolicy(from, to, FailurePolicyBlock)
}

// AddEdgeWithPolicy adds a dependency edge carrying an explicit failure policy.
func (g *Graph) AddEdgeWithPolicy(from, to string, policy FailurePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if _, exists := g.nodes[from]; !exists {
		return NewStructuralError(fmt.Sprintf("edge source not found: %s", from), nil).
			WithCode(ErrCodeNodeNotFound)
	}
	target, exists := g.nodes[to]
	if !exists {
		return NewStructuralError(fmt.Sprintf("edge target not found: %s", to), nil).
			WithCode(ErrCodeNodeNotFound)
	}
	if from == to {
		return NewStructuralError(fmt.Sprintf("self-dependency on node %s", to), nil).
			WithCode(ErrCodeCycle).WithNode(to)
	}
	if target.dependsOn(from) {
		return nil
	}

	target.Dependencies = append(target.Dependencies, Dependency{NodeID: from, OnFailure: policy})
	g.dependents[from] = append(g.dependents[from], to)
	return nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *TaskNode {
	return g.nodes[id]
}

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of dependency edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, node := range g.nodes {
		count += len(node.Dependencies)
	}
	return count
}

// Dependents returns the ids of nodes that directly depend on the given node,
// in ascending order.
func (g *Graph) Dependents(id string) []string {
	deps := append([]string(nil), g.dependents[id]...)
	sort.Strings(deps)
	return deps
}

// TopologicalOrder returns a deterministic linearization of the graph using
// in-degree counting (Kahn's algorithm). Ties are broken by ascending node id,
// so the same graph always yields the same order. Returns a structural error
// with code CYCLE_DETECTED if the graph contains a cycle.
//
// Dependencies on missing nodes are ignored here; run the validator first to
// surface them.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id, node := range g.nodes {
		degree := 0
		for _, dep := range node.Dependencies {
			if _, exists := g.nodes[dep.NodeID]; exists {
				degree++
			}
		}
		inDegree[id] = degree
	}

	ready := make([]string, 0, len(g.nodes))
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dependent := range g.Dependents(id) {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				// Insert keeping the ready set sorted for deterministic ties.
				i := sort.SearchStrings(ready, dependent)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = dependent
			}
		}
	}

	if len(order) != len(g.nodes) {
		remaining := make([]string, 0)
		for id := range g.nodes {
			if inDegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, NewStructuralError(
			fmt.Sprintf("cycle detected among nodes: %s", strings.Join(remaining, ", ")),
			nil,
		).WithCode(ErrCodeCycle)
	}

	return order, nil
}

// Levels groups nodes by topological level: the longest-path distance from any
// root. Nodes within a level share no dependency relation and can execute in
// parallel. Level membership is sorted by ascending node id.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(g.nodes))
	maxLevel := 0
	for _, id := range order {
		l := 0
		for _, dep := range g.nodes[id].Dependencies {
			if _, exists := g.nodes[dep.NodeID]; !exists {
				continue
			}
			if dl := level[dep.NodeID] + 1; dl > l {
				l = dl
			}
		}
		level[id] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	if len(order) == 0 {
		return [][]string{}, nil
	}
	for _, id := range order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	for _, ids := range levels {
		sort.Strings(ids)
	}
	return levels, nil
}

// CriticalPath returns the dependency chain with the maximal cumulative
// estimated duration and that cumulative total. The path is the lower bound on
// wall-clock completion time if cost were ignored.
func (g *Graph) CriticalPath() ([]string, time.Duration, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, 0, err
	}
	if len(order) == 0 {
		return []string{}, 0, nil
	}

	cumulative := make(map[string]time.Duration, len(g.nodes))
	predecessor := make(map[string]string, len(g.nodes))

	for _, id := range order {
		node := g.nodes[id]
		var best time.Duration
		bestPred := ""
		for _, dep := range node.Dependencies {
			if _, exists := g.nodes[dep.NodeID]; !exists {
				continue
			}
			// Ties broken by ascending predecessor id for determinism.
			c := cumulative[dep.NodeID]
			if bestPred == "" || c > best || (c == best && dep.NodeID < bestPred) {
				best = c
				bestPred = dep.NodeID
			}
		}
		cumulative[id] = best + node.EstimatedDuration
		predecessor[id] = bestPred
	}

	end := order[0]
	for _, id := range order {
		if cumulative[id] > cumulative[end] || (cumulative[id] == cumulative[end] && id < end) {
			end = id
		}
	}

	path := []string{}
	for id := end; id != ""; id = predecessor[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, cumulative[end], nil
}

// Clone produces a deep, structurally independent copy of the graph.
// Optimization passes clone their input so the original remains available for
// rollback and before/after reporting.
func (g *Graph) Clone() *Graph {
	clone := NewGraph()
	for id, node := range g.nodes {
		nodeCopy := *node
		nodeCopy.Dependencies = append([]Dependency(nil), node.Dependencies...)
		if node.Metadata != nil {
			nodeCopy.Metadata = make(map[string]interface{}, len(node.Metadata))
			for k, v := range node.Metadata {
				nodeCopy.Metadata[k] = v
			}
		}
		clone.nodes[id] = &nodeCopy
	}
	clone.reindex()
	return clone
}

// HasPath reports whether to is reachable from from following dependency
// edges forward (from must complete before to).
func (g *Graph) HasPath(from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, dependent := range g.dependents[id] {
			if dependent == to {
				return true
			}
			if !visited[dependent] {
				stack = append(stack, dependent)
			}
		}
	}
	return false
}

// removeNode deletes a node and every edge referencing it. Callers are
// expected to have redirected dependents first; any leftover edges into the
// removed node are stripped.
func (g *Graph) removeNode(id string) {
	delete(g.nodes, id)
	for _, node := range g.nodes {
		kept := node.Dependencies[:0]
		for _, dep := range node.Dependencies {
			if dep.NodeID != id {
				kept = append(kept, dep)
			}
		}
		node.Dependencies = kept
	}
	g.reindex()
}

// reindex rebuilds the derived dependents relation from node dependency
// lists. Edges whose target is missing are skipped; the validator reports
// them as dangling.
func (g *Graph) reindex() {
	g.dependents = make(map[string][]string, len(g.nodes))
	for id, node := range g.nodes {
		for _, dep := range node.Dependencies {
			if _, exists := g.nodes[dep.NodeID]; exists {
				g.dependents[dep.NodeID] = append(g.dependents[dep.NodeID], id)
			}
		}
	}
}

// ToDOT generates a DOT format representation of the graph for visualization.
// The output can be rendered with Graphviz tools.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	levels, err := g.Levels()
	if err != nil {
		// Cyclic graphs still render, just without level clustering.
		for _, id := range g.NodeIDs() {
			sb.WriteString(fmt.Sprintf("  %q;\n", id))
		}
	} else {
		for level, ids := range levels {
			sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
			sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
			sb.WriteString("    style=dashed;\n")
			for _, id := range ids {
				node := g.nodes[id]
				label := fmt.Sprintf("%s\\n%s p=%d", id, node.Type, node.Priority)
				sb.WriteString(fmt.Sprintf("    %q [label=\"%s\", fillcolor=%q, style=\"filled,rounded\"];\n",
					id, label, taskTypeColor(node.Type)))
			}
			sb.WriteString("  }\n\n")
		}
	}

	for _, id := range g.NodeIDs() {
		node := g.nodes[id]
		for _, dep := range node.Dependencies {
			style := "style=solid, color=black"
			if dep.OnFailure == FailurePolicyContinue {
				style = "style=dashed, color=blue"
			}
			sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", dep.NodeID, id, style))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// taskTypeColor returns a fill color for visualizing task types.
func taskTypeColor(t TaskType) string {
	switch t {
	case TaskTypeCompute:
		return "lightgreen"
	case TaskTypeIO:
		return "lightblue"
	case TaskTypeNetwork:
		return "lightyellow"
	case TaskTypeModel:
		return "plum"
	case TaskTypeData:
		return "lightcoral"
	default:
		return "white"
	}
}

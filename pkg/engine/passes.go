package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Pass names, in pipeline order.
const (
	PassReorder      = "reorder"
	PassDedupe       = "dedupe"
	PassBatch        = "batch"
	PassShortCircuit = "short_circuit"
	PassCostSort     = "cost_sort"
)

// maxPriority is the upper bound of the node priority range.
const maxPriority = 10

// reorderPass boosts the priority of every node on the critical path so the
// chain that bounds wall-clock completion dispatches ahead of off-path work.
// Nodes off the critical path keep their caller-assigned priority.
type reorderPass struct {
	boost int
}

func (p *reorderPass) Name() string { return PassReorder }

func (p *reorderPass) Apply(g *Graph) (PassDelta, error) {
	delta := PassDelta{Pass: p.Name()}

	path, _, err := g.CriticalPath()
	if err != nil {
		return delta, err
	}

	for _, id := range path {
		node := g.Node(id)
		boosted := node.Priority + p.boost
		if boosted > maxPriority {
			boosted = maxPriority
		}
		if boosted != node.Priority {
			node.Priority = boosted
			delta.NodesModified++
		}
	}

	return delta, nil
}

// dedupePass merges nodes with identical signatures: the node with the
// smallest id in each group survives as canonical, and every dependent of a
// removed node is redirected to it. Merges that would introduce a cycle are
// skipped rather than attempted, so the pass never produces an invalid graph.
// Applying the pass twice yields the same graph as applying it once.
type dedupePass struct {
	normalize MetadataNormalizer
}

func (p *dedupePass) Name() string { return PassDedupe }

func (p *dedupePass) Apply(g *Graph) (PassDelta, error) {
	delta := PassDelta{Pass: p.Name()}

	sigs, err := computeSignatures(g, p.normalize)
	if err != nil {
		return delta, err
	}

	groups := make(map[Signature][]string)
	for id, sig := range sigs {
		groups[sig] = append(groups[sig], id)
	}

	ordered := make([]Signature, 0, len(groups))
	for sig, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		ordered = append(ordered, sig)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	for _, sig := range ordered {
		ids := groups[sig]
		canonical := ids[0]
		for _, redundant := range ids[1:] {
			if !p.mergeSafe(g, canonical, redundant) {
				delta.MergesSkipped++
				continue
			}
			p.merge(g, canonical, redundant, &delta)
		}
	}

	return delta, nil
}

// mergeSafe reports whether redundant can be folded into canonical without
// creating a cycle: neither node may reach the other, and no dependent of the
// redundant node may already precede the canonical node.
func (p *dedupePass) mergeSafe(g *Graph, canonical, redundant string) bool {
	if g.HasPath(canonical, redundant) || g.HasPath(redundant, canonical) {
		return false
	}
	for _, dependent := range g.Dependents(redundant) {
		if dependent != canonical && g.HasPath(dependent, canonical) {
			return false
		}
	}
	return true
}

// merge redirects every dependent of redundant onto canonical, preserving
// per-edge failure policies, then removes the redundant node.
func (p *dedupePass) merge(g *Graph, canonical, redundant string, delta *PassDelta) {
	for _, dependent := range g.Dependents(redundant) {
		node := g.Node(dependent)
		kept := node.Dependencies[:0]
		for _, dep := range node.Dependencies {
			if dep.NodeID != redundant {
				kept = append(kept, dep)
				continue
			}
			delta.EdgesRemoved++
			if dependent == canonical || node.dependsOn(canonical) {
				continue
			}
			kept = append(kept, Dependency{NodeID: canonical, OnFailure: dep.OnFailure})
			delta.EdgesAdded++
		}
		node.Dependencies = kept
	}

	delta.EdgesRemoved += len(g.Node(redundant).Dependencies)
	delta.NodesRemoved++
	g.removeNode(redundant)
}

// batchPass tags groups of same-type nodes within a topological level with a
// shared batch id, so executors may amortize per-dispatch overhead. Grouping
// never crosses levels: nodes in different levels have a dependency relation
// between them and cannot run together.
type batchPass struct {
	minSize int
}

func (p *batchPass) Name() string { return PassBatch }

func (p *batchPass) Apply(g *Graph) (PassDelta, error) {
	delta := PassDelta{Pass: p.Name()}

	levels, err := g.Levels()
	if err != nil {
		return delta, err
	}

	for level, ids := range levels {
		byType := make(map[TaskType][]string)
		for _, id := range ids {
			node := g.Node(id)
			byType[node.Type] = append(byType[node.Type], id)
		}

		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, string(t))
		}
		sort.Strings(types)

		for _, t := range types {
			group := byType[TaskType(t)]
			if len(group) < p.minSize {
				continue
			}
			batchID := fmt.Sprintf("%s-l%d-%s", t, level, uuid.NewString()[:8])
			for _, id := range group {
				g.Node(id).BatchID = batchID
				delta.NodesModified++
			}
		}
	}

	return delta, nil
}

// shortCircuitPass marks nodes skippable when an equivalent signature already
// has a completed result in the run-scoped cache. Only nodes that are both
// cacheable and idempotent qualify; everything else always executes.
type shortCircuitPass struct {
	cache     *SignatureCache
	normalize MetadataNormalizer
}

func (p *shortCircuitPass) Name() string { return PassShortCircuit }

func (p *shortCircuitPass) Apply(g *Graph) (PassDelta, error) {
	delta := PassDelta{Pass: p.Name()}

	if p.cache == nil || p.cache.Len() == 0 {
		return delta, nil
	}

	sigs, err := computeSignatures(g, p.normalize)
	if err != nil {
		return delta, err
	}

	for _, id := range g.NodeIDs() {
		node := g.Node(id)
		if !node.Cacheable || !node.Idempotent || node.Skippable {
			continue
		}
		if p.cache.Has(sigs[id]) {
			node.Skippable = true
			delta.NodesModified++
		}
	}

	return delta, nil
}

// costPass computes each node's dispatch cost from the weighted combination of
// estimated duration, estimated cost, and resource weight. The queue uses the
// result as the tiebreak after priority, so cheap work drains first among
// equal-priority peers.
type costPass struct {
	weights CostWeights
}

func (p *costPass) Name() string { return PassCostSort }

func (p *costPass) Apply(g *Graph) (PassDelta, error) {
	delta := PassDelta{Pass: p.Name()}

	for _, id := range g.NodeIDs() {
		node := g.Node(id)
		cost := p.weights.Duration*node.EstimatedDuration.Seconds() +
			p.weights.Cost*node.EstimatedCost +
			p.weights.Resource*node.ResourceWeight
		if cost != node.DispatchCost {
			node.DispatchCost = cost
			delta.NodesModified++
		}
	}

	return delta, nil
}

package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testPipeline(cfg PipelineConfig) *Pipeline {
	return NewPipeline(cfg, zerolog.Nop())
}

func TestPipeline_RefusesInvalidGraph(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{ID: "a", Type: TaskTypeCompute})
	mustAddNode(t, g, &TaskNode{ID: "b", Type: TaskTypeCompute})
	mustAddEdge(t, g, "a", "b")
	mustAddEdge(t, g, "b", "a")

	_, _, err := testPipeline(DefaultPipelineConfig()).Optimize(context.Background(), g)
	if err == nil {
		t.Fatal("Expected validation error for cyclic graph, got nil")
	}
	if !IsStructural(err) {
		t.Errorf("Expected structural error, got: %v", err)
	}
}

func TestPipeline_InputGraphNotMutated(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{ID: "a", Type: TaskTypeCompute, Priority: 5, EstimatedDuration: 2 * time.Second})
	mustAddNode(t, g, &TaskNode{ID: "b", Type: TaskTypeCompute, Priority: 5, EstimatedDuration: 3 * time.Second})
	mustAddEdge(t, g, "a", "b")

	optimized, _, err := testPipeline(DefaultPipelineConfig()).Optimize(context.Background(), g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if g.Node("a").Priority != 5 {
		t.Errorf("Input graph mutated: priority = %d", g.Node("a").Priority)
	}
	if optimized.Node("a").Priority == 5 {
		t.Error("Expected boosted priority on optimized graph")
	}
}

func TestReorderPass_BoostsCriticalPath(t *testing.T) {
	// A(p=5, 2s) -> B(p=5, 3s) and A -> C(p=9, 1s). Critical path is A -> B
	// (cumulative 5s), so A and B get the boost and B must outrank C at
	// dispatch despite C's higher raw priority.
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{ID: "A", Type: TaskTypeCompute, Priority: 5, EstimatedDuration: 2 * time.Second})
	mustAddNode(t, g, &TaskNode{ID: "B", Type: TaskTypeCompute, Priority: 5, EstimatedDuration: 3 * time.Second})
	mustAddNode(t, g, &TaskNode{ID: "C", Type: TaskTypeCompute, Priority: 9, EstimatedDuration: 1 * time.Second})
	mustAddEdge(t, g, "A", "B")
	mustAddEdge(t, g, "A", "C")

	optimized, _, err := testPipeline(DefaultPipelineConfig()).Optimize(context.Background(), g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := optimized.Node("A").Priority; got != 10 {
		t.Errorf("Expected A priority 10, got %d", got)
	}
	if got := optimized.Node("B").Priority; got != 10 {
		t.Errorf("Expected B priority 10, got %d", got)
	}
	if got := optimized.Node("C").Priority; got != 9 {
		t.Errorf("Expected C priority untouched at 9, got %d", got)
	}
	if optimized.Node("B").Priority <= optimized.Node("C").Priority {
		t.Error("Expected B to outrank C after critical-path boost")
	}
}

func TestDedupePass_MergesIdenticalNodes(t *testing.T) {
	// Two nodes with identical (type, metadata) and no path between them
	// merge into one; the dependent of the removed node is redirected.
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID: "n1", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "n2", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{ID: "n3", Type: TaskTypeIO})
	mustAddEdge(t, g, "n2", "n3")

	pass := &dedupePass{normalize: DefaultMetadataNormalizer}
	delta, err := pass.Apply(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if delta.NodesRemoved != 1 {
		t.Errorf("Expected 1 node removed, got %d", delta.NodesRemoved)
	}
	if g.Len() != 2 {
		t.Fatalf("Expected 2 nodes after merge, got %d", g.Len())
	}
	if g.Node("n2") != nil {
		t.Error("Expected n2 (higher id) to be removed, n1 kept canonical")
	}
	if !g.Node("n3").dependsOn("n1") {
		t.Errorf("Expected n3 redirected to n1, dependencies: %v", g.Node("n3").Dependencies)
	}
}

func TestDedupePass_Idempotent(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID: "n1", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "n2", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{ID: "n3", Type: TaskTypeIO})
	mustAddEdge(t, g, "n1", "n3")
	mustAddEdge(t, g, "n2", "n3")

	pass := &dedupePass{normalize: DefaultMetadataNormalizer}
	if _, err := pass.Apply(g); err != nil {
		t.Fatalf("First application failed: %v", err)
	}

	second, err := pass.Apply(g)
	if err != nil {
		t.Fatalf("Second application failed: %v", err)
	}
	if !second.Empty() {
		t.Errorf("Expected no further changes on second application, got: %+v", second)
	}
}

func TestDedupePass_MergeSafety(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{ID: "a", Type: TaskTypeCompute})
	mustAddNode(t, g, &TaskNode{ID: "b", Type: TaskTypeCompute})
	mustAddNode(t, g, &TaskNode{ID: "c", Type: TaskTypeCompute})
	mustAddEdge(t, g, "a", "b")
	mustAddEdge(t, g, "b", "c")

	pass := &dedupePass{normalize: DefaultMetadataNormalizer}

	if pass.mergeSafe(g, "a", "c") {
		t.Error("Expected merge of connected nodes to be unsafe")
	}
	if pass.mergeSafe(g, "c", "a") {
		t.Error("Expected merge of connected nodes to be unsafe in either direction")
	}
}

func TestBatchPass_GroupsSameTypeWithinLevel(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{ID: "root", Type: TaskTypeGeneric})
	mustAddNode(t, g, &TaskNode{ID: "io1", Type: TaskTypeIO})
	mustAddNode(t, g, &TaskNode{ID: "io2", Type: TaskTypeIO})
	mustAddNode(t, g, &TaskNode{ID: "cpu1", Type: TaskTypeCompute})
	mustAddEdge(t, g, "root", "io1")
	mustAddEdge(t, g, "root", "io2")
	mustAddEdge(t, g, "root", "cpu1")

	pass := &batchPass{minSize: 2}
	delta, err := pass.Apply(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if delta.NodesModified != 2 {
		t.Errorf("Expected 2 nodes batched, got %d", delta.NodesModified)
	}

	io1, io2 := g.Node("io1").BatchID, g.Node("io2").BatchID
	if io1 == "" || io1 != io2 {
		t.Errorf("Expected io1 and io2 to share a batch id, got %q and %q", io1, io2)
	}
	if !strings.HasPrefix(io1, "io-l1-") {
		t.Errorf("Expected batch id prefixed io-l1-, got %q", io1)
	}
	if g.Node("cpu1").BatchID != "" {
		t.Errorf("Expected singleton cpu1 to have no batch id, got %q", g.Node("cpu1").BatchID)
	}
	if g.Node("root").BatchID != "" {
		t.Errorf("Expected root to have no batch id, got %q", g.Node("root").BatchID)
	}
}

func TestShortCircuitPass_MarksCachedNodesSkippable(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID: "hit", Type: TaskTypeCompute, Cacheable: true, Idempotent: true,
		Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "notcacheable", Type: TaskTypeCompute, Idempotent: true,
		Metadata: map[string]interface{}{"op": "sum"},
	})

	sigs, err := computeSignatures(g, DefaultMetadataNormalizer)
	if err != nil {
		t.Fatalf("computeSignatures failed: %v", err)
	}

	cache := NewSignatureCache()
	cache.Put(sigs["hit"], &ExecutionResult{NodeID: "earlier"})

	pass := &shortCircuitPass{cache: cache, normalize: DefaultMetadataNormalizer}
	delta, err := pass.Apply(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if delta.NodesModified != 1 {
		t.Errorf("Expected 1 node marked, got %d", delta.NodesModified)
	}
	if !g.Node("hit").Skippable {
		t.Error("Expected cacheable+idempotent node with cached signature to be skippable")
	}
	if g.Node("notcacheable").Skippable {
		t.Error("Expected non-cacheable node to stay non-skippable")
	}
}

func TestCostPass_ComputesDispatchCost(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID:                "n",
		Type:              TaskTypeCompute,
		EstimatedDuration: 6 * time.Second,
		EstimatedCost:     3,
		ResourceWeight:    9,
	})

	pass := &costPass{weights: CostWeights{Duration: 0.5, Cost: 1, Resource: 2}}
	delta, err := pass.Apply(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if delta.NodesModified != 1 {
		t.Errorf("Expected 1 node modified, got %d", delta.NodesModified)
	}
	// 0.5*6 + 1*3 + 2*9 = 24
	if got := g.Node("n").DispatchCost; got != 24 {
		t.Errorf("Expected dispatch cost 24, got %v", got)
	}
}

func TestPipeline_ReportDeltas(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID: "n1", Type: TaskTypeCompute, EstimatedDuration: 2 * time.Second, EstimatedCost: 10,
		Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "n2", Type: TaskTypeCompute, EstimatedDuration: 2 * time.Second, EstimatedCost: 10,
		Metadata: map[string]interface{}{"op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{ID: "n3", Type: TaskTypeIO, EstimatedDuration: time.Second, EstimatedCost: 5})
	mustAddEdge(t, g, "n1", "n3")
	mustAddEdge(t, g, "n2", "n3")

	optimized, report, err := testPipeline(DefaultPipelineConfig()).Optimize(context.Background(), g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if optimized.Len() != 2 {
		t.Errorf("Expected 2 nodes after dedupe, got %d", optimized.Len())
	}
	if report.NodeDelta != -1 {
		t.Errorf("Expected node delta -1, got %d", report.NodeDelta)
	}
	if len(report.Passes) != 5 {
		t.Errorf("Expected 5 pass deltas, got %d", len(report.Passes))
	}
	if report.CostBefore != 25 || report.CostAfter != 15 {
		t.Errorf("Expected cost 25 -> 15, got %v -> %v", report.CostBefore, report.CostAfter)
	}
	if report.CostSavingsPct != 40 {
		t.Errorf("Expected 40%% cost savings, got %v", report.CostSavingsPct)
	}
	if report.ParallelizationAfter <= 0 {
		t.Errorf("Expected positive parallelization score, got %v", report.ParallelizationAfter)
	}
}

package engine

import (
	"testing"
)

func TestComputeSignatures_EquivalentNodesMatch(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID: "n1", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum", "k": 1.0},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "n2", Type: TaskTypeCompute, Metadata: map[string]interface{}{"k": 1.0, "op": "sum"},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "n3", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "mul"},
	})
	mustAddNode(t, g, &TaskNode{ID: "n4", Type: TaskTypeIO})

	sigs, err := computeSignatures(g, DefaultMetadataNormalizer)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if sigs["n1"] != sigs["n2"] {
		t.Error("Expected identical signatures for equivalent nodes (key order must not matter)")
	}
	if sigs["n1"] == sigs["n3"] {
		t.Error("Expected different signatures for different metadata")
	}
	if sigs["n3"] == sigs["n4"] {
		t.Error("Expected different signatures for different types")
	}
}

func TestComputeSignatures_DependenciesShapeSignature(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{ID: "root", Type: TaskTypeData})
	mustAddNode(t, g, &TaskNode{ID: "withdep", Type: TaskTypeCompute})
	mustAddNode(t, g, &TaskNode{ID: "nodep", Type: TaskTypeCompute})
	mustAddEdge(t, g, "root", "withdep")

	sigs, err := computeSignatures(g, DefaultMetadataNormalizer)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if sigs["withdep"] == sigs["nodep"] {
		t.Error("Expected dependency set to distinguish signatures")
	}
}

func TestComputeSignatures_CustomNormalizer(t *testing.T) {
	g := NewGraph()
	mustAddNode(t, g, &TaskNode{
		ID: "n1", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum", "trace_id": "x1"},
	})
	mustAddNode(t, g, &TaskNode{
		ID: "n2", Type: TaskTypeCompute, Metadata: map[string]interface{}{"op": "sum", "trace_id": "x2"},
	})

	// A caller-supplied normalizer that only considers the op key.
	opOnly := func(metadata map[string]interface{}) string {
		op, _ := metadata["op"].(string)
		return op
	}

	sigs, err := computeSignatures(g, opOnly)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sigs["n1"] != sigs["n2"] {
		t.Error("Expected custom normalizer to ignore trace_id")
	}

	defaultSigs, err := computeSignatures(g, DefaultMetadataNormalizer)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if defaultSigs["n1"] == defaultSigs["n2"] {
		t.Error("Expected default normalizer to distinguish trace_id")
	}
}

func TestSignatureCache(t *testing.T) {
	cache := NewSignatureCache()
	sig := Signature("abc123")

	if cache.Has(sig) {
		t.Error("Expected empty cache to miss")
	}

	cache.Put(sig, &ExecutionResult{NodeID: "n1"})

	result, ok := cache.Get(sig)
	if !ok || result.NodeID != "n1" {
		t.Errorf("Expected cached result for n1, got %v (ok=%v)", result, ok)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected cache length 1, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 || cache.Has(sig) {
		t.Error("Expected cache to be empty after Clear")
	}
}

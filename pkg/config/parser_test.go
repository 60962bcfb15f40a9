package config

import (
	"testing"
	"time"

	"github.com/taskgrid/taskgrid/pkg/engine"
)

const validSubmission = `
name: nightly-etl
weights:
  duration: 0.5
  cost: 0.3
  resource: 0.2
nodes:
  - id: extract
    type: data
    priority: 5
    estimated_duration: 30s
    estimated_cost: 2.5
    cacheable: true
    idempotent: true
    metadata:
      source: events
  - id: transform
    type: compute
    priority: 5
    depends_on: [extract]
  - id: report
    type: io
    priority: 3
    depends_on: [transform]
    continue_on: [transform]
`

func TestParser_Parse_Valid(t *testing.T) {
	sub, err := NewParser().Parse([]byte(validSubmission))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if sub.Name != "nightly-etl" {
		t.Errorf("Expected name nightly-etl, got %s", sub.Name)
	}
	if len(sub.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(sub.Nodes))
	}
	if sub.Nodes[0].EstimatedDuration.Std() != 30*time.Second {
		t.Errorf("Expected 30s duration, got %v", sub.Nodes[0].EstimatedDuration.Std())
	}
	if sub.Nodes[0].Metadata["source"] != "events" {
		t.Errorf("Expected metadata source=events, got %v", sub.Nodes[0].Metadata)
	}

	weights := sub.CostWeights()
	if weights.Duration != 0.5 || weights.Cost != 0.3 || weights.Resource != 0.2 {
		t.Errorf("Unexpected weights: %+v", weights)
	}
}

func TestParser_Parse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"unknown field",
			"name: x\nnodes:\n  - id: a\n    type: compute\n    prioritee: 5\n",
		},
		{
			"missing nodes",
			"name: x\n",
		},
		{
			"invalid type",
			"name: x\nnodes:\n  - id: a\n    type: quantum\n",
		},
		{
			"priority out of range",
			"name: x\nnodes:\n  - id: a\n    type: compute\n    priority: 99\n",
		},
		{
			"duplicate id",
			"name: x\nnodes:\n  - id: a\n    type: compute\n  - id: a\n    type: io\n",
		},
		{
			"continue_on without depends_on",
			"name: x\nnodes:\n  - id: a\n    type: compute\n  - id: b\n    type: compute\n    continue_on: [a]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewParser().Parse([]byte(tt.yaml)); err == nil {
				t.Error("Expected parse error, got nil")
			}
		})
	}
}

func TestSubmission_BuildGraph(t *testing.T) {
	sub, err := NewParser().Parse([]byte(validSubmission))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	g, err := sub.BuildGraph()
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}

	if g.Len() != 3 {
		t.Errorf("Expected 3 nodes, got %d", g.Len())
	}
	if g.EdgeCount() != 2 {
		t.Errorf("Expected 2 edges, got %d", g.EdgeCount())
	}

	report := g.Node("report")
	if report == nil {
		t.Fatal("Expected node report")
	}
	if len(report.Dependencies) != 1 {
		t.Fatalf("Expected 1 dependency on report, got %d", len(report.Dependencies))
	}
	if report.Dependencies[0].OnFailure != engine.FailurePolicyContinue {
		t.Errorf("Expected continue policy, got %q", report.Dependencies[0].OnFailure)
	}

	transform := g.Node("transform")
	if transform.Dependencies[0].OnFailure != engine.FailurePolicyBlock {
		t.Errorf("Expected block policy, got %q", transform.Dependencies[0].OnFailure)
	}

	if valReport := engine.NewValidator().Validate(g); !valReport.OK() {
		t.Errorf("Expected valid graph, got errors: %v", valReport.Errors)
	}
}

func TestSubmission_BuildGraph_DanglingDependency(t *testing.T) {
	sub := &Submission{
		Name: "x",
		Nodes: []NodeSpec{
			{ID: "a", Type: "compute", DependsOn: []string{"ghost"}},
		},
	}
	if _, err := sub.BuildGraph(); err == nil {
		t.Error("Expected error for dependency on unknown node, got nil")
	}
}

func TestSubmission_DefaultWeights(t *testing.T) {
	sub := &Submission{Name: "x", Nodes: []NodeSpec{{ID: "a", Type: "compute"}}}
	if sub.CostWeights() != engine.DefaultCostWeights() {
		t.Errorf("Expected default weights, got %+v", sub.CostWeights())
	}
}

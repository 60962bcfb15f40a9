package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/taskgrid/taskgrid/pkg/engine"
)

// Parser parses YAML graph submission files into task graphs.
type Parser struct {
	validate *validator.Validate
}

// NewParser creates a new submission parser.
func NewParser() *Parser {
	return &Parser{
		validate: validator.New(),
	}
}

// ParseFile reads and parses a submission file.
func (p *Parser) ParseFile(path string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading submission file: %w", err)
	}
	sub, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sub, nil
}

// Parse parses submission YAML. Unknown fields are rejected so typos in
// descriptors surface as errors instead of silently dropped settings.
func (p *Parser) Parse(data []byte) (*Submission, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sub Submission
	if err := dec.Decode(&sub); err != nil {
		return nil, fmt.Errorf("decoding submission: %w", err)
	}

	if err := p.validate.Struct(&sub); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}
	if err := checkReferences(&sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// checkReferences verifies the intra-submission invariants the struct tags
// cannot express: unique ids and continue_on entries naming real dependencies.
func checkReferences(sub *Submission) error {
	seen := make(map[string]bool, len(sub.Nodes))
	for _, node := range sub.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}
		seen[node.ID] = true
	}

	for _, node := range sub.Nodes {
		deps := make(map[string]bool, len(node.DependsOn))
		for _, dep := range node.DependsOn {
			deps[dep] = true
		}
		for _, c := range node.ContinueOn {
			if !deps[c] {
				return fmt.Errorf("node %q: continue_on entry %q is not in depends_on", node.ID, c)
			}
		}
	}
	return nil
}

// BuildGraph converts a parsed submission into a task graph. The graph still
// needs validation by the engine before optimization or scheduling; this only
// performs the structural conversion.
func (s *Submission) BuildGraph() (*engine.Graph, error) {
	g := engine.NewGraph()

	for i := range s.Nodes {
		spec := &s.Nodes[i]
		node := &engine.TaskNode{
			ID:                spec.ID,
			Type:              engine.TaskType(spec.Type),
			Priority:          spec.Priority,
			EstimatedDuration: spec.EstimatedDuration.Std(),
			EstimatedCost:     spec.EstimatedCost,
			ResourceWeight:    spec.ResourceWeight,
			Cacheable:         spec.Cacheable,
			Idempotent:        spec.Idempotent,
			Metadata:          spec.Metadata,
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	for _, spec := range s.Nodes {
		continueOn := make(map[string]bool, len(spec.ContinueOn))
		for _, c := range spec.ContinueOn {
			continueOn[c] = true
		}
		for _, dep := range spec.DependsOn {
			policy := engine.FailurePolicyBlock
			if continueOn[dep] {
				policy = engine.FailurePolicyContinue
			}
			if err := g.AddEdgeWithPolicy(dep, spec.ID, policy); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

// CostWeights returns the submission's cost weights, or the engine defaults
// when none were specified.
func (s *Submission) CostWeights() engine.CostWeights {
	if s.Weights == nil {
		return engine.DefaultCostWeights()
	}
	return engine.CostWeights{
		Duration: s.Weights.Duration,
		Cost:     s.Weights.Cost,
		Resource: s.Weights.Resource,
	}
}

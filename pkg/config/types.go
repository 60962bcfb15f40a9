package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts both Go duration strings ("30s", "2m") and bare numbers
// (seconds) in submission files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Submission is a parsed graph submission file: an ordered list of node
// descriptors plus optional pipeline settings.
type Submission struct {
	// Name is a human-readable label for the submission.
	Name string `yaml:"name" validate:"required"`

	// Nodes is the ordered list of node descriptors.
	Nodes []NodeSpec `yaml:"nodes" validate:"required,min=1,dive"`

	// Weights overrides the cost-based sorting coefficients, if present.
	Weights *WeightsSpec `yaml:"weights,omitempty"`
}

// NodeSpec is a single node descriptor in a submission file.
type NodeSpec struct {
	// ID is the unique node identifier.
	ID string `yaml:"id" validate:"required"`

	// Type is the task type.
	Type string `yaml:"type" validate:"required,oneof=compute io network model data generic"`

	// DependsOn lists ids of nodes that must complete first.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// ContinueOn lists dependency ids whose permanent failure should not
	// block this node. Every entry must also appear in DependsOn.
	ContinueOn []string `yaml:"continue_on,omitempty"`

	// Priority in [0,10]; higher dispatches sooner.
	Priority int `yaml:"priority" validate:"gte=0,lte=10"`

	// EstimatedDuration is the caller's duration estimate (e.g. "30s").
	EstimatedDuration Duration `yaml:"estimated_duration,omitempty" validate:"gte=0"`

	// EstimatedCost is the caller's cost estimate.
	EstimatedCost float64 `yaml:"estimated_cost,omitempty" validate:"gte=0"`

	// ResourceWeight is the abstract resource scalar.
	ResourceWeight float64 `yaml:"resource_weight,omitempty" validate:"gte=0"`

	// Cacheable marks the result as reusable for equivalent nodes.
	Cacheable bool `yaml:"cacheable,omitempty"`

	// Idempotent marks the node as safe to skip when an equivalent result
	// exists.
	Idempotent bool `yaml:"idempotent,omitempty"`

	// Metadata is the opaque key-value bag.
	Metadata map[string]interface{} `yaml:"metadata,omitempty"`
}

// WeightsSpec overrides the dispatch cost coefficients.
type WeightsSpec struct {
	Duration float64 `yaml:"duration" validate:"gte=0"`
	Cost     float64 `yaml:"cost" validate:"gte=0"`
	Resource float64 `yaml:"resource" validate:"gte=0"`
}

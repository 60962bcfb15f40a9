package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CheckName identifies one of the validator's independent checks.
type CheckName string

const (
	// CheckCycles detects circular dependencies.
	CheckCycles CheckName = "cycles"

	// CheckDependencies detects dependencies on nodes absent from the graph.
	CheckDependencies CheckName = "dependencies"

	// CheckOrphans flags nodes with no incoming or outgoing edges.
	CheckOrphans CheckName = "orphans"

	// CheckSchema verifies node field ranges.
	CheckSchema CheckName = "schema"
)

// Finding is a single validation issue.
type Finding struct {
	// Check is the check that produced this finding.
	Check CheckName `json:"check"`

	// NodeID is the offending node, if applicable.
	NodeID string `json:"node_id,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Cycle holds the dependency cycle path for cycle findings.
	Cycle []string `json:"cycle,omitempty"`
}

// ValidationReport aggregates all findings from a validation run. Errors
// block optimization and scheduling; warnings do not.
type ValidationReport struct {
	// Errors are blocking findings: cycles, dangling dependencies,
	// out-of-range fields.
	Errors []Finding `json:"errors"`

	// Warnings are non-blocking findings: orphan nodes.
	Warnings []Finding `json:"warnings"`

	// CheckedAt is when the validation ran.
	CheckedAt time.Time `json:"checked_at"`
}

// OK returns true when the report contains no blocking errors.
func (r *ValidationReport) OK() bool {
	return len(r.Errors) == 0
}

// Err converts a failing report into a single structural or schema error for
// callers that want an error value. Returns nil when the report is clean.
func (r *ValidationReport) Err() error {
	if r.OK() {
		return nil
	}
	messages := make([]string, 0, len(r.Errors))
	for _, f := range r.Errors {
		messages = append(messages, f.Message)
	}
	first := r.Errors[0]
	if first.Check == CheckSchema {
		return NewSchemaError(strings.Join(messages, "; "), nil).WithCode(ErrCodeValidation)
	}
	return NewStructuralError(strings.Join(messages, "; "), nil).WithCode(ErrCodeValidation)
}

// Validator performs structural and schema checks on a task graph before any
// optimization or scheduling. All four checks run independently and the
// findings are aggregated, so a single validation run reports everything
// wrong with a graph at once.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new graph validator.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// Validate runs all checks against the graph and returns the aggregated
// report. It never short-circuits on the first failure.
func (v *Validator) Validate(g *Graph) *ValidationReport {
	report := &ValidationReport{
		Errors:    make([]Finding, 0),
		Warnings:  make([]Finding, 0),
		CheckedAt: time.Now(),
	}

	v.checkCycles(g, report)
	v.checkDependencies(g, report)
	v.checkOrphans(g, report)
	v.checkSchema(g, report)

	return report
}

// dfsColor is the marking state used by cycle detection.
type dfsColor int

const (
	colorUnvisited dfsColor = iota
	colorInProgress
	colorDone
)

// checkCycles runs a depth-first search with three-color marking. Any edge
// into an in-progress node signals a cycle; the specific cycle path is
// reported for diagnostics.
func (v *Validator) checkCycles(g *Graph, report *ValidationReport) {
	colors := make(map[string]dfsColor, g.Len())

	var visit func(id string, path []string) []string
	visit = func(id string, path []string) []string {
		colors[id] = colorInProgress
		path = append(path, id)

		for _, dependent := range g.Dependents(id) {
			switch colors[dependent] {
			case colorUnvisited:
				if cycle := visit(dependent, path); cycle != nil {
					return cycle
				}
			case colorInProgress:
				start := 0
				for i, pid := range path {
					if pid == dependent {
						start = i
						break
					}
				}
				return append(append([]string(nil), path[start:]...), dependent)
			}
		}

		colors[id] = colorDone
		return nil
	}

	for _, id := range g.NodeIDs() {
		if colors[id] != colorUnvisited {
			continue
		}
		if cycle := visit(id, nil); cycle != nil {
			report.Errors = append(report.Errors, Finding{
				Check:   CheckCycles,
				NodeID:  cycle[0],
				Message: fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")),
				Cycle:   cycle,
			})
		}
	}
}

// checkDependencies verifies that every id in every dependency set names a
// node present in the graph.
func (v *Validator) checkDependencies(g *Graph, report *ValidationReport) {
	for _, id := range g.NodeIDs() {
		for _, dep := range g.Node(id).Dependencies {
			if g.Node(dep.NodeID) == nil {
				report.Errors = append(report.Errors, Finding{
					Check:   CheckDependencies,
					NodeID:  id,
					Message: fmt.Sprintf("node %s depends on non-existent node %s", id, dep.NodeID),
				})
			}
		}
	}
}

// checkOrphans flags nodes with no incoming or outgoing edges. These are
// warnings, not errors: a singleton task may be legitimate.
func (v *Validator) checkOrphans(g *Graph, report *ValidationReport) {
	if g.Len() <= 1 {
		return
	}
	for _, id := range g.NodeIDs() {
		if len(g.Node(id).Dependencies) == 0 && len(g.Dependents(id)) == 0 {
			report.Warnings = append(report.Warnings, Finding{
				Check:   CheckOrphans,
				NodeID:  id,
				Message: fmt.Sprintf("node %s has no dependencies and no dependents", id),
			})
		}
	}
}

// checkSchema verifies field ranges on every node via struct validation:
// priority in [0,10], non-negative estimates and resource weight, known task
// type, known failure policies.
func (v *Validator) checkSchema(g *Graph, report *ValidationReport) {
	for _, id := range g.NodeIDs() {
		node := g.Node(id)

		if err := v.validate.Struct(node); err != nil {
			if invalid, ok := err.(*validator.InvalidValidationError); ok {
				report.Errors = append(report.Errors, Finding{
					Check:   CheckSchema,
					NodeID:  id,
					Message: invalid.Error(),
				})
				continue
			}
			for _, fieldErr := range err.(validator.ValidationErrors) {
				report.Errors = append(report.Errors, Finding{
					Check:  CheckSchema,
					NodeID: id,
					Message: fmt.Sprintf("node %s field %s failed %s check (value %v)",
						id, fieldErr.Field(), fieldErr.Tag(), fieldErr.Value()),
				})
			}
		}

		for _, dep := range node.Dependencies {
			if err := dep.OnFailure.Validate(); err != nil {
				report.Errors = append(report.Errors, Finding{
					Check:   CheckSchema,
					NodeID:  id,
					Message: fmt.Sprintf("node %s edge from %s: %v", id, dep.NodeID, err),
				})
			}
		}
	}
}

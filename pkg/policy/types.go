// Package policy gates computed plans before execution. Policies are Rego
// rules evaluated against the plan and its request context; a deny with
// severity error or critical blocks the run. Builtin policies always load,
// operator rego files stack on top and can be hot-reloaded.
package policy

import (
	"time"

	"github.com/pacrec/pacrec/pkg/engine"
)

// Severity is the weight of a violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is one Rego rule set.
type Policy struct {
	// Name identifies the policy in violations and logs.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego is the policy source. Its package must expose a deny set.
	Rego string `json:"rego"`

	// Severity is the default for violations that do not set their own.
	Severity Severity `json:"severity"`

	// Enabled gates evaluation without unloading.
	Enabled bool `json:"enabled"`

	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is one deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Package is the target the violation refers to, when the rule names
	// one.
	Package string `json:"package,omitempty"`
}

// Result is the outcome of evaluating all policies against a plan.
type Result struct {
	// Allowed is false when any violation has severity error or critical.
	Allowed bool `json:"allowed"`

	Violations        []Violation `json:"violations,omitempty"`
	Warnings          []string    `json:"warnings,omitempty"`
	EvaluatedPolicies []string    `json:"evaluated_policies"`
	EvaluatedAt       time.Time   `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies evaluate against.
type Input struct {
	Plan    *engine.Plan `json:"plan"`
	Context *Context     `json:"context"`
}

// Context carries request facts the plan itself does not.
type Context struct {
	// Elevated reports whether the run executes as root.
	Elevated bool `json:"elevated"`

	// CheckMode reports a plan that will not execute.
	CheckMode bool `json:"check_mode"`

	// Force carries the request's force directive.
	Force bool `json:"force"`

	Timestamp time.Time `json:"timestamp"`
}

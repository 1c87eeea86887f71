package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/pacrec/pacrec/pkg/engine"
	"github.com/pacrec/pacrec/pkg/telemetry"
)

// Gate evaluates policies against plans before they execute.
type Gate struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	log      *telemetry.Logger
}

type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewGate creates a gate with the builtin policies loaded.
func NewGate(log *telemetry.Logger) (*Gate, error) {
	if log == nil {
		log = telemetry.NopLogger()
	}
	g := &Gate{
		policies: make(map[string]*compiledPolicy),
		log:      log.WithField("component", "policy-gate"),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := g.compileAndStore(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile builtin policy %s: %w", builtins[i].Name, err)
		}
	}
	return g, nil
}

// EvaluatePlan runs every enabled policy against the plan. Evaluation errors
// degrade to warnings; a policy that cannot run must not silently admit a
// plan, so the warning surfaces in the result.
func (g *Gate) EvaluatePlan(ctx context.Context, plan *engine.Plan, pctx *Context) (*Result, error) {
	start := time.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()

	if pctx == nil {
		pctx = &Context{}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = time.Now()
	}
	input := &Input{Plan: plan, Context: pctx}

	result := &Result{Allowed: true}
	for _, cp := range g.sortedPolicies() {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := g.evaluate(ctx, cp, input)
		if err != nil {
			g.log.WithError(err).WithField("policy", cp.policy.Name).
				Warn("policy evaluation failed")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError || v.Severity == SeverityCritical {
			result.Allowed = false
			break
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(start)

	g.log.WithField("plan_id", plan.ID).
		Debugf("evaluated %d policies, %d violations, allowed=%v",
			len(result.EvaluatedPolicies), len(result.Violations), result.Allowed)
	return result, nil
}

// Admit evaluates the plan and converts a denial into the engine's error
// form. Warnings pass through.
func (g *Gate) Admit(ctx context.Context, plan *engine.Plan, pctx *Context) ([]string, error) {
	result, err := g.EvaluatePlan(ctx, plan, pctx)
	if err != nil {
		return nil, err
	}

	var warnings []string
	warnings = append(warnings, result.Warnings...)
	for _, v := range result.Violations {
		if v.Severity == SeverityWarning || v.Severity == SeverityInfo {
			warnings = append(warnings, fmt.Sprintf("policy %s: %s", v.Policy, v.Message))
		}
	}

	if !result.Allowed {
		var denied []string
		for _, v := range result.Violations {
			if v.Severity == SeverityError || v.Severity == SeverityCritical {
				denied = append(denied, v.Message)
			}
		}
		return warnings, engine.NewPolicyDeniedError(strings.Join(denied, "; "))
	}
	return warnings, nil
}

// LoadPolicies compiles and registers rego files on top of the builtins.
// A policy with a known name replaces the existing one.
func (g *Gate) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(g.log)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return g.Replace(ctx, policies)
}

// Replace registers the given policies, overwriting same-named entries.
func (g *Gate) Replace(ctx context.Context, policies []Policy) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range policies {
		if err := g.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	g.log.Infof("loaded %d policies", len(policies))
	return nil
}

// SetEnabled toggles one policy by name.
func (g *Gate) SetEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp, ok := g.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// ListPolicies returns all registered policies sorted by name.
func (g *Gate) ListPolicies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	policies := make([]Policy, 0, len(g.policies))
	for _, cp := range g.sortedPolicies() {
		policies = append(policies, *cp.policy)
	}
	return policies
}

func (g *Gate) sortedPolicies() []*compiledPolicy {
	out := make([]*compiledPolicy, 0, len(g.policies))
	for _, cp := range g.policies {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].policy.Name < out[j].policy.Name })
	return out
}

func (g *Gate) compileAndStore(ctx context.Context, policy *Policy) error {
	if _, err := ast.ParseModule(policy.Name, policy.Rego); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	query := fmt.Sprintf("data.%s.deny", regoPackageName(policy.Rego))
	prepared, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	g.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    prepared,
		compiled: time.Now(),
	}
	return nil
}

func (g *Gate) evaluate(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, makeViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

func makeViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}
	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if pkg, ok := v["package"].(string); ok {
			violation.Package = pkg
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}
	return violation
}

// regoPackageName extracts the package path from a policy source.
func regoPackageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "pacrec.policies"
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pacrec/pacrec/pkg/runner"
	"github.com/pacrec/pacrec/pkg/telemetry"
)

// stateEquivalents maps a desired state to the past participle used in
// result messages.
var stateEquivalents = map[DesiredState]string{
	StateAbsent:  "removed",
	StatePresent: "installed",
	StateLatest:  "updated",
}

// Admission reviews a computed plan before execution. Returned warnings are
// carried into the outcome; a returned error rejects the run.
type Admission interface {
	Admit(ctx context.Context, plan *Plan, req *Request, elevated bool) ([]string, error)
}

// Config wires an Engine together. All collaborators are injected so tests
// can substitute every process boundary.
type Config struct {
	Runner     runner.Runner
	Classifier *Classifier
	Planner    *Planner
	Adapters   []Adapter
	Caps       Capabilities
	Admission  Admission
	Logger     *telemetry.Logger
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer
}

// Engine orchestrates one reconciliation run: classify, plan, execute each
// planned action through the right adapter, and aggregate the outcome.
// Actions execute strictly sequentially in plan order; later actions may
// depend on side effects of earlier ones.
type Engine struct {
	run        runner.Runner
	classifier *Classifier
	planner    *Planner
	adapters   map[string]Adapter
	caps       Capabilities
	admission  Admission
	log        *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
}

// New creates an engine from its wired collaborators.
func New(cfg Config) *Engine {
	adapters := make(map[string]Adapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapters[a.Ref().String()] = a
	}
	log := cfg.Logger
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Engine{
		run:        cfg.Runner,
		classifier: cfg.Classifier,
		planner:    cfg.Planner,
		adapters:   adapters,
		caps:       cfg.Caps,
		admission:  cfg.Admission,
		log:        log,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}
}

// Plan validates a request, classifies its packages and computes the action
// plan. Nothing is executed and nothing on the system changes.
func (e *Engine) Plan(ctx context.Context, req *Request) (*Plan, []Classified, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	requests := make([]PackageRequest, 0, len(req.Names))
	for _, name := range req.Names {
		requests = append(requests, NewPackageRequest(name))
	}

	classified, err := e.classifier.ClassifyAll(ctx, requests, req.State)
	if err != nil {
		return nil, nil, err
	}

	plan, err := e.planner.BuildPlan(classified, req, e.caps, e.run.Elevated())
	if err != nil {
		return nil, nil, err
	}

	e.log.WithField("plan_id", plan.ID).
		Infof("planned %d actions (%d no-op targets)", len(plan.Actions), plan.Summary.NoChange)
	return plan, classified, nil
}

// Run performs a full reconciliation: plan, then execute, unless the
// request is in check mode, in which case the would-be outcome is reported
// without spawning anything.
func (e *Engine) Run(ctx context.Context, req *Request) (*Outcome, error) {
	start := time.Now()
	ctx, endRequest := e.startSpan(ctx, "reconcile.request")

	plan, _, err := e.Plan(ctx, req)
	if err != nil {
		e.observeRun("rejected", time.Since(start))
		endRequest(err)
		return nil, err
	}

	var admissionWarnings []string
	if e.admission != nil {
		warnings, err := e.admission.Admit(ctx, plan, req, e.run.Elevated())
		if err != nil {
			e.observeRun("rejected", time.Since(start))
			endRequest(err)
			return nil, err
		}
		admissionWarnings = warnings
	}

	if req.CheckMode {
		outcome := e.checkOutcome(req, plan)
		outcome.Warnings = append(admissionWarnings, outcome.Warnings...)
		e.observeRun("check", time.Since(start))
		endRequest(nil)
		return outcome, nil
	}

	outcome, err := e.Execute(ctx, req, plan)
	if outcome != nil {
		outcome.Warnings = append(admissionWarnings, outcome.Warnings...)
	}
	status := "succeeded"
	if outcome != nil && outcome.Failed {
		status = "failed"
	}
	e.observeRun(status, time.Since(start))
	endRequest(err)
	return outcome, err
}

// Execute runs a previously computed plan. No-op actions are skipped
// entirely. The first failing action halts the run, except cache-refresh
// failures with live actions still pending, which degrade to a warning: a
// stale cache is non-fatal to proceeding with best-effort installs. A failed
// refresh with nothing left to run fails the run.
func (e *Engine) Execute(ctx context.Context, req *Request, plan *Plan) (*Outcome, error) {
	outcome := &Outcome{RunID: uuid.New().String()}
	log := e.log.WithField("run_id", outcome.RunID)
	ctx, endRun := e.startRunSpan(ctx, outcome.RunID)

	if err := e.checkPreconditions(plan); err != nil {
		outcome.Failed = true
		outcome.Msg = err.Error()
		endRun(err)
		return outcome, err
	}

	var runErr error
	for i := range plan.Actions {
		action := &plan.Actions[i]
		if action.NoOp {
			continue
		}

		adapter, ok := e.adapters[action.Backend.String()]
		if !ok {
			runErr = NewExecutionError(ErrCodeInternal,
				"no adapter wired for backend "+action.Backend.String(), nil)
			break
		}

		log.WithField("action_id", action.ID).
			Infof("executing %s via %s", action.Operation, action.Backend)

		actionCtx, endAction := e.startActionSpan(ctx, action)
		result, err := adapter.Apply(actionCtx, action)
		endAction(err)
		if result != nil {
			if len(result.Targets) == 0 {
				for _, t := range action.Targets {
					result.Targets = append(result.Targets, t.PackageName())
				}
			}
			outcome.Results = append(outcome.Results, *result)
			if result.Changed {
				outcome.Changed = true
			}
			if result.Handler != "" &&
				(action.Operation == OpInstall || action.Operation == OpUpgrade || action.Operation == OpSystemUpgrade) {
				outcome.Handler = result.Handler
			}
			e.observeAction(action, result)
		}

		if err != nil {
			if action.Operation == OpRefreshCache && remainingWork(plan.Actions[i+1:]) {
				warning := "cache refresh failed, continuing with stale metadata: " + err.Error()
				outcome.Warnings = append(outcome.Warnings, warning)
				log.Warn(warning)
				continue
			}
			runErr = err
			break
		}
	}

	if runErr != nil {
		outcome.Failed = true
		outcome.Msg = runErr.Error()
		endRun(runErr)
		return outcome, runErr
	}

	outcome.Msg = e.composeMessage(req, plan, outcome)
	endRun(nil)
	return outcome, nil
}

// remainingWork reports whether any non-noop action is left in the tail of
// the plan.
func remainingWork(actions []PlannedAction) bool {
	for _, a := range actions {
		if !a.NoOp {
			return true
		}
	}
	return false
}

// checkPreconditions enforces hard execution preconditions before any
// process spawns. The one resource-safety rule owned by the engine is
// privilege de-escalation for source builds: building from source must not
// run with an elevated identity.
func (e *Engine) checkPreconditions(plan *Plan) error {
	for _, action := range plan.Actions {
		if action.NoOp {
			continue
		}
		if action.Backend.Kind == BackendSourceBuild && e.run.Elevated() {
			return NewPermissionDeniedError(
				"could not build packages from source with an elevated identity")
		}
	}
	return nil
}

// checkOutcome reports what a run would change, without executing.
func (e *Engine) checkOutcome(req *Request, plan *Plan) *Outcome {
	outcome := &Outcome{
		RunID:   uuid.New().String(),
		Changed: plan.Changes(),
	}

	switch {
	case len(req.Names) > 0:
		changes := plan.Summary.ToInstall + plan.Summary.ToUpgrade + plan.Summary.ToRemove
		outcome.Msg = nameResultMessage(req.State, changes, plan.Summary.NoChange, true)
	case req.Upgrade:
		outcome.Msg = "system would be upgraded"
	default:
		outcome.Msg = "master package databases would be refreshed"
	}
	return outcome
}

// composeMessage renders the run result in the caller's terms.
func (e *Engine) composeMessage(req *Request, plan *Plan, outcome *Outcome) string {
	switch {
	case len(req.Names) > 0:
		changes := 0
		for _, res := range outcome.Results {
			if !res.Changed {
				continue
			}
			for _, action := range plan.Actions {
				if action.ID == res.ActionID {
					changes += len(action.Targets)
				}
			}
		}
		return nameResultMessage(req.State, changes, plan.Summary.NoChange, false)

	case req.Upgrade:
		for _, res := range outcome.Results {
			if res.Operation == OpSystemUpgrade {
				return res.Message
			}
		}
		return "system is up to date"

	case req.UpdateCache:
		if outcome.Changed {
			return "master package databases have been refreshed"
		}
		return "master package databases are already up to date"
	}
	return "no action has been taken"
}

// nameResultMessage mirrors the result phrasing of the name option.
func nameResultMessage(state DesiredState, changes, unchanged int, check bool) string {
	verb := stateEquivalents[state]
	tense := "has been"
	multiTense := "have been"
	if check {
		tense = "would be"
		multiTense = "would be"
	}

	switch {
	case changes > 1:
		return fmt.Sprintf("%d packages %s %s", changes, multiTense, verb)
	case changes == 1:
		return fmt.Sprintf("package %s %s", tense, verb)
	case unchanged == 1:
		return fmt.Sprintf("package is already %s", verb)
	default:
		return fmt.Sprintf("all packages are already %s", verb)
	}
}

// startSpan opens a tracer span. The returned finish func records the final
// error and ends the span; with no tracer wired both are no-ops, so call
// sites stay unconditional.
func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := e.tracer.Start(ctx, name)
	return ctx, func(err error) {
		telemetry.RecordError(span, err)
		span.End()
	}
}

func (e *Engine) startRunSpan(ctx context.Context, runID string) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := e.tracer.StartRunSpan(ctx, runID)
	return ctx, func(err error) {
		telemetry.RecordError(span, err)
		span.End()
	}
}

func (e *Engine) startActionSpan(ctx context.Context, action *PlannedAction) (context.Context, func(error)) {
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := e.tracer.StartActionSpan(ctx, action.ID, action.Backend.String(), string(action.Operation))
	return ctx, func(err error) {
		telemetry.RecordError(span, err)
		span.End()
	}
}

func (e *Engine) observeRun(status string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveRun(status, d)
	}
}

func (e *Engine) observeAction(action *PlannedAction, result *ActionResult) {
	if e.metrics != nil {
		e.metrics.ObserveAction(action.Backend.String(), string(action.Operation), result.Changed, result.Duration)
	}
}

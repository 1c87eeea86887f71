// Package envelope defines the JSON task envelope pacrec exchanges with a
// host automation framework: a structured request on stdin, a structured
// result on stdout. The envelope performs the request-level validation; the
// engine re-validates before planning.
package envelope

import (
	"github.com/go-playground/validator/v10"

	"github.com/pacrec/pacrec/pkg/engine"
)

// TaskRequest is the external input contract.
type TaskRequest struct {
	// Names are the packages to reconcile. Mutually exclusive with
	// Upgrade.
	Names []string `json:"name,omitempty" validate:"omitempty,dive,required"`

	// State is the desired package state. Defaults to present.
	State string `json:"state,omitempty" validate:"omitempty,oneof=present latest absent"`

	// Upgrade requests a whole-system upgrade.
	Upgrade bool `json:"upgrade"`

	// UpdateCache refreshes the master package databases.
	UpdateCache bool `json:"update_cache"`

	// Force enforces the operation-specific strict behavior.
	Force bool `json:"force"`

	// ExtraArgs is passed to the package manager verbatim.
	ExtraArgs string `json:"extra_args,omitempty"`

	// CheckMode reports the would-be result without changing anything.
	CheckMode bool `json:"check_mode"`
}

var taskValidator = validator.New()

// Validate applies the structural rules of the input contract.
func (t *TaskRequest) Validate() error {
	if err := taskValidator.Struct(t); err != nil {
		return engine.NewInvalidInputError(err.Error())
	}
	if len(t.Names) > 0 && t.Upgrade {
		return engine.NewInvalidInputError("name and upgrade are mutually exclusive")
	}
	if len(t.Names) == 0 && !t.Upgrade && !t.UpdateCache {
		return engine.NewInvalidInputError("one of name, upgrade or update_cache is required")
	}
	return nil
}

// EngineRequest converts the envelope request into the engine's form.
func (t *TaskRequest) EngineRequest() *engine.Request {
	state := engine.DesiredState(t.State)
	if state == "" {
		state = engine.StatePresent
	}
	return &engine.Request{
		Names:       t.Names,
		State:       state,
		Upgrade:     t.Upgrade,
		UpdateCache: t.UpdateCache,
		Force:       t.Force,
		ExtraArgs:   t.ExtraArgs,
		CheckMode:   t.CheckMode,
	}
}

// TaskResult is the external output contract.
type TaskResult struct {
	Changed bool   `json:"changed"`
	Failed  bool   `json:"failed"`
	Msg     string `json:"msg"`

	// Handler is the executable that performed install or upgrade
	// actions, when any ran.
	Handler string `json:"handler,omitempty"`

	// Code is the error code on failure.
	Code string `json:"code,omitempty"`

	// Warnings carries non-fatal degradations.
	Warnings []string `json:"warnings,omitempty"`
}

// ResultFromOutcome maps an engine outcome onto the output contract.
func ResultFromOutcome(outcome *engine.Outcome) *TaskResult {
	return &TaskResult{
		Changed:  outcome.Changed,
		Failed:   outcome.Failed,
		Msg:      outcome.Msg,
		Handler:  outcome.Handler,
		Warnings: outcome.Warnings,
	}
}

// ResultFromError maps a run error onto the output contract.
func ResultFromError(err error) *TaskResult {
	result := &TaskResult{
		Failed: true,
		Msg:    err.Error(),
	}
	if re, ok := err.(*engine.ReconcileError); ok {
		result.Code = re.Code
	}
	return result
}

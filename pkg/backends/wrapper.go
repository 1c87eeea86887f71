package backends

import (
	"context"
	"strings"
	"time"

	"github.com/pacrec/pacrec/pkg/engine"
	"github.com/pacrec/pacrec/pkg/runner"
)

// wrapperFlags holds the non-interactive flag set per wrapper kind and
// operation. Wrappers are assumed prompt-free under these flags; adding a
// new kind means adding one entry here and one constant in the engine
// enumeration.
var wrapperFlags = map[engine.WrapperKind]struct {
	install []string
	upgrade []string
}{
	engine.WrapperYay: {
		install: []string{"-S", "--needed", "--noconfirm", "--noprogressbar", "--cleanafter"},
		upgrade: []string{"-S", "-u", "-q", "--noconfirm"},
	},
	engine.WrapperPikaur: {
		install: []string{"-S", "--needed", "--noconfirm", "--noprogressbar", "--noedit"},
		upgrade: []string{"-S", "-u", "-q", "--noconfirm"},
	},
	engine.WrapperTrizen: {
		install: []string{"-S", "--needed", "--noconfirm", "--noprogressbar", "--noedit"},
		upgrade: []string{"-S", "-u", "-q", "--noconfirm"},
	},
}

// Wrapper drives one AUR-capable pacman wrapper. Wrappers manage official
// and community packages through one interface and escalate privileges
// internally, so they must run as a regular user; an elevated identity is a
// privilege mismatch, not a convenience.
type Wrapper struct {
	run  runner.Runner
	kind engine.WrapperKind
	path string
}

// NewWrapper creates an adapter for one wrapper kind. path is the resolved
// wrapper executable.
func NewWrapper(r runner.Runner, kind engine.WrapperKind, path string) *Wrapper {
	return &Wrapper{run: r, kind: kind, path: path}
}

// Ref implements engine.Adapter.
func (w *Wrapper) Ref() engine.BackendRef {
	return engine.BackendRef{Kind: engine.BackendWrapper, Wrapper: w.kind}
}

// Apply implements engine.Adapter.
func (w *Wrapper) Apply(ctx context.Context, action *engine.PlannedAction) (*engine.ActionResult, error) {
	start := time.Now()
	result := &engine.ActionResult{
		ActionID:  action.ID,
		Backend:   w.Ref(),
		Operation: action.Operation,
		Handler:   w.path,
	}

	if w.run.Elevated() {
		return result, engine.NewPermissionDeniedError(
			"could not run " + string(w.kind) + " with an elevated identity")
	}

	var err error
	switch action.Operation {
	case engine.OpInstall, engine.OpUpgrade:
		err = w.install(ctx, action, result)
	case engine.OpRefreshCache:
		err = w.refresh(ctx, action, result)
	case engine.OpSystemUpgrade:
		err = w.systemUpgrade(ctx, action, result)
	default:
		err = engine.NewExecutionError(engine.ErrCodeInternal,
			"operation not supported by the wrapper backend", nil).
			WithOperation(string(action.Operation))
	}

	result.Duration = time.Since(start)
	return result, err
}

func (w *Wrapper) install(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	args := append([]string{}, wrapperFlags[w.kind].install...)
	if action.Force {
		args = dropFlag(args, "--needed")
	}
	args = append(args, splitExtraArgs(action.ExtraArgs)...)
	args = append(args, targetNames(action.Targets)...)

	res, err := w.run.Run(ctx, runner.Command{Path: w.path, Args: args})
	if err != nil {
		return engine.NewBackendNotFoundError(w.path, err)
	}
	if res.ExitCode != 0 {
		return interpretFailure(action.Operation, action.Targets, res.Stderr)
	}

	result.Changed = !nothingToDo(res.Stdout)
	return nil
}

func (w *Wrapper) refresh(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	args := []string{"-S", "-y"}
	if action.Force {
		args = append(args, "-y")
	}
	args = append(args, splitExtraArgs(action.ExtraArgs)...)

	res, err := w.run.Run(ctx, runner.Command{Path: w.path, Args: args})
	if err != nil {
		return engine.NewBackendNotFoundError(w.path, err)
	}
	if res.ExitCode != 0 {
		return engine.NewExecutionError(engine.ErrCodeInternal,
			"could not refresh the master package databases", nil).
			WithOperation(string(engine.OpRefreshCache)).
			WithStderr(res.Stderr)
	}

	result.Changed = !databasesUpToDate(res.Stdout)
	result.Message = "master package databases have been refreshed"
	return nil
}

func (w *Wrapper) systemUpgrade(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	pending, err := w.run.Run(ctx, runner.Command{Path: w.path, Args: []string{"-Q", "-u"}})
	if err != nil {
		return engine.NewBackendNotFoundError(w.path, err)
	}
	if pending.ExitCode != 0 || strings.TrimSpace(pending.Stdout) == "" {
		result.Message = "system is up to date"
		return nil
	}

	args := append([]string{}, wrapperFlags[w.kind].upgrade...)
	args = append(args, splitExtraArgs(action.ExtraArgs)...)

	res, err := w.run.Run(ctx, runner.Command{Path: w.path, Args: args})
	if err != nil {
		return engine.NewBackendNotFoundError(w.path, err)
	}
	if res.ExitCode != 0 {
		return engine.NewExecutionError(engine.ErrCodeInternal,
			"could not upgrade the system", nil).
			WithOperation(string(engine.OpSystemUpgrade)).
			WithStderr(res.Stderr)
	}

	result.Changed = !nothingToDo(res.Stdout)
	result.Message = "system has been upgraded"
	return nil
}

// dropFlag removes one flag occurrence from an argument list.
func dropFlag(args []string, flag string) []string {
	out := args[:0]
	for _, a := range args {
		if a != flag {
			out = append(out, a)
		}
	}
	return out
}

package backends

import (
	"context"
	"strings"
	"time"

	"github.com/pacrec/pacrec/pkg/engine"
	"github.com/pacrec/pacrec/pkg/runner"
)

// Pacman drives the primary backend. It handles official repository
// packages, locally supplied package files, removals, cache refresh and the
// system upgrade. Mutating invocations request elevation; the runner decides
// how to provide it.
type Pacman struct {
	run  runner.Runner
	path string
}

// NewPacman creates the primary adapter. path is the resolved pacman
// executable.
func NewPacman(r runner.Runner, path string) *Pacman {
	return &Pacman{run: r, path: path}
}

// Ref implements engine.Adapter.
func (p *Pacman) Ref() engine.BackendRef {
	return engine.BackendRef{Kind: engine.BackendPrimary}
}

// Apply implements engine.Adapter.
func (p *Pacman) Apply(ctx context.Context, action *engine.PlannedAction) (*engine.ActionResult, error) {
	start := time.Now()
	result := &engine.ActionResult{
		ActionID:  action.ID,
		Backend:   p.Ref(),
		Operation: action.Operation,
		Handler:   p.path,
	}

	var err error
	switch action.Operation {
	case engine.OpRefreshCache:
		err = p.refresh(ctx, action, result)
	case engine.OpInstall, engine.OpUpgrade:
		err = p.install(ctx, action, result)
	case engine.OpRemove:
		err = p.remove(ctx, action, result)
	case engine.OpSystemUpgrade:
		err = p.systemUpgrade(ctx, action, result)
	default:
		err = engine.NewExecutionError(engine.ErrCodeInternal,
			"operation not supported by the primary backend", nil).
			WithOperation(string(action.Operation))
	}

	result.Duration = time.Since(start)
	return result, err
}

// refresh runs pacman -Sy. Force re-downloads every database even when it
// looks current (-Syy).
func (p *Pacman) refresh(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	args := []string{"-S", "-y"}
	if action.Force {
		args = append(args, "-y")
	}
	args = append(args, splitExtraArgs(action.ExtraArgs)...)

	res, err := p.run.Run(ctx, runner.Command{Path: p.path, Args: args, Elevate: true})
	if err != nil {
		return engine.NewBackendNotFoundError(p.path, err)
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

// install runs pacman -S for repository packages and pacman -U for local
// package files; a mixed batch becomes two invocations. Force drops
// --needed so pacman re-verifies the upstream package details instead of
// trusting the local database.
func (p *Pacman) install(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	var repo, files []engine.PackageRequest
	for _, t := range action.Targets {
		if t.IsLocalPath {
			files = append(files, t)
		} else {
			repo = append(repo, t)
		}
	}

	for _, batch := range []struct {
		flag    string
		targets []engine.PackageRequest
	}{
		{"-S", repo},
		{"-U", files},
	} {
		if len(batch.targets) == 0 {
			continue
		}

		args := []string{batch.flag}
		if !action.Force {
			args = append(args, "--needed")
		}
		args = append(args, "--noconfirm", "--noprogressbar")
		args = append(args, splitExtraArgs(action.ExtraArgs)...)
		args = append(args, targetNames(batch.targets)...)

		res, err := p.run.Run(ctx, runner.Command{Path: p.path, Args: args, Elevate: true})
		if err != nil {
			return engine.NewBackendNotFoundError(p.path, err)
		}
		if res.ExitCode != 0 {
			return interpretFailure(action.Operation, batch.targets, res.Stderr)
		}
		if !nothingToDo(res.Stdout) {
			result.Changed = true
		}
	}

	return nil
}

// remove runs pacman -R. Force disables dependency-safety checks (-Rdd),
// removing the package even when others depend on it.
func (p *Pacman) remove(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	args := []string{"-R"}
	if action.Force {
		args = append(args, "-d", "-d")
	}
	args = append(args, "--noconfirm", "--noprogressbar")
	args = append(args, splitExtraArgs(action.ExtraArgs)...)

	names := make([]string, 0, len(action.Targets))
	for _, t := range action.Targets {
		names = append(names, t.PackageName())
	}
	args = append(args, names...)

	res, err := p.run.Run(ctx, runner.Command{Path: p.path, Args: args, Elevate: true})
	if err != nil {
		return engine.NewBackendNotFoundError(p.path, err)
	}
	if res.ExitCode != 0 {
		return engine.NewExecutionError(batchFailureCode(action.Targets),
			"failed to remove "+strings.Join(names, " "), nil).
			WithOperation(string(engine.OpRemove)).
			WithStderr(res.Stderr)
	}

	result.Changed = !nothingToDo(res.Stdout)
	return nil
}

// systemUpgrade checks for pending upgrades first and only then runs the
// upgrade transaction, so an up-to-date system spawns a single read-only
// query.
func (p *Pacman) systemUpgrade(ctx context.Context, action *engine.PlannedAction, result *engine.ActionResult) error {
	pending, err := p.run.Run(ctx, runner.Command{Path: p.path, Args: []string{"-Q", "-u"}})
	if err != nil {
		return engine.NewBackendNotFoundError(p.path, err)
	}
	if pending.ExitCode != 0 || strings.TrimSpace(pending.Stdout) == "" {
		result.Message = "system is up to date"
		return nil
	}

	args := []string{"-S", "-u", "-q", "--noconfirm"}
	args = append(args, splitExtraArgs(action.ExtraArgs)...)

	res, err := p.run.Run(ctx, runner.Command{Path: p.path, Args: args, Elevate: true})
	if err != nil {
		return engine.NewBackendNotFoundError(p.path, err)
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

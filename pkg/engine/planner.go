package engine

import (
	"time"

	"github.com/google/uuid"
)

// Planner turns classified requests into an ordered action plan. It is
// stateless across runs and driven purely by the derived facts it is given;
// it never touches the system itself.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// batchKey groups requests that can share one backend invocation.
type batchKey struct {
	backend BackendRef
	op      Operation
	noop    bool
}

// BuildPlan computes the minimal ordered action list for a request.
//
// The emitted order is total and fixed: cache refresh first, then removals,
// then installs and upgrades grouped by backend (primary, wrapper,
// source-build), then the system upgrade. Later actions may depend on side
// effects of earlier ones, so the order is part of the contract, not an
// implementation accident.
func (p *Planner) BuildPlan(classified []Classified, req *Request, caps Capabilities, elevated bool) (*Plan, error) {
	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}

	if req.UpdateCache {
		refresh := PlannedAction{
			ID:        uuid.New().String(),
			Backend:   p.privilegedBackend(caps, elevated),
			Operation: OpRefreshCache,
			Force:     req.Force,
		}
		// The escape hatch reaches the refresh command only when the
		// refresh is the sole directive; otherwise it belongs to the
		// install/remove/upgrade commands that follow.
		if len(req.Names) == 0 && !req.Upgrade {
			refresh.ExtraArgs = req.ExtraArgs
		}
		plan.Actions = append(plan.Actions, refresh)
	}

	batches := make(map[batchKey][]PackageRequest)
	var order []batchKey

	appendBatch := func(key batchKey, target PackageRequest) {
		if _, seen := batches[key]; !seen {
			order = append(order, key)
		}
		batches[key] = append(batches[key], target)
	}

	for _, cls := range classified {
		op, backend, noop := p.decide(cls, req.State, req.Force, caps)
		appendBatch(batchKey{backend: backend, op: op, noop: noop}, cls.Request)

		switch {
		case noop:
			plan.Summary.NoChange++
		case op == OpInstall:
			plan.Summary.ToInstall++
		case op == OpUpgrade:
			plan.Summary.ToUpgrade++
		case op == OpRemove:
			plan.Summary.ToRemove++
		}
	}

	for _, key := range p.sortBatches(order) {
		plan.Actions = append(plan.Actions, PlannedAction{
			ID:        uuid.New().String(),
			Backend:   key.backend,
			Operation: key.op,
			Targets:   batches[key],
			NoOp:      key.noop,
			Force:     req.Force,
			ExtraArgs: req.ExtraArgs,
		})
	}

	if req.Upgrade {
		plan.Actions = append(plan.Actions, PlannedAction{
			ID:        uuid.New().String(),
			Backend:   p.privilegedBackend(caps, elevated),
			Operation: OpSystemUpgrade,
			Force:     req.Force,
			ExtraArgs: req.ExtraArgs,
		})
	}

	return plan, nil
}

// decide applies the per-request decision table.
func (p *Planner) decide(cls Classified, state DesiredState, force bool, caps Capabilities) (Operation, BackendRef, bool) {
	installBackend := p.installBackend(cls.Provenance, caps)

	switch state {
	case StateAbsent:
		// Removal always goes through the primary backend's database,
		// whatever built the package.
		return OpRemove, BackendRef{Kind: BackendPrimary}, !cls.Installed.Installed

	case StateLatest:
		if !cls.Installed.Installed {
			return OpInstall, installBackend, false
		}
		// An unknown repository version counts as current: acting on it
		// could only reinstall what is already there. Force overrides
		// and re-checks against refreshed metadata.
		current := cls.LatestVersion == "" || cls.Installed.Version == cls.LatestVersion
		return OpUpgrade, installBackend, current && !force

	default: // StatePresent
		return OpInstall, installBackend, cls.Installed.Installed
	}
}

// installBackend selects which backend installs a package of the given
// provenance: primary for official and local-file packages, the best
// available wrapper for community packages, and the source-build fallback
// when no wrapper is installed.
func (p *Planner) installBackend(prov Provenance, caps Capabilities) BackendRef {
	if prov != ProvenanceCommunity {
		return BackendRef{Kind: BackendPrimary}
	}
	if kind, ok := caps.Best(); ok {
		return BackendRef{Kind: BackendWrapper, Wrapper: kind}
	}
	return BackendRef{Kind: BackendSourceBuild}
}

// privilegedBackend selects who refreshes the cache or upgrades the system:
// pacman when the run is elevated, otherwise a wrapper when one is installed
// (wrappers escalate internally), otherwise pacman anyway and the runner
// escalates.
func (p *Planner) privilegedBackend(caps Capabilities, elevated bool) BackendRef {
	if !elevated {
		if kind, ok := caps.Best(); ok {
			return BackendRef{Kind: BackendWrapper, Wrapper: kind}
		}
	}
	return BackendRef{Kind: BackendPrimary}
}

// sortBatches fixes the total emission order: removals before installs and
// upgrades, then by backend (primary, wrapper, source-build), preserving
// first-appearance order within a group.
func (p *Planner) sortBatches(keys []batchKey) []batchKey {
	rank := func(k batchKey) int {
		if k.op == OpRemove {
			return 0
		}
		switch k.backend.Kind {
		case BackendPrimary:
			return 1
		case BackendWrapper:
			return 2
		default:
			return 3
		}
	}

	sorted := make([]batchKey, 0, len(keys))
	for pass := 0; pass <= 3; pass++ {
		for _, k := range keys {
			if rank(k) == pass {
				sorted = append(sorted, k)
			}
		}
	}
	return sorted
}

package engine

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DesiredState is the state a package should end up in.
type DesiredState string

const (
	// StatePresent requires the package installed at any version.
	StatePresent DesiredState = "present"

	// StateLatest requires the package installed at the newest available
	// version.
	StateLatest DesiredState = "latest"

	// StateAbsent requires the package not installed.
	StateAbsent DesiredState = "absent"
)

// Provenance identifies which repository family a package name belongs to.
// It is derived by the classifier, never user-supplied.
type Provenance string

const (
	// ProvenanceOfficial marks names found in pacman's sync databases.
	ProvenanceOfficial Provenance = "official"

	// ProvenanceLocalFile marks names that are paths to package files.
	ProvenanceLocalFile Provenance = "local-file"

	// ProvenanceCommunity marks names assumed to exist only in the AUR.
	// Existence is verified at execution time by the chosen backend.
	ProvenanceCommunity Provenance = "community"
)

// WrapperKind enumerates the supported pacman wrappers. Adding a kind means
// extending this enumeration and the wrapper adapter's flag table; the
// planner is untouched.
type WrapperKind string

const (
	WrapperYay    WrapperKind = "yay"
	WrapperPikaur WrapperKind = "pikaur"
	WrapperTrizen WrapperKind = "trizen"
)

// WrapperPriority is the fixed selection order when several wrappers are
// installed. First listed, first chosen; deterministic across hosts.
var WrapperPriority = []WrapperKind{WrapperYay, WrapperPikaur, WrapperTrizen}

// BackendKind distinguishes the three backend families.
type BackendKind string

const (
	// BackendPrimary is pacman itself: official repositories, local
	// package files, removals, cache refresh.
	BackendPrimary BackendKind = "primary"

	// BackendWrapper is one of the AUR-capable pacman wrappers.
	BackendWrapper BackendKind = "wrapper"

	// BackendSourceBuild is the manual fetch-build-install fallback used
	// when a community package is requested and no wrapper is installed.
	BackendSourceBuild BackendKind = "source-build"
)

// BackendRef identifies a concrete backend a planned action must run on.
type BackendRef struct {
	Kind    BackendKind `json:"kind"`
	Wrapper WrapperKind `json:"wrapper,omitempty"`
}

// String renders the reference for logs and policy input.
func (b BackendRef) String() string {
	if b.Kind == BackendWrapper {
		return string(b.Kind) + ":" + string(b.Wrapper)
	}
	return string(b.Kind)
}

// Operation is a backend-level verb.
type Operation string

const (
	OpInstall       Operation = "install"
	OpUpgrade       Operation = "upgrade"
	OpRemove        Operation = "remove"
	OpRefreshCache  Operation = "refresh-cache"
	OpSystemUpgrade Operation = "system-upgrade"
)

// localPackagePattern matches names that denote local package files.
var localPackagePattern = regexp.MustCompile(`^.+\.pkg\.tar(\.(gz|bz2|xz|lrz|lzo|Z|zst))?$`)

// packageVersionSuffix strips the -<version>-<rel>-<arch> tail from a package
// file basename, leaving the registered package name.
var packageVersionSuffix = regexp.MustCompile(`-[0-9].*$`)

// PackageRequest is one user-specified package name. Immutable after
// construction.
type PackageRequest struct {
	// Name is the raw user-supplied name or file path.
	Name string `json:"name"`

	// IsLocalPath reports that Name syntactically denotes a package file.
	IsLocalPath bool `json:"is_local_path"`
}

// NewPackageRequest builds a request from a raw name, detecting the
// local-file form.
func NewPackageRequest(name string) PackageRequest {
	return PackageRequest{
		Name:        name,
		IsLocalPath: localPackagePattern.MatchString(name),
	}
}

// PackageName returns the name registered in the local package database: the
// raw name for repository packages, the basename stripped of its version
// suffix for local files.
func (p PackageRequest) PackageName() string {
	if !p.IsLocalPath {
		return p.Name
	}
	base := p.Name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return packageVersionSuffix.ReplaceAllString(base, "")
}

// InstalledInfo is the current local-database state of one package. Queried
// fresh per run; never cached across runs.
type InstalledInfo struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
}

// Classified couples a request with the derived facts planning needs.
type Classified struct {
	Request    PackageRequest `json:"request"`
	Provenance Provenance     `json:"provenance"`
	Installed  InstalledInfo  `json:"installed"`

	// LatestVersion is the newest version offered by the package's
	// repository. Only populated for DesiredState latest.
	LatestVersion string `json:"latest_version,omitempty"`
}

// Request is a full reconciliation request: package names, the state they
// should reach, and the global directives.
type Request struct {
	// Names are the packages to reconcile. Mutually exclusive with Upgrade.
	Names []string `json:"names,omitempty" validate:"omitempty,dive,required"`

	// State is the desired state for all Names.
	State DesiredState `json:"state" validate:"omitempty,oneof=present latest absent"`

	// Upgrade requests a whole-system upgrade.
	Upgrade bool `json:"upgrade"`

	// UpdateCache refreshes the sync databases before other actions, or
	// standalone when it is the only directive.
	UpdateCache bool `json:"update_cache"`

	// Force tightens or loosens backend behavior per operation: full
	// database re-download on refresh, upstream re-verification on
	// install, dependency checks disabled on remove.
	Force bool `json:"force"`

	// ExtraArgs is appended verbatim to backend invocations. A deliberate,
	// unvalidated escape hatch.
	ExtraArgs string `json:"extra_args,omitempty"`

	// CheckMode plans and reports without executing anything.
	CheckMode bool `json:"check_mode"`
}

var requestValidator = validator.New()

// Validate rejects impossible requests before any process spawns.
func (r *Request) Validate() error {
	if r.State == "" {
		r.State = StatePresent
	}
	if err := requestValidator.Struct(r); err != nil {
		return NewInvalidInputError(err.Error())
	}
	if len(r.Names) > 0 && r.Upgrade {
		return NewInvalidInputError("name and upgrade are mutually exclusive")
	}
	if len(r.Names) == 0 && !r.Upgrade && !r.UpdateCache {
		return NewInvalidInputError("one of name, upgrade or update_cache is required")
	}
	for _, name := range r.Names {
		if strings.TrimSpace(name) == "" {
			return NewInvalidInputError("package name must not be empty")
		}
	}
	return nil
}

// PlannedAction is one backend invocation the plan calls for. Targets are
// always handleable by the action's backend; the planner never mixes
// backends within an action.
type PlannedAction struct {
	// ID identifies the action in logs, traces and the journal.
	ID string `json:"id"`

	// Backend must run this action.
	Backend BackendRef `json:"backend"`

	// Operation is the verb to perform.
	Operation Operation `json:"operation"`

	// Targets are the packages the operation applies to, in request order.
	// Empty for cache refresh and system upgrade.
	Targets []PackageRequest `json:"targets,omitempty"`

	// NoOp marks an action that would not change the system. No-op
	// actions are never executed.
	NoOp bool `json:"noop"`

	// Force carries the raw force flag; the adapter interprets it
	// according to its own operation semantics.
	Force bool `json:"force"`

	// ExtraArgs is the verbatim user escape hatch for this invocation.
	ExtraArgs string `json:"extra_args,omitempty"`
}

// Plan is the ordered list of actions a request resolves to.
type Plan struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Actions   []PlannedAction `json:"actions"`
	Summary   PlanSummary     `json:"summary"`
}

// PlanSummary counts planned work for reporting and policy input.
type PlanSummary struct {
	ToInstall int `json:"to_install"`
	ToUpgrade int `json:"to_upgrade"`
	ToRemove  int `json:"to_remove"`
	NoChange  int `json:"no_change"`
}

// Changes reports whether any non-noop action is planned.
func (p *Plan) Changes() bool {
	for _, a := range p.Actions {
		if !a.NoOp {
			return true
		}
	}
	return false
}

// ActionResult is the outcome of executing one planned action.
type ActionResult struct {
	ActionID  string     `json:"action_id"`
	Backend   BackendRef `json:"backend"`
	Operation Operation  `json:"operation"`

	// Targets are the registered names the action applied to.
	Targets []string `json:"targets,omitempty"`

	// Changed reports an actual system modification, as distinguished
	// from a "nothing to do" success by the backend's own output.
	Changed bool `json:"changed"`

	// Handler is the executable that performed the action.
	Handler string `json:"handler,omitempty"`

	// Message summarizes the result in the backend's terms.
	Message string `json:"message,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Outcome aggregates a whole reconciliation run.
type Outcome struct {
	RunID   string         `json:"run_id"`
	Changed bool           `json:"changed"`
	Failed  bool           `json:"failed"`
	Msg     string         `json:"msg"`
	Handler string         `json:"handler,omitempty"`
	Results []ActionResult `json:"results,omitempty"`

	// Warnings carries non-fatal degradations, such as a failed cache
	// refresh that did not block the rest of the plan.
	Warnings []string `json:"warnings,omitempty"`
}

// Adapter translates planned actions into concrete invocations for one
// backend and interprets their results. Implementations live in
// pkg/backends.
type Adapter interface {
	// Ref identifies the backend this adapter drives.
	Ref() BackendRef

	// Apply executes one planned action. A returned error means the
	// invocation failed; Changed=false with a nil error means the backend
	// reported nothing to do.
	Apply(ctx context.Context, action *PlannedAction) (*ActionResult, error)
}

// CommunityRepo answers questions about the community source repository.
// The aurweb package provides the production implementation.
type CommunityRepo interface {
	// Version returns the repository's current version of a package, or
	// an empty string when the package is unknown there.
	Version(ctx context.Context, name string) (string, error)
}

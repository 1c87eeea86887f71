package policy

import (
	"time"
)

// BuiltinPolicies returns the policies every gate loads.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedPackagesPolicy(),
		forceRemovePolicy(),
		sourceBuildPolicy(),
		massRemovalPolicy(),
	}
}

// protectedPackagesPolicy blocks removal of packages the system cannot run
// without.
func protectedPackagesPolicy() Policy {
	return Policy{
		Name:        "protected-packages",
		Description: "Blocks removal of base system packages",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "removal"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pacrec.policies.protected

import rego.v1

protected := {"pacman", "glibc", "linux", "systemd", "base", "filesystem", "bash"}

deny contains violation if {
	some action in input.plan.actions
	not action.noop
	action.operation == "remove"
	some target in action.targets
	protected[target.name]

	violation := {
		"message": sprintf("removal of protected package %s is not allowed", [target.name]),
		"severity": "critical",
		"package": target.name,
	}
}`,
	}
}

// forceRemovePolicy blocks dependency-check bypass on removals. Skipping
// dependency checks can strand reverse dependencies broken.
func forceRemovePolicy() Policy {
	return Policy{
		Name:        "force-remove",
		Description: "Blocks removals that skip dependency checks",
		Severity:    SeverityError,
		Enabled:     false,
		Tags:        []string{"safety", "removal"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pacrec.policies.forceremove

import rego.v1

deny contains violation if {
	some action in input.plan.actions
	not action.noop
	action.operation == "remove"
	action.force

	violation := {
		"message": "removal with dependency checks disabled is not allowed",
		"severity": "error",
	}
}`,
	}
}

// sourceBuildPolicy flags plans that compile unreviewed community sources.
func sourceBuildPolicy() Policy {
	return Policy{
		Name:        "source-build",
		Description: "Warns when a plan builds community packages from source",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"community", "provenance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pacrec.policies.sourcebuild

import rego.v1

deny contains violation if {
	some action in input.plan.actions
	not action.noop
	action.backend.kind == "source-build"
	count(action.targets) > 0

	violation := {
		"message": sprintf("%d community packages will be built from source without review", [count(action.targets)]),
		"severity": "warning",
	}
}`,
	}
}

// massRemovalPolicy flags plans removing many packages at once.
func massRemovalPolicy() Policy {
	return Policy{
		Name:        "mass-removal",
		Description: "Warns when a plan removes more than five packages",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety", "removal"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package pacrec.policies.massremoval

import rego.v1

deny contains violation if {
	remove_count := count([target |
		some action in input.plan.actions
		not action.noop
		action.operation == "remove"
		some target in action.targets
	])
	remove_count > 5

	violation := {
		"message": sprintf("plan removes %d packages, review before applying", [remove_count]),
		"severity": "warning",
	}
}`,
	}
}

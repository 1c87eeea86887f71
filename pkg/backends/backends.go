// Package backends translates planned actions into concrete command-line
// invocations for each backend family: pacman itself, the AUR-capable
// wrappers, and the makepkg source-build fallback.
//
// Adapters interpret backend exit codes and output; all text-sniffing of
// backend stdout lives in sniff.go so a future output-format change touches
// one place.
package backends

import (
	"strings"

	"github.com/pacrec/pacrec/pkg/engine"
)

// splitExtraArgs tokenizes the user's verbatim escape hatch. Plain
// whitespace splitting, exactly as the arguments would reach the backend
// from a shell; no validation by design.
func splitExtraArgs(extraArgs string) []string {
	return strings.Fields(extraArgs)
}

// targetNames projects a target list onto the raw names handed to the
// backend.
func targetNames(targets []engine.PackageRequest) []string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name)
	}
	return names
}

// batchFailureCode selects the error code for a failed batched invocation.
// Backend calls are atomic per batch: one failing name fails the whole
// action, and the engine does not retry-split.
func batchFailureCode(targets []engine.PackageRequest) string {
	if len(targets) > 1 {
		return engine.ErrCodePartialFailure
	}
	return engine.ErrCodeInternal
}

// interpretFailure maps a failed invocation's stderr onto the error
// taxonomy, keeping the backend's own diagnostic text verbatim.
func interpretFailure(op engine.Operation, targets []engine.PackageRequest, stderr string) *engine.ReconcileError {
	if strings.Contains(stderr, "target not found") {
		name := strings.Join(targetNames(targets), " ")
		return engine.NewPackageNotFoundError(name).WithOperation(string(op)).WithStderr(stderr)
	}
	return engine.NewExecutionError(batchFailureCode(targets),
		"failed to "+string(op)+" "+strings.Join(targetNames(targets), " "), nil).
		WithOperation(string(op)).
		WithStderr(stderr)
}

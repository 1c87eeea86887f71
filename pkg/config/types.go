// Package config loads pacrec's declarative inputs: a CUE manifest of
// desired package states, optional Starlark scripts that compute package
// sets procedurally, and a YAML settings file for tool configuration.
package config

import (
	"sort"
	"time"

	"github.com/pacrec/pacrec/pkg/engine"
)

// ManifestEntry is one desired package state from the manifest.
type ManifestEntry struct {
	// Name is the package name or local file path.
	Name string `json:"name" validate:"required"`

	// State is the desired state. Defaults to present.
	State string `json:"state,omitempty" validate:"omitempty,oneof=present latest absent"`
}

// ManifestGroup is a named set of entries sharing the same directives.
type ManifestGroup struct {
	// Packages are the group's entries.
	Packages []ManifestEntry `json:"packages" validate:"required,dive"`

	// Force applies the strict per-operation behavior to the whole group.
	Force bool `json:"force,omitempty"`

	// ExtraArgs is passed to the package manager verbatim.
	ExtraArgs string `json:"extra_args,omitempty"`
}

// Manifest is the full declarative input.
type Manifest struct {
	// Groups maps group names to entry sets.
	Groups map[string]ManifestGroup `json:"groups"`

	// UpdateCache refreshes the sync databases before reconciling.
	UpdateCache bool `json:"update_cache,omitempty"`
}

// ParsedManifest couples a manifest with its parse provenance.
type ParsedManifest struct {
	Manifest    Manifest          `json:"manifest"`
	SourceFiles []string          `json:"source_files"`
	ParsedAt    time.Time         `json:"parsed_at"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a manifest error with source location.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Requests converts the manifest into engine requests, one per group and
// state so each request stays homogeneous. Group names iterate in sorted
// order; results are deterministic.
func (pm *ParsedManifest) Requests() []*engine.Request {
	var requests []*engine.Request

	if pm.Manifest.UpdateCache {
		requests = append(requests, &engine.Request{UpdateCache: true})
	}

	for _, name := range sortedGroupNames(pm.Manifest.Groups) {
		group := pm.Manifest.Groups[name]
		byState := map[engine.DesiredState][]string{}
		for _, entry := range group.Packages {
			state := engine.DesiredState(entry.State)
			if state == "" {
				state = engine.StatePresent
			}
			byState[state] = append(byState[state], entry.Name)
		}
		for _, state := range []engine.DesiredState{engine.StateAbsent, engine.StatePresent, engine.StateLatest} {
			names, ok := byState[state]
			if !ok {
				continue
			}
			requests = append(requests, &engine.Request{
				Names:     names,
				State:     state,
				Force:     group.Force,
				ExtraArgs: group.ExtraArgs,
			})
		}
	}

	return requests
}

func sortedGroupNames(groups map[string]ManifestGroup) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pacrec/pacrec/pkg/engine"
)

const sampleManifest = `
manifest: {
	update_cache: true
	groups: {
		base: {
			packages: [
				{name: "htop"},
				{name: "tmux", state: "latest"},
			]
		}
		cleanup: {
			packages: [{name: "nano", state: "absent"}]
			force: true
		}
	}
}
`

func TestParseInlineManifest(t *testing.T) {
	parser := NewManifestParser()

	parsed, err := parser.ParseInline(context.Background(), sampleManifest)
	if err != nil {
		t.Fatalf("ParseInline: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", parsed.Errors)
	}
	if !parsed.Manifest.UpdateCache {
		t.Error("UpdateCache = false, want true")
	}
	if len(parsed.Manifest.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(parsed.Manifest.Groups))
	}
	base := parsed.Manifest.Groups["base"]
	if len(base.Packages) != 2 {
		t.Fatalf("base has %d packages, want 2", len(base.Packages))
	}
	if base.Packages[1].State != "latest" {
		t.Errorf("tmux state = %q, want latest", base.Packages[1].State)
	}
	if !parsed.Manifest.Groups["cleanup"].Force {
		t.Error("cleanup force = false, want true")
	}
}

func TestParseManifestRejectsBadState(t *testing.T) {
	parser := NewManifestParser()

	parsed, err := parser.ParseInline(context.Background(), `
manifest: groups: base: packages: [{name: "htop", state: "newest"}]
`)
	if err != nil {
		t.Fatalf("ParseInline: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("expected schema errors for invalid state")
	}
}

func TestParseManifestRejectsEmptyName(t *testing.T) {
	parser := NewManifestParser()

	parsed, err := parser.ParseInline(context.Background(), `
manifest: groups: base: packages: [{name: ""}]
`)
	if err != nil {
		t.Fatalf("ParseInline: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("expected schema errors for empty name")
	}
}

func TestParseManifestFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.cue")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	parser := NewManifestParser()
	parsed, err := parser.Parse(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", parsed.Errors)
	}
	if len(parsed.SourceFiles) != 1 || parsed.SourceFiles[0] != path {
		t.Errorf("SourceFiles = %v", parsed.SourceFiles)
	}
}

func TestManifestRequests(t *testing.T) {
	parsed := &ParsedManifest{
		Manifest: Manifest{
			UpdateCache: true,
			Groups: map[string]ManifestGroup{
				"base": {
					Packages: []ManifestEntry{
						{Name: "htop"},
						{Name: "tmux", State: "latest"},
						{Name: "vim"},
					},
				},
				"cleanup": {
					Packages: []ManifestEntry{{Name: "nano", State: "absent"}},
					Force:    true,
				},
			},
		},
	}

	requests := parsed.Requests()
	if len(requests) != 4 {
		t.Fatalf("got %d requests, want 4", len(requests))
	}
	if !requests[0].UpdateCache {
		t.Error("first request should refresh the cache")
	}
	// groups iterate sorted, states absent/present/latest within a group
	if got := requests[1].Names; len(got) != 2 || got[0] != "htop" || got[1] != "vim" {
		t.Errorf("present names = %v, want [htop vim]", got)
	}
	if requests[1].State != engine.StatePresent {
		t.Errorf("state = %s, want present", requests[1].State)
	}
	if requests[2].State != engine.StateLatest || requests[2].Names[0] != "tmux" {
		t.Errorf("latest request = %+v", requests[2])
	}
	if requests[3].State != engine.StateAbsent || !requests[3].Force {
		t.Errorf("absent request = %+v", requests[3])
	}
}

func TestEvaluatePackages(t *testing.T) {
	parser := NewManifestParser()

	groups, err := parser.EvaluatePackages(context.Background(), `
base = ["htop", "tmux"]
extras = base + ["ripgrep"] if want_extras else []
_scratch = "ignored"
`, map[string]interface{}{"want_extras": true})
	if err != nil {
		t.Fatalf("EvaluatePackages: %v", err)
	}

	if len(groups["base"].Packages) != 2 {
		t.Errorf("base = %+v", groups["base"])
	}
	extras := groups["extras"].Packages
	if len(extras) != 3 || extras[2].Name != "ripgrep" {
		t.Errorf("extras = %+v", extras)
	}
	if _, ok := groups["_scratch"]; ok {
		t.Error("underscore globals must not become groups")
	}
}

package engine

import "testing"

func TestNewPackageRequest(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		isLocalPath bool
		packageName string
	}{
		{"plain name", "htop", false, "htop"},
		{"name with dash", "yay-bin", false, "yay-bin"},
		{"bare archive", "htop-3.2.2-1-x86_64.pkg.tar.zst", true, "htop"},
		{"absolute path", "/var/cache/pacman/pkg/tmux-3.4-1-x86_64.pkg.tar.xz", true, "tmux"},
		{"uncompressed archive", "foo-1.0-1-any.pkg.tar", true, "foo"},
		{"gzip archive", "foo-1.0-1-any.pkg.tar.gz", true, "foo"},
		{"unknown compression", "foo-1.0-1-any.pkg.tar.7z", false, "foo-1.0-1-any.pkg.tar.7z"},
		{"dashed name with version", "python-requests-2.31.0-1-any.pkg.tar.zst", true, "python-requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewPackageRequest(tt.raw)
			if req.IsLocalPath != tt.isLocalPath {
				t.Errorf("IsLocalPath = %v, want %v", req.IsLocalPath, tt.isLocalPath)
			}
			if got := req.PackageName(); got != tt.packageName {
				t.Errorf("PackageName() = %q, want %q", got, tt.packageName)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"names only", Request{Names: []string{"htop"}}, false},
		{"upgrade only", Request{Upgrade: true}, false},
		{"update cache only", Request{UpdateCache: true}, false},
		{"names with state", Request{Names: []string{"htop"}, State: StateLatest}, false},
		{"empty request", Request{}, true},
		{"names and upgrade", Request{Names: []string{"htop"}, Upgrade: true}, true},
		{"unknown state", Request{Names: []string{"htop"}, State: "newest"}, true},
		{"blank name", Request{Names: []string{" "}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsInvalidInput(err) {
				t.Errorf("error = %v, want invalid input", err)
			}
		})
	}
}

func TestRequestValidateDefaultsState(t *testing.T) {
	req := Request{Names: []string{"htop"}}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if req.State != StatePresent {
		t.Errorf("state = %s, want present", req.State)
	}
}

func TestBackendRefString(t *testing.T) {
	tests := []struct {
		ref  BackendRef
		want string
	}{
		{BackendRef{Kind: BackendPrimary}, "primary"},
		{BackendRef{Kind: BackendWrapper, Wrapper: WrapperYay}, "wrapper:yay"},
		{BackendRef{Kind: BackendSourceBuild}, "source-build"},
	}
	for _, tt := range tests {
		if got := tt.ref.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPlanChanges(t *testing.T) {
	allNoOp := &Plan{Actions: []PlannedAction{{NoOp: true}, {NoOp: true}}}
	if allNoOp.Changes() {
		t.Error("all-noop plan reports changes")
	}
	mixed := &Plan{Actions: []PlannedAction{{NoOp: true}, {}}}
	if !mixed.Changes() {
		t.Error("plan with a live action reports no changes")
	}
}

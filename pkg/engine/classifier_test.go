package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pacrec/pacrec/pkg/runner"
)

// fakeRunner answers Run calls from a canned table keyed by the rendered
// command line. Unknown commands exit non-zero, which reads as "not found"
// to every pacman query the classifier issues.
type fakeRunner struct {
	elevated bool
	paths    map[string]string
	results  map[string]runner.Result
	calls    []runner.Command
	runErr   error
}

func (f *fakeRunner) Run(ctx context.Context, c runner.Command) (runner.Result, error) {
	f.calls = append(f.calls, c)
	if f.runErr != nil {
		return runner.Result{}, f.runErr
	}
	key := c.Path + " " + strings.Join(c.Args, " ")
	if res, ok := f.results[key]; ok {
		return res, nil
	}
	return runner.Result{ExitCode: 1}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if path, ok := f.paths[name]; ok {
		return path, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeRunner) Elevated() bool {
	return f.elevated
}

func (f *fakeRunner) commandLines() []string {
	lines := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		lines = append(lines, c.Path+" "+strings.Join(c.Args, " "))
	}
	return lines
}

// fakeCommunity is a canned CommunityRepo.
type fakeCommunity struct {
	versions map[string]string
	err      error
}

func (f *fakeCommunity) Version(ctx context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.versions[name], nil
}

const pacmanPath = "/usr/bin/pacman"

func infoOutput(version string) string {
	return "Name            : whatever\nVersion         : " + version + "\nDescription     : test fixture\n"
}

func TestClassifyOfficialInstalled(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -S -i htop": {Stdout: infoOutput("3.2.2-1")},
		pacmanPath + " -Q -i htop": {Stdout: infoOutput("3.2.2-1")},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	cls, err := c.Classify(context.Background(), NewPackageRequest("htop"), StatePresent)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.Provenance != ProvenanceOfficial {
		t.Errorf("provenance = %s, want official", cls.Provenance)
	}
	if !cls.Installed.Installed || cls.Installed.Version != "3.2.2-1" {
		t.Errorf("installed = %+v, want installed at 3.2.2-1", cls.Installed)
	}
	if cls.LatestVersion != "" {
		t.Errorf("latest version populated for state present: %q", cls.LatestVersion)
	}
}

func TestClassifyCommunityNotInstalled(t *testing.T) {
	run := &fakeRunner{}
	c := NewClassifier(run, pacmanPath, nil)

	cls, err := c.Classify(context.Background(), NewPackageRequest("yay-bin"), StatePresent)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.Provenance != ProvenanceCommunity {
		t.Errorf("provenance = %s, want community", cls.Provenance)
	}
	if cls.Installed.Installed {
		t.Error("package reported installed")
	}
}

func TestClassifyLocalFile(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -Q -i htop": {Stdout: infoOutput("3.2.2-1")},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	req := NewPackageRequest("/var/cache/htop-3.2.2-1-x86_64.pkg.tar.zst")
	if !req.IsLocalPath {
		t.Fatal("local package file not detected")
	}

	cls, err := c.Classify(context.Background(), req, StatePresent)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.Provenance != ProvenanceLocalFile {
		t.Errorf("provenance = %s, want local-file", cls.Provenance)
	}
	if !cls.Installed.Installed {
		t.Error("registered name not looked up in the local database")
	}

	for _, line := range run.commandLines() {
		if strings.Contains(line, "-S -i") {
			t.Errorf("sync database queried for a local file: %s", line)
		}
	}
}

func TestClassifyLatestCommunityVersion(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -Q -i yay-bin": {Stdout: infoOutput("12.0.0-1")},
	}}
	community := &fakeCommunity{versions: map[string]string{"yay-bin": "12.1.0-1"}}
	c := NewClassifier(run, pacmanPath, community)

	cls, err := c.Classify(context.Background(), NewPackageRequest("yay-bin"), StateLatest)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.LatestVersion != "12.1.0-1" {
		t.Errorf("latest version = %q, want 12.1.0-1", cls.LatestVersion)
	}
}

func TestClassifyLatestCommunityQueryFailure(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -Q -i yay-bin": {Stdout: infoOutput("12.0.0-1")},
	}}
	community := &fakeCommunity{err: errors.New("connection refused")}
	c := NewClassifier(run, pacmanPath, community)

	_, err := c.Classify(context.Background(), NewPackageRequest("yay-bin"), StateLatest)
	if !hasCode(err, ErrCodeClassification) {
		t.Fatalf("error = %v, want classification error", err)
	}
}

func TestClassifyStripsEpoch(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -Q -i vlc": {Stdout: infoOutput("2:3.0.20-1")},
		pacmanPath + " -S -i vlc": {Stdout: infoOutput("2:3.0.20-1")},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	cls, err := c.Classify(context.Background(), NewPackageRequest("vlc"), StateLatest)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.Installed.Version != "3.0.20-1" {
		t.Errorf("installed version = %q, want epoch stripped", cls.Installed.Version)
	}
	if cls.LatestVersion != "3.0.20-1" {
		t.Errorf("latest version = %q, want epoch stripped", cls.LatestVersion)
	}
}

func TestClassifyEmptyName(t *testing.T) {
	c := NewClassifier(&fakeRunner{}, pacmanPath, nil)
	if _, err := c.Classify(context.Background(), PackageRequest{Name: "  "}, StatePresent); !IsInvalidInput(err) {
		t.Fatalf("error = %v, want invalid input", err)
	}
}

func TestClassifyAllExpandsGroups(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -S -g -q base-devel": {Stdout: "gcc\nmake\n"},
		pacmanPath + " -S -i gcc":           {Stdout: infoOutput("13.2.1-1")},
		pacmanPath + " -S -i make":          {Stdout: infoOutput("4.4.1-1")},
		pacmanPath + " -Q -i gcc":           {Stdout: infoOutput("13.2.1-1")},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	classified, err := c.ClassifyAll(context.Background(),
		[]PackageRequest{NewPackageRequest("base-devel")}, StatePresent)
	if err != nil {
		t.Fatalf("ClassifyAll failed: %v", err)
	}
	if len(classified) != 2 {
		t.Fatalf("got %d classified entries, want 2", len(classified))
	}
	if classified[0].Request.Name != "gcc" || classified[1].Request.Name != "make" {
		t.Errorf("members = %s, %s; want gcc, make", classified[0].Request.Name, classified[1].Request.Name)
	}
	if !classified[0].Installed.Installed || classified[1].Installed.Installed {
		t.Error("member installed state not queried individually")
	}
}

func TestClassifyAllSkipsGroupExpansionForAbsent(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -S -g -q base-devel": {Stdout: "gcc\nmake\n"},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	classified, err := c.ClassifyAll(context.Background(),
		[]PackageRequest{NewPackageRequest("base-devel")}, StateAbsent)
	if err != nil {
		t.Fatalf("ClassifyAll failed: %v", err)
	}
	if len(classified) != 1 || classified[0].Request.Name != "base-devel" {
		t.Fatalf("classified = %+v, want the name exactly as given", classified)
	}
	for _, line := range run.commandLines() {
		if strings.Contains(line, "-S -g") {
			t.Errorf("sync group expansion issued for state absent: %s", line)
		}
	}
}

func TestClassifyAbsentGroupWithInstalledMembers(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -Q -g base-devel": {Stdout: "base-devel gcc 13.2.1-1\nbase-devel make 4.4.1-1\n"},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	cls, err := c.Classify(context.Background(), NewPackageRequest("base-devel"), StateAbsent)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !cls.Installed.Installed {
		t.Fatal("group with installed members not reported as installed")
	}
	if cls.Request.PackageName() != "base-devel" {
		t.Errorf("removal target = %q, want the raw group name", cls.Request.PackageName())
	}
}

func TestClassifyAbsentGroupWithoutInstalledMembers(t *testing.T) {
	run := &fakeRunner{}
	c := NewClassifier(run, pacmanPath, nil)

	cls, err := c.Classify(context.Background(), NewPackageRequest("base-devel"), StateAbsent)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if cls.Installed.Installed {
		t.Error("uninstalled name reported as installed")
	}
}

func TestClassifyPresentSkipsInstalledGroupProbe(t *testing.T) {
	run := &fakeRunner{results: map[string]runner.Result{
		pacmanPath + " -S -i htop": {Stdout: infoOutput("3.2.2-1")},
	}}
	c := NewClassifier(run, pacmanPath, nil)

	if _, err := c.Classify(context.Background(), NewPackageRequest("htop"), StatePresent); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	for _, line := range run.commandLines() {
		if strings.Contains(line, "-Q -g") {
			t.Errorf("installed-group probe issued for state present: %s", line)
		}
	}
}

func TestParseInfoVersion(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   string
	}{
		{"plain", "Name : htop\nVersion : 3.2.2-1\n", "3.2.2-1"},
		{"epoch", "Version : 1:2.43.0-1\n", "2.43.0-1"},
		{"padded", "Version         :   4.4.1-1  \n", "4.4.1-1"},
		{"missing", "Name : htop\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseInfoVersion(tt.stdout); got != tt.want {
				t.Errorf("parseInfoVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

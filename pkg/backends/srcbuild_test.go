package backends

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pacrec/pacrec/pkg/aurweb"
	"github.com/pacrec/pacrec/pkg/engine"
)

// fakeAUR serves canned package info and writes a minimal snapshot tarball.
type fakeAUR struct {
	info      map[string]*aurwebInfo
	snapshots []string
}

type aurwebInfo struct {
	name    string
	urlPath string
}

func (f *fakeAUR) Info(ctx context.Context, name string) (*aurweb.PackageInfo, error) {
	info, ok := f.info[name]
	if !ok {
		return nil, nil
	}
	return &aurweb.PackageInfo{Name: info.name, Version: "1.0-1", URLPath: info.urlPath}, nil
}

func (f *fakeAUR) Snapshot(ctx context.Context, urlPath string, w io.Writer) error {
	f.snapshots = append(f.snapshots, urlPath)
	return writeSnapshot(w, "some-aur-tool")
}

// writeSnapshot emits a tar.gz holding <name>/PKGBUILD, the shape AUR
// snapshots have.
func writeSnapshot(w io.Writer, name string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{
		Name:     name + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
	}); err != nil {
		return err
	}
	pkgbuild := "pkgname=" + name + "\npkgver=1.0\n"
	if err := tw.WriteHeader(&tar.Header{
		Name:     name + "/PKGBUILD",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(pkgbuild)),
	}); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(pkgbuild)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func TestSourceBuildRefusesElevatedIdentity(t *testing.T) {
	run := &fakeRunner{elevated: true, paths: map[string]string{
		"makepkg":  "/usr/bin/makepkg",
		"fakeroot": "/usr/bin/fakeroot",
	}}
	s := NewSourceBuild(run, &fakeAUR{})

	_, err := s.Apply(context.Background(), installAction(false, "", "some-aur-tool"))
	if !engine.IsPermissionDenied(err) {
		t.Fatalf("error = %v, want permission denied", err)
	}
	if len(run.calls) != 0 {
		t.Error("build spawned despite the elevated identity")
	}
}

func TestSourceBuildRequiresToolchain(t *testing.T) {
	tests := []struct {
		name  string
		paths map[string]string
	}{
		{"no makepkg", map[string]string{"fakeroot": "/usr/bin/fakeroot"}},
		{"no fakeroot", map[string]string{"makepkg": "/usr/bin/makepkg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &fakeRunner{paths: tt.paths}
			s := NewSourceBuild(run, &fakeAUR{})

			_, err := s.Apply(context.Background(), installAction(false, "", "some-aur-tool"))
			var re *engine.ReconcileError
			if !errors.As(err, &re) || re.Code != engine.ErrCodeBackendNotFound {
				t.Fatalf("error = %v, want backend not found", err)
			}
		})
	}
}

func TestSourceBuildUnknownPackage(t *testing.T) {
	run := &fakeRunner{paths: map[string]string{
		"makepkg":  "/usr/bin/makepkg",
		"fakeroot": "/usr/bin/fakeroot",
	}}
	s := NewSourceBuild(run, &fakeAUR{})

	_, err := s.Apply(context.Background(), installAction(false, "", "no-such-package"))
	if !engine.IsPackageNotFound(err) {
		t.Fatalf("error = %v, want package not found", err)
	}
}

func TestSourceBuildRunsMakepkg(t *testing.T) {
	run := &fakeRunner{paths: map[string]string{
		"makepkg":  "/usr/bin/makepkg",
		"fakeroot": "/usr/bin/fakeroot",
	}}
	aur := &fakeAUR{info: map[string]*aurwebInfo{
		"some-aur-tool": {name: "some-aur-tool", urlPath: "/cgit/aur.git/snapshot/some-aur-tool.tar.gz"},
	}}
	s := NewSourceBuild(run, aur)

	result, err := s.Apply(context.Background(), installAction(false, "--skippgpcheck", "some-aur-tool"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Changed {
		t.Error("successful build not reported as changed")
	}
	if result.Handler != "/usr/bin/makepkg" {
		t.Errorf("handler = %q", result.Handler)
	}
	if len(aur.snapshots) != 1 || aur.snapshots[0] != "/cgit/aur.git/snapshot/some-aur-tool.tar.gz" {
		t.Errorf("snapshots = %v", aur.snapshots)
	}

	if len(run.calls) != 1 {
		t.Fatalf("got %d invocations, want one makepkg run", len(run.calls))
	}
	call := run.calls[0]
	got := call.Path + " " + strings.Join(call.Args, " ")
	want := "/usr/bin/makepkg -s -i --needed --noconfirm --noprogressbar --skippgpcheck"
	if got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
	if filepath.Base(call.Dir) != "some-aur-tool" {
		t.Errorf("build dir = %q, want the extracted recipe directory", call.Dir)
	}
	if call.Elevate {
		t.Error("makepkg invocation requested elevation")
	}
}

func TestSourceBuildRejectsRemove(t *testing.T) {
	s := NewSourceBuild(&fakeRunner{}, &fakeAUR{})

	action := &engine.PlannedAction{
		ID:        "a",
		Operation: engine.OpRemove,
		Targets:   []engine.PackageRequest{engine.NewPackageRequest("htop")},
	}
	if _, err := s.Apply(context.Background(), action); err == nil {
		t.Fatal("remove accepted by the source-build backend")
	}
}

func TestExtractTarGzRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	tarball := filepath.Join(dir, "evil.tar.gz")

	if err := writeEvilSnapshot(tarball); err != nil {
		t.Fatalf("fixture failed: %v", err)
	}
	if err := extractTarGz(tarball, filepath.Join(dir, "out")); err == nil {
		t.Fatal("escaping entry extracted")
	}
}

// writeEvilSnapshot emits a tar.gz whose single entry climbs out of the
// extraction root.
func writeEvilSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	payload := "owned\n"
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../evil",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(payload)),
	}); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(payload)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

package backends

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pacrec/pacrec/pkg/aurweb"
	"github.com/pacrec/pacrec/pkg/engine"
	"github.com/pacrec/pacrec/pkg/runner"
)

// AURClient is the slice of the aurweb client the source-build adapter
// needs: locate a package's snapshot and download it.
type AURClient interface {
	Info(ctx context.Context, name string) (*aurweb.PackageInfo, error)
	Snapshot(ctx context.Context, urlPath string, w io.Writer) error
}

// SourceBuild is the fallback for community packages on hosts with no
// wrapper installed: fetch the build recipe snapshot, build it with makepkg,
// and let makepkg install the artifact through pacman.
//
// Building from source must not run with an elevated identity. The check
// happens before anything is spawned or downloaded; violating it is a
// PermissionDenied, never a silently elevated build.
type SourceBuild struct {
	run runner.Runner
	aur AURClient
}

// NewSourceBuild creates the source-build adapter.
func NewSourceBuild(r runner.Runner, aur AURClient) *SourceBuild {
	return &SourceBuild{run: r, aur: aur}
}

// Ref implements engine.Adapter.
func (s *SourceBuild) Ref() engine.BackendRef {
	return engine.BackendRef{Kind: engine.BackendSourceBuild}
}

// Apply implements engine.Adapter. A failed step aborts the remaining steps
// for that package only; other packages in the batch still build. The
// returned result is valid even alongside an error, so the engine can
// report partial progress.
func (s *SourceBuild) Apply(ctx context.Context, action *engine.PlannedAction) (*engine.ActionResult, error) {
	start := time.Now()
	result := &engine.ActionResult{
		ActionID:  action.ID,
		Backend:   s.Ref(),
		Operation: action.Operation,
	}
	defer func() { result.Duration = time.Since(start) }()

	if action.Operation != engine.OpInstall && action.Operation != engine.OpUpgrade {
		return result, engine.NewExecutionError(engine.ErrCodeInternal,
			"operation not supported by the source-build backend", nil).
			WithOperation(string(action.Operation))
	}

	if s.run.Elevated() {
		return result, engine.NewPermissionDeniedError(
			"could not build packages from source with an elevated identity")
	}

	makepkg, err := s.run.LookPath("makepkg")
	if err != nil {
		return result, engine.NewBackendNotFoundError("makepkg", err)
	}
	if _, err := s.run.LookPath("fakeroot"); err != nil {
		return result, engine.NewBackendNotFoundError("fakeroot", err)
	}
	result.Handler = makepkg

	var failures []error
	for _, target := range action.Targets {
		if err := s.buildOne(ctx, makepkg, target.Name, action.ExtraArgs); err != nil {
			failures = append(failures, err)
			continue
		}
		result.Changed = true
	}

	if len(failures) > 0 {
		return result, errors.Join(failures...)
	}
	return result, nil
}

// buildOne runs the full step sequence for one package: resolve the
// snapshot, download, extract, build and install.
func (s *SourceBuild) buildOne(ctx context.Context, makepkg, name, extraArgs string) error {
	info, err := s.aur.Info(ctx, name)
	if err != nil {
		return engine.NewBuildFailedError(name, "could not retrieve the package details", err)
	}
	if info == nil {
		return engine.NewPackageNotFoundError(name)
	}

	buildDir, err := os.MkdirTemp("", "pacrec-build-")
	if err != nil {
		return engine.NewBuildFailedError(name, "could not create build directory", err)
	}
	defer os.RemoveAll(buildDir)

	tarball := filepath.Join(buildDir, info.Name+".tar.gz")
	f, err := os.Create(tarball)
	if err != nil {
		return engine.NewBuildFailedError(name, "could not create snapshot file", err)
	}
	if err := s.aur.Snapshot(ctx, info.URLPath, f); err != nil {
		f.Close()
		return engine.NewBuildFailedError(name, "could not download the build recipe", err)
	}
	if err := f.Close(); err != nil {
		return engine.NewBuildFailedError(name, "could not write snapshot file", err)
	}

	if err := extractTarGz(tarball, buildDir); err != nil {
		return engine.NewBuildFailedError(name, "could not extract the build recipe", err)
	}

	args := []string{"-s", "-i", "--needed", "--noconfirm", "--noprogressbar"}
	args = append(args, splitExtraArgs(extraArgs)...)

	res, err := s.run.Run(ctx, runner.Command{
		Path: makepkg,
		Args: args,
		Dir:  filepath.Join(buildDir, info.Name),
	})
	if err != nil {
		return engine.NewBuildFailedError(name, "could not execute makepkg", err)
	}
	if res.ExitCode != 0 {
		return engine.NewBuildFailedError(name, "makepkg exited with status "+fmt.Sprint(res.ExitCode), nil).
			WithStderr(res.Stderr)
	}

	return nil
}

// extractTarGz unpacks a snapshot tarball under dest, refusing entries that
// would escape it.
func extractTarGz(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, hdr.Name)
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid entry path %s: escapes extraction root", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

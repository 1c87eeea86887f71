package engine

import (
	"context"
	"strings"

	"github.com/pacrec/pacrec/pkg/runner"
)

// Classifier derives provenance and installed state for requested package
// names by querying pacman's databases and, for community packages under
// state latest, the AUR.
//
// All installed-state queries go through the local database regardless of
// provenance: every installed package is registered there, however it was
// built.
type Classifier struct {
	run       runner.Runner
	pacman    string
	community CommunityRepo
}

// NewClassifier creates a classifier. pacmanPath is the resolved primary
// backend executable; community may be nil when no latest-state community
// lookups will occur.
func NewClassifier(r runner.Runner, pacmanPath string, community CommunityRepo) *Classifier {
	return &Classifier{run: r, pacman: pacmanPath, community: community}
}

// Classify resolves one request to its provenance and current installed
// state. For DesiredState latest it additionally resolves the repository's
// newest version so the planner can derive idempotency.
func (c *Classifier) Classify(ctx context.Context, req PackageRequest, state DesiredState) (Classified, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Classified{}, NewInvalidInputError("package name must not be empty")
	}

	result := Classified{Request: req}

	switch {
	case req.IsLocalPath:
		result.Provenance = ProvenanceLocalFile
	default:
		official, syncVersion, err := c.syncInfo(ctx, req.Name)
		if err != nil {
			return Classified{}, err
		}
		if official {
			// Official repository wins even when an AUR package of
			// the same name exists; the wrapper only ever sees
			// names the sync database does not know.
			result.Provenance = ProvenanceOfficial
			result.LatestVersion = syncVersion
		} else {
			result.Provenance = ProvenanceCommunity
		}
	}

	installed, err := c.installedInfo(ctx, req.PackageName())
	if err != nil {
		return Classified{}, err
	}
	if state == StateAbsent && !installed.Installed && !req.IsLocalPath {
		// A group name is not in the local database as a package, but
		// pacman -R accepts it and removes the installed members.
		grouped, err := c.installedGroup(ctx, req.Name)
		if err != nil {
			return Classified{}, err
		}
		installed.Installed = grouped
	}
	result.Installed = installed

	if state != StateLatest {
		result.LatestVersion = ""
		return result, nil
	}

	if result.Provenance == ProvenanceCommunity && c.community != nil {
		version, err := c.community.Version(ctx, req.Name)
		if err != nil {
			return Classified{}, NewClassificationError("community repository query failed", err).WithPackage(req.Name)
		}
		result.LatestVersion = version
	}
	if result.Provenance == ProvenanceLocalFile {
		// A local file is its own newest version; reinstalling the
		// same file is a no-op pacman itself detects via --needed.
		result.LatestVersion = result.Installed.Version
	}

	return result, nil
}

// ClassifyAll classifies every request, expanding official package groups
// into their member packages. Group expansion is skipped for state absent,
// where names are removed exactly as given.
func (c *Classifier) ClassifyAll(ctx context.Context, requests []PackageRequest, state DesiredState) ([]Classified, error) {
	classified := make([]Classified, 0, len(requests))

	for _, req := range requests {
		if state != StateAbsent && !req.IsLocalPath {
			members, err := c.groupMembers(ctx, req.Name)
			if err != nil {
				return nil, err
			}
			if len(members) > 0 {
				for _, member := range members {
					cls, err := c.Classify(ctx, NewPackageRequest(member), state)
					if err != nil {
						return nil, err
					}
					classified = append(classified, cls)
				}
				continue
			}
		}

		cls, err := c.Classify(ctx, req, state)
		if err != nil {
			return nil, err
		}
		classified = append(classified, cls)
	}

	return classified, nil
}

// installedInfo queries the local database for a package.
func (c *Classifier) installedInfo(ctx context.Context, name string) (InstalledInfo, error) {
	res, err := c.run.Run(ctx, runner.Command{
		Path: c.pacman,
		Args: []string{"-Q", "-i", name},
	})
	if err != nil {
		return InstalledInfo{}, NewClassificationError("local database query failed", err).WithPackage(name)
	}
	if res.ExitCode != 0 {
		return InstalledInfo{}, nil
	}
	return InstalledInfo{Installed: true, Version: parseInfoVersion(res.Stdout)}, nil
}

// syncInfo queries the sync databases for a package, returning whether the
// name is known there and its current version.
func (c *Classifier) syncInfo(ctx context.Context, name string) (bool, string, error) {
	res, err := c.run.Run(ctx, runner.Command{
		Path: c.pacman,
		Args: []string{"-S", "-i", name},
	})
	if err != nil {
		return false, "", NewClassificationError("sync database query failed", err).WithPackage(name)
	}
	if res.ExitCode != 0 {
		return false, "", nil
	}
	return true, parseInfoVersion(res.Stdout), nil
}

// installedGroup reports whether name is a package group with members
// currently installed.
func (c *Classifier) installedGroup(ctx context.Context, name string) (bool, error) {
	res, err := c.run.Run(ctx, runner.Command{
		Path: c.pacman,
		Args: []string{"-Q", "-g", name},
	})
	if err != nil {
		return false, NewClassificationError("group query failed", err).WithPackage(name)
	}
	return res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "", nil
}

// groupMembers expands an official package group. A plain package name is
// not a group and yields no members.
func (c *Classifier) groupMembers(ctx context.Context, name string) ([]string, error) {
	res, err := c.run.Run(ctx, runner.Command{
		Path: c.pacman,
		Args: []string{"-S", "-g", "-q", name},
	})
	if err != nil {
		return nil, NewClassificationError("group query failed", err).WithPackage(name)
	}
	if res.ExitCode != 0 {
		return nil, nil
	}

	var members []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			members = append(members, line)
		}
	}
	return members, nil
}

// parseInfoVersion extracts the Version field from pacman -Qi/-Si output.
// The epoch prefix is stripped so versions compare the way the AUR reports
// them.
func parseInfoVersion(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "Version" {
			continue
		}
		version := value
		if idx := strings.LastIndex(version, ":"); idx >= 0 {
			version = version[idx+1:]
		}
		return strings.TrimSpace(version)
	}
	return ""
}

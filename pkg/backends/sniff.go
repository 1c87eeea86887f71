package backends

import "strings"

// pacman and all supported wrappers print this marker when a transaction
// resolves to zero changes. Distinguishing it from a real change is a
// brittle but required contract with each backend's CLI output; keep every
// marker in this file.
const nothingToDoMarker = "there is nothing to do"

// upToDateSuffix marks a sync database that needed no refresh, one line per
// repository in pacman -Sy output.
const upToDateSuffix = " is up to date"

// nothingToDo reports whether a successful transaction changed nothing.
func nothingToDo(stdout string) bool {
	return strings.Contains(strings.ToLower(stdout), nothingToDoMarker)
}

// databasesUpToDate reports whether a successful cache refresh downloaded
// nothing: every reported repository line carries the up-to-date suffix.
func databasesUpToDate(stdout string) bool {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	seen := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "::") {
			continue
		}
		if !strings.HasSuffix(line, upToDateSuffix) {
			return false
		}
		seen = true
	}
	return seen
}

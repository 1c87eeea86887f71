// Package runner provides the process execution boundary for pacrec.
// Backends describe invocations as Command values; a Runner turns them into
// real processes and captures their outcome. The local implementation spawns
// on the current host, the SSH transport provides a remote one.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"os/user"
	"strings"
	"time"
)

// Command describes a single external invocation. It is the literal argv
// handed to the operating system; nothing is shell-interpreted.
type Command struct {
	// Path is the executable to run, either absolute or resolved via LookPath.
	Path string

	// Args are the arguments passed to the executable, in order.
	Args []string

	// Dir is the working directory for the process. Empty means inherit.
	Dir string

	// Env is the environment for the process. Nil means inherit.
	Env []string

	// Stdin is written to the process standard input when non-empty.
	Stdin string

	// Elevate requests the command run with administrative privileges.
	// The local runner prefixes sudo when the current identity is not
	// already elevated.
	Elevate bool
}

// Result captures everything a backend needs to interpret an invocation:
// exit code plus verbatim stdout/stderr.
type Result struct {
	// Command is the rendered command line, for diagnostics only.
	Command string

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the process exit status. Zero on success.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Runner executes external commands and answers host facts the planner needs.
type Runner interface {
	// Run executes cmd and returns its captured result. A non-zero exit
	// status is reported through Result.ExitCode, not through the error;
	// the error is reserved for spawn failures (missing executable,
	// cancelled context).
	Run(ctx context.Context, cmd Command) (Result, error)

	// LookPath resolves an executable name on the target host's search
	// path, returning its absolute path.
	LookPath(name string) (string, error)

	// Elevated reports whether commands issued without Elevate would
	// already run with administrative privileges.
	Elevated() bool
}

// Local runs commands on the current host.
type Local struct {
	// SudoPassword, when set, is piped to sudo -S for elevated commands.
	SudoPassword string

	// elevated caches the identity check.
	elevated *bool
}

// NewLocal creates a runner for the current host.
func NewLocal() *Local {
	return &Local{}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, c Command) (Result, error) {
	if c.Path == "" {
		return Result{}, fmt.Errorf("command path is required")
	}

	path := c.Path
	args := c.Args
	stdin := c.Stdin

	if c.Elevate && !l.Elevated() {
		args = append([]string{"-S", "-p", "", path}, args...)
		path = "sudo"
		stdin = l.SudoPassword + "\n" + stdin
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if c.Env != nil {
		cmd.Env = c.Env
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Command:  path + " " + strings.Join(args, " "),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return result, fmt.Errorf("failed to execute %s: %w", c.Path, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// LookPath implements Runner.
func (l *Local) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Elevated implements Runner. It checks the effective user, not the login
// user, so sudo-wrapped invocations of pacrec itself are detected.
func (l *Local) Elevated() bool {
	if l.elevated != nil {
		return *l.elevated
	}
	elevated := false
	if u, err := user.Current(); err == nil {
		elevated = u.Uid == "0"
	}
	l.elevated = &elevated
	return elevated
}

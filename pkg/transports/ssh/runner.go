package ssh

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/pacrec/pacrec/pkg/runner"
	"github.com/pacrec/pacrec/pkg/telemetry"
)

// Runner executes pacrec commands on a remote host over SSH. It satisfies
// runner.Runner, so the whole engine works against a remote system without
// knowing it.
type Runner struct {
	config *Config
	log    *telemetry.Logger

	mu       sync.RWMutex
	client   *ssh.Client
	elevated *bool
}

// NewRunner creates a remote runner. Connect must be called before use.
func NewRunner(config *Config, log *telemetry.Logger) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Runner{
		config: config,
		log:    log.WithField("component", "ssh-runner").WithField("host", config.Host),
	}, nil
}

// Connect dials the remote host. Reconnecting over a live connection first
// verifies it and reuses it when healthy.
func (r *Runner) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		if r.healthCheck() == nil {
			return nil
		}
		r.log.Warn("existing connection is dead, reconnecting")
		_ = r.client.Close()
		r.client = nil
	}

	clientConfig, err := r.config.clientConfig()
	if err != nil {
		return err
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", r.config.Address(), clientConfig)
		ch <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ssh connect cancelled: %w", ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("failed to connect to %s: %w", r.config.Address(), res.err)
		}
		r.client = res.client
		r.log.Info("ssh connection established")
		return nil
	}
}

// Close shuts the connection down.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// Run implements runner.Runner. The command is rendered with shell quoting
// since SSH hands the remote side a single command line.
func (r *Runner) Run(ctx context.Context, c runner.Command) (runner.Result, error) {
	if c.Path == "" {
		return runner.Result{}, fmt.Errorf("command path is required")
	}

	client, err := r.getClient()
	if err != nil {
		return runner.Result{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		return runner.Result{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	commandLine, stdin := r.renderCommand(c)
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}
	for _, kv := range c.Env {
		if key, value, ok := strings.Cut(kv, "="); ok {
			// best effort, servers commonly restrict AcceptEnv
			_ = session.Setenv(key, value)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	r.log.Debugf("executing remote command: %s", commandLine)

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- session.Run(commandLine) }()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-done:
	}

	result := runner.Result{
		Command:  commandLine,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		exitErr, ok := runErr.(*ssh.ExitError)
		if !ok {
			return result, fmt.Errorf("failed to execute %s: %w", c.Path, runErr)
		}
		result.ExitCode = exitErr.ExitStatus()
	}
	return result, nil
}

// LookPath implements runner.Runner by resolving the name on the remote
// search path.
func (r *Runner) LookPath(name string) (string, error) {
	result, err := r.Run(context.Background(), runner.Command{
		Path: "command",
		Args: []string{"-v", name},
	})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("executable not found on remote host: %s", name)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Elevated implements runner.Runner. The remote identity is probed once and
// cached for the connection's lifetime.
func (r *Runner) Elevated() bool {
	r.mu.RLock()
	if r.elevated != nil {
		defer r.mu.RUnlock()
		return *r.elevated
	}
	r.mu.RUnlock()

	elevated := false
	result, err := r.Run(context.Background(), runner.Command{Path: "id", Args: []string{"-u"}})
	if err == nil && result.ExitCode == 0 {
		elevated = strings.TrimSpace(result.Stdout) == "0"
	}

	r.mu.Lock()
	r.elevated = &elevated
	r.mu.Unlock()
	return elevated
}

// renderCommand turns a Command into a shell line, handling cd, env and sudo.
func (r *Runner) renderCommand(c runner.Command) (commandLine, stdin string) {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Path))
	for _, arg := range c.Args {
		parts = append(parts, shellQuote(arg))
	}
	commandLine = strings.Join(parts, " ")
	stdin = c.Stdin

	if c.Elevate && !r.Elevated() {
		commandLine = "sudo -S -p '' " + commandLine
		stdin = r.config.SudoPassword + "\n" + stdin
	}
	if c.Dir != "" {
		commandLine = "cd " + shellQuote(c.Dir) + " && " + commandLine
	}
	return commandLine, stdin
}

// shellQuote single-quotes a string for POSIX shells.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?[]#~%{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (r *Runner) getClient() (*ssh.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return r.client, nil
}

func (r *Runner) healthCheck() error {
	session, err := r.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run("true")
}

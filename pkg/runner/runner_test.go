package runner

import (
	"context"
	"strings"
	"testing"
)

func TestLocalRunCapturesOutput(t *testing.T) {
	l := NewLocal()

	res, err := l.Run(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stdout = %q, stderr = %q", res.Stdout, res.Stderr)
	}
}

func TestLocalRunNonZeroExitIsNotAnError(t *testing.T) {
	l := NewLocal()

	res, err := l.Run(context.Background(), Command{Path: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("non-zero exit surfaced as error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestLocalRunStdin(t *testing.T) {
	l := NewLocal()

	res, err := l.Run(context.Background(), Command{
		Path:  "sh",
		Args:  []string{"-c", "cat"},
		Stdin: "piped",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stdout != "piped" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestLocalRunMissingExecutable(t *testing.T) {
	l := NewLocal()

	if _, err := l.Run(context.Background(), Command{Path: "pacrec-no-such-binary"}); err == nil {
		t.Fatal("missing executable not reported as an error")
	}
}

func TestLocalRunRequiresPath(t *testing.T) {
	l := NewLocal()

	if _, err := l.Run(context.Background(), Command{}); err == nil {
		t.Fatal("empty path accepted")
	}
}

func TestLocalRunWorkingDirectory(t *testing.T) {
	l := NewLocal()
	dir := t.TempDir()

	res, err := l.Run(context.Background(), Command{Path: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != dir {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(res.Stdout), dir)
	}
}

func TestLocalLookPath(t *testing.T) {
	l := NewLocal()

	path, err := l.LookPath("sh")
	if err != nil {
		t.Fatalf("LookPath failed: %v", err)
	}
	if !strings.HasSuffix(path, "/sh") {
		t.Errorf("path = %q", path)
	}

	if _, err := l.LookPath("pacrec-no-such-binary"); err == nil {
		t.Error("missing executable resolved")
	}
}

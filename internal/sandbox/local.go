package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// LocalExecutor runs code with a local interpreter inside a private temp
// directory per session.
type LocalExecutor struct {
	Interpreter string
	TempDir     string // parent for session dirs; "" uses os.TempDir
}

// NewLocalExecutor returns a LocalExecutor for the given interpreter.
func NewLocalExecutor(interpreter string) *LocalExecutor {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &LocalExecutor{Interpreter: interpreter}
}

// Open creates the session's working directory.
func (e *LocalExecutor) Open(_ context.Context) (Session, error) {
	if _, err := exec.LookPath(e.Interpreter); err != nil {
		return nil, fmt.Errorf("interpreter %s: %w: %v", e.Interpreter, models.ErrSandboxUnavailable, err)
	}
	dir, err := os.MkdirTemp(e.TempDir, "crev-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	return &localSession{interpreter: e.Interpreter, dir: dir}, nil
}

type localSession struct {
	interpreter string
	dir         string
}

func (s *localSession) Run(ctx context.Context, code string) (*Result, error) {
	script := filepath.Join(s.dir, "main.py")
	if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.interpreter, script)
	cmd.Dir = s.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("execution interrupted: %w: %v", models.ErrSandboxUnavailable, ctxErr)
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("start interpreter: %w", runErr)
		}
		res.ErrorText = lastLine(res.Stderr)
		if res.ErrorText == "" {
			res.ErrorText = runErr.Error()
		}
	}
	return res, nil
}

// Close removes the session directory.
func (s *localSession) Close() error {
	return os.RemoveAll(s.dir)
}

// lastLine returns the last non-empty line, which for a Python traceback is
// the exception summary.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

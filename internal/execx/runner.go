// Package execx wraps invocation of the local SCM command line tools.
// All subprocess execution in the codebase funnels through a Runner so
// that SCM clients can be exercised in tests without the real binaries.
package execx

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/kballard/go-shellquote"

	"github.com/reviewtools/postreview/internal/errors"
)

// Runner executes an external command and reports its output.
type Runner interface {
	// Output runs the command and returns its stdout. A non-zero exit is an
	// error carrying the command's stderr.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// OutputWithCode runs the command and returns stdout, the process exit
	// code and any execution error. A non-zero exit code is not itself an
	// error here; some tools (diff-like commands in particular) use exit
	// codes to signal results.
	OutputWithCode(ctx context.Context, name string, args ...string) (string, int, error)
}

// CommandRunner is the Runner used in production. It runs commands in a
// fixed working directory and debug-logs every invocation.
type CommandRunner struct {
	logger hclog.Logger
	dir    string
}

// NewCommandRunner returns a CommandRunner executing commands in dir.
// An empty dir means the current working directory.
func NewCommandRunner(logger hclog.Logger, dir string) *CommandRunner {
	return &CommandRunner{
		logger: logger.Named("exec"),
		dir:    dir,
	}
}

// Installed reports whether the named tool can be found on PATH.
func Installed(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (r *CommandRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	stdout, stderr, code, err := r.run(ctx, name, args)
	if err != nil {
		return "", err
	}
	if code != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", code)
		}

		return "", fmt.Errorf("%s failed: %s", name, msg)
	}

	return stdout, nil
}

func (r *CommandRunner) OutputWithCode(ctx context.Context, name string, args ...string) (string, int, error) {
	stdout, _, code, err := r.run(ctx, name, args)
	return stdout, code, err
}

func (r *CommandRunner) run(ctx context.Context, name string, args []string) (string, string, int, error) {
	r.logger.Debug("Running command", "cmd", shellquote.Join(append([]string{name}, args...)...), "dir", r.dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			r.logger.Debug("Command exited non-zero",
				"cmd", name,
				"code", exitErr.ExitCode(),
				"stderr", strings.TrimSpace(stderr.String()),
			)

			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}

		var execErr *exec.Error
		if stderrors.As(err, &execErr) && stderrors.Is(execErr.Err, exec.ErrNotFound) {
			return "", "", -1, fmt.Errorf("%w: %s", errors.ErrToolMissing, name)
		}

		return "", "", -1, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return stdout.String(), stderr.String(), 0, nil
}

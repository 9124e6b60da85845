package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Local runs commands as child processes on this host.
type Local struct {
	// SudoPath overrides the sudo binary used for elevation. Empty means
	// "sudo" resolved from PATH.
	SudoPath string
}

// NewLocal creates a local executor.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) sudo() string {
	if l.SudoPath != "" {
		return l.SudoPath
	}
	return "sudo"
}

// Run executes name with args and captures its output. A non-zero exit from
// a process that ran to completion is returned as data in the Result; only
// timeouts and spawn failures produce an error.
func (l *Local) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	argv := append([]string{name}, args...)
	if opts.Elevate {
		// -n keeps a misconfigured sudoers from hanging the call on a
		// password prompt.
		argv = append([]string{l.sudo(), "-n"}, argv...)
	}

	timeout := opts.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	cmdLine := strings.Join(argv, " ")

	if err == nil {
		observeCommand(name, outcomeOK, start)
		return Result{Output: strings.TrimSpace(stdout.String()), ExitCode: 0}, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		observeCommand(name, outcomeTimeout, start)
		return Result{}, &TimeoutError{Cmd: cmdLine, Timeout: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		observeCommand(name, outcomeExit, start)
		return Result{
			Output:   mergeOutput(stdout.String(), stderr.String()),
			ExitCode: exitErr.ExitCode(),
		}, nil
	}

	observeCommand(name, outcomeError, start)
	return Result{}, &ExecError{Cmd: cmdLine, Err: err}
}

var _ Executor = &Local{}

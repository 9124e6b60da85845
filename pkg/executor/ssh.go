package executor

import (
	"context"
	"strings"
	"time"

	"github.com/virshlab/virshlab/pkg/ssh"
)

// remoteRunner is the slice of the SSH client this executor needs.
type remoteRunner interface {
	Run(command string) (stdout, stderr string, exitCode int, err error)
}

// SSH runs commands on a remote hypervisor host through an established SSH
// connection.
type SSH struct {
	client remoteRunner
}

// NewSSH wraps a connected SSH client.
func NewSSH(client *ssh.Client) *SSH {
	return &SSH{client: client}
}

type sshResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// Run executes name with args on the remote host. The SSH protocol offers no
// cancellation for a running remote command, so on timeout the session is
// torn down and the result discarded.
func (s *SSH) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	cmdLine := quoteCommand(name, args)
	if opts.Elevate {
		cmdLine = "sudo -n " + cmdLine
	}

	timeout := opts.timeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan sshResult, 1)
	go func() {
		stdout, stderr, exitCode, err := s.client.Run(cmdLine)
		done <- sshResult{stdout: stdout, stderr: stderr, exitCode: exitCode, err: err}
	}()

	select {
	case <-runCtx.Done():
		observeCommand(name, outcomeTimeout, start)
		return Result{}, &TimeoutError{Cmd: cmdLine, Timeout: timeout}
	case res := <-done:
		if res.err != nil {
			observeCommand(name, outcomeError, start)
			return Result{}, &ExecError{Cmd: cmdLine, Err: res.err}
		}
		if res.exitCode == 0 {
			observeCommand(name, outcomeOK, start)
			return Result{Output: strings.TrimSpace(res.stdout), ExitCode: 0}, nil
		}
		observeCommand(name, outcomeExit, start)
		return Result{Output: mergeOutput(res.stdout, res.stderr), ExitCode: res.exitCode}, nil
	}
}

var _ Executor = &SSH{}

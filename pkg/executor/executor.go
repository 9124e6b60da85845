// Package executor runs external commands on the hypervisor host, either
// locally or over SSH, with per-call timeouts and optional sudo elevation.
package executor

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout bounds an invocation when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// Result is the captured outcome of one command invocation. A non-zero exit
// code is data, not an error: callers classify failures from the merged
// output text.
type Result struct {
	// Output is trimmed stdout when the command exited 0, otherwise stdout
	// and stderr merged (stderr on its own line when stdout was non-empty).
	Output   string
	ExitCode int
}

// Options control a single invocation.
type Options struct {
	// Timeout bounds this call only. Zero means DefaultTimeout.
	Timeout time.Duration
	// Elevate prefixes the command with sudo -n.
	Elevate bool
}

// Executor runs a command and captures its output. Implementations spawn
// exactly one subordinate process per call and never retry.
type Executor interface {
	Run(ctx context.Context, name string, args []string, opts Options) (Result, error)
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// mergeOutput combines stdout and stderr for failed commands. Stderr goes on
// a new line only when stdout carried text.
func mergeOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout)
	errText := strings.TrimSpace(stderr)
	switch {
	case errText == "":
		return out
	case out == "":
		return errText
	default:
		return out + "\n" + errText
	}
}

// shellQuote makes a string safe for single-quoted POSIX shell interpolation.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quoteCommand renders an argv as a shell command line for remote execution.
func quoteCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

package executor

import (
	"fmt"
	"time"
)

// TimeoutError reports that a command did not complete within its bound. The
// subordinate process has been killed by the time this is returned.
type TimeoutError struct {
	Cmd     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %s", e.Cmd, e.Timeout)
}

// ExecError reports that a command could not be run at all: the binary was
// missing, the process failed to spawn, or the transport broke. It is
// distinct from a command that ran and exited non-zero.
type ExecError struct {
	Cmd string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("error executing command %q: %v", e.Cmd, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *ExecError) Unwrap() error {
	return e.Err
}

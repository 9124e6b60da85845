package virsh

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/virshlab/virshlab/pkg/executor"
)

// Sentinel errors recognized by errors.Is. Callers map these to API status
// codes; the detail text rides along in the wrapping message.
var (
	// ErrNotFound means the target domain does not exist on the hypervisor.
	ErrNotFound = errors.New("domain not found")
	// ErrNotRunning means the operation requires an active domain.
	ErrNotRunning = errors.New("domain is not running")
)

// OperationError is a virsh invocation that ran and exited non-zero without
// matching a more specific failure class. Detail carries the merged
// stdout/stderr text.
type OperationError struct {
	Op       string
	Name     string
	ExitCode int
	Detail   string
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("virsh %s %q failed with exit code %d", e.Op, e.Name, e.ExitCode)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// classifyFailure inspects the merged output of a failed invocation and
// returns the matching sentinel, or nil when no class applies. Substring
// matching against the tool's wording is brittle across versions and
// locales; keeping it in one place at least makes the heuristics testable.
func classifyFailure(output string) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "domain not found"),
		strings.Contains(lower, "failed to get domain"),
		strings.Contains(lower, "no domain with matching name"):
		return ErrNotFound
	case strings.Contains(lower, "domain is not running"),
		strings.Contains(lower, "not active"):
		return ErrNotRunning
	}
	return nil
}

// operationError turns a non-zero virsh result into the appropriate error
// value.
func operationError(op, name string, res executor.Result) error {
	if kind := classifyFailure(res.Output); kind != nil {
		return errors.Wrapf(kind, "%s %q: %s", op, name, res.Output)
	}
	return &OperationError{Op: op, Name: name, ExitCode: res.ExitCode, Detail: res.Output}
}

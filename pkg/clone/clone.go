// Package clone creates linked clones of virtual machines by driving an
// external helper script that builds a copy-on-write overlay disk and
// defines the new domain.
package clone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/virshlab/virshlab/pkg/executor"
	"github.com/virshlab/virshlab/pkg/namelock"
)

// ScriptName is the helper executable searched for on the host.
const ScriptName = "vmm_linked_clone.sh"

// Timeout bounds a clone run. Materially larger than any other operation in
// the system, since full disk provisioning may occur.
const Timeout = 5 * time.Minute

// diskImageExt is the disk image extension scraped from helper output.
const diskImageExt = ".qcow2"

// Request describes one linked clone. DiskTarget and ConnectionURI use
// pointers because absent and explicitly empty are different things: an
// empty DiskTarget is a meaningful "use the source disk's directory" marker
// that still occupies its positional slot.
type Request struct {
	SourceVM      string
	NewVMName     string
	DiskTarget    *string
	ConnectionURI *string
}

// Result reports a completed clone. DiskPath is nil when the helper output
// contained no recognizable image path; that is still a success.
type Result struct {
	DiskPath *string
}

// HelperNotFoundError lists every location checked for the helper script.
type HelperNotFoundError struct {
	Searched []string
}

func (e *HelperNotFoundError) Error() string {
	return fmt.Sprintf("linked clone helper %s not found, searched: %s",
		ScriptName, strings.Join(e.Searched, ", "))
}

// RunError is a helper invocation that ran and exited non-zero.
type RunError struct {
	ExitCode int
	Detail   string
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("linked clone helper failed with exit code %d", e.ExitCode)
	if label := exitCodeLabel(e.ExitCode); label != "" {
		msg = fmt.Sprintf("%s (%s)", msg, label)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// exitCodeLabel gives a human explanation for exit codes whose numeric value
// alone would mislead.
func exitCodeLabel(code int) string {
	if code == 141 {
		// 128+SIGPIPE, the helper's output pipe closed early
		return "broken pipe"
	}
	return ""
}

// Cloner orchestrates linked clone creation.
type Cloner struct {
	exec executor.Executor
	// scriptPath pins the helper location, skipping the search.
	scriptPath string
	locks      *namelock.Locker
	log        *zap.Logger
}

// Config configures a Cloner.
type Config struct {
	// ScriptPath overrides helper discovery with a fixed location.
	ScriptPath string
	// Locks serializes compound operations per VM name. Share one instance
	// with the virsh client so a clone excludes a concurrent delete of its
	// source. Nil gets a private instance.
	Locks  *namelock.Locker
	Logger *zap.Logger
}

// NewCloner creates a Cloner on top of the given executor.
func NewCloner(exec executor.Executor, cfg Config) *Cloner {
	if cfg.Locks == nil {
		cfg.Locks = namelock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Cloner{exec: exec, scriptPath: cfg.ScriptPath, locks: cfg.Locks, log: cfg.Logger}
}

// Create runs the helper for the given request and scrapes the produced disk
// image path from its output.
func (c *Cloner) Create(ctx context.Context, req Request) (Result, error) {
	script, err := c.locateScript()
	if err != nil {
		return Result{}, err
	}

	// Hold the source's lock for the duration: the overlay references the
	// source's disk chain, which a concurrent delete would remove.
	c.locks.Lock(req.SourceVM)
	defer c.locks.Unlock(req.SourceVM)

	args := buildArgs(req)
	c.log.Info("creating linked clone",
		zap.String("source", req.SourceVM),
		zap.String("new", req.NewVMName),
		zap.String("helper", script))

	res, err := c.exec.Run(ctx, script, args, executor.Options{Timeout: Timeout})
	if err != nil {
		return Result{}, err
	}
	if res.ExitCode != 0 {
		return Result{}, &RunError{ExitCode: res.ExitCode, Detail: res.Output}
	}

	return Result{DiskPath: scrapeDiskPath(res.Output)}, nil
}

// buildArgs constructs the helper's positional arguments:
//
//	<source> <new> [<diskTarget>] [<connectionURI>]
//
// A present-but-empty DiskTarget is appended as-is. When ConnectionURI is
// set but DiskTarget is absent, an empty placeholder keeps the URI in the
// fourth slot.
func buildArgs(req Request) []string {
	args := []string{req.SourceVM, req.NewVMName}
	if req.DiskTarget != nil {
		args = append(args, *req.DiskTarget)
	}
	if req.ConnectionURI != nil && *req.ConnectionURI != "" {
		if req.DiskTarget == nil {
			args = append(args, "")
		}
		args = append(args, *req.ConnectionURI)
	}
	return args
}

// locateScript finds the helper, checking in order the daemon's own install
// directory, the current working directory, and /usr/local/bin.
func (c *Cloner) locateScript() (string, error) {
	if c.scriptPath != "" {
		if isExecutableFile(c.scriptPath) {
			return c.scriptPath, nil
		}
		return "", &HelperNotFoundError{Searched: []string{c.scriptPath}}
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ScriptName))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ScriptName))
	}
	candidates = append(candidates, filepath.Join("/usr/local/bin", ScriptName))

	for _, path := range candidates {
		if isExecutableFile(path) {
			return path, nil
		}
	}
	return "", &HelperNotFoundError{Searched: candidates}
}

func isExecutableFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0
}

// scrapeDiskPath scans helper output for the created disk image: the first
// whitespace-delimited token ending in the image extension, on a line that
// mentions creation or an image path. No match is not an error.
func scrapeDiskPath(output string) *string {
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "created at") && !strings.Contains(line, diskImageExt) {
			continue
		}
		for _, token := range strings.Fields(line) {
			if strings.HasSuffix(token, diskImageExt) {
				return &token
			}
		}
	}
	return nil
}

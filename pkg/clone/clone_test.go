package clone

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virshlab/virshlab/pkg/executor"
)

func strPtr(s string) *string { return &s }

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "source and new name only",
			req:  Request{SourceVM: "base", NewVMName: "clone1"},
			want: []string{"base", "clone1"},
		},
		{
			name: "disk target set",
			req:  Request{SourceVM: "base", NewVMName: "clone1", DiskTarget: strPtr("/vms/disks")},
			want: []string{"base", "clone1", "/vms/disks"},
		},
		{
			name: "explicitly empty disk target keeps its slot",
			req:  Request{SourceVM: "base", NewVMName: "clone1", DiskTarget: strPtr("")},
			want: []string{"base", "clone1", ""},
		},
		{
			name: "connection URI without disk target gets a placeholder",
			req:  Request{SourceVM: "base", NewVMName: "clone1", ConnectionURI: strPtr("qemu:///system")},
			want: []string{"base", "clone1", "", "qemu:///system"},
		},
		{
			name: "disk target and connection URI",
			req: Request{
				SourceVM: "base", NewVMName: "clone1",
				DiskTarget: strPtr("/vms/disks"), ConnectionURI: strPtr("qemu:///system"),
			},
			want: []string{"base", "clone1", "/vms/disks", "qemu:///system"},
		},
		{
			name: "empty connection URI is treated as absent",
			req:  Request{SourceVM: "base", NewVMName: "clone1", ConnectionURI: strPtr("")},
			want: []string{"base", "clone1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildArgs(tt.req))
		})
	}
}

func TestScrapeDiskPath(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   *string
	}{
		{
			name:   "created at line",
			output: "Cloning base...\nLinked clone disk created at /vms/clone1.qcow2\nDone.",
			want:   strPtr("/vms/clone1.qcow2"),
		},
		{
			name:   "case-insensitive marker",
			output: "Disk CREATED AT /vms/clone1.qcow2",
			want:   strPtr("/vms/clone1.qcow2"),
		},
		{
			name:   "bare image path line",
			output: "overlay: /vms/clone1.qcow2 (backing /vms/base.qcow2)",
			want:   strPtr("/vms/clone1.qcow2"),
		},
		{
			name:   "no recognizable path",
			output: "clone finished without incident",
			want:   nil,
		},
		{
			name:   "empty output",
			output: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scrapeDiskPath(tt.output))
		})
	}
}

func TestExitCodeLabel(t *testing.T) {
	assert.Equal(t, "broken pipe", exitCodeLabel(141))
	assert.Empty(t, exitCodeLabel(1))
	assert.Empty(t, exitCodeLabel(0))
}

func TestRunErrorMessage(t *testing.T) {
	err := &RunError{ExitCode: 141, Detail: "write error"}
	assert.Contains(t, err.Error(), "exit code 141")
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Contains(t, err.Error(), "write error")
}

// recordingExec captures the single invocation a clone run makes.
type recordingExec struct {
	name string
	args []string
	opts executor.Options
	res  executor.Result
	err  error
}

func (r *recordingExec) Run(_ context.Context, name string, args []string, opts executor.Options) (executor.Result, error) {
	r.name = name
	r.args = args
	r.opts = opts
	return r.res, r.err
}

func writeHelperScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ScriptName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestCreate(t *testing.T) {
	script := writeHelperScript(t)
	exec := &recordingExec{
		res: executor.Result{Output: "Linked clone disk created at /vms/clone1.qcow2", ExitCode: 0},
	}
	c := NewCloner(exec, Config{ScriptPath: script})

	result, err := c.Create(context.Background(), Request{
		SourceVM:      "base",
		NewVMName:     "clone1",
		ConnectionURI: strPtr("qemu:///system"),
	})
	require.NoError(t, err)

	assert.Equal(t, script, exec.name)
	assert.Equal(t, []string{"base", "clone1", "", "qemu:///system"}, exec.args)
	assert.Equal(t, Timeout, exec.opts.Timeout)
	assert.False(t, exec.opts.Elevate)

	require.NotNil(t, result.DiskPath)
	assert.Equal(t, "/vms/clone1.qcow2", *result.DiskPath)
}

func TestCreateHelperFails(t *testing.T) {
	script := writeHelperScript(t)
	exec := &recordingExec{
		res: executor.Result{Output: "qemu-img: cannot create overlay", ExitCode: 1},
	}
	c := NewCloner(exec, Config{ScriptPath: script})

	_, err := c.Create(context.Background(), Request{SourceVM: "base", NewVMName: "clone1"})
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, 1, runErr.ExitCode)
	assert.Contains(t, runErr.Detail, "cannot create overlay")
}

func TestCreateSuccessWithoutDiskPath(t *testing.T) {
	script := writeHelperScript(t)
	exec := &recordingExec{res: executor.Result{Output: "done", ExitCode: 0}}
	c := NewCloner(exec, Config{ScriptPath: script})

	result, err := c.Create(context.Background(), Request{SourceVM: "base", NewVMName: "clone1"})
	require.NoError(t, err)
	assert.Nil(t, result.DiskPath)
}

func TestCreateHelperMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ScriptName)
	c := NewCloner(&recordingExec{}, Config{ScriptPath: missing})

	_, err := c.Create(context.Background(), Request{SourceVM: "base", NewVMName: "clone1"})
	var notFound *HelperNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{missing}, notFound.Searched)
}

func TestLocateScriptRejectsNonExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ScriptName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	c := NewCloner(&recordingExec{}, Config{ScriptPath: path})
	_, err := c.locateScript()
	var notFound *HelperNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

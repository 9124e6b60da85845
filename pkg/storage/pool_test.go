package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virshlab/virshlab/pkg/executor"
	"github.com/virshlab/virshlab/pkg/virsh"
)

type fakeExec struct {
	calls   [][]string
	scripts []executor.Result
}

func (f *fakeExec) Run(_ context.Context, _ string, args []string, _ executor.Options) (executor.Result, error) {
	f.calls = append(f.calls, args)
	if len(f.scripts) == 0 {
		return executor.Result{}, nil
	}
	res := f.scripts[0]
	f.scripts = f.scripts[1:]
	return res, nil
}

func TestParsePoolList(t *testing.T) {
	output := ` Name      State      Autostart
---------------------------------
 default   active     yes
 images    active     no
 scratch   inactive   no`

	pools := ParsePoolList(output)
	require.Len(t, pools, 3)
	assert.Equal(t, Pool{Name: "default", State: "active", Autostart: true}, pools[0])
	assert.Equal(t, Pool{Name: "images", State: "active", Autostart: false}, pools[1])
	assert.Equal(t, Pool{Name: "scratch", State: "inactive", Autostart: false}, pools[2])
}

func TestParsePoolListEmpty(t *testing.T) {
	assert.Empty(t, ParsePoolList(" Name   State   Autostart\n----------------------------\n"))
}

func TestListPools(t *testing.T) {
	f := &fakeExec{scripts: []executor.Result{{Output: ` Name      State    Autostart
-------------------------------
 default   active   yes`}}}
	m := NewManager(f, ManagerConfig{DefaultURI: "qemu:///system"})

	pools, err := m.ListPools(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "default", pools[0].Name)

	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"-c", "qemu:///system", "pool-list", "--all"}, f.calls[0])
}

func TestListPoolsFailure(t *testing.T) {
	f := &fakeExec{scripts: []executor.Result{{Output: "error: failed to connect", ExitCode: 1}}}
	m := NewManager(f, ManagerConfig{})

	_, err := m.ListPools(context.Background(), "")
	assert.Error(t, err)
}

func TestPoolInfo(t *testing.T) {
	f := &fakeExec{scripts: []executor.Result{{Output: `Name:           default
UUID:           aabbccdd-1122-3344-5566-778899aabbcc
State:          running
Persistent:     yes
Autostart:      yes
Capacity:       931.51 GiB
Allocation:     120.33 GiB
Available:      811.18 GiB`}}}
	m := NewManager(f, ManagerConfig{})

	info, err := m.PoolInfo(context.Background(), "", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", info.Name)
	assert.Equal(t, "running", info.State)
	assert.True(t, info.Persistent)
	assert.True(t, info.Autostart)
	assert.Equal(t, "931.51 GiB", info.Capacity)
	assert.Equal(t, "811.18 GiB", info.Available)

	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"pool-info", "default"}, f.calls[0])
}

func TestPoolInfoNotFound(t *testing.T) {
	f := &fakeExec{scripts: []executor.Result{{Output: "error: failed to get pool 'missing'", ExitCode: 1}}}
	m := NewManager(f, ManagerConfig{})

	_, err := m.PoolInfo(context.Background(), "", "missing")
	assert.ErrorIs(t, err, virsh.ErrNotFound)
}

package virsh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virshlab/virshlab/pkg/executor"
)

// fakeExec records every invocation and replays scripted results in order.
type fakeExec struct {
	calls   []fakeCall
	scripts []fakeScript
}

type fakeCall struct {
	name string
	args []string
	opts executor.Options
}

type fakeScript struct {
	res executor.Result
	err error
}

func (f *fakeExec) Run(_ context.Context, name string, args []string, opts executor.Options) (executor.Result, error) {
	f.calls = append(f.calls, fakeCall{name: name, args: args, opts: opts})
	if len(f.scripts) == 0 {
		return executor.Result{}, nil
	}
	s := f.scripts[0]
	f.scripts = f.scripts[1:]
	return s.res, s.err
}

func (f *fakeExec) script(output string, exitCode int) {
	f.scripts = append(f.scripts, fakeScript{res: executor.Result{Output: output, ExitCode: exitCode}})
}

func (f *fakeExec) scriptErr(err error) {
	f.scripts = append(f.scripts, fakeScript{err: err})
}

const runningDomInfo = `Id:             1
Name:           web01
UUID:           12345678-1234-1234-1234-123456789abc
State:          running
CPU(s):         2
Max memory:     2097152 KiB
Used memory:    1048576 KiB`

const shutOffDomInfo = `Id:             -
Name:           backup01
UUID:           87654321-4321-4321-4321-cba987654321
State:          shut off`

func newTestClient(f *fakeExec, defaultURI string) *Client {
	return NewClient(f, ClientConfig{DefaultURI: defaultURI})
}

func TestClientList(t *testing.T) {
	f := &fakeExec{}
	f.script(` Id   Name    State
----------------------
 1    web01   running
 -    db01    shut off`, 0)

	vms, err := newTestClient(f, "").List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, vms, 2)
	assert.Equal(t, "web01", vms[0].Name)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "virsh", f.calls[0].name)
	assert.Equal(t, []string{"list", "--all"}, f.calls[0].args)
	assert.False(t, f.calls[0].opts.Elevate)
}

func TestClientConnectionURI(t *testing.T) {
	f := &fakeExec{}
	f.script("", 0)
	f.script("", 0)
	f.script("", 0)
	c := newTestClient(f, "qemu:///system")

	_, err := c.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "qemu:///system", "list", "--all"}, f.calls[0].args)

	// A per-request URI beats the configured default.
	_, err = c.List(context.Background(), "qemu+ssh://host/system")
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "qemu+ssh://host/system", "list", "--all"}, f.calls[1].args)

	// No URI at all means no -c flag.
	_, err = newTestClient(f, "").List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"list", "--all"}, f.calls[2].args)
}

func TestClientStatus(t *testing.T) {
	f := &fakeExec{}
	f.script(runningDomInfo, 0)

	st, err := newTestClient(f, "").Status(context.Background(), "", "web01")
	require.NoError(t, err)
	assert.Equal(t, "web01", st.Name)
	assert.Equal(t, StateRunning, st.State)
	require.NotNil(t, st.ID)
	assert.Equal(t, 1, *st.ID)
	require.NotNil(t, st.VCPU)
	assert.Equal(t, 2, *st.VCPU)
}

func TestClientStatusNotFound(t *testing.T) {
	f := &fakeExec{}
	f.script("error: failed to get domain 'nope'", 1)

	_, err := newTestClient(f, "").Status(context.Background(), "", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientLifecycle(t *testing.T) {
	f := &fakeExec{}
	f.script("Domain 'web01' started", 0)

	err := newTestClient(f, "").Start(context.Background(), "", "web01")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "web01"}, f.calls[0].args)
}

func TestClientLifecycleErrorClassification(t *testing.T) {
	f := &fakeExec{}
	f.script("error: Requested operation is not valid: domain is not running", 1)
	f.script("error: failed to get domain 'ghost'", 1)
	f.script("error: something else entirely", 1)
	c := newTestClient(f, "")

	err := c.Shutdown(context.Background(), "", "web01")
	assert.ErrorIs(t, err, ErrNotRunning)

	err = c.Start(context.Background(), "", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.Reboot(context.Background(), "", "web01")
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "reboot", opErr.Op)
	assert.Equal(t, 1, opErr.ExitCode)
}

func TestClientConsoleDisplay(t *testing.T) {
	f := &fakeExec{}
	f.script("spice://127.0.0.1:5900", 0)

	display, err := newTestClient(f, "").ConsoleDisplay(context.Background(), "", "web01")
	require.NoError(t, err)
	assert.Equal(t, "spice://127.0.0.1:5900", display)
	assert.Equal(t, []string{"domdisplay", "web01"}, f.calls[0].args)
}

func TestInterfaceAddressesInactiveVM(t *testing.T) {
	f := &fakeExec{}
	f.script(shutOffDomInfo, 0)

	ifaces, err := newTestClient(f, "").InterfaceAddresses(context.Background(), "", "backup01")
	require.NoError(t, err)
	assert.Empty(t, ifaces)

	// Only the state query; no domifaddr, no agent.
	assert.Len(t, f.calls, 1)
}

func TestResolveInterfacesPrimaryPath(t *testing.T) {
	f := &fakeExec{}
	f.script(` Name   MAC address         Protocol   Address
------------------------------------------------------
 vnet0  52:54:00:12:34:56   ipv4       192.168.122.100/24`, 0)

	ifaces := newTestClient(f, "").ResolveInterfaces(context.Background(), "", "web01", StateRunning)
	require.Len(t, ifaces, 1)
	assert.Equal(t, "vnet0", ifaces[0].Name)

	// domifaddr needs the lease database, so it runs elevated.
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"domifaddr", "web01"}, f.calls[0].args)
	assert.True(t, f.calls[0].opts.Elevate)
}

func TestResolveInterfacesFallsBackOnEmptyTable(t *testing.T) {
	f := &fakeExec{}
	f.script(` Name   MAC address   Protocol   Address
-------------------------------------------
`, 0)
	f.script(`{"return":[{"name":"eth0","hardware-address":"52:54:00:aa:bb:cc","ip-addresses":[{"ip-address":"10.0.0.5","ip-address-type":"ipv4","prefix":24}]}]}`, 0)

	ifaces := newTestClient(f, "").ResolveInterfaces(context.Background(), "", "web01", StateRunning)
	require.Len(t, ifaces, 1)
	assert.Equal(t, "eth0", ifaces[0].Name)
	require.NotNil(t, ifaces[0].Address)
	assert.Equal(t, "10.0.0.5/24", *ifaces[0].Address)

	require.Len(t, f.calls, 2)
	assert.Equal(t, "qemu-agent-command", f.calls[1].args[0])
	assert.Equal(t, agentTimeout, f.calls[1].opts.Timeout)
}

func TestResolveInterfacesFallsBackOnFailure(t *testing.T) {
	f := &fakeExec{}
	f.script("error: Failed to query for interfaces addresses", 1)
	f.script("error: Guest agent is not responding", 1)

	ifaces := newTestClient(f, "").ResolveInterfaces(context.Background(), "", "web01", StateRunning)
	assert.Empty(t, ifaces)
	assert.Len(t, f.calls, 2)
}

func TestResolveInterfacesAbsorbsExecutorError(t *testing.T) {
	f := &fakeExec{}
	f.scriptErr(&executor.TimeoutError{Cmd: "virsh", Timeout: time.Second})
	f.scriptErr(&executor.TimeoutError{Cmd: "virsh", Timeout: time.Second})

	ifaces := newTestClient(f, "").ResolveInterfaces(context.Background(), "", "web01", StateRunning)
	assert.Empty(t, ifaces)
}

func TestDeleteShutOffVM(t *testing.T) {
	f := &fakeExec{}
	f.script(shutOffDomInfo, 0)
	f.script("Domain 'backup01' has been undefined", 0)

	err := newTestClient(f, "").Delete(context.Background(), "", "backup01")
	require.NoError(t, err)

	// No destroy for an inactive domain; straight to undefine.
	require.Len(t, f.calls, 2)
	assert.Equal(t, []string{"dominfo", "backup01"}, f.calls[0].args)
	assert.Equal(t, []string{"undefine", "backup01", "--remove-all-storage"}, f.calls[1].args)
	assert.Equal(t, undefineTimeout, f.calls[1].opts.Timeout)
}

func TestDeleteRunningVM(t *testing.T) {
	f := &fakeExec{}
	f.script(runningDomInfo, 0)
	f.script("Domain 'web01' destroyed", 0)
	f.script("Domain 'web01' has been undefined", 0)

	err := newTestClient(f, "").Delete(context.Background(), "", "web01")
	require.NoError(t, err)

	require.Len(t, f.calls, 3)
	assert.Equal(t, []string{"destroy", "web01"}, f.calls[1].args)
	assert.Equal(t, []string{"undefine", "web01", "--remove-all-storage"}, f.calls[2].args)
}

func TestDeleteAbortsWhenDestroyFails(t *testing.T) {
	f := &fakeExec{}
	f.script(runningDomInfo, 0)
	f.script("error: Failed to destroy domain 'web01'", 1)

	err := newTestClient(f, "").Delete(context.Background(), "", "web01")
	require.Error(t, err)

	// The domain must stay defined: undefine never runs.
	assert.Len(t, f.calls, 2)
}

func TestDeleteMissingVM(t *testing.T) {
	f := &fakeExec{}
	f.script("error: failed to get domain 'ghost'", 1)

	err := newTestClient(f, "").Delete(context.Background(), "", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.calls, 1)
}

func TestIsActiveState(t *testing.T) {
	assert.True(t, IsActiveState(StateRunning))
	assert.True(t, IsActiveState(StateIdle))
	assert.True(t, IsActiveState(StatePaused))
	assert.False(t, IsActiveState(StateShutOff))
	assert.False(t, IsActiveState(StateInShutdown))
	assert.False(t, IsActiveState(StateCrashed))
	assert.False(t, IsActiveState(""))
}

// Package virsh translates VM lifecycle operations into invocations of the
// virsh control tool and parses its text output into typed records.
package virsh

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/virshlab/virshlab/pkg/executor"
	"github.com/virshlab/virshlab/pkg/namelock"
)

// undefineTimeout bounds domain removal. Deleting storage volumes can be
// slow, so it is longer than the default but well under the clone bound.
const undefineTimeout = 60 * time.Second

// Client issues virsh commands through an Executor. It holds no state about
// the hypervisor; every call rebuilds its view from command output.
type Client struct {
	exec       executor.Executor
	virshPath  string
	defaultURI string
	locks      *namelock.Locker
	log        *zap.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// VirshPath overrides the control tool binary. Empty means "virsh".
	VirshPath string
	// DefaultURI is the libvirt connection URI used when a request does not
	// carry its own. Empty lets virsh pick its default.
	DefaultURI string
	// Locks serializes compound operations per VM name. Share one instance
	// with other components mutating the same domains. Nil gets a private
	// instance.
	Locks  *namelock.Locker
	Logger *zap.Logger
}

// NewClient creates a virsh client on top of the given executor.
func NewClient(exec executor.Executor, cfg ClientConfig) *Client {
	if cfg.VirshPath == "" {
		cfg.VirshPath = "virsh"
	}
	if cfg.Locks == nil {
		cfg.Locks = namelock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		exec:       exec,
		virshPath:  cfg.VirshPath,
		defaultURI: cfg.DefaultURI,
		locks:      cfg.Locks,
		log:        cfg.Logger,
	}
}

// uri resolves the per-request connection URI override.
func (c *Client) uri(override string) string {
	if override != "" {
		return override
	}
	return c.defaultURI
}

// run invokes virsh with the given arguments. The -c override is inserted
// ahead of the verb when a connection URI is in effect.
func (c *Client) run(ctx context.Context, uri string, opts executor.Options, args ...string) (executor.Result, error) {
	var argv []string
	if u := c.uri(uri); u != "" {
		argv = append(argv, "-c", u)
	}
	argv = append(argv, args...)
	return c.exec.Run(ctx, c.virshPath, argv, opts)
}

// List returns every domain known to the hypervisor, in listing order.
func (c *Client) List(ctx context.Context, uri string) ([]VM, error) {
	res, err := c.run(ctx, uri, executor.Options{}, "list", "--all")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &OperationError{Op: "list", ExitCode: res.ExitCode, Detail: res.Output}
	}
	return ParseVMList(res.Output), nil
}

// Status returns the dominfo view of one domain. A failed query means the
// domain is absent.
func (c *Client) Status(ctx context.Context, uri, name string) (Status, error) {
	res, err := c.run(ctx, uri, executor.Options{}, "dominfo", name)
	if err != nil {
		return Status{}, err
	}
	if res.ExitCode != 0 {
		return Status{}, errors.Wrapf(ErrNotFound, "dominfo %q: %s", name, res.Output)
	}
	return statusFromDomInfo(name, ParseDomInfo(res.Output)), nil
}

// Start boots a defined domain.
func (c *Client) Start(ctx context.Context, uri, name string) error {
	return c.lifecycle(ctx, uri, "start", name)
}

// Shutdown asks the guest OS to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context, uri, name string) error {
	return c.lifecycle(ctx, uri, "shutdown", name)
}

// Destroy force-stops a domain, equivalent to pulling the power plug.
func (c *Client) Destroy(ctx context.Context, uri, name string) error {
	return c.lifecycle(ctx, uri, "destroy", name)
}

// Reboot requests a graceful restart.
func (c *Client) Reboot(ctx context.Context, uri, name string) error {
	return c.lifecycle(ctx, uri, "reboot", name)
}

// Suspend pauses a running domain in memory.
func (c *Client) Suspend(ctx context.Context, uri, name string) error {
	return c.lifecycle(ctx, uri, "suspend", name)
}

// Resume unpauses a suspended domain.
func (c *Client) Resume(ctx context.Context, uri, name string) error {
	return c.lifecycle(ctx, uri, "resume", name)
}

// lifecycle maps one control verb to one invocation with the default timeout
// and no elevation. No state verification happens before or after; callers
// must not assume the reported state changed synchronously.
func (c *Client) lifecycle(ctx context.Context, uri, verb, name string) error {
	res, err := c.run(ctx, uri, executor.Options{}, verb, name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return operationError(verb, name, res)
	}
	c.log.Info("lifecycle operation completed", zap.String("op", verb), zap.String("vm", name))
	return nil
}

// ConsoleDisplay returns the graphical display URI (VNC/SPICE) of a domain.
func (c *Client) ConsoleDisplay(ctx context.Context, uri, name string) (string, error) {
	res, err := c.run(ctx, uri, executor.Options{}, "domdisplay", name)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", operationError("domdisplay", name, res)
	}
	return res.Output, nil
}

// Disks returns the block device mappings of a domain.
func (c *Client) Disks(ctx context.Context, uri, name string) ([]DiskMapping, error) {
	res, err := c.run(ctx, uri, executor.Options{}, "domblklist", name)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, operationError("domblklist", name, res)
	}
	return ParseDiskList(res.Output), nil
}

// InterfaceAddresses resolves the network addresses of a domain, querying
// its state first so the fallback strategy knows whether to bother.
func (c *Client) InterfaceAddresses(ctx context.Context, uri, name string) ([]NetworkInterface, error) {
	status, err := c.Status(ctx, uri, name)
	if err != nil {
		return nil, err
	}
	return c.ResolveInterfaces(ctx, uri, name, status.State), nil
}

// ResolveInterfaces applies the address resolution strategy for a domain
// already known to be in the given state: domifaddr first (elevated, since
// the query needs access to the lease database), then the guest agent.
// Failures on the primary path are treated like empty results and never
// propagate. Inactive domains yield an empty set without any external call.
func (c *Client) ResolveInterfaces(ctx context.Context, uri, name, state string) []NetworkInterface {
	if !IsActiveState(state) {
		return []NetworkInterface{}
	}

	res, err := c.run(ctx, uri, executor.Options{Elevate: true}, "domifaddr", name)
	if err == nil && res.ExitCode == 0 {
		if ifaces := ParseInterfaceList(res.Output); len(ifaces) > 0 {
			return ifaces
		}
	} else {
		c.log.Debug("domifaddr unavailable, falling back to guest agent",
			zap.String("vm", name), zap.Error(err))
	}

	return c.guestAgentInterfaces(ctx, uri, name)
}

// Delete removes a domain and its storage. A running domain is force-stopped
// first; if that fails the domain is left defined rather than half-deleted.
// There is no rollback once undefine has started. The per-name lock keeps
// two compound operations on the same domain from interleaving; it does not
// guard against concurrent single-verb calls.
func (c *Client) Delete(ctx context.Context, uri, name string) error {
	c.locks.Lock(name)
	defer c.locks.Unlock(name)

	res, err := c.run(ctx, uri, executor.Options{}, "dominfo", name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errors.Wrapf(ErrNotFound, "dominfo %q: %s", name, res.Output)
	}

	info := ParseDomInfo(res.Output)
	if strings.Contains(info["state"], StateRunning) {
		stopRes, err := c.run(ctx, uri, executor.Options{}, "destroy", name)
		if err != nil {
			return errors.Wrapf(err, "force-stopping %q before deletion", name)
		}
		if stopRes.ExitCode != 0 {
			return operationError("destroy", name, stopRes)
		}
		c.log.Info("force-stopped domain for deletion", zap.String("vm", name))
	}

	undefRes, err := c.run(ctx, uri, executor.Options{Timeout: undefineTimeout},
		"undefine", name, "--remove-all-storage")
	if err != nil {
		return errors.Wrapf(err, "undefining %q", name)
	}
	if undefRes.ExitCode != 0 {
		return operationError("undefine", name, undefRes)
	}

	c.log.Info("deleted domain and storage", zap.String("vm", name))
	return nil
}

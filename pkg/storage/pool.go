// Package storage introspects libvirt storage pools through virsh, so
// callers can see where clone disks will land and how much space is left.
package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/virshlab/virshlab/pkg/executor"
	"github.com/virshlab/virshlab/pkg/virsh"
)

// Pool is one row of 'virsh pool-list --all'.
type Pool struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Autostart bool   `json:"autostart"`
}

// PoolInfo is the pool-info view of a single pool. Size fields are kept as
// the tool's human-formatted strings; nothing downstream does arithmetic on
// them.
type PoolInfo struct {
	Name       string `json:"name"`
	UUID       string `json:"uuid,omitempty"`
	State      string `json:"state"`
	Persistent bool   `json:"persistent"`
	Autostart  bool   `json:"autostart"`
	Capacity   string `json:"capacity,omitempty"`
	Allocation string `json:"allocation,omitempty"`
	Available  string `json:"available,omitempty"`
}

// Manager queries storage pools. Like the VM client it is stateless; every
// call reflects the hypervisor at read time.
type Manager struct {
	exec       executor.Executor
	virshPath  string
	defaultURI string
	log        *zap.Logger
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	VirshPath  string
	DefaultURI string
	Logger     *zap.Logger
}

// NewManager creates a storage manager on top of the given executor.
func NewManager(exec executor.Executor, cfg ManagerConfig) *Manager {
	if cfg.VirshPath == "" {
		cfg.VirshPath = "virsh"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		exec:       exec,
		virshPath:  cfg.VirshPath,
		defaultURI: cfg.DefaultURI,
		log:        cfg.Logger,
	}
}

func (m *Manager) run(ctx context.Context, uri string, args ...string) (executor.Result, error) {
	var argv []string
	if uri == "" {
		uri = m.defaultURI
	}
	if uri != "" {
		argv = append(argv, "-c", uri)
	}
	argv = append(argv, args...)
	return m.exec.Run(ctx, m.virshPath, argv, executor.Options{})
}

// ListPools returns every storage pool, active or not, in listing order.
func (m *Manager) ListPools(ctx context.Context, uri string) ([]Pool, error) {
	res, err := m.run(ctx, uri, "pool-list", "--all")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, errors.Errorf("pool-list failed with exit code %d: %s", res.ExitCode, res.Output)
	}
	return ParsePoolList(res.Output), nil
}

// PoolInfo returns details for one pool. A failed query means the pool is
// absent.
func (m *Manager) PoolInfo(ctx context.Context, uri, name string) (PoolInfo, error) {
	res, err := m.run(ctx, uri, "pool-info", name)
	if err != nil {
		return PoolInfo{}, err
	}
	if res.ExitCode != 0 {
		return PoolInfo{}, errors.Wrapf(virsh.ErrNotFound, "pool-info %q: %s", name, res.Output)
	}

	info := virsh.ParseDomInfo(res.Output)
	pi := PoolInfo{
		Name:       name,
		UUID:       info["uuid"],
		State:      info["state"],
		Persistent: info["persistent"] == "yes",
		Autostart:  info["autostart"] == "yes",
		Capacity:   info["capacity"],
		Allocation: info["allocation"],
		Available:  info["available"],
	}
	if v := info["name"]; v != "" {
		pi.Name = v
	}
	return pi, nil
}

// ParsePoolList parses 'virsh pool-list --all' output: two header lines,
// then rows of 'name state autostart'. Rows without a name are skipped.
func ParsePoolList(output string) []Pool {
	pools := []Pool{}
	lines := strings.Split(output, "\n")
	if len(lines) <= 2 {
		return pools
	}
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) < 1 || fields[0] == "" {
			continue
		}
		pool := Pool{Name: fields[0]}
		if len(fields) > 1 {
			pool.State = fields[1]
		}
		if len(fields) > 2 {
			pool.Autostart = fields[2] == "yes"
		}
		pools = append(pools, pool)
	}
	return pools
}

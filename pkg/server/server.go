// Package server exposes the VM management operations over HTTP. It is thin
// glue: each endpoint maps to one client call and serializes the result.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/virshlab/virshlab/pkg/clone"
	"github.com/virshlab/virshlab/pkg/storage"
	"github.com/virshlab/virshlab/pkg/virsh"
)

// VMService is the set of virsh-backed operations the server exposes.
// *virsh.Client implements it.
type VMService interface {
	List(ctx context.Context, uri string) ([]virsh.VM, error)
	Status(ctx context.Context, uri, name string) (virsh.Status, error)
	Start(ctx context.Context, uri, name string) error
	Shutdown(ctx context.Context, uri, name string) error
	Destroy(ctx context.Context, uri, name string) error
	Reboot(ctx context.Context, uri, name string) error
	Suspend(ctx context.Context, uri, name string) error
	Resume(ctx context.Context, uri, name string) error
	ConsoleDisplay(ctx context.Context, uri, name string) (string, error)
	Disks(ctx context.Context, uri, name string) ([]virsh.DiskMapping, error)
	InterfaceAddresses(ctx context.Context, uri, name string) ([]virsh.NetworkInterface, error)
	Delete(ctx context.Context, uri, name string) error
}

// CloneService creates linked clones. *clone.Cloner implements it.
type CloneService interface {
	Create(ctx context.Context, req clone.Request) (clone.Result, error)
}

// PoolService introspects storage pools. *storage.Manager implements it.
type PoolService interface {
	ListPools(ctx context.Context, uri string) ([]storage.Pool, error)
	PoolInfo(ctx context.Context, uri, name string) (storage.PoolInfo, error)
}

// Config assembles a Server.
type Config struct {
	Listen  string
	VMs     VMService
	Cloner  CloneService
	Pools   PoolService
	Logger  *zap.Logger
	Version string
}

// Server is the HTTP front of the daemon.
type Server struct {
	vms     VMService
	cloner  CloneService
	pools   PoolService
	log     *zap.Logger
	version string
	httpSrv *http.Server
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		vms:     cfg.VMs,
		cloner:  cfg.Cloner,
		pools:   cfg.Pools,
		log:     cfg.Logger,
		version: cfg.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/vms", s.handleList)
	mux.HandleFunc("GET /api/v1/vms/{name}/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/vms/{name}/interfaces", s.handleInterfaces)
	mux.HandleFunc("GET /api/v1/vms/{name}/disks", s.handleDisks)
	mux.HandleFunc("GET /api/v1/vms/{name}/console", s.handleConsole)

	mux.HandleFunc("POST /api/v1/vms/{name}/start", s.lifecycleHandler(s.vms.Start, "VM '%s' started successfully"))
	mux.HandleFunc("POST /api/v1/vms/{name}/shutdown", s.lifecycleHandler(s.vms.Shutdown, "VM '%s' shutdown initiated"))
	mux.HandleFunc("POST /api/v1/vms/{name}/destroy", s.lifecycleHandler(s.vms.Destroy, "VM '%s' forcefully stopped"))
	mux.HandleFunc("POST /api/v1/vms/{name}/reboot", s.lifecycleHandler(s.vms.Reboot, "VM '%s' reboot initiated"))
	mux.HandleFunc("POST /api/v1/vms/{name}/pause", s.lifecycleHandler(s.vms.Suspend, "VM '%s' paused"))
	mux.HandleFunc("POST /api/v1/vms/{name}/resume", s.lifecycleHandler(s.vms.Resume, "VM '%s' resumed"))

	mux.HandleFunc("POST /api/v1/vms/{name}/linked-clone", s.handleLinkedClone)
	mux.HandleFunc("DELETE /api/v1/vms/{name}", s.handleDelete)

	mux.HandleFunc("GET /api/v1/pools", s.handlePools)
	mux.HandleFunc("GET /api/v1/pools/{name}", s.handlePoolInfo)

	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

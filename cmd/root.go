// Package cmd provides the command-line interface for the virshlab daemon.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/virshlab/virshlab/pkg/clone"
	"github.com/virshlab/virshlab/pkg/config"
	"github.com/virshlab/virshlab/pkg/executor"
	"github.com/virshlab/virshlab/pkg/logger"
	"github.com/virshlab/virshlab/pkg/namelock"
	"github.com/virshlab/virshlab/pkg/server"
	sshpkg "github.com/virshlab/virshlab/pkg/ssh"
	"github.com/virshlab/virshlab/pkg/storage"
	"github.com/virshlab/virshlab/pkg/virsh"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "virshlabd",
	Short: "REST API daemon for managing virtual machines via virsh",
	Long: `virshlabd exposes VM lifecycle operations (list, inspect, power control,
network and disk introspection, linked cloning, deletion) over HTTP by
invoking the virsh control tool, locally or on a remote hypervisor host
over SSH, and parsing its output.`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the application.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = v
}

func serveCmd() *cobra.Command {
	var (
		configPath  string
		listen      string
		connectURI  string
		virshPath   string
		cloneScript string
		logLevel    string
		development bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flags take precedence over file and environment.
			if listen != "" {
				cfg.Listen = listen
			}
			if connectURI != "" {
				cfg.ConnectURI = connectURI
			}
			if virshPath != "" {
				cfg.VirshPath = virshPath
			}
			if cloneScript != "" {
				cfg.CloneScript = cloneScript
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if development {
				cfg.Log.Development = true
			}

			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (default :9393)")
	cmd.Flags().StringVar(&connectURI, "connect", "", "Default libvirt connection URI")
	cmd.Flags().StringVar(&virshPath, "virsh", "", "Path to the virsh binary")
	cmd.Flags().StringVar(&cloneScript, "clone-script", "", "Path to the linked clone helper script")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&development, "dev", "d", false, "Human-readable log output")

	return cmd
}

func runServer(cfg *config.Config) error {
	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		FilePath:    cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	exec, cleanup, err := buildExecutor(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// Delete and clone share one lock space so they exclude each other per VM.
	locks := namelock.New()

	client := virsh.NewClient(exec, virsh.ClientConfig{
		VirshPath:  cfg.VirshPath,
		DefaultURI: cfg.ConnectURI,
		Locks:      locks,
		Logger:     log.Named("virsh"),
	})
	cloner := clone.NewCloner(exec, clone.Config{
		ScriptPath: cfg.CloneScript,
		Locks:      locks,
		Logger:     log.Named("clone"),
	})
	pools := storage.NewManager(exec, storage.ManagerConfig{
		VirshPath:  cfg.VirshPath,
		DefaultURI: cfg.ConnectURI,
		Logger:     log.Named("storage"),
	})

	srv := server.New(server.Config{
		Listen:  cfg.Listen,
		VMs:     client,
		Cloner:  cloner,
		Pools:   pools,
		Logger:  log.Named("http"),
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildExecutor selects the local or SSH command transport from config.
func buildExecutor(cfg *config.Config, log *zap.Logger) (executor.Executor, func(), error) {
	if cfg.SSH == nil {
		return executor.NewLocal(), func() {}, nil
	}

	client, err := sshpkg.NewClient(sshpkg.Config{
		Host:     cfg.SSH.Host,
		Port:     cfg.SSH.Port,
		Username: cfg.SSH.Username,
		KeyFile:  cfg.SSH.KeyFile,
		Password: cfg.SSH.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(); err != nil {
		return nil, nil, err
	}

	log.Info("using remote hypervisor host", zap.String("host", cfg.SSH.Host))
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close SSH connection", zap.Error(err))
		}
	}
	return executor.NewSSH(client), cleanup, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("virshlabd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

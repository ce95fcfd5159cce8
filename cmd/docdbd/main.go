package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/internal/telemetry"
	"github.com/docdb/docdbd/pkg/admin"
	"github.com/docdb/docdbd/pkg/adminapi"
	"github.com/docdb/docdbd/pkg/config"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/docdb/docdbd/pkg/diaglog"
	"github.com/docdb/docdbd/pkg/directclient"
	"github.com/docdb/docdbd/pkg/dispatch"
	"github.com/docdb/docdbd/pkg/lockmgr"
	"github.com/docdb/docdbd/pkg/metrics"
	"github.com/docdb/docdbd/pkg/netlistener"
	"github.com/docdb/docdbd/pkg/replication"
	"github.com/docdb/docdbd/pkg/sharding"
	"github.com/docdb/docdbd/pkg/shutdown"
	"github.com/docdb/docdbd/pkg/storage"
	"github.com/docdb/docdbd/pkg/storage/badger"
	"github.com/docdb/docdbd/pkg/storage/memtx"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `docdbd - request dispatch core for a document-oriented database

Usage:
  docdbd <command> [flags]

Commands:
  start    Start the server
  init     Write a sample configuration file
  help     Show this help text
  version  Show version information

Flags:
  --config string    Path to config file

Environment Variables:
  Options set in the config file can be overridden using environment
  variables; without a config file the environment is not read.
  Format: DOCDBD_<SECTION>_<KEY> (use underscores for nested keys)

  Example:
    DOCDBD_LOGGING_LEVEL=DEBUG docdbd start --config docdbd.yaml
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runStart()
	case "init":
		runInit()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("docdbd %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "docdbd.yaml", "Path to write the config file")
	force := initFlags.Bool("force", false, "Overwrite an existing config file")
	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	if !*force {
		if _, err := os.Stat(*configFile); err == nil {
			log.Fatalf("config file already exists at %s (use --force to overwrite)", *configFile)
		}
	}

	if err := config.SaveConfig(config.DefaultConfig(), *configFile); err != nil {
		log.Fatalf("failed to write config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", *configFile)
	fmt.Printf("Start the server with: docdbd start --config %s\n", *configFile)
}

func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file")
	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "docdbd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "docdbd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	instanceLock, err := shutdown.AcquireInstanceLock(cfg.InstanceLockPath)
	if err != nil {
		log.Fatalf("failed to acquire instance lock: %v", err)
	}

	engine, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage engine: %v", err)
	}

	var diag *diaglog.Log
	if cfg.Dispatch.DebugMode {
		diagPath := filepath.Join(filepath.Dir(cfg.InstanceLockPath), fmt.Sprintf("diaglog.%x", time.Now().Unix()))
		diag, err = diaglog.Open(diagPath)
		if err != nil {
			log.Fatalf("failed to open diagnostic log: %v", err)
		}
	}

	registry := curop.NewRegistry()
	recorder := metrics.NewRecorder(nil)
	topology := replication.NewStandalone()

	d := dispatch.New(dispatch.Dispatcher{
		Registry: registry,
		Locks:    lockmgr.New(),
		Storage:  engine,
		Topology: topology,
		Router:   sharding.NoOpRouter{},
		Diag:     diag,
		Metrics:  recorder,
		Config: dispatch.Config{
			SlowMS:               cfg.Dispatch.SlowMS,
			DebugMode:            cfg.Dispatch.DebugMode,
			ProfileSampleRate:    cfg.Dispatch.ProfileSampleRate,
			MaxUpdateObjectBytes: int(cfg.Dispatch.MaxUpdateObjectBytes),
		},
	})
	d.Admin = admin.New(registry, d)

	probe := directclient.New(d, registry)
	if _, err := probe.Query(ctx, "admin.$cmd", map[string]any{"getLastError": 1}); err != nil {
		log.Fatalf("readiness probe failed: %v", err)
	}
	logger.Info("dispatch core readiness probe passed")

	listener := netlistener.New(netlistener.Config{
		Addr:            cfg.Listen,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, d, registry)

	listeners := []shutdown.ListenerCloser{listener}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, nil)
		metricsServer.Start(func(err error) {
			logger.Error("metrics server stopped", "error", err)
		})
		listeners = append(listeners, metricsServer)
		logger.Info("metrics endpoint enabled", "port", cfg.Metrics.Port)
	}

	var adminServer *adminapi.Server
	if cfg.AdminAPI.Enabled {
		adminServer = adminapi.NewServer(adminapi.Config{Port: cfg.AdminAPI.Port, JWTSecret: cfg.AdminAPI.JWTSecret}, d.Admin, registry)
		adminServer.Start()
		listeners = append(listeners, adminApiCloser{adminServer})
		logger.Info("admin API enabled", "port", cfg.AdminAPI.Port)
	}

	coordinatorDeps := shutdown.Coordinator{
		Flag:         d,
		Topology:     topology,
		Locks:        d.Locks,
		Storage:      engine,
		Listeners:    listeners,
		InstanceLock: instanceLock,
	}
	if diag != nil {
		coordinatorDeps.Diag = diag
	}
	coordinator := shutdown.New(coordinatorDeps)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- listener.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("docdbd is running", "listen", cfg.Listen)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		coordinator.ExitCleanly(context.Background(), 0)
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("listener exited with error", "error", err)
		}
		coordinator.ExitCleanly(context.Background(), 0)
	}
}

func openStorage(cfg config.StorageConfig) (storage.Engine, error) {
	switch cfg.Engine {
	case "memtx":
		return memtx.New(), nil
	case "badger":
		return badger.Open(badger.Options{Path: cfg.Path})
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

type adminApiCloser struct {
	s *adminapi.Server
}

func (c adminApiCloser) Close() error {
	return c.s.Stop(context.Background())
}

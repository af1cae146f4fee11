// Package main is the entry point for all-smi: a multi-vendor
// accelerator and host telemetry agent that runs in local, api, or view
// mode (spec section 6). It also dispatches the hidden
// __sampler-watchdog subcommand used by long-lived out-of-process
// samplers (spec section 4.3) to detect an orphaned parent and exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zeroday0619/all-smi/internal/config"
	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/engine"
	"github.com/zeroday0619/all-smi/internal/exporter"
	"github.com/zeroday0619/all-smi/internal/factory"
	"github.com/zeroday0619/all-smi/internal/sampler"
	"github.com/zeroday0619/all-smi/internal/state"
	"github.com/zeroday0619/all-smi/internal/transport"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath    = flag.String("config", "", "Path to configuration file (auto-discovered if omitted)")
	modeFlag      = flag.String("mode", "", "Run mode: local, api, or view")
	intervalFlag  = flag.Int("interval", 0, "Sample interval in seconds")
	portFlag      = flag.Int("port", 0, "TCP port to serve /metrics and /health on")
	socketFlag    = flag.String("socket", "", "Unix domain socket path to serve /metrics and /health on")
	hostfileFlag  = flag.String("hostfile", "", "Path to a newline-delimited list of all-smi host URLs (view mode)")
	processesFlag = flag.Bool("processes", false, "Include per-process samples in local collection")
	showVersion   = flag.Bool("version", false, "Show version and exit")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "__sampler-watchdog" {
		runSamplerWatchdog(os.Args[2:])
		return
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("all-smi %s\n", version)
		os.Exit(config.ExitOK)
	}

	cli := config.CLIOverrides{
		Mode:         *modeFlag,
		Socket:       *socketFlag,
		Hostfile:     *hostfileFlag,
		Hosts:        flag.Args(),
		ProcessesSet: *processesFlag,
		Processes:    *processesFlag,
	}
	if *intervalFlag > 0 {
		cli.IntervalSet = true
		cli.Interval = time.Duration(*intervalFlag) * time.Second
	}
	if *portFlag > 0 {
		cli.PortSet = true
		cli.Port = *portFlag
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadLayered(cli, nil, *configPath)
	} else {
		cfg, err = config.LoadLayered(cli, nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(config.ExitConfigError)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		os.Exit(config.ExitConfigError)
	}

	logger.Info("starting all-smi",
		zap.String("version", version),
		zap.String("mode", string(cfg.Mode)),
		zap.Duration("interval", cfg.Interval.Duration))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	run(ctx, cfg, logger)
	logger.Info("all-smi stopped")
}

// run wires the collection strategy, application state, exporter, and
// transport server together and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	appState := state.New(logger)
	exp := exporter.New(logger)

	var strategy contracts.DataCollectionStrategy
	interval := cfg.Interval.Duration
	var cfgForEngine contracts.CollectionConfig

	var registry *sampler.Registry

	switch cfg.Mode {
	case config.ModeView:
		strategy = engine.NewRemoteStrategy(logger)
		cfgForEngine = contracts.CollectionConfig{
			HostURLs:            cfg.Hosts,
			Concurrency:         cfg.Remote.MaxConnections,
			RequestTimeout:      cfg.Interval.Duration,
			AuthToken:           cfg.Remote.AuthToken,
			AllowPrivateTargets: cfg.Remote.SuppressLocalhostWarn,
		}
		interval = engine.AdaptiveRemoteInterval(len(cfg.Hosts))
	default:
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		hostID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(hostname)).String()

		registry = sampler.NewRegistry(logger)
		roster := factory.New(logger, registry, hostID, hostname)
		if len(roster.Accelerators.Readers) == 0 {
			logger.Warn("no accelerator readers available on this host")
		}

		strategy = engine.NewLocalStrategy(roster, hostID, hostname, logger)
		cfgForEngine = contracts.CollectionConfig{
			IncludeProcesses: cfg.Processes,
			ReaderDeadline:   engine.DefaultReaderDeadline,
		}
		if interval <= 0 {
			interval = engine.DefaultLocalInterval()
		}
	}

	if registry != nil {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			registry.StopAll(shutdownCtx)
		}()
	}

	aggregator := engine.NewAggregator(strategy, appState, cfgForEngine, interval, logger)
	go aggregator.Run(ctx)

	if cfg.Mode == config.ModeAPI {
		srv := transport.New(metricsSource{state: appState, exporter: exp}, cfg.Remote.AuthToken, logger)
		bound := false

		if cfg.Port != 0 {
			if err := srv.ServeTCP(fmt.Sprintf(":%d", cfg.Port)); err != nil {
				logger.Error("failed to bind TCP listener", zap.Int("port", cfg.Port), zap.Error(err))
				os.Exit(config.ExitBindFailure)
			}
			bound = true
			logger.Info("serving metrics over TCP", zap.Int("port", cfg.Port))
		}

		socketPath := cfg.Socket
		if socketPath == "" {
			if p, err := transport.DefaultUDSPath(); err == nil {
				socketPath = p
			}
		}
		if socketPath != "" {
			if err := srv.ServeUDS(socketPath); err != nil {
				logger.Warn("failed to bind unix domain socket listener", zap.String("path", socketPath), zap.Error(err))
			} else {
				bound = true
				logger.Info("serving metrics over unix domain socket", zap.String("path", socketPath))
			}
		}

		if !bound {
			logger.Error("no transport listener could be bound")
			os.Exit(config.ExitBindFailure)
		}

		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
		return
	}

	<-ctx.Done()
}

// metricsSource adapts AppState+Exporter to transport.MetricsSource.
type metricsSource struct {
	state    *state.AppState
	exporter *exporter.Exporter
}

func (m metricsSource) Render() ([]byte, error) {
	return m.exporter.Export(m.state.Snapshot())
}

func runSamplerWatchdog(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: all-smi __sampler-watchdog <parent-pid> <target-pid>")
		os.Exit(1)
	}
	parentPID, err1 := strconv.Atoi(args[0])
	targetPID, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(os.Stderr, "usage: all-smi __sampler-watchdog <parent-pid> <target-pid>")
		os.Exit(1)
	}
	sampler.RunWatchdogLoop(parentPID, targetPID)
}

// initLogger builds a zap logger, tee-ing to the console and optionally to
// a JSON log file, matching the level configured in cfg.Logging.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)
	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}

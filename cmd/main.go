package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/Borislavv/presentation-gate/internal/gate"
	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/Borislavv/presentation-gate/pkg/k8s/probe/liveness"
	"github.com/Borislavv/presentation-gate/pkg/shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	configPath      = "presentationGate.cfg.yaml"
	configPathLocal = "presentationGate.cfg.local.yaml"
)

// setMaxProcs automatically sets the optimal GOMAXPROCS value (CPU parallelism)
// based on the available CPUs and cgroup/docker CPU quotas (uses automaxprocs).
func setMaxProcs() {
	if _, err := maxprocs.Set(); err != nil {
		log.Err(err).Msg("[main] setting up GOMAXPROCS value failed")
		panic(err)
	}
	log.Info().Msgf("[main] optimized GOMAXPROCS=%d was set up", runtime.GOMAXPROCS(0))
}

// loadCfg loads the configuration, the local file takes precedence over the default one.
// GATE_* environment variables (and .env) override both.
func loadCfg() (*config.Gate, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[config] .env file was not loaded")
	}

	path := configPath
	if _, err := os.Stat(configPathLocal); err == nil {
		path = configPathLocal
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Err(err).Msg("[config] failed to load")
		return nil, err
	}
	log.Info().Msgf("[config] config loaded from '%v'", path)

	return cfg, nil
}

// setUpLogger applies the configured level, dev environments get human-readable output.
func setUpLogger(cfg *config.Gate) {
	level, err := zerolog.ParseLevel(cfg.Logs().Level)
	if err != nil {
		log.Warn().Msgf("[main] unknown log level '%s', falling back to info", cfg.Logs().Level)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Main entrypoint: configures and starts the gate application.
func main() {
	// Create a root context for graceful shutdown and cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optimize GOMAXPROCS for the current environment.
	setMaxProcs()

	cfg, cfgError := loadCfg()
	if cfgError != nil {
		log.Err(cfgError).Msg("[main] failed to load gate config")
		return
	}
	setUpLogger(cfg)

	if dump, err := cfg.Dump(); err == nil {
		log.Debug().Msgf("[config] effective config:\n%s", dump)
	}

	// Setup graceful shutdown handler (SIGTERM, SIGINT).
	gracefulShutdown := shutdown.NewGraceful(ctx, cancel)
	gracefulShutdown.SetGracefulTimeout(time.Minute)

	// Initialize liveness probe for Kubernetes/Cloud health checks.
	probe := liveness.NewProbe(cfg.K8S().Probe.Timeout)

	app, err := gate.NewApp(ctx, cfg, probe)
	if err != nil {
		log.Err(err).Msg("[main] failed to init gate app")
		return
	}

	// Register app for graceful shutdown.
	gracefulShutdown.Add(1)
	go app.Start(gracefulShutdown)

	// Listen for OS signals or context cancellation and wait for graceful shutdown.
	if err = gracefulShutdown.ListenCancelAndAwait(); err != nil {
		log.Err(err).Msg("[main] failed to gracefully shut down service")
	}
}

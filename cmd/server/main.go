// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/health"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/network"
	"github.com/opd-ai/go-flight/pkg/recorder"
	"github.com/opd-ai/go-flight/pkg/render"
	"github.com/opd-ai/go-flight/pkg/resource"
)

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "config.json", "Path to configuration file (.json or .yaml)")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	terminal := flag.Duration("terminal", 0, "Draw a view of the simulation at this interval (0 disables)")
	viewKind := flag.String("view", "terminal", "View drawn by -terminal: terminal or log")
	flag.Parse()

	if *createDefault {
		if err := config.SaveConfig(serverConfig(config.DefaultConfig()), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *configPath)
		return
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}
	env, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Error(ctx, "Failed to load environment configuration", err)
		os.Exit(1)
	}

	view, err := newView(*viewKind, logger)
	if err != nil {
		logger.Error(ctx, "Invalid view", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, env, *terminal, view, logger); err != nil {
		logger.Error(ctx, "Server failed", err)
		os.Exit(1)
	}
}

// loadConfig reads the file when it exists, applies FLIGHT_* overrides and
// turns human actors into network-possessed ones.
func loadConfig(path string, logger *logging.Logger) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(context.Background(), "Configuration file not found, using default configuration",
			"config_path", path,
		)
		cfg = config.DefaultConfig()
	} else {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	return serverConfig(cfg), nil
}

// serverConfig replaces human controllers with network controllers; a headless
// server has no keyboard.
func serverConfig(cfg *config.Config) *config.Config {
	for i := range cfg.Actors {
		if cfg.Actors[i].Controller == config.ControllerHuman {
			cfg.Actors[i].Controller = config.ControllerNetwork
		}
	}
	return cfg
}

func run(ctx context.Context, cfg *config.Config, env *config.EnvironmentConfig, terminal time.Duration, view render.Renderer, logger *logging.Logger) error {
	rm := resource.NewResourceManager(env, logger)
	if err := rm.Start(); err != nil {
		return logging.WrapError(err, "starting resource manager")
	}

	sim, err := engine.NewSimulation(cfg, logger)
	if err != nil {
		return logging.WrapError(err, "creating simulation")
	}

	loader, err := resource.NewAssetLoader(cfg.Assets.Workers, resource.FileLoader(cfg.Assets.Directory), logger)
	if err != nil {
		return logging.WrapError(err, "creating asset loader")
	}
	sim.SetAssetSource(loader)

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.Open(cfg.Recorder, logger)
		if err != nil {
			return logging.WrapError(err, "opening recorder %s", cfg.Recorder.DSN)
		}
		if err := rec.Start(rm); err != nil {
			return logging.WrapError(err, "starting recorder")
		}
		sim.SetRecorder(rec)
	}

	remotes, err := sim.Populate(cfg.Actors)
	if err != nil {
		return logging.WrapError(err, "spawning actors")
	}

	server := network.NewInputServer(cfg.Network, sim.Events(), logger)
	for name, controller := range remotes {
		actorID, ok := sim.ActorID(name)
		if !ok {
			continue
		}
		server.Route(name, actorID, controller)
	}

	checker := health.NewHealthChecker()
	checker.AddCheck(health.NewSimulationHealthCheck(sim.LastTick,
		time.Duration(cfg.Health.StaleTickAfter)*time.Millisecond))
	checker.AddCheck(health.NewNetworkHealthCheck(func() string {
		if addr := server.Addr(); addr != nil {
			return addr.String()
		}
		return ""
	}))
	checker.AddCheck(resource.NewLoaderHealthCheck(loader, cfg.Health.MaxQueuedLoads))
	checker.AddCheck(resource.NewResourceHealthCheck(rm))
	checker.AddCheck(health.NewMemoryHealthCheck(env.MaxMemoryMB, func() int64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return int64(m.Alloc / 1024 / 1024)
	}))

	healthServer := &http.Server{
		Addr:         cfg.Health.Address,
		Handler:      checker.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(ctx, "Starting health check server", "address", cfg.Health.Address)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Health check server failed", err)
		}
	}()

	logger.Info(ctx, "Starting input server",
		"address", cfg.Network.ServerAddress,
		"max_clients", cfg.Network.MaxClients,
		"remote_actors", len(remotes),
	)
	if err := server.Start(cfg.Network.ServerAddress); err != nil {
		return logging.WrapError(err, "starting input server on %s", cfg.Network.ServerAddress)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if terminal > 0 {
		if err := rm.StartGoroutine(runCtx, "view", func(ctx context.Context) {
			drawEvery(ctx, terminal, sim, view, logger)
		}); err != nil {
			logger.Warn(ctx, "View disabled", "error", err.Error())
		}
	}

	simErr := sim.Run(runCtx)
	logger.Info(ctx, "Shutting down server", "ticks", sim.TickCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
	defer cancel()

	server.Stop()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Health check server shutdown failed", err)
	}
	if rec != nil {
		if err := rec.Close(shutdownCtx); err != nil {
			logger.Error(ctx, "Recorder shutdown failed", err)
		}
		stats := rec.Stats()
		logger.Info(ctx, "Recorder closed", "written", stats.Written, "dropped", stats.Dropped)
	}
	if err := loader.Close(env.ShutdownTimeout); err != nil {
		logger.Error(ctx, "Asset loader shutdown failed", err)
	}
	if err := rm.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Resource manager shutdown failed", err)
	}
	return simErr
}

// newView builds the renderer selected by -view. "log" writes frames to the
// debug log instead of the terminal.
func newView(kind string, logger *logging.Logger) (render.Renderer, error) {
	switch kind {
	case "terminal":
		view := render.NewTerminalRenderer(os.Stdout, 60, 24, 5)
		view.SetANSI(true)
		return view, nil
	case "log":
		return render.NewNullRenderer(logger), nil
	default:
		return nil, fmt.Errorf("unknown view %q (want terminal or log)", kind)
	}
}

// drawEvery renders a snapshot on each interval until ctx is cancelled.
func drawEvery(ctx context.Context, interval time.Duration, sim *engine.Simulation, r render.Renderer, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Render(sim.Snapshot()); err != nil {
				logger.Error(ctx, "Terminal render failed", err)
			}
		}
	}
}

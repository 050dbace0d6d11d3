// cmd/client/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/EngoEngine/engo"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/recorder"
	engorender "github.com/opd-ai/go-flight/pkg/render/engo"
	"github.com/opd-ai/go-flight/pkg/resource"
)

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "config.json", "Path to configuration file (.json or .yaml)")
	fullscreen := flag.Bool("fullscreen", false, "Run in fullscreen mode")
	width := flag.Int("width", 1024, "Window width")
	height := flag.Int("height", 768, "Window height")
	scale := flag.Float64("scale", engorender.DefaultScale, "Pixels per world unit")
	flag.Parse()

	var cfg *config.Config
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Info(ctx, "Configuration file not found, using default configuration",
			"config_path", *configPath,
		)
		cfg = config.DefaultConfig()
	} else {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
	}
	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		logger.Error(ctx, "Failed to apply environment configuration", err)
		os.Exit(1)
	}

	sim, err := engine.NewSimulation(cfg, logger)
	if err != nil {
		logger.Error(ctx, "Failed to create simulation", err)
		os.Exit(1)
	}

	env, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Error(ctx, "Failed to load environment configuration", err)
		os.Exit(1)
	}
	rm := resource.NewResourceManager(env, logger)
	defer rm.Shutdown(context.Background())

	loader, err := resource.NewAssetLoader(cfg.Assets.Workers, resource.FileLoader(cfg.Assets.Directory), logger)
	if err != nil {
		logger.Error(ctx, "Failed to create asset loader", err)
		os.Exit(1)
	}
	defer loader.Close(env.ShutdownTimeout)
	sim.SetAssetSource(loader)

	if cfg.Recorder.Enabled {
		rec, err := recorder.Open(cfg.Recorder, logger)
		if err != nil {
			logger.Error(ctx, "Failed to open recorder", err, "dsn", cfg.Recorder.DSN)
			os.Exit(1)
		}
		if err := rec.Start(rm); err != nil {
			logger.Error(ctx, "Failed to start recorder", err)
			os.Exit(1)
		}
		defer rec.Close(context.Background())
		sim.SetRecorder(rec)
	}

	if _, err := sim.Populate(cfg.Actors); err != nil {
		logger.Error(ctx, "Failed to spawn actors", err)
		os.Exit(1)
	}

	scene := engorender.NewFlightScene(sim, nil, logger)
	scene.SetScale(float32(*scale))

	engo.Run(engo.RunOptions{
		Title:          "Go Flight",
		Width:          *width,
		Height:         *height,
		Fullscreen:     *fullscreen,
		VSync:          true,
		StandardInputs: true,
	}, scene)
}

// pkg/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-flight/pkg/camera"
	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/entity"
	"github.com/opd-ai/go-flight/pkg/physics"
)

// Controller kinds accepted in ActorConfig.Controller.
const (
	ControllerHuman   = "human"
	ControllerAI      = "ai"
	ControllerNetwork = "network"
	ControllerNone    = "none"
)

// Config contains configuration for a flight simulation
type Config struct {
	Simulation SimulationConfig                    `json:"simulation" yaml:"simulation"`
	Profiles   map[string]physics.FlightParameters `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Camera     camera.Config                       `json:"camera" yaml:"camera"`
	Control    ControlConfig                       `json:"control" yaml:"control"`
	Network    NetworkConfig                       `json:"network" yaml:"network"`
	Recorder   RecorderConfig                      `json:"recorder" yaml:"recorder"`
	Assets     AssetConfig                         `json:"assets" yaml:"assets"`
	Health     HealthConfig                        `json:"health" yaml:"health"`
	Actors     []ActorConfig                       `json:"actors" yaml:"actors"`
}

// SimulationConfig contains tick loop configuration
type SimulationConfig struct {
	TickRate  int     `json:"tickRate" yaml:"tickRate"`
	MaxActors int     `json:"maxActors" yaml:"maxActors"`
	WorldSize float64 `json:"worldSize" yaml:"worldSize"`
}

// TickInterval returns the wall-clock period of one tick.
func (s SimulationConfig) TickInterval() time.Duration {
	if s.TickRate <= 0 {
		ms := physics.FrameTimeMs
		return time.Duration(ms * float64(time.Millisecond))
	}
	return time.Second / time.Duration(s.TickRate)
}

// ControlConfig contains controller tuning
type ControlConfig struct {
	Human   control.HumanConfig `json:"human" yaml:"human"`
	AI      control.AIConfig    `json:"ai" yaml:"ai"`
	Network RemoteControlConfig `json:"network" yaml:"network"`
}

// RemoteControlConfig tunes network-driven controllers
type RemoteControlConfig struct {
	InterpolationDelayMs int `json:"interpolationDelayMs" yaml:"interpolationDelayMs"`
	BufferSize           int `json:"bufferSize" yaml:"bufferSize"`
}

// InterpolationDelay returns the replay delay as a duration.
func (r RemoteControlConfig) InterpolationDelay() time.Duration {
	return time.Duration(r.InterpolationDelayMs) * time.Millisecond
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	ServerAddress   string `json:"serverAddress" yaml:"serverAddress"`
	ServerPort      int    `json:"serverPort" yaml:"serverPort"`
	MaxClients      int    `json:"maxClients" yaml:"maxClients"`
	InputRateLimit  int    `json:"inputRateLimit" yaml:"inputRateLimit"`
	ReadTimeoutSec  int    `json:"readTimeoutSec" yaml:"readTimeoutSec"`
	WriteTimeoutSec int    `json:"writeTimeoutSec" yaml:"writeTimeoutSec"`
}

// RecorderConfig contains flight recorder configuration
type RecorderConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	DSN             string `json:"dsn" yaml:"dsn"`
	QueueSize       int    `json:"queueSize" yaml:"queueSize"`
	BatchSize       int    `json:"batchSize" yaml:"batchSize"`
	FlushIntervalMs int    `json:"flushIntervalMs" yaml:"flushIntervalMs"`
	SampleEvery     int    `json:"sampleEvery" yaml:"sampleEvery"`
}

// AssetConfig contains model loading configuration
type AssetConfig struct {
	Directory string            `json:"directory" yaml:"directory"`
	Workers   int               `json:"workers" yaml:"workers"`
	Models    map[string]string `json:"models" yaml:"models"`
}

// HealthConfig contains health endpoint configuration
type HealthConfig struct {
	Address        string `json:"address" yaml:"address"`
	StaleTickAfter int    `json:"staleTickAfterMs" yaml:"staleTickAfterMs"`
	MaxQueuedLoads int    `json:"maxQueuedLoads" yaml:"maxQueuedLoads"`
}

// ActorConfig describes an actor spawned at startup
type ActorConfig struct {
	Name       string     `json:"name" yaml:"name"`
	Class      string     `json:"class" yaml:"class"`
	Profile    string     `json:"profile,omitempty" yaml:"profile,omitempty"`
	Controller string     `json:"controller" yaml:"controller"`
	Behavior   string     `json:"behavior,omitempty" yaml:"behavior,omitempty"`
	Target     string     `json:"target,omitempty" yaml:"target,omitempty"`
	Spawn      [3]float64 `json:"spawn" yaml:"spawn"`
	Selected   bool       `json:"selected,omitempty" yaml:"selected,omitempty"`
}

// LoadConfig loads a configuration from a JSON or YAML file. The format is
// chosen by extension (.yaml/.yml for YAML, anything else JSON). Missing
// sections keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves a configuration to a file, using YAML for .yaml/.yml paths.
func SaveConfig(config *Config, path string) error {
	if config == nil {
		return fmt.Errorf("failed to marshal config: nil config")
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Parameters returns the flight parameters for a named profile. Profiles in
// the file override the built-in ones.
func (c *Config) Parameters(profile string) (physics.FlightParameters, bool) {
	if p, ok := c.Profiles[profile]; ok {
		return p, true
	}
	return physics.ProfileParameters(profile)
}

// Validate checks the configuration for values the simulation cannot run with.
func (c *Config) Validate() error {
	if c.Simulation.TickRate < 1 || c.Simulation.TickRate > 240 {
		return &ValidationError{Field: "Simulation.TickRate", Value: c.Simulation.TickRate, Message: "must be between 1 and 240"}
	}
	if c.Simulation.MaxActors < 1 {
		return &ValidationError{Field: "Simulation.MaxActors", Value: c.Simulation.MaxActors, Message: "must be positive"}
	}
	if len(c.Actors) > c.Simulation.MaxActors {
		return &ValidationError{Field: "Actors", Value: len(c.Actors), Message: "exceeds Simulation.MaxActors"}
	}

	for name, params := range c.Profiles {
		if err := params.Validate(); err != nil {
			return &ValidationError{Field: "Profiles." + name, Value: params, Message: err.Error()}
		}
	}

	if c.Camera.Stiffness <= 0 || c.Camera.Damping < 0 {
		return &ValidationError{Field: "Camera.Stiffness", Value: c.Camera.Stiffness, Message: "spring stiffness must be positive and damping non-negative"}
	}
	if c.Camera.SmoothingFactor <= 0 || c.Camera.SmoothingFactor > 1 {
		return &ValidationError{Field: "Camera.SmoothingFactor", Value: c.Camera.SmoothingFactor, Message: "must be in (0, 1]"}
	}
	if c.Camera.MinDistance <= 0 || c.Camera.MaxDistance < c.Camera.MinDistance {
		return &ValidationError{Field: "Camera.MinDistance", Value: c.Camera.MinDistance, Message: "distance limits must be positive and ordered"}
	}

	if c.Control.Network.BufferSize < 1 {
		return &ValidationError{Field: "Control.Network.BufferSize", Value: c.Control.Network.BufferSize, Message: "must be positive"}
	}
	if c.Control.Network.InterpolationDelayMs < 0 {
		return &ValidationError{Field: "Control.Network.InterpolationDelayMs", Value: c.Control.Network.InterpolationDelayMs, Message: "must not be negative"}
	}

	if c.Recorder.Enabled && (c.Recorder.QueueSize < 1 || c.Recorder.BatchSize < 1) {
		return &ValidationError{Field: "Recorder.QueueSize", Value: c.Recorder.QueueSize, Message: "queue and batch sizes must be positive"}
	}
	if c.Assets.Workers < 1 {
		return &ValidationError{Field: "Assets.Workers", Value: c.Assets.Workers, Message: "must be positive"}
	}

	names := make(map[string]bool, len(c.Actors))
	for i, actor := range c.Actors {
		field := fmt.Sprintf("Actors[%d]", i)
		if actor.Name == "" {
			return &ValidationError{Field: field + ".Name", Value: actor.Name, Message: "cannot be empty"}
		}
		if names[actor.Name] {
			return &ValidationError{Field: field + ".Name", Value: actor.Name, Message: "duplicate actor name"}
		}
		names[actor.Name] = true

		switch actor.Controller {
		case ControllerHuman, ControllerAI, ControllerNetwork, ControllerNone:
		default:
			return &ValidationError{Field: field + ".Controller", Value: actor.Controller, Message: "must be human, ai, network or none"}
		}
		if _, err := entity.ParseShipClass(actor.Class); err != nil {
			return &ValidationError{Field: field + ".Class", Value: actor.Class, Message: err.Error()}
		}
		if actor.Behavior != "" {
			if _, err := control.ParseBehavior(actor.Behavior); err != nil {
				return &ValidationError{Field: field + ".Behavior", Value: actor.Behavior, Message: err.Error()}
			}
		}
		if actor.Profile != "" {
			if _, ok := c.Parameters(actor.Profile); !ok {
				return &ValidationError{Field: field + ".Profile", Value: actor.Profile, Message: "unknown flight profile"}
			}
		}
	}
	for i, actor := range c.Actors {
		if actor.Target != "" && !names[actor.Target] {
			return &ValidationError{Field: fmt.Sprintf("Actors[%d].Target", i), Value: actor.Target, Message: "unknown actor"}
		}
	}

	return nil
}

// DefaultConfig returns a default flight configuration: a human-flown fighter
// with two AI wingmen.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			TickRate:  60,
			MaxActors: 64,
			WorldSize: 10000,
		},
		Camera: camera.DefaultConfig(),
		Control: ControlConfig{
			Human: control.DefaultHumanConfig(),
			AI:    control.DefaultAIConfig(),
			Network: RemoteControlConfig{
				InterpolationDelayMs: int(control.DefaultInterpolationDelay / time.Millisecond),
				BufferSize:           control.DefaultInputBufferSize,
			},
		},
		Network: NetworkConfig{
			ServerAddress:   "localhost:4566",
			ServerPort:      4566,
			MaxClients:      32,
			InputRateLimit:  120,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
		},
		Recorder: RecorderConfig{
			Enabled:         false,
			DSN:             "file:flight.db",
			QueueSize:       1024,
			BatchSize:       64,
			FlushIntervalMs: 500,
			SampleEvery:     6,
		},
		Assets: AssetConfig{
			Directory: "assets/models",
			Workers:   4,
			Models: map[string]string{
				"fighter":     "fighter.glb",
				"interceptor": "interceptor.glb",
				"capital":     "capital.glb",
			},
		},
		Health: HealthConfig{
			Address:        ":8081",
			StaleTickAfter: 1000,
			MaxQueuedLoads: 32,
		},
		Actors: []ActorConfig{
			{
				Name:       "Player",
				Class:      "fighter",
				Controller: ControllerHuman,
				Spawn:      [3]float64{0, 0, 0},
				Selected:   true,
			},
			{
				Name:       "Wing-1",
				Class:      "interceptor",
				Controller: ControllerAI,
				Behavior:   "follow",
				Target:     "Player",
				Spawn:      [3]float64{-20, 0, -20},
			},
			{
				Name:       "Wing-2",
				Class:      "capital",
				Controller: ControllerAI,
				Behavior:   "patrol",
				Spawn:      [3]float64{40, 10, 40},
			},
		},
	}
}

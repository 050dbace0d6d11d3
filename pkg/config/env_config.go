// pkg/config/env_config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names. Every variable is optional.
const (
	EnvServerAddr            = "FLIGHT_SERVER_ADDR"
	EnvServerPort            = "FLIGHT_SERVER_PORT"
	EnvMaxClients            = "FLIGHT_MAX_CLIENTS"
	EnvReadTimeout           = "FLIGHT_READ_TIMEOUT"
	EnvWriteTimeout          = "FLIGHT_WRITE_TIMEOUT"
	EnvTickRate              = "FLIGHT_TICK_RATE"
	EnvWorldSize             = "FLIGHT_WORLD_SIZE"
	EnvInterpolationDelay    = "FLIGHT_INTERPOLATION_DELAY"
	EnvInputBufferSize       = "FLIGHT_INPUT_BUFFER_SIZE"
	EnvInputRateLimit        = "FLIGHT_INPUT_RATE_LIMIT"
	EnvCBMaxRequests         = "FLIGHT_CB_MAX_REQUESTS"
	EnvCBInterval            = "FLIGHT_CB_INTERVAL"
	EnvCBTimeout             = "FLIGHT_CB_TIMEOUT"
	EnvCBMaxConsecutiveFails = "FLIGHT_CB_MAX_CONSECUTIVE_FAILS"
	EnvMaxMemoryMB           = "FLIGHT_MAX_MEMORY_MB"
	EnvMaxGoroutines         = "FLIGHT_MAX_GOROUTINES"
	EnvShutdownTimeout       = "FLIGHT_SHUTDOWN_TIMEOUT"
	EnvResourceCheckInterval = "FLIGHT_RESOURCE_CHECK_INTERVAL"
	EnvAssetWorkers          = "FLIGHT_ASSET_WORKERS"
	EnvRecorderDSN           = "FLIGHT_RECORDER_DSN"
	EnvRecorderEnabled       = "FLIGHT_RECORDER_ENABLED"
	EnvHealthAddr            = "FLIGHT_HEALTH_ADDR"
)

// EnvironmentConfig holds deployment settings read from FLIGHT_* variables.
type EnvironmentConfig struct {
	ServerAddr   string
	ServerPort   int
	MaxClients   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	TickRate  int
	WorldSize float64

	// Remote input
	InterpolationDelay time.Duration
	InputBufferSize    int
	InputRateLimit     int

	// Circuit Breaker Configuration
	CircuitBreakerMaxRequests         int
	CircuitBreakerInterval            time.Duration
	CircuitBreakerTimeout             time.Duration
	CircuitBreakerMaxConsecutiveFails int

	// Resource Management Configuration
	MaxMemoryMB           int64
	MaxGoroutines         int
	ShutdownTimeout       time.Duration
	ResourceCheckInterval time.Duration

	AssetWorkers    int
	RecorderDSN     string
	RecorderEnabled bool
	HealthAddr      string
}

// ValidationError describes a configuration value that failed validation
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// LoadConfigFromEnv reads FLIGHT_* variables over the built-in defaults and
// validates the result.
func LoadConfigFromEnv() (*EnvironmentConfig, error) {
	config := &EnvironmentConfig{
		ServerAddr:   getEnvOrDefault(EnvServerAddr, "localhost"),
		ServerPort:   getEnvAsIntOrDefault(EnvServerPort, 4566),
		MaxClients:   getEnvAsIntOrDefault(EnvMaxClients, 32),
		ReadTimeout:  getEnvAsDurationOrDefault(EnvReadTimeout, 30*time.Second),
		WriteTimeout: getEnvAsDurationOrDefault(EnvWriteTimeout, 30*time.Second),

		TickRate:  getEnvAsIntOrDefault(EnvTickRate, 60),
		WorldSize: getEnvAsFloatOrDefault(EnvWorldSize, 10000.0),

		InterpolationDelay: getEnvAsDurationOrDefault(EnvInterpolationDelay, 100*time.Millisecond),
		InputBufferSize:    getEnvAsIntOrDefault(EnvInputBufferSize, 10),
		InputRateLimit:     getEnvAsIntOrDefault(EnvInputRateLimit, 120),

		CircuitBreakerMaxRequests:         getEnvAsIntOrDefault(EnvCBMaxRequests, 3),
		CircuitBreakerInterval:            getEnvAsDurationOrDefault(EnvCBInterval, 60*time.Second),
		CircuitBreakerTimeout:             getEnvAsDurationOrDefault(EnvCBTimeout, 30*time.Second),
		CircuitBreakerMaxConsecutiveFails: getEnvAsIntOrDefault(EnvCBMaxConsecutiveFails, 5),

		MaxMemoryMB:           int64(getEnvAsIntOrDefault(EnvMaxMemoryMB, 500)),
		MaxGoroutines:         getEnvAsIntOrDefault(EnvMaxGoroutines, 100),
		ShutdownTimeout:       getEnvAsDurationOrDefault(EnvShutdownTimeout, 30*time.Second),
		ResourceCheckInterval: getEnvAsDurationOrDefault(EnvResourceCheckInterval, 10*time.Second),

		AssetWorkers:    getEnvAsIntOrDefault(EnvAssetWorkers, 4),
		RecorderDSN:     getEnvOrDefault(EnvRecorderDSN, ""),
		RecorderEnabled: getEnvAsBoolOrDefault(EnvRecorderEnabled, false),
		HealthAddr:      getEnvOrDefault(EnvHealthAddr, ":8081"),
	}

	if err := validateEnvironmentConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func validateEnvironmentConfig(c *EnvironmentConfig) error {
	if c.ServerAddr == "" {
		return &ValidationError{Field: "ServerAddr", Value: c.ServerAddr, Message: "cannot be empty"}
	}
	if c.ServerPort < 1024 || c.ServerPort > 65535 {
		return &ValidationError{Field: "ServerPort", Value: c.ServerPort, Message: "must be between 1024 and 65535"}
	}
	if c.MaxClients < 1 || c.MaxClients > 1000 {
		return &ValidationError{Field: "MaxClients", Value: c.MaxClients, Message: "must be between 1 and 1000"}
	}
	if c.ReadTimeout < time.Second || c.ReadTimeout > time.Minute {
		return &ValidationError{Field: "ReadTimeout", Value: c.ReadTimeout, Message: "must be between 1s and 1m"}
	}
	if c.WriteTimeout < time.Second || c.WriteTimeout > time.Minute {
		return &ValidationError{Field: "WriteTimeout", Value: c.WriteTimeout, Message: "must be between 1s and 1m"}
	}
	if c.TickRate < 1 || c.TickRate > 240 {
		return &ValidationError{Field: "TickRate", Value: c.TickRate, Message: "must be between 1 and 240"}
	}
	if c.WorldSize < 1000 || c.WorldSize > 100000 {
		return &ValidationError{Field: "WorldSize", Value: c.WorldSize, Message: "must be between 1000 and 100000"}
	}
	if c.InterpolationDelay < 0 || c.InterpolationDelay > time.Second {
		return &ValidationError{Field: "InterpolationDelay", Value: c.InterpolationDelay, Message: "must be between 0 and 1s"}
	}
	if c.InputBufferSize < 1 || c.InputBufferSize > 256 {
		return &ValidationError{Field: "InputBufferSize", Value: c.InputBufferSize, Message: "must be between 1 and 256"}
	}
	if c.InputRateLimit < 1 || c.InputRateLimit > 1000 {
		return &ValidationError{Field: "InputRateLimit", Value: c.InputRateLimit, Message: "must be between 1 and 1000"}
	}
	if c.CircuitBreakerMaxRequests < 1 {
		return &ValidationError{Field: "CircuitBreakerMaxRequests", Value: c.CircuitBreakerMaxRequests, Message: "must be positive"}
	}
	if c.CircuitBreakerInterval < time.Second {
		return &ValidationError{Field: "CircuitBreakerInterval", Value: c.CircuitBreakerInterval, Message: "must be at least 1s"}
	}
	if c.CircuitBreakerTimeout < time.Second {
		return &ValidationError{Field: "CircuitBreakerTimeout", Value: c.CircuitBreakerTimeout, Message: "must be at least 1s"}
	}
	if c.CircuitBreakerMaxConsecutiveFails < 1 {
		return &ValidationError{Field: "CircuitBreakerMaxConsecutiveFails", Value: c.CircuitBreakerMaxConsecutiveFails, Message: "must be positive"}
	}
	if c.MaxMemoryMB < 16 {
		return &ValidationError{Field: "MaxMemoryMB", Value: c.MaxMemoryMB, Message: "must be at least 16"}
	}
	if c.MaxGoroutines < 1 {
		return &ValidationError{Field: "MaxGoroutines", Value: c.MaxGoroutines, Message: "must be positive"}
	}
	if c.ShutdownTimeout < time.Second {
		return &ValidationError{Field: "ShutdownTimeout", Value: c.ShutdownTimeout, Message: "must be at least 1s"}
	}
	if c.ResourceCheckInterval < 100*time.Millisecond {
		return &ValidationError{Field: "ResourceCheckInterval", Value: c.ResourceCheckInterval, Message: "must be at least 100ms"}
	}
	if c.AssetWorkers < 1 || c.AssetWorkers > 64 {
		return &ValidationError{Field: "AssetWorkers", Value: c.AssetWorkers, Message: "must be between 1 and 64"}
	}
	return nil
}

// ApplyEnvironmentOverrides copies explicitly set FLIGHT_* variables onto a
// file configuration. Unset variables leave the file values alone.
func ApplyEnvironmentOverrides(config *Config) error {
	env, err := LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}

	if isEnvSet(EnvServerAddr) || isEnvSet(EnvServerPort) {
		config.Network.ServerAddress = fmt.Sprintf("%s:%d", env.ServerAddr, env.ServerPort)
		config.Network.ServerPort = env.ServerPort
	}
	if isEnvSet(EnvMaxClients) {
		config.Network.MaxClients = env.MaxClients
	}
	if isEnvSet(EnvReadTimeout) {
		config.Network.ReadTimeoutSec = int(env.ReadTimeout / time.Second)
	}
	if isEnvSet(EnvWriteTimeout) {
		config.Network.WriteTimeoutSec = int(env.WriteTimeout / time.Second)
	}
	if isEnvSet(EnvInputRateLimit) {
		config.Network.InputRateLimit = env.InputRateLimit
	}
	if isEnvSet(EnvTickRate) {
		config.Simulation.TickRate = env.TickRate
	}
	if isEnvSet(EnvWorldSize) {
		config.Simulation.WorldSize = env.WorldSize
	}
	if isEnvSet(EnvInterpolationDelay) {
		config.Control.Network.InterpolationDelayMs = int(env.InterpolationDelay / time.Millisecond)
	}
	if isEnvSet(EnvInputBufferSize) {
		config.Control.Network.BufferSize = env.InputBufferSize
	}
	if isEnvSet(EnvAssetWorkers) {
		config.Assets.Workers = env.AssetWorkers
	}
	if isEnvSet(EnvRecorderDSN) {
		config.Recorder.DSN = env.RecorderDSN
		config.Recorder.Enabled = true
	}
	if isEnvSet(EnvRecorderEnabled) {
		config.Recorder.Enabled = env.RecorderEnabled
	}
	if isEnvSet(EnvHealthAddr) {
		config.Health.Address = env.HealthAddr
	}

	return nil
}

func isEnvSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Package config loads the configuration of the dmmsim server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddress    = "127.0.0.1:8546"
	DefaultStepInterval     = 2 * time.Second
	DefaultStreamBufferSize = 64
)

// ServerConfig describes the exchange to deploy and how it is served.
type ServerConfig struct {
	// Scenario is the path of the exchange description. Relative paths are resolved
	// against the directory of the configuration file.
	Scenario string `yaml:"scenario" validate:"required"`
	// ListenAddress serves the JSON-RPC API over HTTP and websocket.
	ListenAddress string `yaml:"listenAddress" validate:"required,hostname_port"`
	// MetricsAddress serves /metrics. Empty disables it.
	MetricsAddress string   `yaml:"metricsAddress" validate:"omitempty,hostname_port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// StepInterval paces the replay of the scenario steps.
	StepInterval time.Duration `yaml:"stepInterval" validate:"gte=0"`
	// Loop restarts the replay from the first step once every step has run.
	Loop             bool `yaml:"loop"`
	StreamBufferSize int  `yaml:"streamBufferSize" validate:"gte=0"`
}

// LoadConfig reads the configuration at path, applies the defaults and validates it.
func LoadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Scenario) {
		cfg.Scenario = filepath.Join(filepath.Dir(path), cfg.Scenario)
	}
	return cfg, nil
}

func ParseConfig(data []byte) (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddress:    DefaultListenAddress,
		StepInterval:     DefaultStepInterval,
		StreamBufferSize: DefaultStreamBufferSize,
		AllowedOrigins:   []string{"*"},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

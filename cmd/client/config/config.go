// Package config loads the configuration of the exchange stream clients.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ClientConfig points a client at the state stream of an exchange.
type ClientConfig struct {
	// StateStreamURL is the websocket endpoint of the exchange, such as ws://127.0.0.1:8546.
	StateStreamURL string `yaml:"stateStreamUrl" validate:"required,url"`
	// ChainID, when set, must match the chain of the streamed states.
	ChainID uint64 `yaml:"chainId"`
}

func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg := &ClientConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultAPIPort is used when no configuration file overrides it.
const DefaultAPIPort = 5000

// Engine is the immutable engine configuration snapshot. It is produced once
// at startup and handed to the engine by value.
type Engine struct {
	Common Common `json:"common"`

	// Path the configuration was loaded from, empty when defaults are used.
	Path string `json:"-"`
}

type Common struct {
	APIPort int `json:"api_port"`
}

func DefaultEngine() Engine {
	return Engine{
		Common: Common{APIPort: DefaultAPIPort},
	}
}

func (c *Engine) Validate() error {
	if c.Common.APIPort < 0 || c.Common.APIPort > 65535 {
		return fmt.Errorf("invalid api_port: %d (must be 0-65535)", c.Common.APIPort)
	}
	return nil
}

// LoadEngine reads an engine configuration file. The caller decides how to
// handle a missing or malformed file.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EngineFromModel derives an engine configuration from a model configuration,
// carrying over the port the model file asks the engine to listen on.
func EngineFromModel(mc Model) Engine {
	cfg := DefaultEngine()
	if mc.EnginePort > 0 {
		cfg.Common.APIPort = mc.EnginePort
	}
	cfg.Path = mc.Path
	return cfg
}

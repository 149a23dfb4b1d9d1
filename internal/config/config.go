// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"infrasim/internal/chaos"
	"infrasim/internal/engine"
	"infrasim/internal/score"
)

// Defaults applied before the file is decoded.
const (
	DefaultTickInterval = time.Second
	DefaultLogLevel     = "info"
)

// SimulationConfig is the root configuration of a run.
type SimulationConfig struct {
	RunID        string        `yaml:"run_id"`
	Blueprint    string        `yaml:"blueprint" validate:"required"`
	Scenario     string        `yaml:"scenario"`
	TickInterval time.Duration `yaml:"tick_interval" validate:"gt=0"`
	TrafficLevel float64       `yaml:"traffic_level" validate:"gte=0,lte=1000000"`
	MaxTicks     int64         `yaml:"max_ticks" validate:"gte=0"`
	LogLevel     string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	Targets      score.Targets `yaml:"targets"`
	Engine       engine.Params `yaml:"engine"`
	Chaos        []chaos.Event `yaml:"chaos"`
}

// Default returns a config with every optional field filled.
func Default() SimulationConfig {
	return SimulationConfig{
		TickInterval: DefaultTickInterval,
		TrafficLevel: 1,
		LogLevel:     DefaultLogLevel,
		Engine:       engine.DefaultParams(),
	}
}

var validate = validator.New()

// Load reads the YAML config at configPath, validates it against the CUE
// schema (the embedded one when schemaPath is empty) and then against the
// struct constraints. Environment overrides are applied before the struct
// check.
func Load(configPath, schemaPath string) (*SimulationConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	schema, err := readSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateWithCue(data, schema); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *SimulationConfig) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		c.TickInterval = d
	}
	if v := getenv("TRAFFIC_LEVEL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRAFFIC_LEVEL: %w", err)
		}
		c.TrafficLevel = f
	}
	if v := getenv("RUN_ID"); v != "" {
		c.RunID = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks struct constraints, the engine parameters and the chaos
// schedule.
func (c *SimulationConfig) Validate() error {
	if err := formatValidationError(validate.Struct(c)); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	for i, e := range c.Chaos {
		n, err := e.Normalize()
		if err != nil {
			return fmt.Errorf("chaos[%d]: %w", i, err)
		}
		c.Chaos[i] = n
	}
	return nil
}

func formatValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("config.%s: required", e.Field())
	case "oneof":
		return fmt.Errorf("config.%s: must be one of [%s]", e.Field(), e.Param())
	default:
		return fmt.Errorf("config.%s: failed %s=%s", e.Field(), e.Tag(), e.Param())
	}
}

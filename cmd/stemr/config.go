package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes one simulation study: an SIR model, a uniform time
// grid, and how many paths to propose.
type Config struct {
	Model  string    `yaml:"model"`
	Beta   float64   `yaml:"beta"`
	Mu     float64   `yaml:"mu"`
	Init   []float64 `yaml:"init"` // initial S, I, R volumes
	TStart float64   `yaml:"t_start"`
	TEnd   float64   `yaml:"t_end"`
	Steps  int       `yaml:"steps"` // number of intervals
	Paths  int       `yaml:"paths"`
	Seed   uint64    `yaml:"seed"`
}

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Model: "sir",
		Steps: 20,
		Paths: 1,
		Seed:  1,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Model != "sir" {
		return fmt.Errorf("unknown model %q", c.Model)
	}
	if c.Beta <= 0 || c.Mu <= 0 {
		return errors.New("beta and mu must be positive")
	}
	if len(c.Init) != 3 {
		return fmt.Errorf("init needs 3 compartment volumes, got %d", len(c.Init))
	}
	for _, v := range c.Init {
		if v < 0 {
			return errors.New("initial volumes must be non-negative")
		}
	}
	if c.TEnd <= c.TStart {
		return errors.New("t_end must be after t_start")
	}
	if c.Steps < 1 {
		return errors.New("steps must be at least 1")
	}
	if c.Paths < 1 {
		return errors.New("paths must be at least 1")
	}
	return nil
}

// times returns the uniform grid of interval endpoints.
func (c Config) times() []float64 {
	ts := make([]float64, c.Steps+1)
	dt := (c.TEnd - c.TStart) / float64(c.Steps)
	for i := range ts {
		ts[i] = c.TStart + float64(i)*dt
	}
	ts[c.Steps] = c.TEnd
	return ts
}

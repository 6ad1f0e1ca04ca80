package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// runConfig holds the knobs shared by the create/attach/serve subcommands.
// Flags bind into it through viper so a config file, environment variables,
// and explicit flags all resolve through one precedence order.
type runConfig struct {
	Capacity    uint64
	SharedName  string
	Workers     int
	Iterations  int
	LogLevel    string
	Development bool
	MetricsAddr string
	Duration    time.Duration
}

func defaultRunConfig() runConfig {
	return runConfig{
		Capacity:   1024,
		Workers:    runtime.NumCPU(),
		Iterations: 100000,
		LogLevel:   "info",
		Duration:   0,
	}
}

// loadRunConfig resolves a runConfig from viper, which has already merged an
// optional config file, OBJPOOL_BENCH_-prefixed environment variables, and
// the invoking command's flags (highest precedence).
func loadRunConfig(v *viper.Viper) (runConfig, error) {
	cfg := defaultRunConfig()

	if v.IsSet("capacity") {
		cfg.Capacity = v.GetUint64("capacity")
	}
	if v.IsSet("shared") {
		cfg.SharedName = v.GetString("shared")
	}
	if v.IsSet("workers") {
		cfg.Workers = v.GetInt("workers")
	}
	if v.IsSet("iterations") {
		cfg.Iterations = v.GetInt("iterations")
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("dev") {
		cfg.Development = v.GetBool("dev")
	}
	if v.IsSet("metrics-addr") {
		cfg.MetricsAddr = v.GetString("metrics-addr")
	}
	if v.IsSet("duration") {
		cfg.Duration = v.GetDuration("duration")
	}

	if err := cfg.validate(); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}

func (c runConfig) validate() error {
	if c.Capacity < 2 || c.Capacity&(c.Capacity-1) != 0 {
		return fmt.Errorf("capacity must be a power of two and at least 2, got %d", c.Capacity)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative, got %d", c.Iterations)
	}
	return nil
}

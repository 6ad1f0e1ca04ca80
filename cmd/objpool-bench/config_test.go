package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadRunConfigDefaults(t *testing.T) {
	v := viper.New()

	cfg, err := loadRunConfig(v)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), cfg.Capacity)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "", cfg.SharedName)
}

func TestLoadRunConfigOverridesFromViper(t *testing.T) {
	v := viper.New()
	v.Set("capacity", uint64(256))
	v.Set("shared", "objpool-demo")
	v.Set("workers", 4)
	v.Set("log-level", "debug")

	cfg, err := loadRunConfig(v)
	require.NoError(t, err)
	require.Equal(t, uint64(256), cfg.Capacity)
	require.Equal(t, "objpool-demo", cfg.SharedName)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRunConfigRejectsNonPowerOfTwoCapacity(t *testing.T) {
	v := viper.New()
	v.Set("capacity", uint64(100))

	_, err := loadRunConfig(v)
	require.Error(t, err)
}

func TestLoadRunConfigRejectsZeroWorkers(t *testing.T) {
	v := viper.New()
	v.Set("workers", 0)

	_, err := loadRunConfig(v)
	require.Error(t, err)
}

func TestRunConfigValidateRejectsNegativeIterations(t *testing.T) {
	cfg := defaultRunConfig()
	cfg.Iterations = -1

	err := cfg.validate()
	require.Error(t, err)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dabubi/drone-visual-positioning/internal/config"
)

func TestConfigFileFlagDefault(t *testing.T) {
	require.NotNil(t, configFile)
	require.Equal(t, "config.json", *configFile)
}

func TestVersionFlagDefaultsFalse(t *testing.T) {
	require.NotNil(t, versionFlag)
	require.False(t, *versionFlag)
}

func TestDefaultMatchParamsFallsBackToDefaultsWhenUnset(t *testing.T) {
	cfg := config.Empty()
	params := defaultMatchParams(cfg)
	require.Greater(t, params.MinMatches, 0)
	require.Greater(t, params.MinInlierRatio, 0.0)
}

func TestEKFParamsFallsBackToDefaultsWhenUnset(t *testing.T) {
	cfg := config.Empty()
	params := ekfParams(cfg)
	require.Greater(t, params.R, 0.0)
	require.Greater(t, params.Gate, 0.0)
}

func TestBuildTransportDefaultsToNMEA(t *testing.T) {
	cfg := config.Empty()
	tr, err := buildTransport(cfg, "/dev/null-locator-test")
	require.NoError(t, err)
	require.NotNil(t, tr)
}

func TestSessionDBPathDefaultsToDisabled(t *testing.T) {
	cfg := config.Empty()
	require.Equal(t, "", cfg.GetSessionDBPath())
}

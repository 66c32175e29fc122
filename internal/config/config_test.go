package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPartialConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tuning.json", `{"map_pack_path": "/data/pack", "target_hz": 5}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/pack", cfg.GetMapPackPath())
	require.Equal(t, 5.0, cfg.GetTargetHz())

	require.Equal(t, 1280, cfg.GetCameraWidth())
	require.Equal(t, 720, cfg.GetCameraHeight())
	require.Equal(t, 30.0, cfg.GetCameraFPS())
	require.Equal(t, "nmea", cfg.GetUARTProtocol())
	require.Equal(t, 115200, cfg.GetUARTBaudrate())
	require.False(t, cfg.GetUARTEnabled())
	require.Equal(t, 15, cfg.GetMinMatches())
	require.Equal(t, 0.75, cfg.GetConfidenceThreshold())
	require.Equal(t, "info", cfg.GetLogLevel())
	require.Equal(t, 9.0, cfg.GetGateThreshold())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tuning.yaml", `{}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, maxFileSize+1)
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, big, 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidUARTProtocol(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tuning.json", `{"uart": {"protocol": "xyz"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOutOfRangeConfidence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tuning.json", `{"matcher": {"confidence_threshold": 1.5}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/tuning.json")
	require.Error(t, err)
}

func TestLoadFullConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tuning.json", `{
		"map_pack_path": "/data/pack",
		"camera": {"device": "/dev/video0", "width": 640, "height": 480, "fps": 15, "backend": "v4l2"},
		"uart": {"port": "/dev/ttyUSB0", "baudrate": 57600, "enabled": true, "protocol": "msp"},
		"matcher": {"min_matches": 20, "confidence_threshold": 0.9, "max_candidates": 3, "use_classical_fallback": false, "learned_model_path": "/models/m.onnx"},
		"filter": {"measurement_noise": 1e-6, "gate_threshold": 11.3},
		"target_hz": 10,
		"log_level": "debug",
		"telemetry_dir": "/var/telemetry",
		"session_db_path": "/var/telemetry/sessions.db"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/dev/video0", cfg.GetCameraDevice())
	require.Equal(t, 640, cfg.GetCameraWidth())
	require.Equal(t, "v4l2", cfg.GetCameraBackend())
	require.Equal(t, "/dev/ttyUSB0", cfg.GetUARTPort())
	require.Equal(t, 57600, cfg.GetUARTBaudrate())
	require.True(t, cfg.GetUARTEnabled())
	require.Equal(t, "msp", cfg.GetUARTProtocol())
	require.Equal(t, 20, cfg.GetMinMatches())
	require.Equal(t, 0.9, cfg.GetConfidenceThreshold())
	require.Equal(t, 3, cfg.GetMaxCandidates())
	require.False(t, cfg.GetUseClassicalFallback())
	require.Equal(t, "/models/m.onnx", cfg.GetLearnedModelPath())
	require.Equal(t, 1e-6, cfg.GetMeasurementNoise())
	require.Equal(t, 11.3, cfg.GetGateThreshold())
	require.Equal(t, 10.0, cfg.GetTargetHz())
	require.Equal(t, "debug", cfg.GetLogLevel())
	require.Equal(t, "/var/telemetry", cfg.GetTelemetryDir())
	require.Equal(t, "/var/telemetry/sessions.db", cfg.GetSessionDBPath())
}

func TestGetSessionDBPathDefaultsToEmpty(t *testing.T) {
	require.Equal(t, "", Empty().GetSessionDBPath())
}

// Package config loads and validates the locator's startup configuration:
// map pack location, camera and UART wiring, matcher thresholds, the target
// loop rate, and the filter's noise parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CameraConfig describes how to open the frame source.
type CameraConfig struct {
	Device  *string  `json:"device,omitempty"`
	Width   *int     `json:"width,omitempty"`
	Height  *int     `json:"height,omitempty"`
	FPS     *float64 `json:"fps,omitempty"`
	Backend *string  `json:"backend,omitempty"`
}

// UARTConfig describes the serial sink used to publish fixes downstream.
type UARTConfig struct {
	Port     *string `json:"port,omitempty"`
	Baudrate *int    `json:"baudrate,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
	Protocol *string `json:"protocol,omitempty"` // "nmea" or "msp"
}

// MatcherConfig describes the feature-matching thresholds the
// AdaptiveController starts from and may subsequently tune.
type MatcherConfig struct {
	MinMatches           *int     `json:"min_matches,omitempty"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	MaxCandidates        *int     `json:"max_candidates,omitempty"`
	UseClassicalFallback *bool    `json:"use_classical_fallback,omitempty"`
	LearnedModelPath     *string  `json:"learned_model_path,omitempty"`
}

// FilterConfig describes the EKF's measurement-noise and gating tunables.
type FilterConfig struct {
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`
	GateThreshold    *float64 `json:"gate_threshold,omitempty"`
}

// Config is the root configuration for the locator, loaded from a single
// JSON file. Fields omitted from the file retain their documented
// defaults, so partial configs are safe.
type Config struct {
	MapPackPath *string `json:"map_pack_path,omitempty"`

	Camera  CameraConfig  `json:"camera"`
	UART    UARTConfig    `json:"uart"`
	Matcher MatcherConfig `json:"matcher"`
	Filter  FilterConfig  `json:"filter"`

	TargetHz      *float64 `json:"target_hz,omitempty"`
	LogLevel      *string  `json:"log_level,omitempty"`
	TelemetryDir  *string  `json:"telemetry_dir,omitempty"`
	SessionDBPath *string  `json:"session_db_path,omitempty"`
}

// Empty returns a Config with all fields unset. Use Load to populate one
// from a file on disk.
func Empty() *Config {
	return &Config{}
}

// maxFileSize bounds how large a config file Load will accept.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Load reads and validates a Config from path. The path must have a
// .json extension and the file must be under maxFileSize.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set fields hold sane values. Unset fields are
// always valid since they fall back to defaults.
func (c *Config) Validate() error {
	if c.MapPackPath != nil && *c.MapPackPath == "" {
		return fmt.Errorf("map_pack_path must not be empty when set")
	}
	if c.Camera.Width != nil && *c.Camera.Width <= 0 {
		return fmt.Errorf("camera.width must be positive, got %d", *c.Camera.Width)
	}
	if c.Camera.Height != nil && *c.Camera.Height <= 0 {
		return fmt.Errorf("camera.height must be positive, got %d", *c.Camera.Height)
	}
	if c.Camera.FPS != nil && *c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive, got %f", *c.Camera.FPS)
	}
	if c.UART.Baudrate != nil && *c.UART.Baudrate <= 0 {
		return fmt.Errorf("uart.baudrate must be positive, got %d", *c.UART.Baudrate)
	}
	if c.UART.Protocol != nil {
		switch *c.UART.Protocol {
		case "nmea", "msp":
		default:
			return fmt.Errorf("uart.protocol must be \"nmea\" or \"msp\", got %q", *c.UART.Protocol)
		}
	}
	if c.Matcher.MinMatches != nil && *c.Matcher.MinMatches < 4 {
		return fmt.Errorf("matcher.min_matches must be >= 4, got %d", *c.Matcher.MinMatches)
	}
	if c.Matcher.ConfidenceThreshold != nil && (*c.Matcher.ConfidenceThreshold < 0 || *c.Matcher.ConfidenceThreshold > 1) {
		return fmt.Errorf("matcher.confidence_threshold must be in [0,1], got %f", *c.Matcher.ConfidenceThreshold)
	}
	if c.TargetHz != nil && *c.TargetHz <= 0 {
		return fmt.Errorf("target_hz must be positive, got %f", *c.TargetHz)
	}
	if c.Filter.MeasurementNoise != nil && *c.Filter.MeasurementNoise <= 0 {
		return fmt.Errorf("filter.measurement_noise must be positive, got %f", *c.Filter.MeasurementNoise)
	}
	if c.Filter.GateThreshold != nil && *c.Filter.GateThreshold <= 0 {
		return fmt.Errorf("filter.gate_threshold must be positive, got %f", *c.Filter.GateThreshold)
	}
	return nil
}

// GetMapPackPath returns the configured pack path or "" if unset.
func (c *Config) GetMapPackPath() string {
	if c.MapPackPath == nil {
		return ""
	}
	return *c.MapPackPath
}

// GetCameraDevice returns the camera device string or the default "0".
func (c *Config) GetCameraDevice() string {
	if c.Camera.Device == nil {
		return "0"
	}
	return *c.Camera.Device
}

// GetCameraWidth returns the configured frame width or the default 1280.
func (c *Config) GetCameraWidth() int {
	if c.Camera.Width == nil {
		return 1280
	}
	return *c.Camera.Width
}

// GetCameraHeight returns the configured frame height or the default 720.
func (c *Config) GetCameraHeight() int {
	if c.Camera.Height == nil {
		return 720
	}
	return *c.Camera.Height
}

// GetCameraFPS returns the configured capture rate or the default 30.0.
func (c *Config) GetCameraFPS() float64 {
	if c.Camera.FPS == nil {
		return 30.0
	}
	return *c.Camera.FPS
}

// GetCameraBackend returns the capture backend hint or the default "auto".
func (c *Config) GetCameraBackend() string {
	if c.Camera.Backend == nil {
		return "auto"
	}
	return *c.Camera.Backend
}

// GetUARTEnabled returns whether the serial sink is enabled. Default false.
func (c *Config) GetUARTEnabled() bool {
	if c.UART.Enabled == nil {
		return false
	}
	return *c.UART.Enabled
}

// GetUARTPort returns the configured serial device or "".
func (c *Config) GetUARTPort() string {
	if c.UART.Port == nil {
		return ""
	}
	return *c.UART.Port
}

// GetUARTBaudrate returns the configured baud rate or the default 115200.
func (c *Config) GetUARTBaudrate() int {
	if c.UART.Baudrate == nil {
		return 115200
	}
	return *c.UART.Baudrate
}

// GetUARTProtocol returns the wire protocol name or the default "nmea".
func (c *Config) GetUARTProtocol() string {
	if c.UART.Protocol == nil {
		return "nmea"
	}
	return *c.UART.Protocol
}

// GetMinMatches returns the matcher's starting min_matches or the default 15.
func (c *Config) GetMinMatches() int {
	if c.Matcher.MinMatches == nil {
		return 15
	}
	return *c.Matcher.MinMatches
}

// GetConfidenceThreshold returns the candidate-acceptance threshold or the
// default 0.75.
func (c *Config) GetConfidenceThreshold() float64 {
	if c.Matcher.ConfidenceThreshold == nil {
		return 0.75
	}
	return *c.Matcher.ConfidenceThreshold
}

// GetMaxCandidates returns how many tiles to probe per tick, default 5.
func (c *Config) GetMaxCandidates() int {
	if c.Matcher.MaxCandidates == nil {
		return 5
	}
	return *c.Matcher.MaxCandidates
}

// GetUseClassicalFallback reports whether the classical ORB backend should
// be used when no learned model is configured. Default true.
func (c *Config) GetUseClassicalFallback() bool {
	if c.Matcher.UseClassicalFallback == nil {
		return true
	}
	return *c.Matcher.UseClassicalFallback
}

// GetLearnedModelPath returns the path to a learned feature model, or "" if
// the classical backend should be used.
func (c *Config) GetLearnedModelPath() string {
	if c.Matcher.LearnedModelPath == nil {
		return ""
	}
	return *c.Matcher.LearnedModelPath
}

// GetTargetHz returns the loop's target rate, default 3.0.
func (c *Config) GetTargetHz() float64 {
	if c.TargetHz == nil {
		return 3.0
	}
	return *c.TargetHz
}

// GetLogLevel returns the configured log level, default "info".
func (c *Config) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info"
	}
	return *c.LogLevel
}

// GetTelemetryDir returns the directory telemetry CSVs are written to,
// default "telemetry". Flight records go to the path given on the command
// line instead.
func (c *Config) GetTelemetryDir() string {
	if c.TelemetryDir == nil {
		return "telemetry"
	}
	return *c.TelemetryDir
}

// GetSessionDBPath returns the path to the session history database, or ""
// if session history is disabled (the default).
func (c *Config) GetSessionDBPath() string {
	if c.SessionDBPath == nil {
		return ""
	}
	return *c.SessionDBPath
}

// GetMeasurementNoise returns the EKF's measurement noise variance, default
// 1e-8.
func (c *Config) GetMeasurementNoise() float64 {
	if c.Filter.MeasurementNoise == nil {
		return 1e-8
	}
	return *c.Filter.MeasurementNoise
}

// GetGateThreshold returns the Mahalanobis gating threshold, default 9.0
// (chi-square, 2 DOF, ~99% confidence).
func (c *Config) GetGateThreshold() float64 {
	if c.Filter.GateThreshold == nil {
		return 9.0
	}
	return *c.Filter.GateThreshold
}

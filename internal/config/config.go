// Package config loads motionexec service configuration.
//
// Files are YAML or TOML, chosen by extension. ${VAR} references are
// expanded from the environment before decoding, and a few MOTIONEXEC_*
// variables override the decoded values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-motionexec/pkg/cloud"
	"github.com/teslashibe/go-motionexec/pkg/controllers"
	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/gate"
	"github.com/teslashibe/go-motionexec/pkg/managed"
)

// Transport modes for direct publishing.
const (
	TransportServe = "serve" // controller bridges connect to /ws/controller
	TransportDial  = "dial"  // the service dials a bridge URL
)

// Defaults.
const (
	DefaultListen      = ":8080"
	DefaultLogLevel    = "info"
	DefaultJournalPath = "~/.motionexec/journal.db"
)

// Environment overrides.
const (
	EnvListen    = "MOTIONEXEC_LISTEN"
	EnvLogLevel  = "MOTIONEXEC_LOG_LEVEL"
	EnvMode      = "MOTIONEXEC_COMMAND_MODE"
	EnvBridgeURL = "MOTIONEXEC_BRIDGE_URL"
	EnvManaged   = "MOTIONEXEC_MANAGED_URL"
	EnvAutonomy  = "MOTIONEXEC_FULL_AUTONOMOUS"
)

// Config is the complete service configuration.
type Config struct {
	// CommandMode selects the backend: "execution_manager" or "joint_publisher".
	CommandMode string `yaml:"command_mode" toml:"command_mode"`

	JointTrajectoryTopic  string `yaml:"joint_trajectory_topic" toml:"joint_trajectory_topic"`
	CartesianCommandTopic string `yaml:"cartesian_command_topic" toml:"cartesian_command_topic"`
	FrameID               string `yaml:"frame_id" toml:"frame_id"`

	SaveTrajToFile          bool   `yaml:"save_traj_to_file" toml:"save_traj_to_file"`
	SaveTrajToFilePath      string `yaml:"save_traj_to_file_path" toml:"save_traj_to_file_path"`
	VisualizeTrajectoryLine bool   `yaml:"visualize_trajectory_line" toml:"visualize_trajectory_line"`
	VisualizeTrajectoryPath bool   `yaml:"visualize_trajectory_path" toml:"visualize_trajectory_path"`
	CheckForWaypointJumps   bool   `yaml:"check_for_waypoint_jumps" toml:"check_for_waypoint_jumps"`

	// Initial gate mode.
	Autonomous     bool `yaml:"autonomous" toml:"autonomous"`
	FullAutonomous bool `yaml:"full_autonomous" toml:"full_autonomous"`

	Listen   string `yaml:"listen" toml:"listen"`
	LogLevel string `yaml:"log_level" toml:"log_level"`

	Transport   TransportConfig    `yaml:"transport" toml:"transport"`
	Managed     managed.Config     `yaml:"managed" toml:"managed"`
	Controllers controllers.Config `yaml:"controllers" toml:"controllers"`
	Journal     JournalConfig      `yaml:"journal" toml:"journal"`
}

// TransportConfig selects how direct-publish commands leave the service.
type TransportConfig struct {
	Mode      string `yaml:"mode" toml:"mode"`
	BridgeURL string `yaml:"bridge_url" toml:"bridge_url"`
}

// JournalConfig configures the execution history database.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Default returns the service defaults.
func Default() Config {
	exec := execution.DefaultConfig()
	hub := cloud.DefaultConfig()
	return Config{
		CommandMode:           string(execution.ModeDirect),
		JointTrajectoryTopic:  hub.JointTrajectoryTopic,
		CartesianCommandTopic: hub.CartesianCommandTopic,
		FrameID:               exec.FrameID,
		SaveTrajToFilePath:    exec.PersistPath,
		CheckForWaypointJumps: exec.ValidateWaypointTiming,
		Listen:                DefaultListen,
		LogLevel:              DefaultLogLevel,
		Transport:             TransportConfig{Mode: TransportServe},
		Managed:               managed.DefaultConfig(),
		Controllers: controllers.Config{
			ControlType: controllers.DefaultControlType,
		},
		Journal: JournalConfig{Enabled: true, Path: DefaultJournalPath},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults and overrides only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, []byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv applies MOTIONEXEC_* overrides.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvMode); v != "" {
		c.CommandMode = v
	}
	if v := os.Getenv(EnvBridgeURL); v != "" {
		c.Transport.Mode = TransportDial
		c.Transport.BridgeURL = v
	}
	if v := os.Getenv(EnvManaged); v != "" {
		c.Managed.URL = v
	}
	if v := os.Getenv(EnvAutonomy); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: EnvAutonomy, Message: err.Error()}
		}
		c.FullAutonomous = b
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	mode, err := execution.ParseMode(c.CommandMode)
	if err != nil {
		return &ConfigError{Field: "command_mode", Message: err.Error()}
	}
	if c.Listen == "" {
		return &ConfigError{Field: "listen", Message: "address is required"}
	}
	if c.SaveTrajToFile && c.SaveTrajToFilePath == "" {
		return &ConfigError{Field: "save_traj_to_file_path", Message: "required when save_traj_to_file is set"}
	}

	switch mode {
	case execution.ModeManaged:
		if err := c.Managed.Validate(); err != nil {
			return &ConfigError{Field: "managed", Message: err.Error()}
		}
	case execution.ModeDirect:
		if c.JointTrajectoryTopic == "" || c.CartesianCommandTopic == "" {
			return &ConfigError{Field: "joint_trajectory_topic", Message: "both command topics are required"}
		}
		switch c.Transport.Mode {
		case TransportServe:
		case TransportDial:
			if c.Transport.BridgeURL == "" {
				return &ConfigError{Field: "transport.bridge_url", Message: "required in dial mode"}
			}
		default:
			return &ConfigError{Field: "transport.mode", Message: fmt.Sprintf("must be %q or %q, got %q", TransportServe, TransportDial, c.Transport.Mode)}
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return &ConfigError{Field: "journal.path", Message: "required when the journal is enabled"}
	}
	return nil
}

// Mode returns the parsed command mode. Call after Validate.
func (c Config) Mode() execution.Mode {
	m, _ := execution.ParseMode(c.CommandMode)
	return m
}

// Execution returns the dispatcher options.
func (c Config) Execution() execution.Config {
	cfg := execution.DefaultConfig()
	cfg.PersistToFile = c.SaveTrajToFile
	cfg.PersistPath = c.SaveTrajToFilePath
	cfg.VisualizeLine = c.VisualizeTrajectoryLine
	cfg.VisualizePath = c.VisualizeTrajectoryPath
	cfg.ValidateWaypointTiming = c.CheckForWaypointJumps
	if c.FrameID != "" {
		cfg.FrameID = c.FrameID
	}
	return cfg
}

// Gate returns the initial gate mode.
func (c Config) Gate() gate.Config {
	return gate.Config{
		SingleStepAutonomous: c.Autonomous,
		FullAutonomous:       c.FullAutonomous,
	}
}

// Hub returns the command topics for serve-mode transport.
func (c Config) Hub() cloud.Config {
	return cloud.Config{
		JointTrajectoryTopic:  c.JointTrajectoryTopic,
		CartesianCommandTopic: c.CartesianCommandTopic,
	}
}

// JournalPath returns the journal path with a leading ~ expanded.
func (c Config) JournalPath() string {
	return expandHome(c.Journal.Path)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

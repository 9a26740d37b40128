package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration supports "100ms"-style values in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Config represents the main application configuration. Every field has a
// compiled-in default, so running without a configuration file is the
// normal mode of operation on the vehicle.
type Config struct {
	Settings SettingsConfig `yaml:"settings"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	GPS      GPSConfig      `yaml:"gps"`
	Camera   CameraConfig   `yaml:"camera"`
	Storage  StorageConfig  `yaml:"storage"`
	Mission  MissionConfig  `yaml:"mission"`
}

// SettingsConfig represents global application settings.
type SettingsConfig struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level.
func (s SettingsConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}
	return level, nil
}

// TriggerConfig represents the physical button settings.
type TriggerConfig struct {
	Pin              string   `yaml:"pin"`
	DebounceInterval Duration `yaml:"debounceInterval"`
	HoldThreshold    Duration `yaml:"holdThreshold"`
}

// GPSConfig represents the serial receiver settings. An empty port means
// auto-detection of the first USB serial device.
type GPSConfig struct {
	Port     string `yaml:"port"`
	BaudRate uint   `yaml:"baudRate"`
}

// CameraConfig is passed through to the capture pipeline verbatim.
type CameraConfig struct {
	Command   string `yaml:"command"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FrameRate int    `yaml:"frameRate"`
}

// StorageConfig represents storage settings. An empty fallback root means
// `camera_logs_backup` under the user home directory; an empty catalog path
// puts `missions.sqlite` under the fallback root.
type StorageConfig struct {
	PrimaryRoot  string `yaml:"primaryRoot"`
	FallbackRoot string `yaml:"fallbackRoot"`
	Catalog      bool   `yaml:"catalog"`
	CatalogPath  string `yaml:"catalogPath"`
}

// MissionConfig represents acquisition loop settings.
type MissionConfig struct {
	StopCooldown Duration `yaml:"stopCooldown"`
}

// NewConfig returns the compiled-in defaults.
func NewConfig() *Config {
	return &Config{
		Settings: SettingsConfig{LogLevel: "info"},
		Trigger: TriggerConfig{
			Pin:              "GPIO9",
			DebounceInterval: Duration(100 * time.Millisecond),
			HoldThreshold:    Duration(time.Second),
		},
		GPS: GPSConfig{BaudRate: 9600},
		Camera: CameraConfig{
			Width:     3840,
			Height:    2160,
			FrameRate: 2,
		},
		Storage: StorageConfig{
			PrimaryRoot: "/mnt/ssd/camera_logs",
			Catalog:     true,
		},
		Mission: MissionConfig{StopCooldown: Duration(time.Second)},
	}
}

// LoadConfig reads the YAML file at path over the compiled-in defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		p, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading configuration file: %w", err)
		}
		if err = yaml.Unmarshal(p, c); err != nil {
			return nil, fmt.Errorf("parsing configuration file: %w", err)
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	var err error
	switch {
	case c.Trigger.Pin == "":
		err = errors.New("trigger pin is required")
	case c.Trigger.DebounceInterval <= 0:
		err = errors.New("trigger debounce interval must be positive")
	case c.Trigger.HoldThreshold <= 0:
		err = errors.New("trigger hold threshold must be positive")
	case c.GPS.BaudRate == 0:
		err = errors.New("gps baud rate is required")
	case c.Camera.Width <= 0 || c.Camera.Height <= 0:
		err = errors.New("camera resolution must be positive")
	case c.Camera.FrameRate <= 0:
		err = errors.New("camera frame rate must be positive")
	case c.Storage.PrimaryRoot == "":
		err = errors.New("primary storage root is required")
	case c.Mission.StopCooldown < 0:
		err = errors.New("stop cooldown must not be negative")
	}
	return err
}

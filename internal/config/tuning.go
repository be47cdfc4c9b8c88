// Package config loads the runtime tuning file for the telemetry daemon.
// The schema matches the /api/params endpoint so the same JSON works for
// both startup configuration and runtime updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/candela-robotics/teleop.live/internal/joints"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// JointRangeConfig overrides one joint's physical range (radians).
type JointRangeConfig struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// TuningConfig is the root tuning schema. All fields are pointers so a
// partial JSON file only overrides what it names; the Get* accessors supply
// defaults for the rest.
type TuningConfig struct {
	// Point cloud window
	HorizonSeconds   *float64 `json:"horizon_seconds,omitempty"`
	PruneInterval    *string  `json:"prune_interval,omitempty"` // duration string like "100ms"
	SnapshotStride   *int     `json:"snapshot_stride,omitempty"`
	SnapshotMaxRange *float64 `json:"snapshot_max_range,omitempty"` // metres, 0 = unbounded

	// Joint telemetry window
	JointWindowSeconds *float64           `json:"joint_window_seconds,omitempty"`
	JointSweepInterval *string            `json:"joint_sweep_interval,omitempty"`
	SyntheticGrace     *string            `json:"synthetic_grace,omitempty"` // fallback delay, e.g. "5s"
	SyntheticEnabled   *bool              `json:"synthetic_enabled,omitempty"`
	JointRanges        []JointRangeConfig `json:"joint_ranges,omitempty"`

	// Transports
	LidarUDPAddr *string `json:"lidar_udp_addr,omitempty"`
	UDPRcvBuf    *int    `json:"udp_rcv_buf,omitempty"`
	MQTTBroker   *string `json:"mqtt_broker,omitempty"`
	MQTTTopic    *string `json:"mqtt_topic,omitempty"`
	SerialPort   *string `json:"serial_port,omitempty"` // empty = serial source disabled
	SerialBaud   *int    `json:"serial_baud,omitempty"`

	// Recording
	DBPath        *string `json:"db_path,omitempty"` // empty = recording disabled
	MigrationsDir *string `json:"migrations_dir,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"` // stats log + record period
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set values are usable.
func (c *TuningConfig) Validate() error {
	if c.HorizonSeconds != nil {
		if *c.HorizonSeconds <= 0 {
			return fmt.Errorf("horizon_seconds must be positive, got %f", *c.HorizonSeconds)
		}
	}
	if c.JointWindowSeconds != nil && *c.JointWindowSeconds <= 0 {
		return fmt.Errorf("joint_window_seconds must be positive, got %f", *c.JointWindowSeconds)
	}
	if c.SnapshotStride != nil && *c.SnapshotStride < 0 {
		return fmt.Errorf("snapshot_stride must be non-negative, got %d", *c.SnapshotStride)
	}

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"prune_interval", c.PruneInterval},
		{"joint_sweep_interval", c.JointSweepInterval},
		{"synthetic_grace", c.SyntheticGrace},
		{"stats_interval", c.StatsInterval},
	} {
		if field.value != nil && *field.value != "" {
			if _, err := time.ParseDuration(*field.value); err != nil {
				return fmt.Errorf("invalid %s %q: %w", field.name, *field.value, err)
			}
		}
	}

	if len(c.JointRanges) > joints.JointCount {
		return fmt.Errorf("joint_ranges has %d entries, arm has %d joints", len(c.JointRanges), joints.JointCount)
	}
	for _, jr := range c.JointRanges {
		if jr.Name == "" {
			return fmt.Errorf("joint_ranges entry missing name")
		}
		if jr.Min > jr.Max {
			return fmt.Errorf("joint %q has min %f > max %f", jr.Name, jr.Min, jr.Max)
		}
	}

	return nil
}

func (c *TuningConfig) duration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetHorizon returns the point cloud retention window.
func (c *TuningConfig) GetHorizon() time.Duration {
	if c.HorizonSeconds == nil {
		return 3 * time.Second
	}
	return time.Duration(*c.HorizonSeconds * float64(time.Second))
}

// GetPruneInterval returns the point cloud sweep period.
func (c *TuningConfig) GetPruneInterval() time.Duration {
	return c.duration(c.PruneInterval, 100*time.Millisecond)
}

// GetSnapshotStride returns the default snapshot downsampling stride.
func (c *TuningConfig) GetSnapshotStride() int {
	if c.SnapshotStride == nil {
		return 1
	}
	return *c.SnapshotStride
}

// GetSnapshotMaxRange returns the default snapshot distance cap in metres.
func (c *TuningConfig) GetSnapshotMaxRange() float64 {
	if c.SnapshotMaxRange == nil {
		return 0
	}
	return *c.SnapshotMaxRange
}

// GetJointWindow returns the strip-chart retention window.
func (c *TuningConfig) GetJointWindow() time.Duration {
	if c.JointWindowSeconds == nil {
		return 30 * time.Second
	}
	return time.Duration(*c.JointWindowSeconds * float64(time.Second))
}

// GetJointSweepInterval returns the joint series sweep period.
func (c *TuningConfig) GetJointSweepInterval() time.Duration {
	return c.duration(c.JointSweepInterval, time.Second)
}

// GetSyntheticGrace returns how long the chart waits for live samples
// before switching to synthetic demo data.
func (c *TuningConfig) GetSyntheticGrace() time.Duration {
	return c.duration(c.SyntheticGrace, 5*time.Second)
}

// GetSyntheticEnabled reports whether the synthetic fallback is allowed.
func (c *TuningConfig) GetSyntheticEnabled() bool {
	if c.SyntheticEnabled == nil {
		return true
	}
	return *c.SyntheticEnabled
}

// GetJointRanges returns the per-joint physical ranges, starting from the
// arm defaults and applying any named overrides from the config.
func (c *TuningConfig) GetJointRanges() [joints.JointCount]joints.Range {
	ranges := joints.DefaultRanges()
	for _, override := range c.JointRanges {
		for i := range ranges {
			if ranges[i].Name == override.Name {
				ranges[i].Min = override.Min
				ranges[i].Max = override.Max
			}
		}
	}
	return ranges
}

// GetLidarUDPAddr returns the LiDAR listen address.
func (c *TuningConfig) GetLidarUDPAddr() string {
	if c.LidarUDPAddr == nil {
		return ":57000"
	}
	return *c.LidarUDPAddr
}

// GetUDPRcvBuf returns the UDP socket receive buffer size in bytes.
func (c *TuningConfig) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return 8 * 1024 * 1024
	}
	return *c.UDPRcvBuf
}

// GetMQTTBroker returns the MQTT broker URL, empty when disabled.
func (c *TuningConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the joint-state topic.
func (c *TuningConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil {
		return "arm/joint_state"
	}
	return *c.MQTTTopic
}

// GetSerialPort returns the serial device path, empty when disabled.
func (c *TuningConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialBaud returns the serial baud rate.
func (c *TuningConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetDBPath returns the sqlite recording path; the binary falls back to
// telemetry.db in the working directory when unset.
func (c *TuningConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetMigrationsDir returns the migrations directory.
func (c *TuningConfig) GetMigrationsDir() string {
	if c.MigrationsDir == nil {
		return "migrations"
	}
	return *c.MigrationsDir
}

// GetStatsInterval returns the stats log/record period.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	return c.duration(c.StatsInterval, 10*time.Second)
}

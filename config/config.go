// Package config loads the fieldtrack application configuration from YAML,
// the environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agrosmart/fieldtrack/location"
	"github.com/agrosmart/fieldtrack/playback"
)

// Sensor kinds
const (
	SensorSimulated = "simulated"
	SensorSerial    = "serial"
	SensorNone      = "none"
)

// Errors returned by Validate
var (
	ErrMissingSerialPort = errors.New("serial sensor requires a device path")
	ErrMissingRedisKey   = errors.New("redis publishing requires a channel prefix")
)

// ServerConfig configures the HTTP transport
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required"`
}

// SensorConfig selects and configures the location sensor
type SensorConfig struct {
	Kind       string        `yaml:"kind" validate:"oneof=simulated serial none"`
	Device     string        `yaml:"device"`
	BaudRate   int           `yaml:"baud_rate" validate:"gt=0"`
	Latitude   float64       `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64       `yaml:"longitude" validate:"gte=-180,lte=180"`
	Radius     float64       `yaml:"radius" validate:"gt=0"`
	Altitude   float64       `yaml:"altitude"`
	Jitter     float64       `yaml:"jitter" validate:"gte=0,lte=1"`
	Speed      float64       `yaml:"speed" validate:"gte=0"`
	Course     float64       `yaml:"course" validate:"gte=0,lt=360"`
	Satellites int           `yaml:"satellites" validate:"gte=4,lte=12"`
	TimeToLock time.Duration `yaml:"time_to_lock" validate:"gte=0"`
	OutputRate time.Duration `yaml:"output_rate" validate:"gt=0"`
	NMEAEcho   bool          `yaml:"nmea_echo"` // print simulated sentences to stdout
}

// TrackerConfig holds the location request budgets
type TrackerConfig struct {
	OneShotTimeout     time.Duration `yaml:"one_shot_timeout" validate:"gt=0"`
	OneShotMaximumAge  time.Duration `yaml:"one_shot_maximum_age" validate:"gte=0"`
	WatchTimeout       time.Duration `yaml:"watch_timeout" validate:"gt=0"`
	WatchMaximumAge    time.Duration `yaml:"watch_maximum_age" validate:"gte=0"`
	MarkerTransition   time.Duration `yaml:"marker_transition" validate:"gte=0"`
	MarkerLabel        string        `yaml:"marker_label"`
	PermissionPrecheck bool          `yaml:"permission_precheck"`
	Continuous         bool          `yaml:"continuous"` // start continuous tracking at startup
}

// PlaybackConfig configures the path replay
type PlaybackConfig struct {
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
	SafeIndex *int          `yaml:"safe_index" validate:"omitempty,gte=0"` // nil uses the path's own safe zone
	GPXFile   string        `yaml:"gpx_file"`
	GPXMargin float64       `yaml:"gpx_margin" validate:"gte=0,lt=50"`
}

// RedisConfig configures the optional event fan-out. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// Config is the complete application configuration
type Config struct {
	Quiet    bool           `yaml:"quiet"`
	Server   ServerConfig   `yaml:"server"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Playback PlaybackConfig `yaml:"playback"`
	Redis    RedisConfig    `yaml:"redis"`
}

// Default returns a configuration with sensible defaults
func Default() Config {
	sim := location.DefaultSimConfig()
	tracker := location.DefaultTrackerConfig()
	pb := playback.DefaultConfig()

	return Config{
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Sensor: SensorConfig{
			Kind:       SensorSimulated,
			BaudRate:   9600,
			Latitude:   sim.Latitude,
			Longitude:  sim.Longitude,
			Radius:     sim.Radius,
			Altitude:   sim.Altitude,
			Jitter:     sim.Jitter,
			Speed:      sim.Speed,
			Course:     sim.Course,
			Satellites: sim.Satellites,
			TimeToLock: sim.TimeToLock,
			OutputRate: sim.OutputRate,
		},
		Tracker: TrackerConfig{
			OneShotTimeout:     tracker.OneShot.Timeout,
			OneShotMaximumAge:  tracker.OneShot.MaximumAge,
			WatchTimeout:       tracker.Watch.Timeout,
			WatchMaximumAge:    tracker.Watch.MaximumAge,
			MarkerTransition:   tracker.MarkerTransition,
			MarkerLabel:        "Farm Robot Location",
			PermissionPrecheck: tracker.PermissionPrecheck,
			Continuous:         true,
		},
		Playback: PlaybackConfig{
			Interval:  pb.Interval,
			GPXMargin: 10,
		},
		Redis: RedisConfig{
			Prefix: "fieldtrack",
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error
// when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FIELDTRACK_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("FIELDTRACK_ADDR", &c.Server.Addr)
	str("FIELDTRACK_SENSOR", &c.Sensor.Kind)
	str("FIELDTRACK_SERIAL_PORT", &c.Sensor.Device)
	str("FIELDTRACK_GPX_FILE", &c.Playback.GPXFile)
	str("FIELDTRACK_REDIS_ADDR", &c.Redis.Addr)
	str("FIELDTRACK_REDIS_PASSWORD", &c.Redis.Password)
	str("FIELDTRACK_REDIS_PREFIX", &c.Redis.Prefix)

	if v, ok := lookup("FIELDTRACK_BAUD_RATE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FIELDTRACK_BAUD_RATE: %w", err)
		}
		c.Sensor.BaudRate = n
	}
	if v, ok := lookup("FIELDTRACK_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FIELDTRACK_REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v, ok := lookup("FIELDTRACK_PLAYBACK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FIELDTRACK_PLAYBACK_INTERVAL: %w", err)
		}
		c.Playback.Interval = d
	}
	if v, ok := lookup("FIELDTRACK_QUIET"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FIELDTRACK_QUIET: %w", err)
		}
		c.Quiet = b
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Sensor.Kind == SensorSerial && c.Sensor.Device == "" {
		return ErrMissingSerialPort
	}
	if c.Redis.Addr != "" && c.Redis.Prefix == "" {
		return ErrMissingRedisKey
	}
	tc := c.LocationTracker()
	if err := tc.Validate(); err != nil {
		return err
	}
	if c.Sensor.Kind == SensorSimulated {
		sc := c.Simulation()
		if err := sc.Validate(); err != nil {
			return err
		}
	}
	pc := c.PlaybackEngine(0)
	return pc.Validate()
}

// LocationTracker converts the tracker section.
func (c *Config) LocationTracker() location.TrackerConfig {
	return location.TrackerConfig{
		OneShot: location.Options{
			HighAccuracy: true,
			Timeout:      c.Tracker.OneShotTimeout,
			MaximumAge:   c.Tracker.OneShotMaximumAge,
		},
		Watch: location.Options{
			HighAccuracy: true,
			Timeout:      c.Tracker.WatchTimeout,
			MaximumAge:   c.Tracker.WatchMaximumAge,
		},
		MarkerTransition:   c.Tracker.MarkerTransition,
		PermissionPrecheck: c.Tracker.PermissionPrecheck,
	}
}

// Simulation converts the sensor section for the simulated sensor.
func (c *Config) Simulation() location.SimConfig {
	sim := location.DefaultSimConfig()
	sim.Latitude = c.Sensor.Latitude
	sim.Longitude = c.Sensor.Longitude
	sim.Radius = c.Sensor.Radius
	sim.Altitude = c.Sensor.Altitude
	sim.Jitter = c.Sensor.Jitter
	sim.Speed = c.Sensor.Speed
	sim.Course = c.Sensor.Course
	sim.Satellites = c.Sensor.Satellites
	sim.TimeToLock = c.Sensor.TimeToLock
	sim.OutputRate = c.Sensor.OutputRate
	return sim
}

// PlaybackEngine converts the playback section. pathSafeIndex is used when
// no safe index is configured.
func (c *Config) PlaybackEngine(pathSafeIndex int) playback.Config {
	pc := playback.Config{
		Interval:  c.Playback.Interval,
		SafeIndex: pathSafeIndex,
	}
	if c.Playback.SafeIndex != nil {
		pc.SafeIndex = *c.Playback.SafeIndex
	}
	return pc
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// DeviceID is the 12-byte telemetry identity. Empty means derive it from
	// the host's first hardware address.
	DeviceID  string          `yaml:"device_id"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Tasks     TasksConfig     `yaml:"tasks"`
	LED       LEDConfig       `yaml:"led"`
	Button    ButtonConfig    `yaml:"button"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type FusionConfig struct {
	// Source is "sim" or "replay".
	Source string `yaml:"source"`
	// Mode is "imu" (6-DOF) or "marg" (9-DOF).
	Mode string `yaml:"mode"`
	// Clock is "implicit" (host ticks) or "explicit" (sample timestamps).
	Clock string `yaml:"clock"`

	GyroErrorDeg   float64       `yaml:"gyro_error_deg"`
	DeclinationDeg float64       `yaml:"declination_deg"`
	SampleInterval time.Duration `yaml:"sample_interval"`

	CalibrationPath string `yaml:"calibration_path"`
	// SimScript optionally replaces the built-in sway with a keyframed pose
	// script (sim source only).
	SimScript string `yaml:"sim_script"`

	Replay ReplayConfig `yaml:"replay"`
	Record RecordConfig `yaml:"record"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type TelemetryConfig struct {
	Dest         string        `yaml:"dest"`
	Interval     time.Duration `yaml:"interval"`
	Version      int           `yaml:"version"`
	MulticastTTL int           `yaml:"multicast_ttl"`
}

type TasksConfig struct {
	DisplayInterval time.Duration `yaml:"display_interval"`
	LEDInterval     time.Duration `yaml:"led_interval"`
	CompactInterval time.Duration `yaml:"compact_interval"`
	EnvInterval     time.Duration `yaml:"env_interval"`
	InputInterval   time.Duration `yaml:"input_interval"`
	MotionInterval  time.Duration `yaml:"motion_interval"`
	MotionWindow    int           `yaml:"motion_window"`
}

type LEDConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	// Pins are line offsets for red, green and blue.
	Pins []int `yaml:"pins"`
}

type ButtonConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Pin    int    `yaml:"pin"`
}

type MetricsConfig struct {
	// Listen is the HTTP address for /metrics and /api/status. Empty disables.
	Listen string `yaml:"listen"`
}

const (
	DefaultDest            = "224.23.23.1:2323"
	DefaultCalibrationPath = "./mag_cal.json"
	DefaultGPIOChip        = "gpiochip0"
)

// Load reads path, applies defaults and validates.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", stripLines(te.Errors))
		}
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration used when no usable file exists.
func Default() Config {
	var cfg Config
	// Zero config always validates.
	_ = DefaultAndValidate(&cfg)
	return cfg
}

func stripLines(errs []string) string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.HasPrefix(e, "line ") {
			if i := strings.Index(e, ": "); i >= 0 {
				e = e[i+2:]
			}
		}
		out = append(out, e)
	}
	return strings.Join(out, "; ")
}

// DefaultAndValidate fills unset fields and rejects inconsistent ones.
func DefaultAndValidate(cfg *Config) error {
	if len(cfg.DeviceID) > 12 {
		return fmt.Errorf("device_id must be at most 12 bytes")
	}

	f := &cfg.Fusion
	if f.Source == "" {
		f.Source = "sim"
	}
	if f.Mode == "" {
		f.Mode = "marg"
	}
	if f.Clock == "" {
		f.Clock = "implicit"
	}
	switch f.Source {
	case "sim", "replay":
	default:
		return fmt.Errorf("fusion.source must be 'sim' or 'replay'")
	}
	switch f.Mode {
	case "imu", "marg":
	default:
		return fmt.Errorf("fusion.mode must be 'imu' or 'marg'")
	}
	switch f.Clock {
	case "implicit", "explicit":
	default:
		return fmt.Errorf("fusion.clock must be 'implicit' or 'explicit'")
	}
	if f.GyroErrorDeg < 0 {
		return fmt.Errorf("fusion.gyro_error_deg must be >= 0")
	}
	if f.GyroErrorDeg == 0 {
		f.GyroErrorDeg = 40
	}
	if f.DeclinationDeg < -180 || f.DeclinationDeg > 180 {
		return fmt.Errorf("fusion.declination_deg must be within [-180, 180]")
	}
	if f.SampleInterval <= 0 {
		f.SampleInterval = 10 * time.Millisecond
	}
	if f.CalibrationPath == "" {
		f.CalibrationPath = DefaultCalibrationPath
	}

	if f.Source == "replay" {
		if f.Replay.Path == "" {
			return fmt.Errorf("fusion.replay.path is required when fusion.source is 'replay'")
		}
		if f.Replay.Speed == 0 {
			f.Replay.Speed = 1
		}
		if f.Replay.Speed < 0 {
			return fmt.Errorf("fusion.replay.speed must be > 0")
		}
		if f.Record.Enable {
			return fmt.Errorf("fusion.record cannot be used with fusion.source 'replay'")
		}
		if f.SimScript != "" {
			return fmt.Errorf("fusion.sim_script cannot be used with fusion.source 'replay'")
		}
	}
	if f.Record.Enable && f.Record.Path == "" {
		return fmt.Errorf("fusion.record.path is required when fusion.record.enable is true")
	}

	t := &cfg.Telemetry
	if t.Dest == "" {
		t.Dest = DefaultDest
	}
	if t.Interval <= 0 {
		t.Interval = 20 * time.Millisecond
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.Version != 1 && t.Version != 2 {
		return fmt.Errorf("telemetry.version must be 1 or 2")
	}
	if t.MulticastTTL < 0 || t.MulticastTTL > 255 {
		return fmt.Errorf("telemetry.multicast_ttl must be within [0, 255]")
	}
	if t.MulticastTTL == 0 {
		t.MulticastTTL = 1
	}

	k := &cfg.Tasks
	if k.DisplayInterval <= 0 {
		k.DisplayInterval = 500 * time.Millisecond
	}
	if k.LEDInterval <= 0 {
		k.LEDInterval = 100 * time.Millisecond
	}
	if k.CompactInterval <= 0 {
		k.CompactInterval = 100 * time.Millisecond
	}
	if k.EnvInterval <= 0 {
		k.EnvInterval = 1 * time.Second
	}
	if k.InputInterval <= 0 {
		k.InputInterval = 50 * time.Millisecond
	}
	if k.MotionInterval <= 0 {
		k.MotionInterval = 50 * time.Millisecond
	}
	if k.MotionWindow <= 0 {
		k.MotionWindow = 16
	}

	if cfg.LED.Chip == "" {
		cfg.LED.Chip = DefaultGPIOChip
	}
	if len(cfg.LED.Pins) == 0 {
		cfg.LED.Pins = []int{17, 27, 22}
	}
	if len(cfg.LED.Pins) != 3 {
		return fmt.Errorf("led.pins must list exactly 3 lines (r, g, b)")
	}
	if cfg.LED.Pins[0] == cfg.LED.Pins[1] || cfg.LED.Pins[1] == cfg.LED.Pins[2] || cfg.LED.Pins[0] == cfg.LED.Pins[2] {
		return fmt.Errorf("led.pins must be distinct")
	}

	if cfg.Button.Chip == "" {
		cfg.Button.Chip = DefaultGPIOChip
	}
	if cfg.Button.Pin == 0 {
		cfg.Button.Pin = 23
	}
	if cfg.Button.Pin < 0 {
		return fmt.Errorf("button.pin must be >= 0")
	}
	if cfg.LED.Enable && cfg.Button.Enable && cfg.LED.Chip == cfg.Button.Chip {
		for _, p := range cfg.LED.Pins {
			if p == cfg.Button.Pin {
				return fmt.Errorf("button.pin %d is already used by led.pins", p)
			}
		}
	}
	return nil
}

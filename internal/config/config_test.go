package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "device_id: collar01\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DeviceID != "collar01" {
		t.Fatalf("device_id=%q", cfg.DeviceID)
	}
	if cfg.Fusion.Source != "sim" || cfg.Fusion.Mode != "marg" || cfg.Fusion.Clock != "implicit" {
		t.Fatalf("fusion=%+v", cfg.Fusion)
	}
	if cfg.Fusion.GyroErrorDeg != 40 || cfg.Fusion.SampleInterval != 10*time.Millisecond {
		t.Fatalf("fusion=%+v", cfg.Fusion)
	}
	if cfg.Fusion.CalibrationPath != DefaultCalibrationPath {
		t.Fatalf("calibration_path=%q", cfg.Fusion.CalibrationPath)
	}
	if cfg.Telemetry.Dest != DefaultDest || cfg.Telemetry.Interval != 20*time.Millisecond || cfg.Telemetry.Version != 1 || cfg.Telemetry.MulticastTTL != 1 {
		t.Fatalf("telemetry=%+v", cfg.Telemetry)
	}
	want := TasksConfig{
		DisplayInterval: 500 * time.Millisecond,
		LEDInterval:     100 * time.Millisecond,
		CompactInterval: 100 * time.Millisecond,
		EnvInterval:     time.Second,
		InputInterval:   50 * time.Millisecond,
		MotionInterval:  50 * time.Millisecond,
		MotionWindow:    16,
	}
	if cfg.Tasks != want {
		t.Fatalf("tasks=%+v want %+v", cfg.Tasks, want)
	}
	if !reflect.DeepEqual(cfg.LED.Pins, []int{17, 27, 22}) || cfg.Button.Pin != 23 {
		t.Fatalf("gpio led=%+v button=%+v", cfg.LED, cfg.Button)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("empty file=%+v want defaults", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_Malformed(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "fusion: [\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"LongDeviceID", "device_id: '0123456789abc'\n", "device_id must be at most 12 bytes"},
		{"Source", "fusion:\n  source: i2c\n", "fusion.source must be 'sim' or 'replay'"},
		{"Mode", "fusion:\n  mode: 6dof\n", "fusion.mode must be 'imu' or 'marg'"},
		{"Clock", "fusion:\n  clock: wall\n", "fusion.clock must be 'implicit' or 'explicit'"},
		{"GyroError", "fusion:\n  gyro_error_deg: -1\n", "fusion.gyro_error_deg must be >= 0"},
		{"Declination", "fusion:\n  declination_deg: 200\n", "fusion.declination_deg must be within [-180, 180]"},
		{"ReplayPath", "fusion:\n  source: replay\n", "fusion.replay.path is required when fusion.source is 'replay'"},
		{"ReplaySpeed", "fusion:\n  source: replay\n  replay:\n    path: x.log\n    speed: -1\n", "fusion.replay.speed must be > 0"},
		{"RecordDuringReplay", "fusion:\n  source: replay\n  replay:\n    path: x.log\n  record:\n    enable: true\n    path: y.log\n", "fusion.record cannot be used with fusion.source 'replay'"},
		{"ScriptDuringReplay", "fusion:\n  source: replay\n  sim_script: walk.yaml\n  replay:\n    path: x.log\n", "fusion.sim_script cannot be used with fusion.source 'replay'"},
		{"RecordPath", "fusion:\n  record:\n    enable: true\n", "fusion.record.path is required when fusion.record.enable is true"},
		{"Version", "telemetry:\n  version: 3\n", "telemetry.version must be 1 or 2"},
		{"TTL", "telemetry:\n  multicast_ttl: 300\n", "telemetry.multicast_ttl must be within [0, 255]"},
		{"LEDPinCount", "led:\n  pins: [1, 2]\n", "led.pins must list exactly 3 lines (r, g, b)"},
		{"LEDPinsDistinct", "led:\n  pins: [1, 2, 1]\n", "led.pins must be distinct"},
		{"ButtonPin", "button:\n  pin: -4\n", "button.pin must be >= 0"},
		{"ButtonOnLED", "led:\n  enable: true\n  pins: [5, 6, 7]\nbutton:\n  enable: true\n  pin: 6\n", "button.pin 6 is already used by led.pins"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_ReplaySpeedDefaultsToOne(t *testing.T) {
	path := writeTempConfig(t, "fusion:\n  source: replay\n  clock: explicit\n  replay:\n    path: './x.log'\n    speed: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Fusion.Replay.Speed != 1 {
		t.Fatalf("speed=%v want 1", cfg.Fusion.Replay.Speed)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "telemetry:\n  dest: '127.0.0.1:4000'\n  mode: gdl90\n")
	_, err := Load(path)
	requireErrEq(t, err, "config contains unknown fields: field mode not found in type config.TelemetryConfig")
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Telemetry.Dest != DefaultDest {
		t.Fatalf("dest=%q", cfg.Telemetry.Dest)
	}
}

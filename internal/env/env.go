// Package env reads the collar's battery and temperature.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dogspeed/internal/state"
)

const (
	powerSupplyDir = "/sys/class/power_supply"
	thermalPath    = "/sys/class/thermal/thermal_zone0/temp"

	// Reported when no battery is present.
	SimBatteryVolts = 3.7
	SimTemperatureC = 25.0
)

type Reader interface {
	Read() (state.Env, error)
}

// Sysfs reads the first battery under PowerSupplyDir and the thermal zone at
// ThermalPath. Missing sources are filled with simulated values and flagged.
type Sysfs struct {
	PowerSupplyDir string
	ThermalPath    string
}

func NewSysfs() *Sysfs {
	return &Sysfs{PowerSupplyDir: powerSupplyDir, ThermalPath: thermalPath}
}

func (s *Sysfs) Read() (state.Env, error) {
	var e state.Env

	t, err := readTempCFromPath(s.ThermalPath)
	if err != nil {
		e.TemperatureC = SimTemperatureC
		e.Simulated = true
	} else {
		e.TemperatureC = t
	}

	dir, err := findBattery(s.PowerSupplyDir)
	if err != nil {
		e.BatteryVolts = SimBatteryVolts
		e.Simulated = true
		return e, nil
	}
	uv, err := readMicro(filepath.Join(dir, "voltage_now"))
	if err != nil {
		return e, fmt.Errorf("env: battery voltage: %w", err)
	}
	e.BatteryVolts = uv
	// Not every fuel gauge reports current.
	if ua, err := readMicro(filepath.Join(dir, "current_now")); err == nil {
		e.BatteryAmps = ua
	}
	return e, nil
}

func findBattery(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("env: list power supplies: %w", err)
	}
	for _, ent := range entries {
		dir := filepath.Join(root, ent.Name())
		b, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(b)) == "Battery" {
			return dir, nil
		}
	}
	return "", fmt.Errorf("env: no battery under %s", root)
}

// readMicro reads a sysfs integer in micro-units and scales it to units.
func readMicro(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return float64(n) / 1e6, nil
}

func parseTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("temperature empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", s, err)
	}
	// Most zones report milli-degrees.
	if n > 1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

func readTempCFromPath(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	return parseTempC(string(b))
}

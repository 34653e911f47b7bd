package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Calibration is the persisted magnetometer correction:
// corrected = (raw - Offset) * Scale, per axis.
type Calibration struct {
	Offset [3]float64 `json:"offset"`
	Scale  [3]float64 `json:"scale"`
}

// Default is the identity correction used when nothing valid is persisted.
func Default() Calibration {
	return Calibration{Scale: [3]float64{1, 1, 1}}
}

func (c Calibration) Apply(m [3]float64) [3]float64 {
	return [3]float64{
		(m[0] - c.Offset[0]) * c.Scale[0],
		(m[1] - c.Offset[1]) * c.Scale[1],
		(m[2] - c.Offset[2]) * c.Scale[2],
	}
}

// Load reads a calibration record. On any failure it returns Default()
// together with the error so the caller can log and carry on.
func Load(path string) (Calibration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("calibration: read %s: %w", path, err)
	}
	var raw struct {
		Offset []float64 `json:"offset"`
		Scale  []float64 `json:"scale"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Default(), fmt.Errorf("calibration: parse %s: %w", path, err)
	}
	if len(raw.Offset) != 3 || len(raw.Scale) != 3 {
		return Default(), fmt.Errorf("calibration: %s: offset and scale need 3 values", path)
	}
	var c Calibration
	for i := 0; i < 3; i++ {
		if !finite(raw.Offset[i]) || !finite(raw.Scale[i]) || raw.Scale[i] == 0 {
			return Default(), fmt.Errorf("calibration: %s: invalid value on axis %d", path, i)
		}
		c.Offset[i] = raw.Offset[i]
		c.Scale[i] = raw.Scale[i]
	}
	return c, nil
}

// Save writes c as JSON, replacing path atomically.
func Save(path string, c Calibration) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("calibration: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("calibration: rename: %w", err)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Tracker keeps running per-axis min/max of magnetometer readings.
type Tracker struct {
	Min, Max [3]float64
	N        int
}

func (t *Tracker) Observe(m [3]float64) {
	if t.N == 0 {
		t.Min, t.Max = m, m
		t.N = 1
		return
	}
	for i := 0; i < 3; i++ {
		t.Min[i] = math.Min(t.Min[i], m[i])
		t.Max[i] = math.Max(t.Max[i], m[i])
	}
	t.N++
}

// Bias is the per-axis midpoint (min+max)/2.
func (t *Tracker) Bias() [3]float64 {
	return [3]float64{
		(t.Min[0] + t.Max[0]) / 2,
		(t.Min[1] + t.Max[1]) / 2,
		(t.Min[2] + t.Max[2]) / 2,
	}
}

// Calibration derives offset and a soft-iron scale from the observed ranges.
// Each axis is scaled so its half-range matches the mean half-range; an axis
// that never moved keeps scale 1.
func (t *Tracker) Calibration() Calibration {
	c := Calibration{Offset: t.Bias(), Scale: [3]float64{1, 1, 1}}
	var half [3]float64
	avg := 0.0
	for i := 0; i < 3; i++ {
		half[i] = (t.Max[i] - t.Min[i]) / 2
		avg += half[i]
	}
	avg /= 3
	for i := 0; i < 3; i++ {
		if half[i] > 0 {
			c.Scale[i] = avg / half[i]
		}
	}
	return c
}

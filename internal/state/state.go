// Package state holds the telemetry record shared between collar tasks.
//
// Each field group has a single writer task by convention (env task for the
// environment readings, motion task for the motion average, input task for
// the palette). Readers take a Snapshot and never see a half-written group.
package state

import (
	"sync"
	"time"
)

type Env struct {
	BatteryVolts float64 `json:"battery_volts"`
	BatteryAmps  float64 `json:"battery_amps"`
	TemperatureC float64 `json:"temperature_c"`
	// Simulated is set when no hardware reading was available.
	Simulated bool `json:"simulated"`
}

type Telemetry struct {
	Env       Env       `json:"env"`
	MotionAvg float64   `json:"motion_avg"`
	Palette   int       `json:"palette"`
	Frames    uint64    `json:"frames"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Shared struct {
	mu sync.RWMutex
	t  Telemetry
}

func New() *Shared { return &Shared{} }

func (s *Shared) SetEnv(e Env) {
	s.mu.Lock()
	s.t.Env = e
	s.t.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Shared) SetMotion(avg float64) {
	s.mu.Lock()
	s.t.MotionAvg = avg
	s.t.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// NextPalette advances the palette index modulo n and returns the new value.
func (s *Shared) NextPalette(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return s.t.Palette
	}
	s.t.Palette = (s.t.Palette + 1) % n
	s.t.UpdatedAt = time.Now().UTC()
	return s.t.Palette
}

// FrameSent counts a transmitted telemetry frame.
func (s *Shared) FrameSent() {
	s.mu.Lock()
	s.t.Frames++
	s.mu.Unlock()
}

func (s *Shared) Snapshot() Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}

package sim

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rollScript = `
version: 1
loop: true
duration: 4s
inclination_deg: 60
keyframes:
  - t: 0s
    heading_deg: 350
  - t: 2s
    roll_deg: 30
    heading_deg: 10
`

func TestParseScriptYAML(t *testing.T) {
	s, err := ParseScriptYAML([]byte(rollScript))
	require.NoError(t, err)
	assert.True(t, s.Loop)
	assert.Equal(t, 4*time.Second, s.Duration)
	require.Len(t, s.Keyframes, 2)
	assert.Equal(t, 2*time.Second, s.Keyframes[1].T)
	assert.Equal(t, 30.0, s.Keyframes[1].RollDeg)
}

func TestNewScripted_Validation(t *testing.T) {
	cases := []struct {
		name   string
		script Script
		want   string
	}{
		{"version", Script{Version: 2, Keyframes: []Keyframe{{}}}, "unsupported script version 2"},
		{"empty", Script{}, "keyframes is required"},
		{"order", Script{Keyframes: []Keyframe{{T: time.Second}, {T: 0}}}, "keyframes[1].t must be >= keyframes[0].t"},
		{"loop", Script{Loop: true, Keyframes: []Keyframe{{}}}, "duration is required (or derivable from keyframes) when loop is set"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewScripted(tc.script)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestScripted_InterpolatesPoseAndRates(t *testing.T) {
	s, err := ParseScriptYAML([]byte(rollScript))
	require.NoError(t, err)
	sc, err := NewScripted(s)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, sc.Duration())

	// Halfway: roll 15, heading crosses north at 0.
	mid := sc.At(time.Second)
	want := rigidBody(radians(15), 0, 0, 0, 0, 0, 60)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want.Accel[i], mid.Accel[i], 1e-9)
		assert.InDelta(t, want.Mag[i], mid.Mag[i], 1e-9)
	}
	// 15 deg/s roll and +10 deg/s heading over the segment.
	assert.InDelta(t, radians(15), mid.Gyro[0], 1e-9)
	assert.Greater(t, mid.Gyro[2], 0.0)

	// Holding the last keyframe is still.
	hold := sc.At(3 * time.Second)
	assert.Equal(t, [3]float64{}, hold.Gyro)
	assert.InDelta(t, math.Sin(radians(30)), hold.Accel[1], 1e-9)

	// Looping wraps back to the start.
	assert.Equal(t, sc.At(500*time.Millisecond), sc.At(4500*time.Millisecond))
}

func TestShortestDeg(t *testing.T) {
	assert.InDelta(t, 20, shortestDeg(350, 10), 1e-9)
	assert.InDelta(t, -20, shortestDeg(10, 350), 1e-9)
	assert.InDelta(t, 180, shortestDeg(0, 180), 1e-9)
}

func TestLoadScript(t *testing.T) {
	p := filepath.Join(t.TempDir(), "walk.yaml")
	require.NoError(t, os.WriteFile(p, []byte(rollScript), 0o644))
	sc, err := LoadScript(p)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, sc.Duration())

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

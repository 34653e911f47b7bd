package sim

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"dogspeed/internal/sensor"
)

// Script is a keyframed collar pose timeline.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 10s
//	loop: true
//	inclination_deg: 60
//	keyframes:
//	  - t: 0s
//	    roll_deg: 0
//	    pitch_deg: 0
//	    heading_deg: 90
//	  - t: 2s
//	    roll_deg: 30
//
// Keyframes must use non-decreasing t values.
type Script struct {
	Version        int           `yaml:"version"`
	Duration       time.Duration `yaml:"duration"`
	Loop           bool          `yaml:"loop"`
	InclinationDeg float64       `yaml:"inclination_deg"`
	Keyframes      []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped collar pose.
type Keyframe struct {
	T          time.Duration `yaml:"t"`
	RollDeg    float64       `yaml:"roll_deg"`
	PitchDeg   float64       `yaml:"pitch_deg"`
	HeadingDeg float64       `yaml:"heading_deg"`
}

// Scripted is the validated runtime form of a Script. It implements Motion.
type Scripted struct {
	script   Script
	duration time.Duration
}

// LoadScript reads and validates a YAML script from path.
func LoadScript(path string) (*Scripted, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScriptYAML(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewScripted(s)
}

// ParseScriptYAML parses a YAML script.
func ParseScriptYAML(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, err
	}
	return s, nil
}

// NewScripted validates script.
func NewScripted(script Script) (*Scripted, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported script version %d", script.Version)
	}
	kfs := script.Keyframes
	if len(kfs) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i := 1; i < len(kfs); i++ {
		if kfs[i].T < kfs[i-1].T {
			return nil, fmt.Errorf("keyframes[%d].t must be >= keyframes[%d].t", i, i-1)
		}
	}
	dur := script.Duration
	if dur <= 0 {
		dur = kfs[len(kfs)-1].T
	}
	if script.Loop && dur <= 0 {
		return nil, fmt.Errorf("duration is required (or derivable from keyframes) when loop is set")
	}
	return &Scripted{script: script, duration: dur}, nil
}

// Duration returns the effective script duration.
func (s *Scripted) Duration() time.Duration { return s.duration }

// At interpolates the pose at t and returns the matching sample. Body rates
// are the constant Euler rates of the current segment; they are zero while
// holding the first or last keyframe.
func (s *Scripted) At(t time.Duration) sensor.Sample {
	if s.script.Loop && s.duration > 0 {
		t %= s.duration
	}
	k0, k1, alpha := s.segment(t)

	dh := shortestDeg(k0.HeadingDeg, k1.HeadingDeg)
	roll := lerp(k0.RollDeg, k1.RollDeg, alpha)
	pitch := lerp(k0.PitchDeg, k1.PitchDeg, alpha)
	heading := k0.HeadingDeg + dh*alpha

	var droll, dpitch, dheading float64
	if span := (k1.T - k0.T).Seconds(); span > 0 && alpha > 0 && alpha < 1 {
		droll = (k1.RollDeg - k0.RollDeg) / span
		dpitch = (k1.PitchDeg - k0.PitchDeg) / span
		dheading = dh / span
	}
	return rigidBody(radians(roll), radians(pitch), radians(heading),
		radians(droll), radians(dpitch), radians(dheading), s.script.InclinationDeg)
}

func (s *Scripted) segment(t time.Duration) (Keyframe, Keyframe, float64) {
	kfs := s.script.Keyframes
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0, k1 := kfs[idx-1], kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	return k0, k1, math.Min(1, math.Max(0, float64(t-k0.T)/float64(dt)))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// shortestDeg returns the signed turn from a to b in (-180, 180].
func shortestDeg(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}

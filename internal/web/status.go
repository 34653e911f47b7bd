package web

import (
	"math"
	"time"

	"dogspeed/internal/fusion"
	"dogspeed/internal/orchestrator"
	"dogspeed/internal/state"
)

// Sources are the live views /api/status reads. Nil funcs are skipped.
type Sources struct {
	Orientation func() fusion.Orientation
	FusionErr   func() error
	Telemetry   func() state.Telemetry
	Tasks       func() []orchestrator.TaskStatus
}

type Status struct {
	start    time.Time
	deviceID string
	mode     string
	dest     string
	src      Sources
}

func NewStatus(deviceID, mode, dest string, src Sources) *Status {
	return &Status{start: time.Now().UTC(), deviceID: deviceID, mode: mode, dest: dest, src: src}
}

// AttitudeSnapshot is the JSON view of the fused orientation.
type AttitudeSnapshot struct {
	Valid         bool       `json:"valid"`
	PitchDeg      float64    `json:"pitch_deg"`
	RollDeg       float64    `json:"roll_deg"`
	HeadingDeg    float64    `json:"heading_deg"`
	Quaternion    [4]float64 `json:"quaternion"`
	Cycles        uint64     `json:"cycles"`
	LastUpdateUTC string     `json:"last_update_utc,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type StatusSnapshot struct {
	Service   string                    `json:"service"`
	DeviceID  string                    `json:"device_id"`
	Mode      string                    `json:"mode"`
	Dest      string                    `json:"dest"`
	NowUTC    string                    `json:"now_utc"`
	UptimeSec int64                     `json:"uptime_sec"`
	Attitude  AttitudeSnapshot          `json:"attitude"`
	Telemetry state.Telemetry           `json:"telemetry"`
	Tasks     []orchestrator.TaskStatus `json:"tasks"`
}

func round(v float64) float64 { return math.Round(v*100) / 100 }

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   "dogspeed",
		DeviceID:  s.deviceID,
		Mode:      s.mode,
		Dest:      s.dest,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
	}
	if s.src.Orientation != nil {
		o := s.src.Orientation()
		snap.Attitude = AttitudeSnapshot{
			Valid:      o.Valid,
			PitchDeg:   round(o.PitchDeg),
			RollDeg:    round(o.RollDeg),
			HeadingDeg: round(o.HeadingDeg),
			Quaternion: [4]float64{o.Q.W, o.Q.X, o.Q.Y, o.Q.Z},
			Cycles:     o.Cycles,
		}
		if !o.UpdatedAt.IsZero() {
			snap.Attitude.LastUpdateUTC = o.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
	}
	if s.src.FusionErr != nil {
		if err := s.src.FusionErr(); err != nil {
			snap.Attitude.Error = err.Error()
		}
	}
	if s.src.Telemetry != nil {
		snap.Telemetry = s.src.Telemetry()
	}
	if s.src.Tasks != nil {
		snap.Tasks = s.src.Tasks()
	}
	return snap
}

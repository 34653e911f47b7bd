package sim

import (
	"context"
	"math"
	"time"

	"dogspeed/internal/sensor"
)

var afterFn = time.After

// Sway is a deterministic collar motion: a dog trotting with roll and pitch
// oscillation while its heading wanders around HeadingDeg.
//
// Samples are consistent rigid-body readings: accel is gravity (1 g) seen
// from the body, gyro the body rates (rad/s), mag a unit earth field with
// inclination InclinationDeg.
type Sway struct {
	Period         time.Duration
	RollAmpDeg     float64
	PitchAmpDeg    float64
	HeadingDeg     float64
	YawAmpDeg      float64
	InclinationDeg float64
}

// Pose returns Euler angles in radians at time t.
func (s Sway) Pose(t time.Duration) (roll, pitch, yaw float64) {
	w := s.omega()
	x := w * t.Seconds()
	roll = radians(s.RollAmpDeg) * math.Sin(x)
	pitch = radians(s.PitchAmpDeg) * math.Sin(2*x)
	yaw = radians(s.HeadingDeg) + radians(s.YawAmpDeg)*math.Sin(x/2)
	return roll, pitch, yaw
}

func (s Sway) omega() float64 {
	p := s.Period
	if p <= 0 {
		p = 2 * time.Second
	}
	return 2 * math.Pi / p.Seconds()
}

// At returns the sample the sensor would read at time t.
func (s Sway) At(t time.Duration) sensor.Sample {
	phi, theta, psi := s.Pose(t)

	w := s.omega()
	x := w * t.Seconds()
	dphi := radians(s.RollAmpDeg) * w * math.Cos(x)
	dtheta := radians(s.PitchAmpDeg) * 2 * w * math.Cos(2*x)
	dpsi := radians(s.YawAmpDeg) * w / 2 * math.Cos(x/2)

	return rigidBody(phi, theta, psi, dphi, dtheta, dpsi, s.InclinationDeg)
}

// rigidBody converts a ZYX pose and its Euler rates into accel (1 g), body
// rates and a unit earth field with the given inclination.
func rigidBody(phi, theta, psi, dphi, dtheta, dpsi, inclDeg float64) sensor.Sample {
	sp, cp := math.Sin(phi), math.Cos(phi)
	st, ct := math.Sin(theta), math.Cos(theta)
	ss, cs := math.Sin(psi), math.Cos(psi)

	var out sensor.Sample
	out.Accel = [3]float64{-st, sp * ct, cp * ct}
	out.Gyro = [3]float64{
		dphi - dpsi*st,
		dtheta*cp + dpsi*sp*ct,
		-dtheta*sp + dpsi*cp*ct,
	}

	// Earth field (north, east, up) rotated into the body (R^T for ZYX).
	incl := radians(inclDeg)
	e := [3]float64{math.Cos(incl), 0, -math.Sin(incl)}
	r := [3][3]float64{
		{cs * ct, cs*st*sp - ss*cp, cs*st*cp + ss*sp},
		{ss * ct, ss*st*sp + cs*cp, ss*st*cp - cs*sp},
		{-st, ct * sp, ct * cp},
	}
	for i := 0; i < 3; i++ {
		out.Mag[i] = r[0][i]*e[0] + r[1][i]*e[1] + r[2][i]*e[2]
	}
	out.HasMag = true
	return out
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Motion produces the sample a sensor would read t after the start.
type Motion interface {
	At(t time.Duration) sensor.Sample
}

// Source paces Motion samples at Interval with explicit microsecond
// timestamps, starting at t=0. A nil Motion is a still collar.
type Source struct {
	Motion   Motion
	Interval time.Duration
	// NoMag drops the magnetometer reading, as a 6-axis IMU would.
	NoMag bool

	t    time.Duration
	read bool
}

func (s *Source) Read(ctx context.Context) (sensor.Sample, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	if s.read {
		select {
		case <-ctx.Done():
			return sensor.Sample{}, ctx.Err()
		case <-afterFn(interval):
		}
		s.t += interval
	}
	s.read = true

	m := s.Motion
	if m == nil {
		m = Sway{}
	}
	out := m.At(s.t)
	if s.NoMag {
		out.Mag, out.HasMag = [3]float64{}, false
	}
	out.Timestamp = uint32(s.t.Microseconds())
	out.HasTimestamp = true
	return out, nil
}

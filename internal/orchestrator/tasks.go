package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"dogspeed/internal/clock"
	"dogspeed/internal/env"
	"dogspeed/internal/filters"
	"dogspeed/internal/fusion"
	"dogspeed/internal/input"
	"dogspeed/internal/led"
	"dogspeed/internal/metrics"
	"dogspeed/internal/state"
	"dogspeed/internal/telemetry"
)

// Orientations is the read side of the fusion engine.
type Orientations interface {
	Orientation() fusion.Orientation
}

// Sender puts one encoded frame on the wire.
type Sender interface {
	Send(payload []byte) error
}

func CompactTask(period time.Duration, c *Compactor) Task {
	return Task{Name: "compact", Period: period, Run: c.Step}
}

// DisplayTask logs the current orientation.
func DisplayTask(period time.Duration, src Orientations) Task {
	return Task{Name: "display", Period: period, Run: func(ctx context.Context) error {
		o := src.Orientation()
		if !o.Valid {
			return nil
		}
		log.Printf("orientation heading=%4.0f pitch=%4.0f roll=%4.0f", o.HeadingDeg, o.PitchDeg, o.RollDeg)
		return nil
	}}
}

// LEDTask renders the orientation on the pixel using the shared palette.
func LEDTask(period time.Duration, src Orientations, shared *state.Shared, px led.Pixel) Task {
	return Task{Name: "led", Period: period, Run: func(ctx context.Context) error {
		c := led.Render(shared.Snapshot().Palette, src.Orientation())
		if err := px.Set(c); err != nil {
			return fmt.Errorf("led: %w", err)
		}
		return nil
	}}
}

type TransmitConfig struct {
	Period   time.Duration
	DeviceID string
	Version  uint16
	Metrics  *metrics.Metrics
}

// TransmitTask encodes the newest orientation and telemetry and sends it. A
// send failure ends the task; fusion keeps running.
func TransmitTask(cfg TransmitConfig, src Orientations, shared *state.Shared, ticks clock.TickSource, out Sender) Task {
	id := telemetry.DeviceID(cfg.DeviceID)
	return Task{Name: "transmit", Period: cfg.Period, Run: func(ctx context.Context) error {
		o := src.Orientation()
		if !o.Valid {
			return nil
		}
		rec := BuildRecord(id, cfg.Version, o, shared.Snapshot())
		if !o.Sample.HasTimestamp {
			rec.Timestamp = ticks.Ticks()
		}
		b, err := telemetry.Encode(rec)
		if err != nil {
			return err
		}
		if err := out.Send(b); err != nil {
			cfg.Metrics.SendError()
			return fmt.Errorf("transmit: %w", err)
		}
		cfg.Metrics.FrameSent()
		shared.FrameSent()
		return nil
	}}
}

// BuildRecord maps an orientation snapshot and shared telemetry onto the
// wire record. Timestamp is the sample's own when it has one.
func BuildRecord(id [telemetry.IDLen]byte, version uint16, o fusion.Orientation, t state.Telemetry) telemetry.Record {
	r := telemetry.Record{DeviceID: id, Version: version, Timestamp: o.Sample.Timestamp}
	for i := 0; i < 3; i++ {
		r.IMU.Accel[i] = float32(o.Sample.Accel[i])
		r.IMU.Gyro[i] = float32(o.Sample.Gyro[i])
	}
	r.IMU.Pitch = float32(o.PitchDeg)
	r.IMU.Roll = float32(o.RollDeg)
	if version == telemetry.Version1 {
		r.Env = telemetry.Env{
			BatteryVolts: float32(t.Env.BatteryVolts),
			BatteryAmps:  float32(t.Env.BatteryAmps),
			TemperatureC: float32(t.Env.TemperatureC),
			MotionAvg:    float32(t.MotionAvg),
		}
	}
	return r
}

// EnvTask is the single writer of the shared environment readings.
func EnvTask(period time.Duration, r env.Reader, shared *state.Shared) Task {
	return Task{Name: "env", Period: period, Run: func(ctx context.Context) error {
		e, err := r.Read()
		if err != nil {
			// The previous reading stays published; the next tick retries.
			log.Printf("env read failed: %v", err)
			return nil
		}
		shared.SetEnv(e)
		return nil
	}}
}

// MotionTask is the single writer of the motion average: a moving average of
// gyro magnitude over window fusion cycles as seen at each tick.
func MotionTask(period time.Duration, window int, src Orientations, shared *state.Shared) Task {
	f := filters.NewMovingAverage(window)
	var last uint64
	return Task{Name: "motion", Period: period, Run: func(ctx context.Context) error {
		o := src.Orientation()
		if !o.Valid || o.Cycles == last {
			return nil
		}
		last = o.Cycles
		g := o.Sample.Gyro
		shared.SetMotion(f.Update(math.Sqrt(g[0]*g[0] + g[1]*g[1] + g[2]*g[2])))
		return nil
	}}
}

// InputTask advances the LED palette on each button press.
func InputTask(period time.Duration, b input.Button, shared *state.Shared) Task {
	var edge input.Edge
	return Task{Name: "input", Period: period, Run: func(ctx context.Context) error {
		pressed, err := b.Pressed()
		if err != nil {
			return err
		}
		if edge.Rising(pressed) {
			p := shared.NextPalette(led.Palettes)
			log.Printf("palette=%d", p)
		}
		return nil
	}}
}

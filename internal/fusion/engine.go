package fusion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"dogspeed/internal/calibration"
	"dogspeed/internal/clock"
	"dogspeed/internal/metrics"
	"dogspeed/internal/sensor"
)

// ErrSensorFault marks a zero-magnitude accelerometer or magnetometer
// reading. It ends the update loop for good.
var ErrSensorFault = errors.New("fusion: sensor fault")

// DefaultGyroErrorDeg is the assumed gyroscope measurement error (deg/s)
// used to derive Beta.
const DefaultGyroErrorDeg = 40

type Mode int

const (
	// ModeIMU fuses gyro and accelerometer (6 DOF). Heading stays 0.
	ModeIMU Mode = iota
	// ModeMARG also fuses the magnetometer (9 DOF).
	ModeMARG
)

func (m Mode) String() string {
	switch m {
	case ModeIMU:
		return "imu"
	case ModeMARG:
		return "marg"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type Config struct {
	Mode           Mode
	GyroErrorDeg   float64
	DeclinationDeg float64

	Metrics *metrics.Metrics
}

// Orientation is a read-only snapshot of the engine output.
type Orientation struct {
	Valid bool
	Q     Quaternion

	PitchDeg   float64
	RollDeg    float64
	HeadingDeg float64

	// Sample is the reading consumed by the most recent update.
	Sample sensor.Sample

	Cycles    uint64
	UpdatedAt time.Time
}

// Engine owns the orientation quaternion. Only the update loop (or a caller
// driving Update directly, never both) mutates it; everyone else reads
// Orientation snapshots.
type Engine struct {
	cfg  Config
	beta float64
	src  sensor.Source
	clk  *clock.Clock

	q Quaternion

	mu      sync.RWMutex
	magBias [3]float64
	snap    Orientation
	err     error

	started atomic.Bool
	done    chan struct{}
}

// Beta derives the filter gain from the gyro measurement error in deg/s.
func Beta(gyroErrorDeg float64) float64 {
	return math.Sqrt(3.0/4.0) * radians(gyroErrorDeg)
}

func New(cfg Config, src sensor.Source, clk *clock.Clock) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("fusion: source is nil")
	}
	if clk == nil {
		return nil, fmt.Errorf("fusion: clock is nil")
	}
	if cfg.Mode != ModeIMU && cfg.Mode != ModeMARG {
		return nil, fmt.Errorf("fusion: unknown mode %v", cfg.Mode)
	}
	if cfg.GyroErrorDeg <= 0 {
		cfg.GyroErrorDeg = DefaultGyroErrorDeg
	}
	return &Engine{
		cfg:  cfg,
		beta: Beta(cfg.GyroErrorDeg),
		src:  src,
		clk:  clk,
		q:    Identity(),
		snap: Orientation{Q: Identity()},
		done: make(chan struct{}),
	}, nil
}

func (e *Engine) Beta() float64 { return e.beta }

func (e *Engine) Mode() Mode { return e.cfg.Mode }

func (e *Engine) Orientation() Orientation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

func (e *Engine) MagBias() [3]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.magBias
}

func (e *Engine) SetMagBias(b [3]float64) {
	e.mu.Lock()
	e.magBias = b
	e.mu.Unlock()
}

// Done is closed when the update loop has ended.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err reports why the update loop ended (nil while it is running).
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Update runs one filter step of the configured variant over s with time
// step dt seconds and publishes the result. On ErrSensorFault the state is
// left as it was.
func (e *Engine) Update(s sensor.Sample, dt float64) error {
	var (
		next Quaternion
		err  error
	)
	switch e.cfg.Mode {
	case ModeMARG:
		b := e.MagBias()
		m := [3]float64{s.Mag[0] - b[0], s.Mag[1] - b[1], s.Mag[2] - b[2]}
		next, err = stepMARG(e.q, e.beta, s.Gyro, s.Accel, m, dt)
	default:
		next, err = stepIMU(e.q, e.beta, s.Gyro, s.Accel, dt)
	}
	if err != nil {
		e.cfg.Metrics.SensorFault()
		return err
	}
	e.q = next

	heading := 0.0
	if e.cfg.Mode == ModeMARG {
		heading = wrap360(e.cfg.DeclinationDeg + next.Yaw())
	}
	pitch, roll := next.Pitch(), next.Roll()

	e.mu.Lock()
	e.snap = Orientation{
		Valid:      true,
		Q:          next,
		PitchDeg:   pitch,
		RollDeg:    roll,
		HeadingDeg: heading,
		Sample:     s,
		Cycles:     e.snap.Cycles + 1,
		UpdatedAt:  time.Now().UTC(),
	}
	e.mu.Unlock()
	e.cfg.Metrics.FusionCycle(pitch, roll, heading)
	return nil
}

// Calibrate samples the magnetometer until stop returns true (checked once
// per reading) or ctx ends, then sets MagBias to the per-axis midpoint of the
// observed range. The returned tracker holds the raw min/max.
//
// There is no iteration bound besides stop and ctx.
func (e *Engine) Calibrate(ctx context.Context, stop func() bool) (calibration.Tracker, error) {
	var tr calibration.Tracker
	if stop == nil {
		return tr, fmt.Errorf("fusion: calibrate: stop predicate is nil")
	}
	s, err := e.src.Read(ctx)
	if err != nil {
		return tr, fmt.Errorf("fusion: calibrate: %w", err)
	}
	if !s.HasMag {
		return tr, fmt.Errorf("fusion: calibrate: source has no magnetometer")
	}
	tr.Observe(s.Mag)
	for !stop() {
		s, err := e.src.Read(ctx)
		if err != nil {
			return tr, fmt.Errorf("fusion: calibrate: %w", err)
		}
		tr.Observe(s.Mag)
	}
	e.SetMagBias(tr.Bias())
	return tr, nil
}

// Start fetches one sample to check it carries what the configured mode and
// clock need, then runs the update loop in the background. It returns once
// that first fetch completes.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("fusion: already started")
	}
	first, err := e.src.Read(ctx)
	if err != nil {
		e.finish(fmt.Errorf("fusion: first sample: %w", err))
		return e.Err()
	}
	if e.cfg.Mode == ModeMARG && !first.HasMag {
		e.finish(fmt.Errorf("fusion: mode %s needs magnetometer samples", e.cfg.Mode))
		return e.Err()
	}
	if e.clk.Explicit() && !first.HasTimestamp {
		e.finish(fmt.Errorf("fusion: explicit clock needs timestamped samples"))
		return e.Err()
	}
	log.Printf("fusion started mode=%s beta=%.4f", e.cfg.Mode, e.beta)
	go e.run(ctx)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	for {
		s, err := e.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.finish(ctx.Err())
				return
			}
			log.Printf("fusion stopped: source: %v", err)
			e.finish(fmt.Errorf("fusion: source: %w", err))
			return
		}
		dt := e.clk.Elapsed(s.Timestamp)
		if err := e.Update(s, dt); err != nil {
			log.Printf("fusion stopped: %v", err)
			e.finish(err)
			return
		}
	}
}

func (e *Engine) finish(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

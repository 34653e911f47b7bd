package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"dogspeed/internal/calibration"
	"dogspeed/internal/clock"
	"dogspeed/internal/config"
	"dogspeed/internal/env"
	"dogspeed/internal/fusion"
	"dogspeed/internal/input"
	"dogspeed/internal/led"
	"dogspeed/internal/metrics"
	"dogspeed/internal/orchestrator"
	"dogspeed/internal/replay"
	"dogspeed/internal/sensor"
	"dogspeed/internal/sim"
	"dogspeed/internal/state"
	"dogspeed/internal/udp"
	"dogspeed/internal/web"
)

var interfacesFn = net.Interfaces

type runtime struct {
	cfg      config.Config
	deviceID string

	metrics *metrics.Metrics
	shared  *state.Shared
	engine  *fusion.Engine
	mag     *magCorrection
	ticks   clock.TickSource
	running bool

	pixel    led.Pixel
	button   input.Button
	sender   *udp.Broadcaster
	recorder *replay.Writer
	env      env.Reader
	logs     *web.LogBuffer
}

func newRuntime(cfg config.Config, logs *web.LogBuffer) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	r := &runtime{
		cfg:      c,
		deviceID: c.DeviceID,
		metrics:  metrics.New(),
		shared:   state.New(),
		env:      env.NewSysfs(),
		logs:     logs,
	}
	if r.deviceID == "" {
		r.deviceID = hostDeviceID()
	}

	ticks, err := clock.Host()
	if err != nil {
		start := time.Now()
		ticks = clock.TickFunc(func() uint32 { return uint32(time.Since(start).Microseconds()) })
	}
	r.ticks = ticks

	src, err := r.openSource()
	if err != nil {
		r.Close()
		return nil, err
	}

	var clk *clock.Clock
	if c.Fusion.Clock == "explicit" {
		clk, err = clock.NewExplicit(clock.WrapDiff)
	} else {
		clk, err = clock.NewImplicit(nil)
	}
	if err != nil {
		r.Close()
		return nil, err
	}

	mode := fusion.ModeMARG
	if c.Fusion.Mode == "imu" {
		mode = fusion.ModeIMU
	}
	r.engine, err = fusion.New(fusion.Config{
		Mode:           mode,
		GyroErrorDeg:   c.Fusion.GyroErrorDeg,
		DeclinationDeg: c.Fusion.DeclinationDeg,
		Metrics:        r.metrics,
	}, src, clk)
	if err != nil {
		r.Close()
		return nil, err
	}

	// Peripherals degrade instead of failing start-up.
	r.pixel, err = led.Open(led.Config{Enable: c.LED.Enable, Chip: c.LED.Chip, Pins: [3]int{c.LED.Pins[0], c.LED.Pins[1], c.LED.Pins[2]}})
	if err != nil {
		log.Printf("led init failed: %v", err)
		r.pixel = &led.LogPixel{}
	}
	r.button, err = input.Open(input.Config{Enable: c.Button.Enable, Chip: c.Button.Chip, Pin: c.Button.Pin})
	if err != nil {
		log.Printf("button init failed: %v", err)
	}
	r.sender, err = udp.NewBroadcaster(c.Telemetry.Dest, c.Telemetry.MulticastTTL)
	if err != nil {
		log.Printf("telemetry sender init failed dest=%s err=%v", c.Telemetry.Dest, err)
	}
	return r, nil
}

func (r *runtime) openSource() (sensor.Source, error) {
	f := r.cfg.Fusion
	var src sensor.Source
	switch f.Source {
	case "replay":
		s, err := replay.Open(f.Replay.Path, f.Replay.Speed, f.Replay.Loop)
		if err != nil {
			return nil, err
		}
		log.Printf("replay source path=%s speed=%v loop=%v", f.Replay.Path, f.Replay.Speed, f.Replay.Loop)
		src = s
	default:
		var motion sim.Motion = sim.Sway{
			Period:         2 * time.Second,
			RollAmpDeg:     15,
			PitchAmpDeg:    8,
			YawAmpDeg:      20,
			InclinationDeg: 60,
		}
		if f.SimScript != "" {
			sc, err := sim.LoadScript(f.SimScript)
			if err != nil {
				return nil, err
			}
			log.Printf("sim script path=%s duration=%s", f.SimScript, sc.Duration())
			motion = sc
		}
		src = &sim.Source{
			Motion:   motion,
			Interval: f.SampleInterval,
			NoMag:    f.Mode == "imu",
		}
	}

	// Logs hold raw readings so a replay applies the calibration once.
	if f.Record.Enable {
		w, err := replay.CreateWriter(f.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		r.recorder = w
		log.Printf("recording samples path=%s", f.Record.Path)
		src = replay.Recorder(src, w, r.ticks)
	}

	cal, err := calibration.Load(f.CalibrationPath)
	if err != nil {
		log.Printf("calibration load failed path=%s err=%v; using defaults", f.CalibrationPath, err)
	}
	log.Printf("magnetometer calibration offset=%v scale=%v", cal.Offset, cal.Scale)
	r.mag = &magCorrection{cal: cal}
	return sensor.Corrected(src, r.mag), nil
}

// magCorrection is the calibration applied to the live magnetometer stream.
type magCorrection struct {
	mu  sync.RWMutex
	cal calibration.Calibration
}

func (m *magCorrection) Apply(v [3]float64) [3]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cal.Apply(v)
}

func (m *magCorrection) set(c calibration.Calibration) {
	m.mu.Lock()
	m.cal = c
	m.mu.Unlock()
}

func (r *runtime) newOrchestrator() (*orchestrator.Orchestrator, error) {
	k := r.cfg.Tasks
	o := orchestrator.New(r.engine, r.metrics)
	tasks := []orchestrator.Task{
		orchestrator.CompactTask(k.CompactInterval, orchestrator.NewCompactor(r.metrics)),
		orchestrator.DisplayTask(k.DisplayInterval, r.engine),
		orchestrator.LEDTask(k.LEDInterval, r.engine, r.shared, r.pixel),
		orchestrator.EnvTask(k.EnvInterval, r.env, r.shared),
		orchestrator.MotionTask(k.MotionInterval, k.MotionWindow, r.engine, r.shared),
	}
	if r.sender != nil {
		tasks = append(tasks, orchestrator.TransmitTask(orchestrator.TransmitConfig{
			Period:   r.cfg.Telemetry.Interval,
			DeviceID: r.deviceID,
			Version:  uint16(r.cfg.Telemetry.Version),
			Metrics:  r.metrics,
		}, r.engine, r.shared, r.ticks, r.sender))
	}
	if r.button != nil {
		tasks = append(tasks, orchestrator.InputTask(k.InputInterval, r.button, r.shared))
	}
	for _, t := range tasks {
		if err := o.Add(t); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (r *runtime) run(ctx context.Context) error {
	o, err := r.newOrchestrator()
	if err != nil {
		return err
	}
	if addr := r.cfg.Metrics.Listen; addr != "" {
		status := web.NewStatus(r.deviceID, r.cfg.Fusion.Mode, r.cfg.Telemetry.Dest, web.Sources{
			Orientation: r.engine.Orientation,
			FusionErr:   r.engine.Err,
			Telemetry:   r.shared.Snapshot,
			Tasks:       o.Tasks,
		})
		go func() {
			if err := web.Serve(ctx, addr, web.Handler(status, r.logs, r.metrics.Handler())); err != nil && ctx.Err() == nil {
				log.Printf("http server stopped: %v", err)
			}
		}()
	}
	r.running = true
	return o.Run(ctx)
}

// calibrate samples raw readings for d, then persists offset and scale. The
// engine keeps the midpoint bias for the rest of the process, so the stream
// stays uncorrected afterwards.
func (r *runtime) calibrate(ctx context.Context, d time.Duration) error {
	path := r.cfg.Fusion.CalibrationPath
	r.mag.set(calibration.Default())
	log.Printf("calibrating magnetometer for %s; rotate the collar through all orientations", d)
	deadline := time.Now().Add(d)
	tr, err := r.engine.Calibrate(ctx, func() bool { return !time.Now().Before(deadline) })
	if err != nil {
		return err
	}
	cal := tr.Calibration()
	if err := calibration.Save(path, cal); err != nil {
		return err
	}
	log.Printf("calibration saved path=%s samples=%d offset=%v scale=%v", path, tr.N, cal.Offset, cal.Scale)
	return nil
}

// safeState drives outputs to their idle state after an unrecoverable fault.
func (r *runtime) safeState() {
	if r.pixel != nil {
		_ = r.pixel.Set(led.Off)
	}
}

func (r *runtime) Close() {
	if r.pixel != nil {
		_ = r.pixel.Close()
	}
	if r.button != nil {
		_ = r.button.Close()
	}
	if r.sender != nil {
		_ = r.sender.Close()
	}
	if r.recorder != nil {
		// The fusion loop writes to the recorder until it sees cancellation.
		if r.running {
			select {
			case <-r.engine.Done():
			case <-time.After(time.Second):
			}
		}
		if err := r.recorder.Close(); err != nil {
			log.Printf("record close failed: %v", err)
		}
	}
}

// hostDeviceID hex-encodes the first non-loopback hardware address, which is
// exactly the 12 bytes the telemetry id holds.
func hostDeviceID() string {
	ifaces, err := interfacesFn()
	if err == nil {
		for _, ifc := range ifaces {
			if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) != 6 {
				continue
			}
			return hex.EncodeToString(ifc.HardwareAddr)
		}
	}
	return "dogspeed0000"
}

package main

import (
	"context"
	"errors"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dogspeed/internal/calibration"
	"dogspeed/internal/config"
	"dogspeed/internal/telemetry"
	"dogspeed/internal/udp"
	"dogspeed/internal/web"
)

func testConfig(t *testing.T, dest string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DeviceID = "testcollar"
	cfg.Fusion.Clock = "explicit"
	cfg.Fusion.SampleInterval = 2 * time.Millisecond
	cfg.Fusion.CalibrationPath = filepath.Join(t.TempDir(), "mag_cal.json")
	cfg.Telemetry.Dest = dest
	cfg.Telemetry.Interval = 10 * time.Millisecond
	return cfg
}

func TestHostDeviceID(t *testing.T) {
	prev := interfacesFn
	t.Cleanup(func() { interfacesFn = prev })

	interfacesFn = func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "lo", Flags: net.FlagLoopback, HardwareAddr: net.HardwareAddr{0, 0, 0, 0, 0, 0}},
			{Name: "wlan0", HardwareAddr: net.HardwareAddr{0xa4, 0xcf, 0x12, 0x01, 0x02, 0x03}},
		}, nil
	}
	if got := hostDeviceID(); got != "a4cf12010203" {
		t.Fatalf("hostDeviceID()=%q", got)
	}

	interfacesFn = func() ([]net.Interface, error) { return nil, errors.New("no netlink") }
	if got := hostDeviceID(); got != "dogspeed0000" || len(got) != telemetry.IDLen {
		t.Fatalf("fallback=%q", got)
	}
}

func TestNewRuntime_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:9")
	cfg.Fusion.Mode = "9dof"
	if _, err := newRuntime(cfg, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRuntime_StreamsTelemetry(t *testing.T) {
	l, err := udp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer l.Close()

	cfg := testConfig(t, l.Addr().String())
	cfg.Metrics.Listen = ""
	rt, err := newRuntime(cfg, web.NewLogBuffer(10))
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.run(ctx) }()

	rctx, rcancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer rcancel()
	buf := make([]byte, 256)
	n, _, err := l.Recv(rctx, buf)
	if err != nil {
		t.Fatalf("Recv() error: %v", err)
	}
	rec, err := telemetry.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if rec.ID() != "testcollar" || rec.Version != telemetry.Version1 {
		t.Fatalf("record=%+v", rec)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop")
	}
	if !rt.engine.Orientation().Valid {
		t.Fatalf("fusion never produced an orientation")
	}
}

func TestRuntime_CalibrateSavesFile(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:9")
	rt, err := newRuntime(cfg, nil)
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	defer rt.Close()

	if err := rt.calibrate(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("calibrate() error: %v", err)
	}
	cal, err := calibration.Load(cfg.Fusion.CalibrationPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	for i, s := range cal.Scale {
		if s <= 0 {
			t.Fatalf("scale[%d]=%v", i, s)
		}
	}
}

func TestRuntime_CalibrateIgnoresPreviousCalibration(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:9")
	prev := calibration.Calibration{Offset: [3]float64{10, -10, 10}, Scale: [3]float64{2, 2, 2}}
	if err := calibration.Save(cfg.Fusion.CalibrationPath, prev); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	rt, err := newRuntime(cfg, nil)
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	defer rt.Close()

	if err := rt.calibrate(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("calibrate() error: %v", err)
	}
	cal, err := calibration.Load(cfg.Fusion.CalibrationPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	// The simulated field is a unit vector, so a raw midpoint stays within
	// [-1, 1]. Sampling through the old correction lands near -/+10.
	for i, o := range cal.Offset {
		if math.Abs(o) > 1 {
			t.Fatalf("offset[%d]=%v measured through the previous calibration", i, o)
		}
	}
}

func TestRuntime_RecordedLogReplaysWithSameCorrection(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "samples.log")

	cfg := testConfig(t, "127.0.0.1:9")
	cfg.Fusion.CalibrationPath = filepath.Join(dir, "mag_cal.json")
	cfg.Fusion.Record.Enable = true
	cfg.Fusion.Record.Path = logPath
	if err := calibration.Save(cfg.Fusion.CalibrationPath, calibration.Calibration{
		Offset: [3]float64{0.3, -0.2, 0.1},
		Scale:  [3]float64{2, 1, 0.5},
	}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}

	live := &runtime{cfg: cfg}
	src, err := live.openSource()
	if err != nil {
		t.Fatalf("openSource() error: %v", err)
	}
	var want [][3]float64
	for i := 0; i < 20; i++ {
		smp, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		want = append(want, smp.Mag)
	}
	if err := live.recorder.Close(); err != nil {
		t.Fatalf("recorder Close() error: %v", err)
	}

	rcfg := cfg
	rcfg.Fusion.Record = config.RecordConfig{}
	rcfg.Fusion.Source = "replay"
	rcfg.Fusion.Replay = config.ReplayConfig{Path: logPath, Speed: 1000}
	if err := config.DefaultAndValidate(&rcfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}
	replayed := &runtime{cfg: rcfg}
	rsrc, err := replayed.openSource()
	if err != nil {
		t.Fatalf("openSource() error: %v", err)
	}
	for i, w := range want {
		smp, err := rsrc.Read(context.Background())
		if err != nil {
			t.Fatalf("Read(%d) error: %v", i, err)
		}
		for k := 0; k < 3; k++ {
			if math.Abs(smp.Mag[k]-w[k]) > 1e-12 {
				t.Fatalf("sample %d mag=%v want %v", i, smp.Mag, w)
			}
		}
	}
}

func TestRun_FallsBackToDefaultsOnBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collar.yaml")
	if err := os.WriteFile(path, []byte("fusion: {mode: nope}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// A short calibration run writes to the default ./mag_cal.json.
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	code := run(path, 50*time.Millisecond)
	if code != 0 {
		t.Fatalf("run()=%d want 0", code)
	}
	b, err := os.ReadFile(filepath.Join(dir, "mag_cal.json"))
	if err != nil {
		t.Fatalf("calibration not written: %v", err)
	}
	if !strings.Contains(string(b), "offset") {
		t.Fatalf("calibration=%s", b)
	}
}

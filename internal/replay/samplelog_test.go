package replay

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"dogspeed/internal/clock"
	"dogspeed/internal/sensor"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(d time.Duration) {
	fs.slept = append(fs.slept, d)
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

0, 0, 0, 1, 0.1, 0.2, 0.3
10000,0.5,0,0.8,0,0,0,20,-5,40
`)

	got, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	want := []sensor.Sample{
		{Accel: [3]float64{0, 0, 1}, Gyro: [3]float64{0.1, 0.2, 0.3}, HasTimestamp: true},
		{Accel: [3]float64{0.5, 0, 0.8}, Mag: [3]float64{20, -5, 40}, HasMag: true, Timestamp: 10000, HasTimestamp: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("samples=%+v\nwant %+v", got, want)
	}
}

func TestReaderReadAll_TimestampRange(t *testing.T) {
	got, err := NewReader(strings.NewReader("4294967295,0,0,1,0,0,0\n")).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if got[0].Timestamp != 4294967295 {
		t.Fatalf("timestamp=%d want 4294967295", got[0].Timestamp)
	}

	if _, err := NewReader(strings.NewReader("4294967306,0,0,1,0,0,0\n")).ReadAll(); err == nil {
		t.Fatalf("expected error for timestamp beyond 32 bits")
	}
}

func TestReaderReadAll_InvalidLine(t *testing.T) {
	for _, in := range []string{"not-a-valid-line\n", "0,1,2,3\n", "x,0,0,1,0,0,0\n", "0,0,0,1,0,0,zz\n"} {
		if _, err := NewReader(strings.NewReader(in)).ReadAll(); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestSource_RespectsTimingAndSpeed(t *testing.T) {
	samples := []sensor.Sample{
		{Timestamp: 1000},
		{Timestamp: 21000},
		{Timestamp: 61000},
	}
	fs := &fakeSleeper{}
	src, err := NewSource(samples, 2.0, false, fs)
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	ctx := context.Background()
	for i := range samples {
		s, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read(%d) error: %v", i, err)
		}
		if !s.HasTimestamp || s.Timestamp != samples[i].Timestamp {
			t.Fatalf("sample %d = %+v", i, s)
		}
	}
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v want EOF", err)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if !reflect.DeepEqual(fs.slept, want) {
		t.Fatalf("slept=%v want %v", fs.slept, want)
	}
}

func TestSource_LoopKeepsTimestampsIncreasing(t *testing.T) {
	samples := []sensor.Sample{{Timestamp: 100}, {Timestamp: 200}}
	src, err := NewSource(samples, 1, true, &fakeSleeper{})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	clk, err := clock.NewExplicit(clock.WrapDiff)
	if err != nil {
		t.Fatalf("NewExplicit() error: %v", err)
	}
	var ts []uint32
	for i := 0; i < 5; i++ {
		s, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		ts = append(ts, s.Timestamp)
		if dt := clk.Elapsed(s.Timestamp); i > 0 && dt != 0.0001 {
			t.Fatalf("dt=%v at %d want 0.0001", dt, i)
		}
	}
	if !reflect.DeepEqual(ts, []uint32{100, 200, 300, 400, 500}) {
		t.Fatalf("timestamps=%v", ts)
	}
}

func TestSource_InvalidArgs(t *testing.T) {
	if _, err := NewSource([]sensor.Sample{{}}, 0, false, nil); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if _, err := NewSource(nil, 1, false, nil); err == nil {
		t.Fatalf("expected error for no samples")
	}
}

func TestRecordReplay_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	in := []sensor.Sample{
		{Accel: [3]float64{0, 0, 1}, Gyro: [3]float64{0.01, 0, -0.02}},
		{Accel: [3]float64{0.1, 0.2, 0.97}, Mag: [3]float64{22.5, -3, 41}, HasMag: true},
	}
	next := 0
	upstream := sensor.SourceFunc(func(ctx context.Context) (sensor.Sample, error) {
		if next >= len(in) {
			return sensor.Sample{}, io.EOF
		}
		s := in[next]
		next++
		return s, nil
	})
	tick := uint32(0)
	rec := Recorder(upstream, w, clock.TickFunc(func() uint32 { tick += 5000; return tick }))
	for range in {
		s, err := rec.Read(context.Background())
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		if s.HasTimestamp {
			t.Fatalf("recorder must not stamp the passed-through sample")
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	src, err := Open(path, 1, false)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	src.sleeper = &fakeSleeper{}
	for i := range in {
		got, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		want := in[i]
		want.Timestamp = uint32(5000 * (i + 1))
		want.HasTimestamp = true
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("sample %d=%+v want %+v", i, got, want)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.Contains(string(b), "10000,0.1,0.2,0.97,0,0,0,22.5,-3,41\n") {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}

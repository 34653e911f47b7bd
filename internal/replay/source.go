package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"dogspeed/internal/clock"
	"dogspeed/internal/sensor"
)

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Source replays logged samples with their relative timing, as a
// sensor.Source with explicit timestamps.
//
// speed: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
// When looping, timestamps keep increasing across passes so an explicit
// clock never sees a jump backwards.
type Source struct {
	samples []sensor.Sample
	speed   float64
	loop    bool
	sleeper Sleeper

	mu       sync.Mutex
	next     int
	offset   uint32
	lastTS   uint32
	haveLast bool
}

func NewSource(samples []sensor.Sample, speed float64, loop bool, sleeper Sleeper) (*Source, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("replay: speed must be > 0")
	}
	if len(samples) == 0 {
		return nil, errors.New("replay: no samples")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	return &Source{samples: samples, speed: speed, loop: loop, sleeper: sleeper}, nil
}

// Open reads the log at path into a Source.
func Open(path string, speed float64, loop bool) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	samples, err := NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	return NewSource(samples, speed, loop, nil)
}

// loopGap is the spacing between the last sample of one pass and the first
// of the next.
func (s *Source) loopGap() uint32 {
	if len(s.samples) > 1 {
		return s.samples[1].Timestamp - s.samples[0].Timestamp
	}
	return 10_000
}

func (s *Source) Read(ctx context.Context) (sensor.Sample, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Sample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.samples) {
		if !s.loop {
			return sensor.Sample{}, io.EOF
		}
		first, last := s.samples[0].Timestamp, s.samples[len(s.samples)-1].Timestamp
		s.offset += last - first + s.loopGap()
		s.next = 0
	}

	smp := s.samples[s.next]
	s.next++
	smp.Timestamp += s.offset
	smp.HasTimestamp = true

	if s.haveLast {
		us := smp.Timestamp - s.lastTS
		wait := time.Duration(float64(us) * float64(time.Microsecond) / s.speed)
		if wait > 0 {
			s.sleeper.Sleep(wait)
		}
	}
	s.lastTS, s.haveLast = smp.Timestamp, true
	if err := ctx.Err(); err != nil {
		return sensor.Sample{}, err
	}
	return smp, nil
}

// Recorder passes samples through from src, appending each to w. Samples
// without a timestamp are stamped from ticks for the log only.
func Recorder(src sensor.Source, w *Writer, ticks clock.TickSource) sensor.Source {
	return sensor.SourceFunc(func(ctx context.Context) (sensor.Sample, error) {
		smp, err := src.Read(ctx)
		if err != nil {
			return smp, err
		}
		logged := smp
		if !logged.HasTimestamp && ticks != nil {
			logged.Timestamp = ticks.Ticks()
		}
		if err := w.WriteSample(logged); err != nil {
			return smp, fmt.Errorf("replay: record: %w", err)
		}
		return smp, nil
	})
}

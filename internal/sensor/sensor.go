package sensor

import "context"

// Sample is one reading cycle's inputs.
//
// Accel has direction-only significance (any scale). Gyro is in rad/s.
// Mag is only meaningful when HasMag is set, Timestamp only when HasTimestamp
// is set (monotonic microseconds, wrapping at 2^32).
type Sample struct {
	Accel [3]float64
	Gyro  [3]float64
	Mag   [3]float64

	HasMag bool

	Timestamp    uint32
	HasTimestamp bool
}

// Source yields samples. Read blocks until the next reading is available and
// is the fusion loop's per-cycle suspension point.
type Source interface {
	Read(ctx context.Context) (Sample, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context) (Sample, error)

func (f SourceFunc) Read(ctx context.Context) (Sample, error) { return f(ctx) }

// MagCorrector maps a raw magnetometer vector into a corrected one.
type MagCorrector interface {
	Apply(m [3]float64) [3]float64
}

type corrected struct {
	src Source
	cor MagCorrector
}

// Corrected wraps src so every magnetometer reading passes through cor.
// Samples without a magnetometer reading are returned untouched.
func Corrected(src Source, cor MagCorrector) Source {
	if cor == nil {
		return src
	}
	return &corrected{src: src, cor: cor}
}

func (c *corrected) Read(ctx context.Context) (Sample, error) {
	s, err := c.src.Read(ctx)
	if err != nil {
		return s, err
	}
	if s.HasMag {
		s.Mag = c.cor.Apply(s.Mag)
	}
	return s, nil
}

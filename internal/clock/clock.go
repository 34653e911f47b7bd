package clock

import "errors"

// Bootstrap is returned by the first Elapsed call, before any previous
// timestamp exists. It is small but non-zero so the first integration step
// is not degenerate.
const Bootstrap = 0.0001

var (
	ErrNoDiff      = errors.New("clock: explicit mode requires a diff function")
	ErrNoMonotonic = errors.New("clock: no monotonic tick source on this host")
)

// DiffFunc returns the elapsed seconds from prev to cur.
type DiffFunc func(cur, prev uint32) float64

// TickSource returns a monotonic microsecond counter that may wrap.
type TickSource interface {
	Ticks() uint32
}

// TickFunc adapts a plain function to TickSource.
type TickFunc func() uint32

func (f TickFunc) Ticks() uint32 { return f() }

// WrapDiff interprets both values as microsecond ticks of a free-running
// 32-bit counter. Unsigned subtraction keeps the result correct across one
// wrap of the counter.
func WrapDiff(cur, prev uint32) float64 {
	return float64(cur-prev) / 1e6
}

// Host returns the host's monotonic microsecond counter.
func Host() (TickSource, error) { return newMonotonic() }

// Clock turns successive timestamps into elapsed seconds.
//
// Not safe for concurrent use; the fusion loop owns it.
type Clock struct {
	explicit bool
	diff     DiffFunc
	ticks    TickSource

	prev     uint32
	havePrev bool
}

// NewExplicit builds a clock whose caller supplies every timestamp.
func NewExplicit(diff DiffFunc) (*Clock, error) {
	if diff == nil {
		return nil, ErrNoDiff
	}
	return &Clock{explicit: true, diff: diff}, nil
}

// NewImplicit builds a clock that reads its own tick source. A nil source
// selects the host's monotonic clock, which fails with ErrNoMonotonic where
// none is available.
func NewImplicit(ticks TickSource) (*Clock, error) {
	if ticks == nil {
		m, err := newMonotonic()
		if err != nil {
			return nil, err
		}
		ticks = m
	}
	return &Clock{ticks: ticks, diff: WrapDiff}, nil
}

// Explicit reports whether the caller must supply timestamps.
func (c *Clock) Explicit() bool { return c.explicit }

// Elapsed returns seconds since the previous call. ts is used in explicit
// mode and ignored in implicit mode.
func (c *Clock) Elapsed(ts uint32) float64 {
	if !c.explicit {
		ts = c.ticks.Ticks()
	}
	if !c.havePrev {
		c.prev = ts
		c.havePrev = true
		return Bootstrap
	}
	dt := c.diff(ts, c.prev)
	c.prev = ts
	return dt
}

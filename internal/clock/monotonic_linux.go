//go:build linux

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type monotonic struct{}

func newMonotonic() (TickSource, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMonotonic, err)
	}
	return monotonic{}, nil
}

// Ticks truncates CLOCK_MONOTONIC to a wrapping 32-bit microsecond counter.
func (monotonic) Ticks() uint32 {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	us := uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1000
	return uint32(us)
}

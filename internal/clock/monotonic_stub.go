//go:build !linux

package clock

func newMonotonic() (TickSource, error) { return nil, ErrNoMonotonic }

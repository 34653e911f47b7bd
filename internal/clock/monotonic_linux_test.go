//go:build linux

package clock

import (
	"testing"
	"time"
)

func TestImplicit_HostMonotonic(t *testing.T) {
	c, err := NewImplicit(nil)
	if err != nil {
		t.Fatalf("NewImplicit: %v", err)
	}
	if got := c.Elapsed(0); got != Bootstrap {
		t.Fatalf("first=%v want %v", got, Bootstrap)
	}
	time.Sleep(5 * time.Millisecond)
	dt := c.Elapsed(0)
	if dt < 0.004 || dt > 1 {
		t.Fatalf("dt=%v want ~0.005", dt)
	}
}

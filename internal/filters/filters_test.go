package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverage(t *testing.T) {
	var f Average
	assert.Equal(t, 0.0, f.Value())
	assert.InDelta(t, 2, f.Update(2), 1e-12)
	assert.InDelta(t, 3, f.Update(4), 1e-12)
	assert.InDelta(t, 4, f.Update(6), 1e-12)
	assert.InDelta(t, 4, f.Value(), 1e-12)
}

func TestMovingAverage(t *testing.T) {
	f := NewMovingAverage(4)
	assert.Equal(t, 4, f.Window())
	assert.InDelta(t, 8, f.Update(8), 1e-12)
	assert.InDelta(t, 6, f.Update(0), 1e-12)
	assert.InDelta(t, 4, f.Update(0), 1e-12)
	assert.InDelta(t, 2, f.Update(0), 1e-12)
	assert.InDelta(t, 0, f.Update(0), 1e-12)
	assert.InDelta(t, 1, f.Update(4), 1e-12)
}

func TestMovingAverage_WindowFloor(t *testing.T) {
	f := NewMovingAverage(0)
	assert.Equal(t, 1, f.Window())
	f.Update(3)
	assert.InDelta(t, 7, f.Update(7), 1e-12)
}

func TestLowPass(t *testing.T) {
	f := NewLowPass(0.5)
	assert.InDelta(t, 10, f.Update(10), 1e-12)
	assert.InDelta(t, 5, f.Update(0), 1e-12)
	assert.InDelta(t, 2.5, f.Update(0), 1e-12)

	frozen := NewLowPass(1)
	frozen.Update(3)
	assert.InDelta(t, 3, frozen.Update(100), 1e-12)
}

// Package filters holds small scalar smoothing filters for sensor-derived
// values.
package filters

// Average is the running mean of every value seen.
type Average struct {
	k   int
	val float64
}

func (f *Average) Update(v float64) float64 {
	f.k++
	alpha := float64(f.k-1) / float64(f.k)
	f.val = alpha*f.val + (1-alpha)*v
	return f.val
}

func (f *Average) Value() float64 { return f.val }

// MovingAverage is the mean of the last Window values. The first value fills
// the whole window.
type MovingAverage struct {
	data []float64
	next int
	full bool
	val  float64
}

// NewMovingAverage returns a filter over window samples (minimum 1).
func NewMovingAverage(window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	return &MovingAverage{data: make([]float64, window)}
}

func (f *MovingAverage) Window() int { return len(f.data) }

func (f *MovingAverage) Update(v float64) float64 {
	n := float64(len(f.data))
	if !f.full {
		for i := range f.data {
			f.data[i] = v
		}
		f.full = true
		f.val = v
		return f.val
	}
	old := f.data[f.next]
	f.data[f.next] = v
	f.next = (f.next + 1) % len(f.data)
	f.val += (v - old) / n
	return f.val
}

func (f *MovingAverage) Value() float64 { return f.val }

// LowPass is a first-order IIR filter: y = alpha*y + (1-alpha)*x. The first
// value seeds y.
type LowPass struct {
	alpha  float64
	val    float64
	seeded bool
}

func NewLowPass(alpha float64) *LowPass {
	return &LowPass{alpha: alpha}
}

func (f *LowPass) Update(v float64) float64 {
	if !f.seeded {
		f.val = v
		f.seeded = true
	}
	f.val = f.alpha*f.val + (1-f.alpha)*v
	return f.val
}

func (f *LowPass) Value() float64 { return f.val }

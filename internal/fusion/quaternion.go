package fusion

import "math"

// Quaternion is a rotation (W, X, Y, Z). The engine keeps it unit-norm.
type Quaternion struct {
	W, X, Y, Z float64
}

func Identity() Quaternion { return Quaternion{W: 1} }

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Pitch in degrees, bounded to [-90, 90].
func (q Quaternion) Pitch() float64 {
	v := 2 * (q.X*q.Z - q.W*q.Y)
	// Rounding can push |v| just past 1.
	v = math.Max(-1, math.Min(1, v))
	return degrees(-math.Asin(v))
}

// Roll in degrees, in [-180, 180].
func (q Quaternion) Roll() float64 {
	return degrees(math.Atan2(2*(q.W*q.X+q.Y*q.Z), q.W*q.W-q.X*q.X-q.Y*q.Y+q.Z*q.Z))
}

// Yaw in degrees, in [-180, 180].
func (q Quaternion) Yaw() float64 {
	return degrees(math.Atan2(2*(q.X*q.Y+q.W*q.Z), q.W*q.W+q.X*q.X-q.Y*q.Y-q.Z*q.Z))
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// wrap360 maps any angle into [0, 360).
func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

package fusion

import (
	"fmt"
	"math"
)

// Gradient-descent (Madgwick) orientation steps. Both return the next
// quaternion, already renormalised, or ErrSensorFault without touching q.

func stepIMU(q Quaternion, beta float64, g, a [3]float64, dt float64) (Quaternion, error) {
	q1, q2, q3, q4 := q.W, q.X, q.Y, q.Z
	ax, ay, az := a[0], a[1], a[2]

	norm := math.Sqrt(ax*ax + ay*ay + az*az)
	if norm == 0 {
		return q, fmt.Errorf("%w: zero accelerometer magnitude", ErrSensorFault)
	}
	ax, ay, az = ax/norm, ay/norm, az/norm

	_2q1, _2q2, _2q3, _2q4 := 2*q1, 2*q2, 2*q3, 2*q4
	_4q1, _4q2, _4q3 := 4*q1, 4*q2, 4*q3
	_8q2, _8q3 := 8*q2, 8*q3
	q1q1, q2q2, q3q3, q4q4 := q1*q1, q2*q2, q3*q3, q4*q4

	s1 := _4q1*q3q3 + _2q3*ax + _4q1*q2q2 - _2q2*ay
	s2 := _4q2*q4q4 - _2q4*ax + 4*q1q1*q2 - _2q1*ay - _4q2 + _8q2*q2q2 + _8q2*q3q3 + _4q2*az
	s3 := 4*q1q1*q3 + _2q1*ax + _4q3*q4q4 - _2q4*ay - _4q3 + _8q3*q2q2 + _8q3*q3q3 + _4q3*az
	s4 := 4*q2q2*q4 - _2q2*ax + 4*q3q3*q4 - _2q3*ay
	s1, s2, s3, s4 = unitGradient(s1, s2, s3, s4)

	return integrate(q, beta, g, [4]float64{s1, s2, s3, s4}, dt), nil
}

func stepMARG(q Quaternion, beta float64, g, a, m [3]float64, dt float64) (Quaternion, error) {
	q1, q2, q3, q4 := q.W, q.X, q.Y, q.Z
	ax, ay, az := a[0], a[1], a[2]
	mx, my, mz := m[0], m[1], m[2]

	norm := math.Sqrt(ax*ax + ay*ay + az*az)
	if norm == 0 {
		return q, fmt.Errorf("%w: zero accelerometer magnitude", ErrSensorFault)
	}
	ax, ay, az = ax/norm, ay/norm, az/norm

	norm = math.Sqrt(mx*mx + my*my + mz*mz)
	if norm == 0 {
		return q, fmt.Errorf("%w: zero magnetometer magnitude", ErrSensorFault)
	}
	mx, my, mz = mx/norm, my/norm, mz/norm

	_2q1, _2q2, _2q3, _2q4 := 2*q1, 2*q2, 2*q3, 2*q4
	_2q1q3, _2q3q4 := 2*q1*q3, 2*q3*q4
	q1q1, q1q2, q1q3, q1q4 := q1*q1, q1*q2, q1*q3, q1*q4
	q2q2, q2q3, q2q4 := q2*q2, q2*q3, q2*q4
	q3q3, q3q4 := q3*q3, q3*q4
	q4q4 := q4 * q4

	// Reference direction of the geomagnetic field in the earth frame.
	_2q1mx, _2q1my, _2q1mz := 2*q1*mx, 2*q1*my, 2*q1*mz
	_2q2mx := 2 * q2 * mx
	hx := mx*q1q1 - _2q1my*q4 + _2q1mz*q3 + mx*q2q2 + _2q2*my*q3 + _2q2*mz*q4 - mx*q3q3 - mx*q4q4
	hy := _2q1mx*q4 + my*q1q1 - _2q1mz*q2 + _2q2mx*q3 - my*q2q2 + my*q3q3 + _2q3*mz*q4 - my*q4q4
	_2bx := math.Sqrt(hx*hx + hy*hy)
	_2bz := -_2q1mx*q3 + _2q1my*q2 + mz*q1q1 + _2q2mx*q4 - mz*q2q2 + _2q3*my*q4 - mz*q3q3 + mz*q4q4
	_4bx, _4bz := 2*_2bx, 2*_2bz

	// Residuals: predicted minus measured gravity and field.
	fax := 2*q2q4 - _2q1q3 - ax
	fay := 2*q1q2 + _2q3q4 - ay
	faz := 1 - 2*q2q2 - 2*q3q3 - az
	fmx := _2bx*(0.5-q3q3-q4q4) + _2bz*(q2q4-q1q3) - mx
	fmy := _2bx*(q2q3-q1q4) + _2bz*(q1q2+q3q4) - my
	fmz := _2bx*(q1q3+q2q4) + _2bz*(0.5-q2q2-q3q3) - mz

	s1 := -_2q3*fax + _2q2*fay - _2bz*q3*fmx + (-_2bx*q4+_2bz*q2)*fmy + _2bx*q3*fmz
	s2 := _2q4*fax + _2q1*fay - 4*q2*faz + _2bz*q4*fmx + (_2bx*q3+_2bz*q1)*fmy + (_2bx*q4-_4bz*q2)*fmz
	s3 := -_2q1*fax + _2q4*fay - 4*q3*faz + (-_4bx*q3-_2bz*q1)*fmx + (_2bx*q2+_2bz*q4)*fmy + (_2bx*q1-_4bz*q3)*fmz
	s4 := _2q2*fax + _2q3*fay + (-_4bx*q4+_2bz*q2)*fmx + (-_2bx*q1+_2bz*q3)*fmy + _2bx*q2*fmz
	s1, s2, s3, s4 = unitGradient(s1, s2, s3, s4)

	return integrate(q, beta, g, [4]float64{s1, s2, s3, s4}, dt), nil
}

// unitGradient normalises s. A zero gradient means the estimate already
// agrees with the measurement; it stays zero so only the gyro term applies.
func unitGradient(s1, s2, s3, s4 float64) (float64, float64, float64, float64) {
	n := math.Sqrt(s1*s1 + s2*s2 + s3*s3 + s4*s4)
	if n == 0 || math.IsNaN(n) {
		return 0, 0, 0, 0
	}
	return s1 / n, s2 / n, s3 / n, s4 / n
}

func integrate(q Quaternion, beta float64, g [3]float64, s [4]float64, dt float64) Quaternion {
	q1, q2, q3, q4 := q.W, q.X, q.Y, q.Z
	gx, gy, gz := g[0], g[1], g[2]

	// Rate of change from the gyro, minus the corrective step.
	qDot1 := 0.5*(-q2*gx-q3*gy-q4*gz) - beta*s[0]
	qDot2 := 0.5*(q1*gx+q3*gz-q4*gy) - beta*s[1]
	qDot3 := 0.5*(q1*gy-q2*gz+q4*gx) - beta*s[2]
	qDot4 := 0.5*(q1*gz+q2*gy-q3*gx) - beta*s[3]

	q1 += qDot1 * dt
	q2 += qDot2 * dt
	q3 += qDot3 * dt
	q4 += qDot4 * dt

	n := math.Sqrt(q1*q1 + q2*q2 + q3*q3 + q4*q4)
	return Quaternion{W: q1 / n, X: q2 / n, Y: q3 / n, Z: q4 / n}
}

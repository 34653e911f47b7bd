// Package telemetry encodes and decodes the collar's fixed-layout binary
// telemetry record.
//
// Layout (little-endian):
//
//	offset  size  field
//	0       12    device id (ASCII, zero padded)
//	12      2     version (u16)
//	14      2     reserved, zero
//	16      4     timestamp, microseconds (u32, wraps)
//	20      ...   payload, f32 values
//
// Version 1 payload: battery V, battery A, temperature C, motion average,
// then accel xyz, gyro xyz, pitch, roll. Version 2 carries only the eight
// IMU values.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	IDLen     = 12
	HeaderLen = 20

	Version1 uint16 = 1
	Version2 uint16 = 2

	envFloats = 4
	imuFloats = 8
)

var (
	ErrUnknownVersion = errors.New("telemetry: unknown version")
	ErrShortRecord    = errors.New("telemetry: record length mismatch")
)

type Env struct {
	BatteryVolts float32
	BatteryAmps  float32
	TemperatureC float32
	MotionAvg    float32
}

type IMU struct {
	Accel [3]float32
	Gyro  [3]float32
	Pitch float32
	Roll  float32
}

type Record struct {
	DeviceID  [IDLen]byte
	Version   uint16
	Timestamp uint32

	// Env is only carried by version 1.
	Env Env
	IMU IMU
}

// DeviceID packs s into the fixed id field, truncating or zero padding.
func DeviceID(s string) [IDLen]byte {
	var id [IDLen]byte
	copy(id[:], s)
	return id
}

// ID returns the device id without trailing zero padding.
func (r Record) ID() string {
	n := IDLen
	for n > 0 && r.DeviceID[n-1] == 0 {
		n--
	}
	return string(r.DeviceID[:n])
}

// Size returns the encoded length of a record of the given version.
func Size(version uint16) (int, error) {
	switch version {
	case Version1:
		return HeaderLen + 4*(envFloats+imuFloats), nil
	case Version2:
		return HeaderLen + 4*imuFloats, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}

func Encode(r Record) ([]byte, error) {
	n, err := Size(r.Version)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	copy(buf[:IDLen], r.DeviceID[:])
	binary.LittleEndian.PutUint16(buf[12:14], r.Version)
	binary.LittleEndian.PutUint32(buf[16:20], r.Timestamp)

	off := HeaderLen
	put := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	if r.Version == Version1 {
		put(r.Env.BatteryVolts)
		put(r.Env.BatteryAmps)
		put(r.Env.TemperatureC)
		put(r.Env.MotionAvg)
	}
	for _, v := range r.IMU.Accel {
		put(v)
	}
	for _, v := range r.IMU.Gyro {
		put(v)
	}
	put(r.IMU.Pitch)
	put(r.IMU.Roll)
	return buf, nil
}

func Decode(b []byte) (Record, error) {
	var r Record
	if len(b) < HeaderLen {
		return r, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortRecord, len(b), HeaderLen)
	}
	r.Version = binary.LittleEndian.Uint16(b[12:14])
	n, err := Size(r.Version)
	if err != nil {
		return Record{}, err
	}
	if len(b) != n {
		return Record{}, fmt.Errorf("%w: %d bytes, version %d needs %d", ErrShortRecord, len(b), r.Version, n)
	}
	copy(r.DeviceID[:], b[:IDLen])
	r.Timestamp = binary.LittleEndian.Uint32(b[16:20])

	off := HeaderLen
	get := func() float32 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		return v
	}
	if r.Version == Version1 {
		r.Env.BatteryVolts = get()
		r.Env.BatteryAmps = get()
		r.Env.TemperatureC = get()
		r.Env.MotionAvg = get()
	}
	for i := range r.IMU.Accel {
		r.IMU.Accel[i] = get()
	}
	for i := range r.IMU.Gyro {
		r.IMU.Gyro[i] = get()
	}
	r.IMU.Pitch = get()
	r.IMU.Roll = get()
	return r, nil
}

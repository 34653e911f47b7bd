package main

import (
	"context"
	"fmt"
	"log"
	"net"

	"dogspeed/internal/telemetry"
)

type receiver interface {
	Recv(ctx context.Context, buf []byte) (int, net.Addr, error)
}

// collect decodes datagrams until ctx ends. Undecodable datagrams are logged
// and skipped.
func collect(ctx context.Context, r receiver, emit func(telemetry.Record)) error {
	buf := make([]byte, 10240)
	for {
		n, src, err := r.Recv(ctx, buf)
		if err != nil {
			return err
		}
		rec, err := telemetry.Decode(buf[:n])
		if err != nil {
			log.Printf("drop datagram from=%v len=%d err=%v", src, n, err)
			continue
		}
		emit(rec)
	}
}

func format(r telemetry.Record) string {
	s := fmt.Sprintf("id=%s v=%d t=%d accel=%.3f,%.3f,%.3f gyro=%.3f,%.3f,%.3f pitch=%.1f roll=%.1f",
		r.ID(), r.Version, r.Timestamp,
		r.IMU.Accel[0], r.IMU.Accel[1], r.IMU.Accel[2],
		r.IMU.Gyro[0], r.IMU.Gyro[1], r.IMU.Gyro[2],
		r.IMU.Pitch, r.IMU.Roll)
	if r.Version == telemetry.Version1 {
		s += fmt.Sprintf(" batt=%.2fV/%.2fA temp=%.1fC motion=%.2f",
			r.Env.BatteryVolts, r.Env.BatteryAmps, r.Env.TemperatureC, r.Env.MotionAvg)
	}
	return s
}

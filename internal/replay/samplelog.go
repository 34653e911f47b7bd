package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dogspeed/internal/sensor"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Data lines are: <t_us>,ax,ay,az,gx,gy,gz[,mx,my,mz]
//   where t_us is the sample's microsecond tick (wraps at 2^32) and gyro is
//   in rad/s. Lines with 10 fields carry a magnetometer reading.

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]sensor.Sample, error) {
	s := bufio.NewScanner(rr.r)

	out := make([]sensor.Sample, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		smp, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		out = append(out, smp)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseLine(line string) (sensor.Sample, error) {
	var smp sensor.Sample
	fields := strings.Split(line, ",")
	if len(fields) != 7 && len(fields) != 10 {
		return smp, fmt.Errorf("want 7 or 10 fields, got %d: %q", len(fields), line)
	}
	// Timestamps are the sensor's 32-bit microsecond counter; larger values
	// are rejected rather than wrapped.
	ts, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return smp, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}
	smp.Timestamp = uint32(ts)
	smp.HasTimestamp = true

	vals := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return smp, fmt.Errorf("invalid value %q: %w", f, err)
		}
		vals[i] = v
	}
	copy(smp.Accel[:], vals[0:3])
	copy(smp.Gyro[:], vals[3:6])
	if len(vals) == 9 {
		copy(smp.Mag[:], vals[6:9])
		smp.HasMag = true
	}
	return smp, nil
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("# t_us,ax,ay,az,gx,gy,gz[,mx,my,mz]\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw}, nil
}

func (ww *Writer) WriteSample(s sensor.Sample) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(s.Timestamp), 10))
	for _, v := range s.Accel {
		b.WriteByte(',')
		b.WriteString(f(v))
	}
	for _, v := range s.Gyro {
		b.WriteByte(',')
		b.WriteString(f(v))
	}
	if s.HasMag {
		for _, v := range s.Mag {
			b.WriteByte(',')
			b.WriteString(f(v))
		}
	}
	b.WriteByte('\n')
	_, err := ww.w.WriteString(b.String())
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

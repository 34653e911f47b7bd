package led

import (
	"fmt"
	"log"
	"math"
	"sync"

	"dogspeed/internal/fusion"
)

// Color is an RGB triple. The GPIO pixel is 3-bit: any non-zero channel
// drives its line high.
type Color struct {
	R, G, B uint8
}

// Off is the safe state.
var Off = Color{}

// Pixel is a single status LED.
type Pixel interface {
	Set(c Color) error
	Close() error
}

type Config struct {
	Enable bool
	Chip   string
	// Pins are the line offsets for red, green and blue.
	Pins [3]int
}

var openLinesFn = openLines

// Open returns the GPIO pixel when enabled and a logging pixel otherwise.
func Open(cfg Config) (Pixel, error) {
	if !cfg.Enable {
		return &LogPixel{}, nil
	}
	lines, err := openLinesFn(cfg.Chip, cfg.Pins)
	if err != nil {
		return nil, err
	}
	log.Printf("led gpio chip=%s pins=%v", cfg.Chip, cfg.Pins)
	return &gpioPixel{lines: lines}, nil
}

// outputLines is the subset of *gpiocdev.Lines the pixel drives.
type outputLines interface {
	SetValues(values []int) error
	Close() error
}

type gpioPixel struct {
	mu    sync.Mutex
	lines outputLines
}

func bit(v uint8) int {
	if v > 0 {
		return 1
	}
	return 0
}

func (p *gpioPixel) Set(c Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lines == nil {
		return fmt.Errorf("led: pixel closed")
	}
	return p.lines.SetValues([]int{bit(c.R), bit(c.G), bit(c.B)})
}

func (p *gpioPixel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lines == nil {
		return nil
	}
	_ = p.lines.SetValues([]int{0, 0, 0})
	err := p.lines.Close()
	p.lines = nil
	return err
}

// LogPixel stands in for hardware. It logs colour changes only.
type LogPixel struct {
	mu   sync.Mutex
	last Color
	set  bool
}

func (p *LogPixel) Set(c Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set && c == p.last {
		return nil
	}
	p.last, p.set = c, true
	log.Printf("led r=%d g=%d b=%d", c.R, c.G, c.B)
	return nil
}

func (p *LogPixel) Color() Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *LogPixel) Close() error { return p.Set(Off) }

// Palettes selectable with the button.
const (
	PaletteGyro = iota
	PaletteTilt
	PaletteHeading

	Palettes
)

// Render picks the colour for o under palette p. An invalid orientation
// renders Off.
func Render(p int, o fusion.Orientation) Color {
	if !o.Valid {
		return Off
	}
	switch p {
	case PaletteTilt:
		return TiltColor(o.PitchDeg, o.RollDeg)
	case PaletteHeading:
		return HeadingColor(o.HeadingDeg)
	default:
		return GyroColor(o.Sample.Gyro)
	}
}

func channel(f float64) uint8 {
	return uint8(int(math.Abs(f)*8) % 255)
}

// GyroColor maps angular rate per axis straight to r, g, b.
func GyroColor(g [3]float64) Color {
	return Color{R: channel(g[0]), G: channel(g[1]), B: channel(g[2])}
}

// TiltColor is green when level, red with roll, blue with pitch.
func TiltColor(pitchDeg, rollDeg float64) Color {
	r := math.Min(math.Abs(rollDeg)/90, 1)
	b := math.Min(math.Abs(pitchDeg)/90, 1)
	g := 1 - math.Max(r, b)
	return Color{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255)}
}

// HeadingColor splits the compass into thirds: red around north, green
// around 120 and blue around 240.
func HeadingColor(headingDeg float64) Color {
	switch sector := int(math.Mod(headingDeg+60, 360)) / 120; sector {
	case 0:
		return Color{R: 255}
	case 1:
		return Color{G: 255}
	default:
		return Color{B: 255}
	}
}

// Package input reads the collar's push button.
package input

import (
	"fmt"
	"log"
	"sync"
)

type Config struct {
	Enable bool
	Chip   string
	Pin    int
}

// Button reports the current (debounced by polling) button level.
type Button interface {
	Pressed() (bool, error)
	Close() error
}

// inputLine is the subset of *gpiocdev.Line the button reads.
type inputLine interface {
	Value() (int, error)
	Close() error
}

var openLineFn = openLine

// Open requests the button line. It returns nil, nil when disabled.
func Open(cfg Config) (Button, error) {
	if !cfg.Enable {
		return nil, nil
	}
	line, err := openLineFn(cfg.Chip, cfg.Pin)
	if err != nil {
		return nil, err
	}
	log.Printf("button gpio chip=%s pin=%d", cfg.Chip, cfg.Pin)
	return &gpioButton{line: line}, nil
}

type gpioButton struct {
	mu   sync.Mutex
	line inputLine
}

func (b *gpioButton) Pressed() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.line == nil {
		return false, fmt.Errorf("input: button closed")
	}
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("input: read button: %w", err)
	}
	return v != 0, nil
}

func (b *gpioButton) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.line == nil {
		return nil
	}
	err := b.line.Close()
	b.line = nil
	return err
}

// Edge turns a polled level into press events.
type Edge struct {
	prev bool
}

// Rising reports true once per released-to-pressed transition.
func (e *Edge) Rising(pressed bool) bool {
	fired := pressed && !e.prev
	e.prev = pressed
	return fired
}

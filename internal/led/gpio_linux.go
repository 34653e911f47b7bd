//go:build linux

package led

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

func openLines(chip string, pins [3]int) (outputLines, error) {
	for _, p := range pins {
		if p < 0 {
			return nil, fmt.Errorf("led: invalid gpio pin %d", p)
		}
	}
	lines, err := gpiocdev.RequestLines(chip, pins[:], gpiocdev.AsOutput(0, 0, 0), gpiocdev.WithConsumer("dogspeed-led"))
	if err != nil {
		return nil, fmt.Errorf("led: request lines %v on %s: %w", pins, chip, err)
	}
	return lines, nil
}

//go:build linux

package input

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// openLine requests pin as a pulled-up, active-low input: the button shorts
// the line to ground and reads as 1 while held.
func openLine(chip string, pin int) (inputLine, error) {
	if pin < 0 {
		return nil, fmt.Errorf("input: invalid gpio pin %d", pin)
	}
	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
		gpiocdev.WithConsumer("dogspeed-button"))
	if err != nil {
		return nil, fmt.Errorf("input: request line %d on %s: %w", pin, chip, err)
	}
	return line, nil
}

//go:build !linux

package input

import "fmt"

func openLine(chip string, pin int) (inputLine, error) {
	return nil, fmt.Errorf("input: gpio unsupported on this platform")
}

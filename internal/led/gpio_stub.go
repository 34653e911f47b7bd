//go:build !linux

package led

import "fmt"

func openLines(chip string, pins [3]int) (outputLines, error) {
	return nil, fmt.Errorf("led: gpio unsupported on this platform")
}

//go:build !linux || (!arm && !arm64)

package gpio

import (
	"fmt"

	"github.com/cjeanneret/QuadDrive/internal/debug"
)

// CdevDriver is unavailable on this platform.
type CdevDriver struct{ MockDriver }

// NewCdevDriver always fails outside Linux on ARM.
func NewCdevDriver(log *debug.Logger) (*CdevDriver, error) {
	return nil, fmt.Errorf("gpio: cdev backend unsupported on this platform")
}

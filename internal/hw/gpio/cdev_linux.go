//go:build linux && (arm || arm64)

package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cjeanneret/QuadDrive/internal/debug"
	"github.com/warthog618/go-gpiocdev"
)

const cdevConsumer = "quaddrive"

// CdevDriver drives GPIOs through the Linux GPIO character device. It is
// the backend for the Raspberry Pi 5, whose header GPIOs sit behind the RP1
// and cannot be reached through /dev/gpiomem.
type CdevDriver struct {
	log  *debug.Logger
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

// NewCdevDriver finds the gpiochip exposing the header lines ("GPIO<n>").
func NewCdevDriver(log *debug.Logger) (*CdevDriver, error) {
	log.Info("Initializing real GPIO driver (gpiocdev)")

	// Pi 5 kernels expose the header on gpiochip0 or gpiochip4 depending on version.
	candidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			candidates = append(candidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, path := range candidates {
		chip, err := gpiocdev.NewChip(path, gpiocdev.WithConsumer(cdevConsumer))
		if err != nil {
			continue
		}
		if _, err := chip.FindLine("GPIO2"); err != nil {
			_ = chip.Close()
			continue
		}
		log.Verbose("Using %s for header GPIOs", path)
		return &CdevDriver{log: log, chip: chip, lines: make(map[int]*gpiocdev.Line)}, nil
	}
	return nil, errors.New("failed to open GPIO: no gpiochip exposes header lines")
}

func (c *CdevDriver) offset(pin int) (int, error) {
	return c.chip.FindLine(fmt.Sprintf("GPIO%d", pin))
}

func (c *CdevDriver) SetupPin(pin int, mode PinMode) error {
	c.log.GPIO("SetupPin", pin, mode)

	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[pin]; ok {
		switch mode {
		case Input:
			return l.Reconfigure(gpiocdev.AsInput)
		case Output:
			return l.Reconfigure(gpiocdev.AsOutput(0))
		}
	}

	offset, err := c.offset(pin)
	if err != nil {
		return fmt.Errorf("gpio line GPIO%d: %w", pin, err)
	}
	var opt gpiocdev.LineReqOption
	switch mode {
	case Input:
		opt = gpiocdev.AsInput
	case Output:
		opt = gpiocdev.AsOutput(0)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	l, err := c.chip.RequestLine(offset, opt)
	if err != nil {
		return fmt.Errorf("request GPIO%d: %w", pin, err)
	}
	c.lines[pin] = l
	return nil
}

func (c *CdevDriver) line(pin int, mode PinMode) (*gpiocdev.Line, error) {
	c.mu.Lock()
	l, ok := c.lines[pin]
	c.mu.Unlock()
	if ok {
		return l, nil
	}
	if err := c.SetupPin(pin, mode); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[pin], nil
}

func (c *CdevDriver) WritePin(pin int, level Level) error {
	c.log.GPIO("WritePin", pin, level)

	l, err := c.line(pin, Output)
	if err != nil {
		return err
	}
	v := 0
	if level == High {
		v = 1
	}
	return l.SetValue(v)
}

func (c *CdevDriver) ReadPin(pin int) (Level, error) {
	c.log.GPIO("ReadPin", pin, nil)

	l, err := c.line(pin, Input)
	if err != nil {
		return Low, err
	}
	v, err := l.Value()
	if err != nil {
		return Low, err
	}
	return Level(v != 0), nil
}

// Close drives requested outputs low and releases every line and the chip.
func (c *CdevDriver) Close() error {
	c.log.Trace("GPIO Close (cdev driver)")

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for pin, l := range c.lines {
		_ = l.SetValue(0)
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release GPIO%d: %w", pin, err))
		}
	}
	c.lines = map[int]*gpiocdev.Line{}
	if c.chip != nil {
		errs = append(errs, c.chip.Close())
		c.chip = nil
	}
	return errors.Join(errs...)
}

package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/QuadDrive/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Backend names accepted by NewDriver.
const (
	BackendMock = "mock"
	BackendRPio = "rpio"
	BackendCdev = "cdev"
)

// Driver defines the abstract interface for controlling GPIOs.
// Pin numbers are BCM GPIO numbers.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver for the chosen backend:
//   - "mock": MockDriver, for development on a PC or tests
//   - "rpio": go-rpio over /dev/gpiomem (Raspberry Pi 1-4)
//   - "cdev": Linux GPIO character device (Raspberry Pi 5)
func NewDriver(backend string, log *debug.Logger) (Driver, error) {
	switch backend {
	case BackendMock:
		log.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(log), nil
	case BackendRPio, "":
		d, err := NewRPiRealDriver(log)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendCdev:
		d, err := NewCdevDriver(log)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}

// MockDriver is a test implementation that logs actions and remembers
// the last level written to each pin.
type MockDriver struct {
	log *debug.Logger

	mu     sync.Mutex
	levels map[int]Level
}

// NewMockDriver creates a MockDriver. log may be nil.
func NewMockDriver(log *debug.Logger) *MockDriver {
	return &MockDriver{log: log, levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.log.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.log.GPIO("WritePin", pin, level)
	m.mu.Lock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.log.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	m.log.Trace("GPIO Close (mock)")
	return nil
}

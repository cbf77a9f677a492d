package drive

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cjeanneret/QuadDrive/internal/debug"
	"github.com/cjeanneret/QuadDrive/internal/hw/gpio"
	"github.com/cjeanneret/QuadDrive/internal/hw/pca9685"
)

var (
	ErrInit         = errors.New("drive: init failed")
	ErrInvalidMotor = errors.New("drive: invalid motor index")
)

// Direction of wheel rotation.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// PWM is the part of the PWM controller the drive needs.
// *pca9685.Device implements it.
type PWM interface {
	SetFrequency(hz float64) error
	SetDutyCycle(channel int, percent float64) error
	SetLevel(channel int, high bool) error
}

// Config is fixed at startup.
type Config struct {
	Bus         string  // I2C adapter, used by Open only
	Address     uint16  // PCA9685 address, used by Open only
	FrequencyHz float64 // PWM frequency
	Wiring      Wiring
	MaxSpeed    float64 // duty cycle ceiling in percent, (0, 100]
	Debug       bool    // log every register write
}

// DefaultConfig returns the stock chassis configuration.
func DefaultConfig() Config {
	return Config{
		Bus:         pca9685.DefaultBus,
		Address:     pca9685.DefaultAddress,
		FrequencyHz: 50,
		Wiring:      DefaultWiring(),
		MaxSpeed:    100,
	}
}

// Controller turns a left/right throttle pair into motor commands.
//
// It keeps no state between calls: every Run re-asserts speed and direction
// on all four motors. It is not safe for concurrent use; drive it from one
// goroutine.
type Controller struct {
	pwm      PWM
	pins     gpio.Driver
	wiring   Wiring
	maxSpeed float64
	log      *debug.Logger
	closer   io.Closer
}

// Open opens the PCA9685 described by cfg and builds a Controller on it.
// Close releases the bus.
func Open(cfg Config, pins gpio.Driver, log *debug.Logger) (*Controller, error) {
	if err := cfg.Wiring.Validate(); err != nil {
		return nil, err
	}
	dev, err := pca9685.Open(cfg.Bus, cfg.Address, pca9685.Options{Debug: cfg.Debug, Log: log})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	c, err := New(dev, pins, cfg, log)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	c.closer = dev
	return c, nil
}

// New builds a Controller on an initialized PWM controller. It sets the PWM
// frequency and configures direct direction pins as outputs.
func New(pwm PWM, pins gpio.Driver, cfg Config, log *debug.Logger) (*Controller, error) {
	if err := cfg.Wiring.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxSpeed <= 0 || cfg.MaxSpeed > 100 || math.IsNaN(cfg.MaxSpeed) {
		return nil, fmt.Errorf("drive: max speed %v out of range (0-100]", cfg.MaxSpeed)
	}
	direct := cfg.Wiring.DirectPins()
	if len(direct) > 0 && pins == nil {
		return nil, fmt.Errorf("%w: wiring uses gpio pins %v but no gpio driver given", ErrInit, direct)
	}

	if err := pwm.SetFrequency(cfg.FrequencyHz); err != nil {
		return nil, fmt.Errorf("%w: set frequency: %w", ErrInit, err)
	}
	for _, pin := range direct {
		if err := pins.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("%w: gpio %d: %w", ErrInit, pin, err)
		}
	}

	c := &Controller{
		pwm:      pwm,
		pins:     pins,
		wiring:   cfg.Wiring,
		maxSpeed: cfg.MaxSpeed,
		log:      log,
	}
	log.Info("Quad motor controller ready (max speed %v%%, %v Hz)", cfg.MaxSpeed, cfg.FrequencyHz)
	return c, nil
}

// MaxSpeed returns the duty cycle ceiling in percent.
func (c *Controller) MaxSpeed() float64 { return c.maxSpeed }

// Wiring returns the motor wiring.
func (c *Controller) Wiring() Wiring { return c.wiring }

func (c *Controller) motor(i int) (Motor, error) {
	if i < 0 || i >= NumMotors {
		return Motor{}, fmt.Errorf("%w: %d", ErrInvalidMotor, i)
	}
	return c.wiring[i], nil
}

// RunMotor sets one motor's speed (percent, clamped to [0, MaxSpeed]) and
// direction. The duty cycle is written first, then In1, then In2.
func (c *Controller) RunMotor(i int, dir Direction, speed float64) error {
	m, err := c.motor(i)
	if err != nil {
		return err
	}
	speed = clamp(speed, 0, c.maxSpeed)
	in1, in2 := m.Forward.Levels(dir)
	c.log.Motor(m.Name, dir.String(), speed)

	switch o := m.Output.(type) {
	case ChannelPair:
		if err := c.pwm.SetDutyCycle(o.PWM, speed); err != nil {
			return fmt.Errorf("motor %s: %w", m.Name, err)
		}
		if err := c.pwm.SetLevel(o.In1, bool(in1)); err != nil {
			return fmt.Errorf("motor %s: %w", m.Name, err)
		}
		if err := c.pwm.SetLevel(o.In2, bool(in2)); err != nil {
			return fmt.Errorf("motor %s: %w", m.Name, err)
		}
	case DirectPinPair:
		if err := c.pwm.SetDutyCycle(o.PWM, speed); err != nil {
			return fmt.Errorf("motor %s: %w", m.Name, err)
		}
		if err := c.pins.WritePin(o.Pin1, in1); err != nil {
			return fmt.Errorf("motor %s: %w", m.Name, err)
		}
		if err := c.pins.WritePin(o.Pin2, in2); err != nil {
			return fmt.Errorf("motor %s: %w", m.Name, err)
		}
	}
	return nil
}

// StopMotor removes power from one motor. Direction outputs are left as
// they are.
func (c *Controller) StopMotor(i int) error {
	m, err := c.motor(i)
	if err != nil {
		return err
	}
	if err := c.pwm.SetDutyCycle(m.Output.pwmChannel(), 0); err != nil {
		return fmt.Errorf("motor %s: %w", m.Name, err)
	}
	return nil
}

// Run applies a two-sided throttle, each side in [-1, 1] (clamped).
// Negative is backward. Left motors are written before right motors. The
// first failing write aborts the call; motors already written keep their
// new state.
func (c *Controller) Run(left, right float64) error {
	left = clamp(left, -1, 1)
	right = clamp(right, -1, 1)
	c.log.Throttle(left, right)

	leftDir, leftSpeed := c.side(left)
	rightDir, rightSpeed := c.side(right)

	if err := c.RunMotor(FrontLeft, leftDir, leftSpeed); err != nil {
		return err
	}
	if err := c.RunMotor(RearLeft, leftDir, leftSpeed); err != nil {
		return err
	}
	if err := c.RunMotor(FrontRight, rightDir, rightSpeed); err != nil {
		return err
	}
	return c.RunMotor(RearRight, rightDir, rightSpeed)
}

// side maps a throttle in [-1, 1] to a direction and a percentage of MaxSpeed.
func (c *Controller) side(throttle float64) (Direction, float64) {
	dir := Forward
	if throttle < 0 {
		dir = Backward
	}
	return dir, math.Abs(throttle) * c.maxSpeed
}

// Shutdown stops all four motors in index order. A failing motor is logged
// and the remaining motors are still stopped.
func (c *Controller) Shutdown() {
	for i := 0; i < NumMotors; i++ {
		if err := c.StopMotor(i); err != nil {
			c.log.Warn("shutdown: %v", err)
		}
	}
	c.log.Info("Quad motor controller shut down")
}

// Close releases the PWM controller if Open created it. It does not stop
// the motors; call Shutdown first.
func (c *Controller) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, lo), hi)
}

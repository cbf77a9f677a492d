package drive

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/QuadDrive/internal/hw/gpio"
	"github.com/cjeanneret/QuadDrive/internal/hw/pca9685"
)

// Motor positions. The index is the motor number used by RunMotor/StopMotor.
const (
	FrontLeft  = 0
	FrontRight = 1
	RearLeft   = 2
	RearRight  = 3

	NumMotors = 4
)

var ErrInvalidWiring = errors.New("drive: invalid wiring")

// Output describes where one motor's signals are wired. It is either a
// ChannelPair or a DirectPinPair.
type Output interface {
	pwmChannel() int
}

// ChannelPair drives an H-bridge entirely from the PWM controller: one
// channel for speed and two channels used as binary direction outputs.
type ChannelPair struct {
	PWM int
	In1 int
	In2 int
}

func (c ChannelPair) pwmChannel() int { return c.PWM }

// DirectPinPair takes speed from a PWM controller channel and direction
// from two GPIO pins (BCM numbering).
type DirectPinPair struct {
	PWM  int
	Pin1 int
	Pin2 int
}

func (d DirectPinPair) pwmChannel() int { return d.PWM }

// Polarity is the pair of levels on In1/In2 that spins a motor forward.
// Backward is the inverse. Motors are mounted mirrored, so this differs
// between motors and has to be given per motor.
type Polarity struct {
	In1 gpio.Level
	In2 gpio.Level
}

// Levels returns the In1/In2 levels for dir.
func (p Polarity) Levels(dir Direction) (gpio.Level, gpio.Level) {
	if dir == Backward {
		return !p.In1, !p.In2
	}
	return p.In1, p.In2
}

// Motor is one wheel's wiring.
type Motor struct {
	Name    string
	Output  Output
	Forward Polarity
}

// Wiring holds the four motors, indexed by position.
type Wiring [NumMotors]Motor

// DefaultWiring is the stock chassis: motors A-C fully on the PCA9685, motor
// D with direction on GPIO 25/24.
func DefaultWiring() Wiring {
	return Wiring{
		FrontLeft: {
			Name:    "A front-left",
			Output:  ChannelPair{PWM: 0, In1: 2, In2: 1},
			Forward: Polarity{In1: gpio.Low, In2: gpio.High},
		},
		FrontRight: {
			Name:    "B front-right",
			Output:  ChannelPair{PWM: 5, In1: 3, In2: 4},
			Forward: Polarity{In1: gpio.High, In2: gpio.Low},
		},
		RearLeft: {
			Name:    "C rear-left",
			Output:  ChannelPair{PWM: 6, In1: 8, In2: 7},
			Forward: Polarity{In1: gpio.High, In2: gpio.Low},
		},
		RearRight: {
			Name:    "D rear-right",
			Output:  DirectPinPair{PWM: 11, Pin1: 25, Pin2: 24},
			Forward: Polarity{In1: gpio.Low, In2: gpio.High},
		},
	}
}

// Validate checks channel ranges and that no PWM channel or GPIO pin is
// claimed twice, either by two motors or by two roles of the same motor.
func (w Wiring) Validate() error {
	channels := make(map[int]string)
	pins := make(map[int]string)

	claimChannel := func(owner string, ch int) error {
		if ch < 0 || ch >= pca9685.NumChannels {
			return fmt.Errorf("%w: %s channel %d: %w", ErrInvalidWiring, owner, ch, pca9685.ErrInvalidChannel)
		}
		if prev, ok := channels[ch]; ok {
			return fmt.Errorf("%w: channel %d used by both %s and %s", ErrInvalidWiring, ch, prev, owner)
		}
		channels[ch] = owner
		return nil
	}
	claimPin := func(owner string, pin int) error {
		if pin < 0 {
			return fmt.Errorf("%w: %s gpio %d is negative", ErrInvalidWiring, owner, pin)
		}
		if prev, ok := pins[pin]; ok {
			return fmt.Errorf("%w: gpio %d used by both %s and %s", ErrInvalidWiring, pin, prev, owner)
		}
		pins[pin] = owner
		return nil
	}

	for i, m := range w {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("motor %d", i)
		}
		if m.Forward.In1 == m.Forward.In2 {
			return fmt.Errorf("%w: %s forward polarity must drive In1 and In2 to opposite levels", ErrInvalidWiring, name)
		}
		switch o := m.Output.(type) {
		case ChannelPair:
			for _, c := range []struct {
				role string
				ch   int
			}{{"pwm", o.PWM}, {"in1", o.In1}, {"in2", o.In2}} {
				if err := claimChannel(name+" "+c.role, c.ch); err != nil {
					return err
				}
			}
		case DirectPinPair:
			if err := claimChannel(name+" pwm", o.PWM); err != nil {
				return err
			}
			if err := claimPin(name+" pin1", o.Pin1); err != nil {
				return err
			}
			if err := claimPin(name+" pin2", o.Pin2); err != nil {
				return err
			}
		case nil:
			return fmt.Errorf("%w: %s has no output", ErrInvalidWiring, name)
		default:
			return fmt.Errorf("%w: %s has unsupported output %T", ErrInvalidWiring, name, o)
		}
	}
	return nil
}

// DirectPins lists the GPIO pins used by DirectPinPair motors.
func (w Wiring) DirectPins() []int {
	var out []int
	for _, m := range w {
		if o, ok := m.Output.(DirectPinPair); ok {
			out = append(out, o.Pin1, o.Pin2)
		}
	}
	return out
}

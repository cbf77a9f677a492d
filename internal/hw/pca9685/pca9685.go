package pca9685

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/cjeanneret/QuadDrive/internal/debug"
	"github.com/cjeanneret/QuadDrive/internal/hw/i2c"
)

var sleep = time.Sleep

// Driver for the NXP PCA9685 16-channel, 12-bit PWM controller.
//
// Every register access is a single blocking I2C transfer. There is no
// batching and no retry.

const (
	DefaultAddress = 0x40
	DefaultBus     = "/dev/i2c-1"

	NumChannels = 16
	MaxTick     = 4095 // last of the 4096 ticks in one PWM period

	regMode1    = 0x00
	regLED0OnL  = 0x06
	regPrescale = 0xFE

	mode1Sleep   = 0x10
	mode1Restart = 0x80

	oscillatorHz = 25_000_000
	ticksPerRun  = 4096

	prescaleMin = 3
	prescaleMax = 255

	// Oscillator needs 500us after leaving sleep.
	wakeDelay = 5 * time.Millisecond
)

var (
	ErrInvalidChannel   = errors.New("pca9685: invalid channel")
	ErrInvalidTick      = errors.New("pca9685: tick out of range")
	ErrInvalidFrequency = errors.New("pca9685: invalid frequency")
)

// BusError reports a failed transfer with the chip.
type BusError struct {
	Op  string // "open", "read" or "write"
	Reg byte
	Err error
}

func (e *BusError) Error() string {
	if e.Op == "open" {
		return fmt.Sprintf("pca9685: open bus: %v", e.Err)
	}
	return fmt.Sprintf("pca9685: %s reg 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// RegisterIO is the register-level view of one device on an I2C bus.
// *i2c.Dev and *i2c.MockDev implement it.
type RegisterIO interface {
	Addr() uint16
	ReadRegU8(reg byte) (byte, error)
	WriteReg(reg, value byte) error
}

// Options tune driver behaviour.
type Options struct {
	// Debug logs every register access (trace level) and every channel update.
	Debug bool
	Log   *debug.Logger
}

// Device is an initialized PCA9685.
type Device struct {
	dev    RegisterIO
	closer io.Closer
	debug  bool
	log    *debug.Logger
}

// Open opens the I2C adapter at busPath and initializes the chip at addr.
// The returned Device owns the bus; Close releases it.
func Open(busPath string, addr uint16, opts Options) (*Device, error) {
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, &BusError{Op: "open", Err: err}
	}
	d, err := New(bus.Dev(addr), opts)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	d.closer = bus
	return d, nil
}

// New initializes the chip behind dev: MODE1 is reset to 0x00 (oscillator
// running, auto-increment off, all-call off). The caller keeps ownership of dev.
func New(dev RegisterIO, opts Options) (*Device, error) {
	if dev == nil {
		return nil, &BusError{Op: "open", Err: errors.New("device is nil")}
	}
	d := &Device{dev: dev, debug: opts.Debug, log: opts.Log}
	if d.debug {
		d.log.Info("Resetting PCA9685 at 0x%02X", dev.Addr())
	}
	if err := d.write(regMode1, 0x00); err != nil {
		return nil, err
	}
	return d, nil
}

// Addr returns the 7-bit I2C address of the chip.
func (d *Device) Addr() uint16 { return d.dev.Addr() }

// Close releases the bus if the Device opened it.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

func (d *Device) write(reg, value byte) error {
	if err := d.dev.WriteReg(reg, value); err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	if d.debug {
		d.log.I2C("write", d.dev.Addr(), reg, value)
	}
	return nil
}

func (d *Device) read(reg byte) (byte, error) {
	v, err := d.dev.ReadRegU8(reg)
	if err != nil {
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}
	if d.debug {
		d.log.I2C("read", d.dev.Addr(), reg, v)
	}
	return v, nil
}

// Prescale returns the prescaler value for hz: round(25MHz / 4096 / hz) - 1.
// The result is not clamped to the range the chip accepts.
func Prescale(hz float64) int {
	return int(math.Round(oscillatorHz/ticksPerRun/hz)) - 1
}

// SetFrequency sets the PWM frequency of all channels.
//
// The prescaler can only be written while the oscillator is off, so the chip
// is put to sleep first, the old mode restored afterwards, and the outputs
// restarted once the oscillator is stable.
func (d *Device) SetFrequency(hz float64) error {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("%w: %v Hz", ErrInvalidFrequency, hz)
	}
	prescale := Prescale(hz)
	if d.debug {
		d.log.Info("Setting PWM frequency to %v Hz", hz)
		d.log.Verbose("Estimated pre-scale: %d", prescale)
	}
	if prescale < prescaleMin || prescale > prescaleMax {
		clamped := min(max(prescale, prescaleMin), prescaleMax)
		d.log.Warn("pca9685: prescale %d for %v Hz out of range, using %d", prescale, hz, clamped)
		prescale = clamped
	}

	oldMode, err := d.read(regMode1)
	if err != nil {
		return err
	}
	sleepMode := (oldMode &^ mode1Restart) | mode1Sleep
	if err := d.write(regMode1, sleepMode); err != nil {
		return err
	}
	if err := d.write(regPrescale, byte(prescale)); err != nil {
		return err
	}
	if err := d.write(regMode1, oldMode); err != nil {
		return err
	}
	sleep(wakeDelay)
	return d.write(regMode1, oldMode|mode1Restart)
}

// SetChannel sets the tick at which a channel turns on and the tick at
// which it turns off within each 4096-tick period.
func (d *Device) SetChannel(channel, on, off int) error {
	if channel < 0 || channel >= NumChannels {
		return fmt.Errorf("%w: %d (want 0-%d)", ErrInvalidChannel, channel, NumChannels-1)
	}
	if on < 0 || on > MaxTick || off < 0 || off > MaxTick {
		return fmt.Errorf("%w: on=%d off=%d (want 0-%d)", ErrInvalidTick, on, off, MaxTick)
	}
	base := byte(regLED0OnL + 4*channel)
	regs := [4]byte{
		byte(on & 0xFF),
		byte(on >> 8),
		byte(off & 0xFF),
		byte(off >> 8),
	}
	for i, v := range regs {
		if err := d.write(base+byte(i), v); err != nil {
			return err
		}
	}
	if d.debug {
		d.log.Trace("channel: %d  LED_ON: %d LED_OFF: %d", channel, on, off)
	}
	return nil
}

// DutyTicks converts a duty cycle percentage to an off-tick:
// floor(percent * 4096 / 100), limited to [0, MaxTick].
func DutyTicks(percent float64) int {
	if math.IsNaN(percent) || percent <= 0 {
		return 0
	}
	ticks := math.Floor(percent * ticksPerRun / 100)
	if ticks > MaxTick {
		return MaxTick
	}
	return int(ticks)
}

// SetDutyCycle drives a channel high for percent (0-100) of each period.
// Range checking of percent is the caller's job; the tick count is only
// kept within what the chip can encode.
func (d *Device) SetDutyCycle(channel int, percent float64) error {
	return d.SetChannel(channel, 0, DutyTicks(percent))
}

// SetLevel uses a channel as a binary output: high is always-on, low always-off.
func (d *Device) SetLevel(channel int, high bool) error {
	if high {
		return d.SetChannel(channel, 0, MaxTick)
	}
	return d.SetChannel(channel, 0, 0)
}

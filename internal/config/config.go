package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/QuadDrive/internal/hw/gpio"
	"github.com/cjeanneret/QuadDrive/internal/logic/drive"
)

// PCA9685Config describes the PWM controller.
type PCA9685Config struct {
	Bus          string  `yaml:"bus"`           // I2C adapter, e.g. /dev/i2c-1
	Address      int     `yaml:"address"`       // 7-bit I2C address (default 0x40)
	PWMFrequency float64 `yaml:"pwm_frequency"` // Hz (default 50)
	Debug        bool    `yaml:"debug"`         // trace every register write (needs debug_level 4)
}

// MotorConfig describes one motor. Unset fields keep the stock chassis wiring.
// Setting in1_gpio/in2_gpio moves direction control from PCA9685 channels to GPIO pins.
type MotorConfig struct {
	PWM        *int   `yaml:"pwm"`         // PCA9685 channel for speed
	In1        *int   `yaml:"in1"`         // PCA9685 channel for direction input 1
	In2        *int   `yaml:"in2"`         // PCA9685 channel for direction input 2
	In1GPIO    *int   `yaml:"in1_gpio"`    // GPIO (BCM) for direction input 1
	In2GPIO    *int   `yaml:"in2_gpio"`    // GPIO (BCM) for direction input 2
	ForwardIn1 string `yaml:"forward_in1"` // "low" or "high": In1 level when driving forward
}

// MotorsConfig holds the four wheels.
type MotorsConfig struct {
	FrontLeft  MotorConfig `yaml:"front_left"`  // motor A
	FrontRight MotorConfig `yaml:"front_right"` // motor B
	RearLeft   MotorConfig `yaml:"rear_left"`   // motor C
	RearRight  MotorConfig `yaml:"rear_right"`  // motor D
}

// DriveConfig contains the control loop parameters.
type DriveConfig struct {
	MaxSpeed     float64 `yaml:"max_speed"`     // duty cycle ceiling in percent (0-100]
	SteeringZero float64 `yaml:"steering_zero"` // steering dead zone for throttle/steering input
	LoopHz       float64 `yaml:"loop_hz"`       // control cycles per second
	DeadmanMs    int     `yaml:"deadman_ms"`    // stop if no command for this long; negative disables
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	GPIOBackend string `yaml:"gpio_backend"` // "rpio" (Pi 1-4), "cdev" (Pi 5) or "mock"
	Mock        bool   `yaml:"mock"`         // mock GPIO and I2C (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	PCA9685  PCA9685Config  `yaml:"pca9685"`
	Motors   MotorsConfig   `yaml:"motors"`
	Drive    DriveConfig    `yaml:"drive"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only a .yaml file directly inside a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if cfg.PCA9685.Bus == "" {
		cfg.PCA9685.Bus = "/dev/i2c-1"
	}
	if cfg.PCA9685.Address == 0 {
		cfg.PCA9685.Address = 0x40
	}
	if cfg.PCA9685.Address < 0x03 || cfg.PCA9685.Address > 0x77 {
		return nil, fmt.Errorf("pca9685.address must be between 0x03 and 0x77, got 0x%X", cfg.PCA9685.Address)
	}
	if cfg.PCA9685.PWMFrequency == 0 {
		cfg.PCA9685.PWMFrequency = 50
	}
	if cfg.PCA9685.PWMFrequency < 0 {
		return nil, fmt.Errorf("pca9685.pwm_frequency must be > 0, got %.2f", cfg.PCA9685.PWMFrequency)
	}

	if cfg.Drive.MaxSpeed == 0 {
		cfg.Drive.MaxSpeed = 100
	}
	if cfg.Drive.MaxSpeed < 0 || cfg.Drive.MaxSpeed > 100 {
		return nil, fmt.Errorf("drive.max_speed must be between 0 and 100, got %.2f", cfg.Drive.MaxSpeed)
	}
	if cfg.Drive.SteeringZero == 0 {
		cfg.Drive.SteeringZero = drive.DefaultSteeringZero
	}
	if cfg.Drive.SteeringZero < 0 || cfg.Drive.SteeringZero >= 1 {
		return nil, fmt.Errorf("drive.steering_zero must be in [0, 1), got %.3f", cfg.Drive.SteeringZero)
	}
	if cfg.Drive.LoopHz <= 0 {
		cfg.Drive.LoopHz = 20
	}
	if cfg.Drive.DeadmanMs == 0 {
		cfg.Drive.DeadmanMs = 500
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	if cfg.Defaults.GPIOBackend == "" {
		cfg.Defaults.GPIOBackend = gpio.BackendRPio
	}
	switch cfg.Defaults.GPIOBackend {
	case gpio.BackendRPio, gpio.BackendCdev, gpio.BackendMock:
	default:
		return nil, fmt.Errorf("defaults.gpio_backend must be rpio, cdev or mock, got %q", cfg.Defaults.GPIOBackend)
	}

	if _, err := cfg.Wiring(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Wiring builds the motor wiring: stock chassis values overlaid with the
// motors section.
func (c *Config) Wiring() (drive.Wiring, error) {
	w := drive.DefaultWiring()
	sections := [drive.NumMotors]struct {
		key string
		mc  MotorConfig
	}{
		drive.FrontLeft:  {"front_left", c.Motors.FrontLeft},
		drive.FrontRight: {"front_right", c.Motors.FrontRight},
		drive.RearLeft:   {"rear_left", c.Motors.RearLeft},
		drive.RearRight:  {"rear_right", c.Motors.RearRight},
	}
	for i, s := range sections {
		m, err := applyMotor(w[i], s.mc)
		if err != nil {
			return drive.Wiring{}, fmt.Errorf("motors.%s: %w", s.key, err)
		}
		w[i] = m
	}
	if err := w.Validate(); err != nil {
		return drive.Wiring{}, err
	}
	return w, nil
}

func applyMotor(m drive.Motor, mc MotorConfig) (drive.Motor, error) {
	var pwm, in1, in2 int
	switch o := m.Output.(type) {
	case drive.ChannelPair:
		pwm, in1, in2 = o.PWM, o.In1, o.In2
	case drive.DirectPinPair:
		pwm, in1, in2 = o.PWM, o.Pin1, o.Pin2
	}
	_, direct := m.Output.(drive.DirectPinPair)

	if mc.PWM != nil {
		pwm = *mc.PWM
	}
	switch {
	case mc.In1GPIO != nil || mc.In2GPIO != nil:
		if mc.In1 != nil || mc.In2 != nil {
			return m, fmt.Errorf("set either in1/in2 or in1_gpio/in2_gpio, not both")
		}
		if mc.In1GPIO == nil || mc.In2GPIO == nil {
			return m, fmt.Errorf("in1_gpio and in2_gpio must both be set")
		}
		m.Output = drive.DirectPinPair{PWM: pwm, Pin1: *mc.In1GPIO, Pin2: *mc.In2GPIO}
	case mc.In1 != nil || mc.In2 != nil:
		if direct && (mc.In1 == nil || mc.In2 == nil) {
			return m, fmt.Errorf("in1 and in2 must both be set to move direction control to the pca9685")
		}
		if mc.In1 != nil {
			in1 = *mc.In1
		}
		if mc.In2 != nil {
			in2 = *mc.In2
		}
		m.Output = drive.ChannelPair{PWM: pwm, In1: in1, In2: in2}
	default:
		if direct {
			m.Output = drive.DirectPinPair{PWM: pwm, Pin1: in1, Pin2: in2}
		} else {
			m.Output = drive.ChannelPair{PWM: pwm, In1: in1, In2: in2}
		}
	}

	switch strings.ToLower(mc.ForwardIn1) {
	case "":
	case "low":
		m.Forward = drive.Polarity{In1: gpio.Low, In2: gpio.High}
	case "high":
		m.Forward = drive.Polarity{In1: gpio.High, In2: gpio.Low}
	default:
		return m, fmt.Errorf("forward_in1 must be low or high, got %q", mc.ForwardIn1)
	}
	return m, nil
}

// DriveConfig returns the motor controller configuration.
func (c *Config) DriveConfig() (drive.Config, error) {
	w, err := c.Wiring()
	if err != nil {
		return drive.Config{}, err
	}
	return drive.Config{
		Bus:         c.PCA9685.Bus,
		Address:     uint16(c.PCA9685.Address),
		FrequencyHz: c.PCA9685.PWMFrequency,
		Wiring:      w,
		MaxSpeed:    c.Drive.MaxSpeed,
		Debug:       c.PCA9685.Debug,
	}, nil
}

// LoopInterval returns the duration of one control cycle.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Drive.LoopHz)
}

// Deadman returns how long a command stays valid; 0 means forever.
func (c *Config) Deadman() time.Duration {
	if c.Drive.DeadmanMs < 0 {
		return 0
	}
	return time.Duration(c.Drive.DeadmanMs) * time.Millisecond
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/QuadDrive/internal/hw/gpio"
	"github.com/cjeanneret/QuadDrive/internal/hw/pca9685"
	"github.com/cjeanneret/QuadDrive/internal/logic/drive"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml; filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
pca9685:
  bus: /dev/i2c-1
  address: 0x40
  pwm_frequency: 50
motors:
  front_left:
    pwm: 0
    in1: 2
    in2: 1
  front_right:
    pwm: 5
    in1: 3
    in2: 4
  rear_left:
    pwm: 6
    in1: 8
    in2: 7
  rear_right:
    pwm: 11
    in1_gpio: 25
    in2_gpio: 24
drive:
  max_speed: 80
  loop_hz: 50
  deadman_ms: 250
defaults:
  debug_level: 2
  gpio_backend: mock
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PCA9685.Address != 0x40 {
		t.Errorf("pca9685.address = 0x%X, want 0x40", cfg.PCA9685.Address)
	}
	if cfg.Drive.MaxSpeed != 80 {
		t.Errorf("drive.max_speed = %v, want 80", cfg.Drive.MaxSpeed)
	}
	if cfg.LoopInterval() != 20*time.Millisecond {
		t.Errorf("LoopInterval() = %v, want 20ms", cfg.LoopInterval())
	}
	if cfg.Deadman() != 250*time.Millisecond {
		t.Errorf("Deadman() = %v, want 250ms", cfg.Deadman())
	}
	if cfg.Defaults.GPIOBackend != gpio.BackendMock {
		t.Errorf("gpio_backend = %q, want mock", cfg.Defaults.GPIOBackend)
	}

	dc, err := cfg.DriveConfig()
	if err != nil {
		t.Fatalf("DriveConfig: %v", err)
	}
	if dc.Wiring != drive.DefaultWiring() {
		t.Errorf("wiring = %+v, want stock wiring", dc.Wiring)
	}
	if dc.Address != 0x40 || dc.FrequencyHz != 50 || dc.MaxSpeed != 80 {
		t.Errorf("drive config = %+v", dc)
	}
}

func TestLoad_EmptyUsesDefaults(t *testing.T) {
	path := writeConfig(t, "{}")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PCA9685.Bus != "/dev/i2c-1" {
		t.Errorf("bus = %q, want /dev/i2c-1", cfg.PCA9685.Bus)
	}
	if cfg.PCA9685.Address != 0x40 {
		t.Errorf("address = 0x%X, want 0x40", cfg.PCA9685.Address)
	}
	if cfg.PCA9685.PWMFrequency != 50 {
		t.Errorf("pwm_frequency = %v, want 50", cfg.PCA9685.PWMFrequency)
	}
	if cfg.Drive.MaxSpeed != 100 {
		t.Errorf("max_speed = %v, want 100", cfg.Drive.MaxSpeed)
	}
	if cfg.Drive.SteeringZero != drive.DefaultSteeringZero {
		t.Errorf("steering_zero = %v, want %v", cfg.Drive.SteeringZero, drive.DefaultSteeringZero)
	}
	if cfg.LoopInterval() != 50*time.Millisecond {
		t.Errorf("LoopInterval() = %v, want 50ms", cfg.LoopInterval())
	}
	if cfg.Deadman() != 500*time.Millisecond {
		t.Errorf("Deadman() = %v, want 500ms", cfg.Deadman())
	}
	if cfg.Defaults.GPIOBackend != gpio.BackendRPio {
		t.Errorf("gpio_backend = %q, want rpio", cfg.Defaults.GPIOBackend)
	}
	w, err := cfg.Wiring()
	if err != nil {
		t.Fatalf("Wiring: %v", err)
	}
	if w != drive.DefaultWiring() {
		t.Errorf("wiring = %+v, want stock wiring", w)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "configs", "nope.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "pca9685: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml, got nil")
	}
}

func TestLoad_DeadmanDisabled(t *testing.T) {
	path := writeConfig(t, "drive:\n  deadman_ms: -1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Deadman() != 0 {
		t.Errorf("Deadman() = %v, want 0 (disabled)", cfg.Deadman())
	}
}

func TestLoad_OutOfRange(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"max_speed_over_100", "drive:\n  max_speed: 101\n"},
		{"max_speed_negative", "drive:\n  max_speed: -5\n"},
		{"frequency_negative", "pca9685:\n  pwm_frequency: -50\n"},
		{"address_too_high", "pca9685:\n  address: 0x80\n"},
		{"debug_level", "defaults:\n  debug_level: 5\n"},
		{"gpio_backend", "defaults:\n  gpio_backend: sysfs\n"},
		{"steering_zero", "drive:\n  steering_zero: 1.5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}

func TestLoad_DuplicateChannelRejected(t *testing.T) {
	yaml := `
motors:
  front_right:
    in1: 2
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if !errors.Is(err, drive.ErrInvalidWiring) {
		t.Errorf("err = %v, want ErrInvalidWiring", err)
	}
}

func TestLoad_ChannelOutOfRangeRejected(t *testing.T) {
	yaml := `
motors:
  rear_left:
    pwm: 16
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if !errors.Is(err, pca9685.ErrInvalidChannel) {
		t.Errorf("err = %v, want ErrInvalidChannel", err)
	}
}

func TestLoad_MoveDirectionToGPIO(t *testing.T) {
	yaml := `
motors:
  front_left:
    in1_gpio: 17
    in2_gpio: 27
    forward_in1: high
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := cfg.Wiring()
	want := drive.DirectPinPair{PWM: 0, Pin1: 17, Pin2: 27}
	if w[drive.FrontLeft].Output != want {
		t.Errorf("front_left output = %+v, want %+v", w[drive.FrontLeft].Output, want)
	}
	if w[drive.FrontLeft].Forward != (drive.Polarity{In1: gpio.High, In2: gpio.Low}) {
		t.Errorf("front_left polarity = %+v, want high/low", w[drive.FrontLeft].Forward)
	}
}

func TestLoad_MoveDirectionToPCA9685(t *testing.T) {
	yaml := `
motors:
  rear_right:
    in1: 12
    in2: 13
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := cfg.Wiring()
	want := drive.ChannelPair{PWM: 11, In1: 12, In2: 13}
	if w[drive.RearRight].Output != want {
		t.Errorf("rear_right output = %+v, want %+v", w[drive.RearRight].Output, want)
	}
}

func TestLoad_MotorConfigConflicts(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"both_kinds", "motors:\n  front_left:\n    in1: 2\n    in1_gpio: 17\n    in2_gpio: 27\n"},
		{"half_gpio", "motors:\n  front_left:\n    in1_gpio: 17\n"},
		{"half_channel_on_direct_motor", "motors:\n  rear_right:\n    in1: 12\n"},
		{"bad_polarity", "motors:\n  rear_left:\n    forward_in1: sideways\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}

func TestLoad_ShippedDefaultConfig(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "default.yaml")
	if err := ValidateConfigPath(path); err != nil {
		t.Fatalf("ValidateConfigPath: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	w, err := cfg.Wiring()
	if err != nil {
		t.Fatalf("Wiring: %v", err)
	}
	if w != drive.DefaultWiring() {
		t.Errorf("shipped config wiring differs from stock wiring: %+v", w)
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cjeanneret/QuadDrive/internal/config"
	"github.com/cjeanneret/QuadDrive/internal/debug"
	"github.com/cjeanneret/QuadDrive/internal/hw/gpio"
	"github.com/cjeanneret/QuadDrive/internal/hw/i2c"
	"github.com/cjeanneret/QuadDrive/internal/hw/pca9685"
	"github.com/cjeanneret/QuadDrive/internal/logic/drive"
	"github.com/cjeanneret/QuadDrive/internal/logic/vehicle"
	"github.com/cjeanneret/QuadDrive/internal/web"
)

// demoStep is one leg of the -demo sequence.
type demoStep struct {
	name        string
	left, right float64
}

var demoSequence = []demoStep{
	{"forward", 0.5, 0.5},
	{"spin left", -0.3, 0.3},
	{"spin right", 0.3, -0.3},
	{"backward", -0.5, -0.5},
}

const demoStepDuration = 2 * time.Second

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web remote on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	demo := flag.Bool("demo", false, "run the forward/spin/backward demo and exit")
	mock := flag.Bool("mock", false, "use mock GPIO and a register-only I2C device (no hardware)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *cfgPath, webPort.port(), *demo, *mock); err != nil {
		log.Fatalf("quaddrive: %v", err)
	}
}

func run(ctx context.Context, cfgPath string, port int, demo, mock bool) error {
	if err := config.ValidateConfigPath(cfgPath); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	mock = mock || cfg.Defaults.Mock

	logger := debug.New(cfg.Defaults.DebugLevel, os.Stdout)
	logger.Section("Initialization")
	logger.Value("Config path", cfgPath)
	logger.Value("Debug level", cfg.Defaults.DebugLevel)
	logger.Value("Mock hardware", mock)

	var broadcaster *web.StatusBroadcaster
	if port > 0 {
		broadcaster = web.NewStatusBroadcaster()
		logger.AddHook(web.NewBroadcastHook(broadcaster))
	}

	logger.Step(1, "Initializing GPIO driver")
	backend := cfg.Defaults.GPIOBackend
	if mock {
		backend = gpio.BackendMock
	}
	gpioDriver, err := gpio.NewDriver(backend, logger)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			logger.Warn("closing GPIO driver failed: %v", err)
		}
	}()

	logger.Step(2, "Initializing motor controller")
	driveCfg, err := cfg.DriveConfig()
	if err != nil {
		return err
	}
	logger.PrintStruct("Wiring", driveCfg.Wiring)
	ctrl, err := openController(driveCfg, gpioDriver, mock, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("closing motor controller failed: %v", err)
		}
	}()

	if demo {
		logger.Section("Demo")
		return runDemo(ctx, ctrl, demoStepDuration, logger)
	}

	loopCfg := vehicle.Config{
		Interval:     cfg.LoopInterval(),
		Deadman:      cfg.Deadman(),
		SteeringZero: cfg.Drive.SteeringZero,
	}

	if port > 0 {
		loop := vehicle.New(ctrl, loopCfg, logger)
		remote := web.RemoteConfig{
			MaxSpeed:     ctrl.MaxSpeed(),
			SteeringZero: loopCfg.SteeringZero,
			LoopHz:       cfg.Drive.LoopHz,
			DeadmanMs:    int(loopCfg.Deadman / time.Millisecond),
			Motors:       motorNames(ctrl.Wiring()),
		}
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, loop, remote, logger)
		if err != nil {
			return err
		}
		return serve(ctx, loop, srv.Run)
	}

	// Console commands are one-shot, so they stay in force until replaced.
	loopCfg.Deadman = 0
	loop := vehicle.New(ctrl, loopCfg, logger)
	logger.Info("Reading commands from stdin: \"<left> <right>\", \"t <throttle> <steering>\", \"stop\", \"quit\"")
	return serve(ctx, loop, func(ctx context.Context) error {
		return readCommands(ctx, os.Stdin, loop, logger)
	})
}

// openController builds the drive controller on the real PCA9685, or on a
// register-only mock device when mock is set.
func openController(cfg drive.Config, pins gpio.Driver, mock bool, logger *debug.Logger) (*drive.Controller, error) {
	if !mock {
		return drive.Open(cfg, pins, logger)
	}
	dev, err := pca9685.New(i2c.NewMockDev(cfg.Address), pca9685.Options{Debug: cfg.Debug, Log: logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", drive.ErrInit, err)
	}
	return drive.New(dev, pins, cfg, logger)
}

// serve runs the control loop alongside front, a command producer. When
// either the producer returns or ctx is cancelled, the loop stops and shuts
// the motors down.
func serve(ctx context.Context, loop *vehicle.Loop, front func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	err := front(ctx)
	cancel()
	if lerr := <-loopDone; err == nil {
		err = lerr
	}
	return err
}

// runDemo drives the fixed demo sequence directly on the controller, then
// stops every motor. It returns early (after stopping) if ctx is cancelled.
func runDemo(ctx context.Context, ctrl *drive.Controller, step time.Duration, logger *debug.Logger) error {
	defer ctrl.Shutdown()
	for i, s := range demoSequence {
		logger.Step(i+1, s.name)
		logger.Throttle(s.left, s.right)
		if err := ctrl.Run(s.left, s.right); err != nil {
			return fmt.Errorf("demo %s: %w", s.name, err)
		}
		select {
		case <-ctx.Done():
			logger.Info("Demo interrupted")
			return nil
		case <-time.After(step):
		}
	}
	logger.Info("Demo complete")
	return nil
}

// commander is the subset of the control loop driven by console input.
type commander interface {
	Set(left, right float64)
	SetSteering(throttle, steering float64)
	Stop()
}

var errQuit = errors.New("quit")

// parseCommand applies one console line to c. Empty lines are ignored.
func parseCommand(line string, c commander) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "stop", "s":
		c.Stop()
		return nil
	case "quit", "q", "exit":
		return errQuit
	case "t":
		if len(fields) != 3 {
			return fmt.Errorf("usage: t <throttle> <steering>")
		}
		th, err := parseThrottle(fields[1])
		if err != nil {
			return err
		}
		st, err := parseThrottle(fields[2])
		if err != nil {
			return err
		}
		c.SetSteering(th, st)
		return nil
	}
	if len(fields) != 2 {
		return fmt.Errorf("usage: <left> <right>")
	}
	left, err := parseThrottle(fields[0])
	if err != nil {
		return err
	}
	right, err := parseThrottle(fields[1])
	if err != nil {
		return err
	}
	c.Set(left, right)
	return nil
}

func parseThrottle(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// readCommands feeds console lines into c until EOF, "quit" or ctx is done.
// Bad lines are reported and skipped.
func readCommands(ctx context.Context, r io.Reader, c commander, logger *debug.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := parseCommand(line, c); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				logger.Warn("%v", err)
			}
		}
	}
}

func motorNames(w drive.Wiring) []string {
	names := make([]string, len(w))
	for i, m := range w {
		names[i] = m.Name
	}
	return names
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

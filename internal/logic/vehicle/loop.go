package vehicle

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/QuadDrive/internal/debug"
	"github.com/cjeanneret/QuadDrive/internal/logic/drive"
)

// Drive is the motor side of the loop. *drive.Controller implements it.
type Drive interface {
	Run(left, right float64) error
	Shutdown()
}

// Config holds loop timing.
type Config struct {
	Interval     time.Duration // one control cycle (default 50ms)
	Deadman      time.Duration // command lifetime; 0 keeps the last command forever
	SteeringZero float64       // dead zone for SetSteering
}

// Command sources reported in Status.
const (
	SourceIdle    = "idle"    // no command received yet
	SourceCommand = "command" // applying the latest command
	SourceDeadman = "deadman" // latest command expired, holding 0,0
)

// Status is a snapshot of the loop.
type Status struct {
	Running       bool      `json:"running"`
	Left          float64   `json:"left"`
	Right         float64   `json:"right"`
	Source        string    `json:"source"`
	Cycles        uint64    `json:"cycles"`
	LastCommandAt time.Time `json:"last_command_utc,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Loop is the single goroutine that owns the motor controller. Producers
// (web handlers, stdin, a pilot) call Set from any goroutine; Run applies
// the newest command once per cycle. The controller itself is only ever
// touched from Run (or Step).
type Loop struct {
	drv Drive
	cfg Config
	log *debug.Logger
	now func() time.Time

	mu       sync.Mutex
	left     float64
	right    float64
	cmdAt    time.Time
	hasCmd   bool
	expired  bool
	status   Status
	shutOnce sync.Once
}

// New creates a loop around drv.
func New(drv Drive, cfg Config, log *debug.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	if cfg.SteeringZero == 0 {
		cfg.SteeringZero = drive.DefaultSteeringZero
	}
	return &Loop{
		drv:    drv,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		status: Status{Source: SourceIdle},
	}
}

// Set records a left/right throttle command. Non-finite values become 0.
func (l *Loop) Set(left, right float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.left = finite(left)
	l.right = finite(right)
	l.cmdAt = l.now()
	l.hasCmd = true
	l.expired = false
}

// SetSteering records a throttle/steering command, mixed to left/right.
func (l *Loop) SetSteering(throttle, steering float64) {
	left, right := drive.Mix(finite(throttle), finite(steering), l.cfg.SteeringZero)
	l.Set(left, right)
}

// Stop records a 0,0 command.
func (l *Loop) Stop() {
	l.Set(0, 0)
}

// Status returns a snapshot.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// target returns the command for this cycle.
func (l *Loop) target() (left, right float64, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasCmd {
		return 0, 0, SourceIdle
	}
	if l.cfg.Deadman > 0 && l.now().Sub(l.cmdAt) > l.cfg.Deadman {
		if !l.expired {
			l.expired = true
			l.log.Info("No command for %v, stopping motors", l.cfg.Deadman)
		}
		return 0, 0, SourceDeadman
	}
	return l.left, l.right, SourceCommand
}

// Step runs one control cycle.
func (l *Loop) Step() error {
	left, right, source := l.target()
	err := l.drv.Run(left, right)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Left = left
	l.status.Right = right
	l.status.Source = source
	l.status.Cycles++
	if l.hasCmd {
		l.status.LastCommandAt = l.cmdAt.UTC()
	}
	if err != nil {
		l.status.LastError = err.Error()
	} else {
		l.status.LastError = ""
	}
	return err
}

// Run drives the loop until ctx is cancelled, then stops all motors. A
// failed cycle is logged and the next cycle re-sends the full command.
func (l *Loop) Run(ctx context.Context) error {
	l.setRunning(true)
	defer l.setRunning(false)
	defer l.Shutdown()

	l.log.Info("Control loop running every %v (deadman %v)", l.cfg.Interval, l.cfg.Deadman)
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Step(); err != nil {
				l.log.Error(err)
			}
		}
	}
}

// Shutdown stops the motors. Only the first call reaches the controller.
func (l *Loop) Shutdown() {
	l.shutOnce.Do(l.drv.Shutdown)
}

func (l *Loop) setRunning(v bool) {
	l.mu.Lock()
	l.status.Running = v
	l.mu.Unlock()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

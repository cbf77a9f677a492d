package debug

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output except warnings
	LevelInfo    = 1 // Important info (startup, wiring, shutdown)
	LevelLive    = 2 // Live info (throttle commands applied each cycle)
	LevelVerbose = 3 // Verbose (per-motor decisions)
	LevelTrace   = 4 // Trace (I2C registers, GPIO, very low level)
)

// Logger is a leveled debug logger. The zero level prints only warnings.
// A nil *Logger is valid and discards everything, so hardware packages can
// be used without wiring one in.
type Logger struct {
	level int
	log   *logrus.Logger
}

// New creates a logger with a level (0-4) writing to out (os.Stdout if nil).
// 0 = warnings only
// 1 = important info (startup, wiring, shutdown)
// 2 = live info (throttle applied per control cycle)
// 3 = verbose (per-motor direction and speed)
// 4 = trace (I2C register writes, GPIO)
func New(level int, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.TraceLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
	})
	return &Logger{level: level, log: l}
}

// SetOutput redirects all further output to w.
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	l.log.SetOutput(w)
}

// AddHook attaches a logrus hook, e.g. to mirror output to a web client.
func (l *Logger) AddHook(h logrus.Hook) {
	if l == nil {
		return
	}
	l.log.AddHook(h)
}

// Level returns the current debug level.
func (l *Logger) Level() int {
	if l == nil {
		return LevelOff
	}
	return l.level
}

// IsEnabled returns true if debug level is >= the requested level.
func (l *Logger) IsEnabled(minLevel int) bool {
	return l != nil && l.level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.IsEnabled(LevelInfo) {
		l.log.Infof(format, args...)
	}
}

// Value prints a named value in formatted form (level 1).
func (l *Logger) Value(name string, value interface{}) {
	if l.IsEnabled(LevelInfo) {
		l.log.WithField(name, value).Info("value")
	}
}

// Summary prints an important summary (level 1).
func (l *Logger) Summary(title string) {
	if l.IsEnabled(LevelInfo) {
		l.log.Info("═══════════════════════════════════════")
		l.log.Infof("  %s", title)
		l.log.Info("═══════════════════════════════════════")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func (l *Logger) Live(format string, args ...interface{}) {
	if l.IsEnabled(LevelLive) {
		l.log.WithField("tier", "live").Debugf(format, args...)
	}
}

// Throttle prints the two-sided command applied in one control cycle (level 2).
func (l *Logger) Throttle(left, right float64) {
	if l.IsEnabled(LevelLive) {
		l.log.WithFields(logrus.Fields{"left": left, "right": right}).Debug("throttle")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.IsEnabled(LevelVerbose) {
		l.log.WithField("tier", "verbose").Debugf(format, args...)
	}
}

// Printf is an alias for Verbose.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func (l *Logger) PrintStruct(name string, v interface{}) {
	if l.IsEnabled(LevelVerbose) {
		l.log.WithField("tier", "verbose").Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func (l *Logger) Section(name string) {
	if l.IsEnabled(LevelVerbose) {
		l.log.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.log.Debugf("  %s", name)
		l.log.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func (l *Logger) Step(num int, description string) {
	if l.IsEnabled(LevelVerbose) {
		l.log.WithField("step", num).Debug(description)
	}
}

// Motor prints a per-motor decision (level 3).
func (l *Logger) Motor(name string, direction string, speed float64) {
	if l.IsEnabled(LevelVerbose) {
		l.log.WithFields(logrus.Fields{"motor": name, "dir": direction, "speed": speed}).Debug("motor")
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.IsEnabled(LevelTrace) {
		l.log.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func (l *Logger) GPIO(operation string, pin int, value interface{}) {
	if l.IsEnabled(LevelTrace) {
		l.log.WithFields(logrus.Fields{"pin": pin, "value": value}).Trace("gpio " + operation)
	}
}

// I2C prints a register access on an I2C device (level 4).
func (l *Logger) I2C(operation string, addr uint16, reg, value byte) {
	if l.IsEnabled(LevelTrace) {
		l.log.WithFields(logrus.Fields{
			"addr":  fmt.Sprintf("0x%02X", addr),
			"reg":   fmt.Sprintf("0x%02X", reg),
			"value": fmt.Sprintf("0x%02X", value),
		}).Trace("i2c " + operation)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func (l *Logger) Error(err error) {
	if l.IsEnabled(LevelInfo) {
		l.log.Error(err)
	}
}

// Warn prints a warning regardless of level.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l != nil {
		l.log.Warnf(format, args...)
	}
}

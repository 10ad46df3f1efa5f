package debug

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (sweep start/stop, saved files)
	LevelLive    = 2 // Live info (alignment progress, jobs)
	LevelVerbose = 3 // Verbose (preview setup, engine details)
	LevelTrace   = 4 // Trace (frames, GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *zap.SugaredLogger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (sweep lifecycle, saved panoramas)
// 2 = live info (alignment, background jobs)
// 3 = verbose (camera setup, engine sizes)
// 4 = trace (per-frame, GPIO)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects log lines to w (e.g. stdout tee'd to the SSE broadcaster).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	if logger != nil {
		_ = logger.Sync()
	}
	if level <= LevelOff {
		logger = nil
		return
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = "t"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(out), zapcore.DebugLevel)
	logger = zap.New(core).Named("pansweep").Sugar()
}

func log(min int, zl zapcore.Level, format string, args ...interface{}) {
	mu.RLock()
	l := logger
	enabled := level >= min
	mu.RUnlock()
	if !enabled || l == nil {
		return
	}
	switch zl {
	case zapcore.ErrorLevel:
		l.Errorf(format, args...)
	case zapcore.WarnLevel:
		l.Warnf(format, args...)
	case zapcore.InfoLevel:
		l.Infof(format, args...)
	default:
		l.Debugf(format, args...)
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	log(LevelInfo, zapcore.InfoLevel, format, args...)
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	log(LevelInfo, zapcore.WarnLevel, format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	log(LevelInfo, zapcore.InfoLevel, "═══ %s ═══", title)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	log(LevelInfo, zapcore.InfoLevel, "  %s = %v", name, value)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	log(LevelLive, zapcore.InfoLevel, format, args...)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	log(LevelVerbose, zapcore.DebugLevel, format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	log(LevelVerbose, zapcore.DebugLevel, "%s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	log(LevelVerbose, zapcore.DebugLevel, "━━━ %s ━━━", name)
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	log(LevelVerbose, zapcore.DebugLevel, "Step %d: %s", num, description)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	log(LevelTrace, zapcore.DebugLevel, format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	log(LevelTrace, zapcore.DebugLevel, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	log(LevelInfo, zapcore.ErrorLevel, "%v", err)
}

// Errorf prints a formatted error (level 1+).
func Errorf(format string, args ...interface{}) {
	log(LevelInfo, zapcore.ErrorLevel, format, args...)
}

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel converts a config string into a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// sink is the shared destination of every logger of one run.
type sink struct {
	mu     sync.Mutex
	logger *log.Logger
	file   *os.File
	path   string
	once   sync.Once
}

// Logger writes component-tagged, optionally session-tagged lines:
//
//	[2006-01-02 15:04:05.000] [solver] [alice] [WARN] next button not visible
//
// All loggers of a run share one file in ~/.orthoforge/logs/<run-id>-orthoforge.log.
type Logger struct {
	out       *sink
	component string
	session   string
	level     Level
}

var (
	// Global run ID for the current process
	runID     string
	runIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error

	defaultMu     sync.Mutex
	defaultLevel  = LevelInfo
	defaultMirror io.Writer
	shared        *sink
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir != "" {
			initErr = os.MkdirAll(logDir, 0750)
			return
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".orthoforge", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// Configure sets the level and the optional mirror writer (usually stderr)
// used by loggers created afterwards.
func Configure(level Level, mirror io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = level
	defaultMirror = mirror
	shared = nil
}

func openSink() (*sink, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if shared != nil {
		return shared, nil
	}

	if err := initLogDirectory(); err != nil {
		w := io.Writer(os.Stderr)
		shared = &sink{logger: log.New(w, "", 0)}
		return shared, err
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("%s-orthoforge.log", getRunID()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		shared = &sink{logger: log.New(os.Stderr, "", 0)}
		return shared, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = file
	if defaultMirror != nil {
		w = io.MultiWriter(file, defaultMirror)
	}
	shared = &sink{logger: log.New(w, "", 0), file: file, path: logPath}
	return shared, nil
}

// NewLogger creates a logger for a component. If the log file cannot be
// opened it falls back to stderr and returns the error alongside a usable
// logger, so callers can warn and continue.
func NewLogger(component string) (*Logger, error) {
	out, err := openSink()

	defaultMu.Lock()
	level := defaultLevel
	defaultMu.Unlock()

	l := &Logger{out: out, component: component, level: level}
	if err != nil {
		l.Warnf("file logging unavailable, using stderr: %v", err)
	}
	return l, err
}

// MustLogger is NewLogger for call sites that are happy with the stderr
// fallback.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// Discard returns a logger that writes nowhere. Useful in tests.
func Discard() *Logger {
	return &Logger{out: &sink{logger: log.New(io.Discard, "", 0)}, component: "discard", level: LevelError + 1}
}

// NewWriterLogger returns a logger that writes to w instead of the run's log
// file.
func NewWriterLogger(component string, w io.Writer, level Level) *Logger {
	return &Logger{out: &sink{logger: log.New(w, "", 0)}, component: component, level: level}
}

// With returns a child logger whose lines carry the session id.
func (l *Logger) With(sessionID string) *Logger {
	child := *l
	child.session = sessionID
	return &child
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	message := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	var entry string
	if l.session != "" {
		entry = fmt.Sprintf("[%s] [%s] [%s] [%s] %s", timestamp, l.component, l.session, level, message)
	} else {
		entry = fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.logger.Println(entry)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) { l.write(LevelWarn, format, v...) }

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// LogPath returns the path to the log file, empty in fallback mode.
func (l *Logger) LogPath() string {
	return l.out.path
}

// Close closes the shared log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.out.once.Do(func() {
		if l.out.file != nil {
			err = l.out.file.Close()
		}
	})
	return err
}

// GetRunID returns the id shared by every log line of this process.
func GetRunID() string {
	return getRunID()
}

// pkg/logging/logging.go - leveled key/value logging for rollout.
//
// Every run gets a unique session ID and, when a log directory is
// configured, its own timestamped log file under that directory. Console
// output mirrors the file so interactive runs stay readable.

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch s {
	case "ERROR":
		return LevelError
	case "WARN":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Logger encapsulates leveled logging with an optional per-run log file.
type Logger struct {
	mu        sync.Mutex
	level     LogLevel
	logFile   *os.File
	console   bool
	sessionID string
}

// singleton instance and sync.Once for thread-safe initialization
var (
	instance *Logger
	once     sync.Once
)

// Init initializes the singleton Logger. logDir may be empty to log to the
// console only. It must be called before any logging functions are used.
func Init(level LogLevel, logDir string) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(level, logDir)
	})
	return initErr
}

func newLogger(level LogLevel, logDir string) (*Logger, error) {
	l := &Logger{
		level:     level,
		console:   true,
		sessionID: uuid.New().String(),
	}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", logDir, err)
		}
		name := fmt.Sprintf("rollout-%s.log", time.Now().Format("2006-01-02-150405"))
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		l.logFile = f
	}
	return l, nil
}

// SessionID returns the unique identifier for this logging session.
func SessionID() string {
	if instance == nil {
		return ""
	}
	return instance.sessionID
}

// Close flushes and closes the log file, if any.
func Close() {
	if instance == nil || instance.logFile == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.logFile.Sync()
	instance.logFile.Close()
	instance.logFile = nil
}

func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	ts := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %-5s %s", ts, level.String(), message)
	for i := 0; i+1 < len(keyValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyValues[i], keyValues[i+1])
	}
	line += "\n"

	if l.console {
		if level == LevelError {
			fmt.Fprint(os.Stderr, line)
		} else {
			fmt.Fprint(os.Stdout, line)
		}
	}
	if l.logFile != nil {
		l.logFile.WriteString(line)
		l.logFile.Sync()
	}
}

func log(level LogLevel, message string, keyValues ...interface{}) {
	if instance == nil {
		// Logging before Init is a programming error; keep the output visible.
		fmt.Printf("LOGGING NOT INITIALIZED: %s %s %v\n", level.String(), message, keyValues)
		return
	}
	instance.logMessage(level, message, keyValues...)
}

// Info logs a message at INFO level.
func Info(message string, keyValues ...interface{}) {
	log(LevelInfo, message, keyValues...)
}

// Debug logs a message at DEBUG level.
func Debug(message string, keyValues ...interface{}) {
	log(LevelDebug, message, keyValues...)
}

// Warn logs a message at WARN level.
func Warn(message string, keyValues ...interface{}) {
	log(LevelWarn, message, keyValues...)
}

// Error logs a message at ERROR level.
func Error(message string, keyValues ...interface{}) {
	log(LevelError, message, keyValues...)
}

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const logDirEnvVar = "FSGATE_LOG_DIR"

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Options configures the process-wide sink behind component loggers.
type Options struct {
	Level Level
	// Dir holds fsgate-service.log. Empty means FSGATE_LOG_DIR, and when that
	// is unset too, no file is written.
	Dir    string
	Stderr bool
}

type sink struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
}

var defaultSink = &sink{out: os.Stderr, level: LevelInfo}

// Configure replaces the sink used by every component logger. It returns a
// close function for the log file, if one was opened.
func Configure(opts Options) (func() error, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(logDirEnvVar))
	}

	writers := make([]io.Writer, 0, 2)
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}

	var file *os.File
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "fsgate-service.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	defaultSink.mu.Lock()
	defer defaultSink.mu.Unlock()
	defaultSink.level = opts.Level
	defaultSink.file = file
	switch len(writers) {
	case 0:
		defaultSink.out = io.Discard
	case 1:
		defaultSink.out = writers[0]
	default:
		defaultSink.out = io.MultiWriter(writers...)
	}

	return func() error {
		if file == nil {
			return nil
		}
		return file.Close()
	}, nil
}

// NewWriterLogger returns a component logger writing to w, independent of the
// process-wide sink. Useful in tests that assert on log output.
func NewWriterLogger(component string, w io.Writer, level Level) Logger {
	return &componentLogger{
		component: component,
		sink:      &sink{out: w, level: level},
	}
}

type componentLogger struct {
	component string
	sink      *sink
}

func newComponentLogger(component string) *componentLogger {
	return &componentLogger{component: component, sink: defaultSink}
}

func (l *componentLogger) log(level Level, format string, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level < l.sink.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "fsgate"
	}

	// Format: 2025-09-30 12:34:56 [INFO] [ComponentName] file.go:123 - Message
	fmt.Fprintf(l.sink.out, "%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line, fmt.Sprintf(format, args...))
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

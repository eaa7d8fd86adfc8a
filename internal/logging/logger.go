// Package logging provides structured logging for flatstore.
// It uses zerolog for structured JSON logging and supports log rotation.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog.Logger and owns the rotated file behind it.
type Logger struct {
	zerolog.Logger
	fileWriter io.WriteCloser
}

// Config holds logging configuration
type Config struct {
	// LogFile is the path to the log file. Empty disables file logging.
	LogFile string
	// Verbosity level: 0=ERROR+WARN, 1=INFO (-v), 2=DEBUG (-vv)
	Verbosity int
	// ConsoleOutput enables colored console output to stderr
	ConsoleOutput bool
	// Console overrides the console destination (stderr by default)
	Console io.Writer
}

// DefaultLogFile returns the default log file path (flatstore.log next to the executable)
func DefaultLogFile() string {
	exe, err := os.Executable()
	if err != nil {
		return "flatstore.log"
	}
	return filepath.Join(filepath.Dir(exe), "flatstore.log")
}

// levelFilterWriter wraps an io.Writer and filters based on log level
type levelFilterWriter struct {
	w     io.Writer
	level zerolog.Level
}

func (lfw levelFilterWriter) Write(p []byte) (n int, err error) {
	return lfw.w.Write(p)
}

func (lfw levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= lfw.level {
		return lfw.w.Write(p)
	}
	return len(p), nil
}

// consoleLevel maps -v counts to the minimum console level.
func consoleLevel(verbosity int) zerolog.Level {
	switch {
	case verbosity >= 2:
		return zerolog.DebugLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	default:
		return zerolog.WarnLevel
	}
}

// New creates a new Logger with the given configuration.
// It sets up file logging with rotation and optional console output.
func New(cfg Config) (*Logger, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	var fileLogger *lumberjack.Logger

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		// Rotate at 20MB, keep 5 backups for 30 days
		fileLogger = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			LocalTime:  true,
		}
		// File writer always logs DEBUG and above (everything)
		writers = append(writers, levelFilterWriter{w: fileLogger, level: zerolog.DebugLevel})
	}

	if cfg.ConsoleOutput {
		out := cfg.Console
		if out == nil {
			out = os.Stderr
		}
		// 2026-02-02T08:32:15.123Z WARN  OS lock unavailable path=/srv/data/classes.json
		consoleWriter := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.Console != nil,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			FormatLevel: func(i any) string {
				return fmt.Sprintf("%-5s", levelLabel(fmt.Sprintf("%s", i)))
			},
			FormatFieldName: func(i any) string {
				return fmt.Sprintf("%s=", i)
			},
			FormatFieldValue: func(i any) string {
				return fmt.Sprintf("%s", i)
			},
		}
		writers = append(writers, levelFilterWriter{w: consoleWriter, level: consoleLevel(cfg.Verbosity)})
	}

	if len(writers) == 0 {
		return &Logger{Logger: zerolog.Nop()}, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	l := &Logger{Logger: logger}
	if fileLogger != nil {
		l.fileWriter = fileLogger
	}
	return l, nil
}

func levelLabel(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn":
		return "WARN"
	case "error":
		return "ERROR"
	case "fatal":
		return "FATAL"
	default:
		return level
	}
}

// Close closes the log file writer
func (l *Logger) Close() error {
	if l.fileWriter != nil {
		return l.fileWriter.Close()
	}
	return nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.Logger.With().Str("component", name).Logger()
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
	return nil
}

// Get returns the global logger, or a no-op logger if Init was never called.
func Get() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = &Logger{Logger: zerolog.Nop()}
	}
	return globalLogger
}

// Close closes the global logger
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

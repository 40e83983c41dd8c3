package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	instance *Logger
	once     sync.Once
)

type Logger struct {
	logger     zerolog.Logger
	mu         sync.RWMutex
	level      zerolog.Level
	outputs    []io.Writer
	fileWriter *lumberjack.Logger
}

type Config struct {
	Level      string `json:"level"`
	Console    bool   `json:"console"`
	File       bool   `json:"file"`
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`    // megabytes
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`     // days
	Compress   bool   `json:"compress"`
	JSONFormat bool   `json:"json_format"`
	Caller     bool   `json:"caller"`
}

func Get() *Logger {
	once.Do(func() {
		instance = &Logger{}
		instance.initialize(DefaultConfig())
	})
	return instance
}

func Initialize(cfg Config) {
	Get().initialize(cfg)
}

func DefaultConfig() Config {
	dataDir := getDataDir()
	return Config{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(dataDir, "logs", "mixcore.log"),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
		JSONFormat: false,
		Caller:     true,
	}
}

func (l *Logger) initialize(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Parse log level
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	l.level = level

	// Reset outputs
	l.outputs = []io.Writer{}
	l.fileWriter = nil

	// Console output
	if cfg.Console {
		var consoleWriter io.Writer
		if cfg.JSONFormat {
			consoleWriter = os.Stderr
		} else {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: "15:04:05",
				FormatLevel: func(i interface{}) string {
					return strings.ToUpper(fmt.Sprintf("%-5s", i))
				},
				FormatMessage: func(i interface{}) string {
					return fmt.Sprintf("%s", i)
				},
				FormatFieldName: func(i interface{}) string {
					return fmt.Sprintf("%s:", i)
				},
				FormatFieldValue: func(i interface{}) string {
					return fmt.Sprintf("%s", i)
				},
			}
		}
		l.outputs = append(l.outputs, consoleWriter)
	}

	// File output
	if cfg.File {
		// Ensure log directory exists
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Printf("Failed to create log directory: %v\n", err)
		}

		l.fileWriter = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		l.outputs = append(l.outputs, l.fileWriter)
	}

	l.build(cfg.Caller)
}

func (l *Logger) build(caller bool) {
	// Create multi-writer
	multi := zerolog.MultiLevelWriter(l.outputs...)

	// Create logger
	l.logger = zerolog.New(multi).
		Level(l.level).
		With().
		Timestamp().
		Logger()

	// Add caller info if enabled
	if caller {
		l.logger = l.logger.With().Caller().Logger()
	}

	// Set global logger
	log.Logger = l.logger
}

// SetOutput replaces every output with w, keeping the level. Used by tests
// to capture JSON log lines.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.outputs = []io.Writer{w}
	l.build(false)
}

func (l *Logger) emit(level zerolog.Level, msg string, fields []Field) {
	l.mu.RLock()
	event := l.logger.WithLevel(level)
	l.mu.RUnlock()
	for _, field := range fields {
		event = field.Apply(event)
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.emit(zerolog.DebugLevel, msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.emit(zerolog.InfoLevel, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.emit(zerolog.WarnLevel, msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.emit(zerolog.ErrorLevel, msg, fields)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.emit(zerolog.FatalLevel, msg, fields)
	os.Exit(1)
}

// Panic logs and panics with msg.
func (l *Logger) Panic(msg string, fields ...Field) {
	l.emit(zerolog.PanicLevel, msg, fields)
	panic(msg)
}

// With returns a child logger carrying fields on every line.
func (l *Logger) With(fields ...Field) *LoggerContext {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ctx := l.logger.With()
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			ctx = ctx.AnErr(f.Key, err)
			continue
		}
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &LoggerContext{logger: ctx.Logger()}
}

func (l *Logger) SetLevel(level string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}

	l.level = lvl
	l.logger = l.logger.Level(lvl)
	log.Logger = l.logger
	return nil
}

func (l *Logger) GetLevel() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level.String()
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileWriter != nil {
		return l.fileWriter.Close()
	}
	return nil
}

type LoggerContext struct {
	logger zerolog.Logger
}

func (lc *LoggerContext) emit(event *zerolog.Event, msg string, fields []Field) {
	for _, field := range fields {
		event = field.Apply(event)
	}
	event.Msg(msg)
}

func (lc *LoggerContext) Debug(msg string, fields ...Field) {
	lc.emit(lc.logger.Debug(), msg, fields)
}

func (lc *LoggerContext) Info(msg string, fields ...Field) {
	lc.emit(lc.logger.Info(), msg, fields)
}

func (lc *LoggerContext) Warn(msg string, fields ...Field) {
	lc.emit(lc.logger.Warn(), msg, fields)
}

func (lc *LoggerContext) Error(msg string, fields ...Field) {
	lc.emit(lc.logger.Error(), msg, fields)
}

type Field struct {
	Key   string
	Value interface{}
}

func (f Field) Apply(event *zerolog.Event) *zerolog.Event {
	if err, ok := f.Value.(error); ok {
		return event.AnErr(f.Key, err)
	}
	return event.Interface(f.Key, f.Value)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Package-level convenience functions
func Debug(msg string, fields ...Field) {
	Get().Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	Get().Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	Get().Warn(msg, fields...)
}

func ErrorLog(msg string, fields ...Field) {
	Get().Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	Get().Fatal(msg, fields...)
}

func Panic(msg string, fields ...Field) {
	Get().Panic(msg, fields...)
}

func With(fields ...Field) *LoggerContext {
	return Get().With(fields...)
}

// SetOutput redirects the global logger to w.
func SetOutput(w io.Writer) {
	Get().SetOutput(w)
}

func getDataDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "mixcore")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "mixcore")
}

// High level log wrapper, so it can output different log based on level.
//
// There are five levels in total: FATAL, ERROR, WARNING, INFO, DEBUG.
// The default log output level is INFO, you can change it by:
// - call log.SetLevelByString()
// - set environment variable `LOG_LEVEL`
//
// Records are written by a zap core. Output goes to stderr unless a file is
// configured with SetOutputFile, in which case it is rotated by lumberjack.

package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls rotation of a log file.
type FileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Logger struct {
	mu     sync.Mutex
	level  zap.AtomicLevel
	sugar  *zap.SugaredLogger
	syncer zapcore.WriteSyncer
}

var _log = New()

func New() *Logger {
	return NewLogger(zapcore.Lock(os.Stderr))
}

// NewLogger builds a logger writing to w. The level is taken from the
// LOG_LEVEL environment variable and defaults to info.
func NewLogger(w zapcore.WriteSyncer) *Logger {
	l := &Logger{level: zap.NewAtomicLevelAt(zap.InfoLevel)}
	if lv := os.Getenv("LOG_LEVEL"); len(lv) != 0 {
		l.level.SetLevel(StringToLevel(lv))
	}
	l.setOutput(w)
	return l
}

func (l *Logger) setOutput(w zapcore.WriteSyncer) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), w, l.level)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncer = w
	// Skip the package level helpers and the Logger method itself.
	l.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar()
}

func (l *Logger) logger() *zap.SugaredLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

func (l *Logger) SetLevelByString(level string) {
	l.level.SetLevel(StringToLevel(level))
}

func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncer.Sync()
}

func (l *Logger) Fatal(v ...interface{})                 { l.logger().Fatal(v...) }
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logger().Fatalf(format, v...) }
func (l *Logger) Panic(v ...interface{})                 { l.logger().Panic(v...) }
func (l *Logger) Panicf(format string, v ...interface{}) { l.logger().Panicf(format, v...) }
func (l *Logger) Error(v ...interface{})                 { l.logger().Error(v...) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logger().Errorf(format, v...) }
func (l *Logger) Warning(v ...interface{})               { l.logger().Warn(v...) }
func (l *Logger) Warningf(format string, v ...interface{}) {
	l.logger().Warnf(format, v...)
}
func (l *Logger) Info(v ...interface{})                 { l.logger().Info(v...) }
func (l *Logger) Infof(format string, v ...interface{}) { l.logger().Infof(format, v...) }
func (l *Logger) Debug(v ...interface{})                { l.logger().Debug(v...) }
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.logger().Debugf(format, v...)
}

func StringToLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "fatal":
		return zap.FatalLevel
	case "error":
		return zap.ErrorLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	}
	return zap.DebugLevel
}

// SetOutputFile redirects the global logger into a rotated file.
func SetOutputFile(cfg FileConfig) {
	_log.setOutput(zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}))
}

// SetOutput redirects the global logger into w.
func SetOutput(w zapcore.WriteSyncer) {
	_log.setOutput(w)
}

func GlobalLogger() *Logger {
	return _log
}

func SetLevel(level zapcore.Level) {
	_log.SetLevel(level)
}

func GetLogLevel() zapcore.Level {
	return _log.Level()
}

func SetLevelByString(level string) {
	_log.SetLevelByString(level)
}

func Sync() error {
	return _log.Sync()
}

func Info(v ...interface{}) {
	_log.Info(v...)
}

func Infof(format string, v ...interface{}) {
	_log.Infof(format, v...)
}

func Panic(v ...interface{}) {
	_log.Panic(v...)
}

func Panicf(format string, v ...interface{}) {
	_log.Panicf(format, v...)
}

func Debug(v ...interface{}) {
	_log.Debug(v...)
}

func Debugf(format string, v ...interface{}) {
	_log.Debugf(format, v...)
}

func Warn(v ...interface{}) {
	_log.Warning(v...)
}

func Warnf(format string, v ...interface{}) {
	_log.Warningf(format, v...)
}

func Warning(v ...interface{}) {
	_log.Warning(v...)
}

func Warningf(format string, v ...interface{}) {
	_log.Warningf(format, v...)
}

func Error(v ...interface{}) {
	_log.Error(v...)
}

func Errorf(format string, v ...interface{}) {
	_log.Errorf(format, v...)
}

func Fatal(v ...interface{}) {
	_log.Fatal(v...)
}

func Fatalf(format string, v ...interface{}) {
	_log.Fatalf(format, v...)
}

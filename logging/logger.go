// Package logging provides the harness's own logger, which reports what the harness itself
// is doing as opposed to the output captured for individual tests.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wakujs/ssr-contract-tests/framework"
)

// New returns a console logger that writes to out. Messages logged through Printf are at debug
// level, so they only appear if verbose is true.
func New(out io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(out)),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core)
}

type printfLogger struct {
	sugar *zap.SugaredLogger
}

// Printf logs a formatted message at debug level.
func (l printfLogger) Printf(message string, args ...interface{}) {
	l.sugar.Debugf(message, args...)
}

// AsFrameworkLogger adapts a zap logger for components that take a framework.Logger.
func AsFrameworkLogger(logger *zap.Logger) framework.Logger {
	if logger == nil {
		return framework.NullLogger()
	}
	return printfLogger{sugar: logger.Sugar()}
}

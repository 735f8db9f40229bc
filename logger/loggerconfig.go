// loggerconfig.go
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LogOutputJSON    = "json"
	LogOutputConsole = "console"
)

// BuildLogger creates and returns a new zap-backed Logger.
// encoding is either "json" or "console"; separator only applies to console output.
// When exportPath is non-empty, entries are also written to a log file under that path.
// When hideSensitiveData is set, sensitive fields are redacted before they reach the encoder.
func BuildLogger(logLevel LogLevel, encoding, separator, exportPath string, hideSensitiveData bool) (Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	encoderCfg.MessageKey = "msg"
	encoderCfg.LevelKey = "level"

	if encoding == LogOutputConsole {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderCfg.ConsoleSeparator = separator
	} else {
		encoding = LogOutputJSON
	}

	outputPaths := []string{"stdout"}
	if exportPath != "" {
		logFile, err := EnsureLogFilePath(exportPath)
		if err != nil {
			return nil, err
		}
		outputPaths = append(outputPaths, logFile)
	}

	config := zap.Config{
		Level:             zap.NewAtomicLevelAt(convertToZapLevel(logLevel)),
		Development:       false,
		Encoding:          encoding,
		DisableCaller:     true,
		DisableStacktrace: true,
		EncoderConfig:     encoderCfg,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
	}

	zl, err := config.Build()
	if err != nil {
		return nil, err
	}

	if hideSensitiveData {
		zl = zap.New(&redactingCore{Core: zl.Core()})
	}

	return &defaultLogger{
		logger:   zl,
		logLevel: logLevel,
	}, nil
}

// convertToZapLevel converts the custom LogLevel to a zapcore.Level
func convertToZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zap.DebugLevel
	case LogLevelInfo:
		return zap.InfoLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelError:
		return zap.ErrorLevel
	case LogLevelDPanic:
		return zap.DPanicLevel
	case LogLevelPanic:
		return zap.PanicLevel
	case LogLevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

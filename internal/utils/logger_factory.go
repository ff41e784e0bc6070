package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	logFormatAutoStringConstant          = "auto"
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
	logFileMaximumSizeMegabytesConstant  = 10
	logFileMaximumBackupsConstant        = 3
	logFileMaximumAgeDaysConstant        = 28
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Exported log level constants for reuse across packages.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Exported log format constants for reuse across packages.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
	LogFormatAuto       LogFormat = LogFormat(logFormatAutoStringConstant)
)

// LoggerSettings describes the requested logger configuration.
type LoggerSettings struct {
	Level    LogLevel
	Format   LogFormat
	FilePath string
}

// TerminalDetector reports whether a file descriptor is attached to a terminal.
type TerminalDetector func(fileDescriptor uintptr) bool

// LoggerFactory builds zap.Logger instances with consistent configuration.
type LoggerFactory struct {
	errorOutput      zapcore.WriteSyncer
	terminalDetector TerminalDetector
}

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

// NewLoggerFactory constructs a logger factory writing to standard error.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{
		errorOutput:      zapcore.Lock(os.Stderr),
		terminalDetector: detectTerminal,
	}
}

// NewLoggerFactoryWithOutput constructs a logger factory writing to the provided sink.
func NewLoggerFactoryWithOutput(errorOutput zapcore.WriteSyncer, terminalDetector TerminalDetector) *LoggerFactory {
	if terminalDetector == nil {
		terminalDetector = detectTerminal
	}
	return &LoggerFactory{
		errorOutput:      errorOutput,
		terminalDetector: terminalDetector,
	}
}

// ResolveFormat replaces the auto format with console for terminals and structured otherwise.
func (factory *LoggerFactory) ResolveFormat(requestedLogFormat LogFormat) LogFormat {
	normalizedFormat := LogFormat(strings.ToLower(strings.TrimSpace(string(requestedLogFormat))))
	if normalizedFormat != LogFormatAuto {
		return normalizedFormat
	}
	if factory.terminalDetector(os.Stderr.Fd()) {
		return LogFormatConsole
	}
	return LogFormatStructured
}

// CreateLogger produces a zap.Logger honoring the requested level, format, and optional log file.
// The log file always receives structured entries and is rotated by size.
func (factory *LoggerFactory) CreateLogger(settings LoggerSettings) (*zap.Logger, error) {
	normalizedLevel := LogLevel(strings.ToLower(strings.TrimSpace(string(settings.Level))))
	zapLogLevel, levelExists := logLevelMapping[normalizedLevel]
	if !levelExists {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, settings.Level)
	}

	resolvedFormat := factory.ResolveFormat(settings.Format)
	consoleEncoder, encoderError := buildEncoder(resolvedFormat)
	if encoderError != nil {
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, settings.Format)
	}

	levelEnabler := zap.NewAtomicLevelAt(zapLogLevel)
	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, factory.errorOutput, levelEnabler)}

	trimmedFilePath := strings.TrimSpace(settings.FilePath)
	if len(trimmedFilePath) > 0 {
		rotatingWriter := &lumberjack.Logger{
			Filename:   trimmedFilePath,
			MaxSize:    logFileMaximumSizeMegabytesConstant,
			MaxBackups: logFileMaximumBackupsConstant,
			MaxAge:     logFileMaximumAgeDaysConstant,
		}
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotatingWriter), levelEnabler))
	}

	return zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(factory.errorOutput)), nil
}

func buildEncoder(format LogFormat) (zapcore.Encoder, error) {
	switch format {
	case LogFormatStructured:
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	case LogFormatConsole:
		encoderConfiguration := zap.NewDevelopmentEncoderConfig()
		encoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfiguration.CallerKey = zapcore.OmitKey
		return zapcore.NewConsoleEncoder(encoderConfiguration), nil
	default:
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, format)
	}
}

func detectTerminal(fileDescriptor uintptr) bool {
	return isatty.IsTerminal(fileDescriptor) || isatty.IsCygwinTerminal(fileDescriptor)
}

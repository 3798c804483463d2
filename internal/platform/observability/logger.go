package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/grocery-storefront/api/internal/platform/requestctx"
)

const defaultLogLevel = zapcore.InfoLevel

type loggerOptions struct {
	level   zapcore.Level
	service string
	version string
	output  []string
}

// LoggerOption customises NewLogger.
type LoggerOption func(*loggerOptions)

// WithLevel sets the minimum level from its text form ("debug", "warn", ...). Unknown or empty
// values keep the info level.
func WithLevel(text string) LoggerOption {
	return func(o *loggerOptions) {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(text)))); err == nil {
			o.level = level
		}
	}
}

// WithServiceContext adds the serviceContext field Cloud Error Reporting groups errors by.
func WithServiceContext(service, version string) LoggerOption {
	return func(o *loggerOptions) {
		o.service = strings.TrimSpace(service)
		o.version = strings.TrimSpace(version)
	}
}

// WithOutputPaths redirects log output, stdout by default.
func WithOutputPaths(paths ...string) LoggerOption {
	return func(o *loggerOptions) {
		if len(paths) > 0 {
			o.output = paths
		}
	}
}

// NewLogger builds the JSON logger in the Cloud Logging layout.
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	options := loggerOptions{level: defaultLogLevel, output: []string{"stdout"}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(options.level),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			NameKey:       "logger",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:   severityEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeName:    zapcore.FullNameEncoder,
		},
		OutputPaths:       options.output,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	var fields []zap.Field
	if options.service != "" {
		serviceContext := map[string]string{"service": options.service}
		if options.version != "" {
			serviceContext["version"] = options.version
		}
		fields = append(fields, zap.Any("serviceContext", serviceContext))
	}
	return cfg.Build(zap.Fields(fields...))
}

// severityEncoder writes zap levels as Cloud Logging severities.
func severityEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString("DEBUG")
	case zapcore.InfoLevel:
		enc.AppendString("INFO")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.ErrorLevel:
		enc.AppendString("ERROR")
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		enc.AppendString("CRITICAL")
	case zapcore.FatalLevel:
		enc.AppendString("ALERT")
	default:
		enc.AppendString("DEFAULT")
	}
}

// WithLogger attaches logger to ctx for code running outside an HTTP request.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bejimenez/magus/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds the JSON logger used by the API server. The level comes from
// MAGUS_LOG_LEVEL, then LOG_LEVEL, then defaults to info.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.Config{
		Level:             levelFromEnv(),
		Encoding:          "json",
		EncoderConfig:     cloudEncoderConfig(),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// NewConsoleLogger builds a human readable logger writing to stderr, for command line use.
func NewConsoleLogger(verbose bool) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg := zap.Config{
		Level:             level,
		Encoding:          "console",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     true,
		DisableStacktrace: true,
	}
	return cfg.Build()
}

func levelFromEnv() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	raw := strings.TrimSpace(os.Getenv("MAGUS_LOG_LEVEL"))
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil || raw == "" {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}
	return level
}

func cloudEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		CallerKey:      "caller",
		EncodeCaller:   zapcore.ShortCallerEncoder,
		StacktraceKey:  "stacktrace",
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// WithLogger stores logger on ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the logger stored on ctx.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// RedisLogger routes the go-redis client's internal messages into zap.
type RedisLogger struct {
	logger *zap.SugaredLogger
}

// NewRedisLogger wraps logger for use with redis.SetLogger.
func NewRedisLogger(logger *zap.Logger) RedisLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return RedisLogger{logger: logger.Named("redis").Sugar()}
}

// Printf implements the go-redis logging interface.
func (l RedisLogger) Printf(ctx context.Context, format string, args ...any) {
	l.logger.Warnf(format, args...)
}

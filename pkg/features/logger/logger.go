package logger

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// WithRequest tags log with the Lambda request id when ctx carries one.
func WithRequest(ctx context.Context, log *zap.Logger) *zap.Logger {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return log.With(zap.String("requestID", lc.AwsRequestID))
	}
	return log
}

// Phone masks all but the last four digits of a phone number.
func Phone(key, number string) zap.Field {
	if len(number) <= 4 {
		return zap.String(key, number)
	}
	masked := make([]byte, 0, len(number))
	for i := 0; i < len(number)-4; i++ {
		if number[i] == '+' {
			masked = append(masked, '+')
			continue
		}
		masked = append(masked, '*')
	}
	return zap.String(key, string(masked)+number[len(number)-4:])
}

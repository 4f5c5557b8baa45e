// Package zaplog adapts the cascade logging interfaces to zap.
package zaplog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/pkg/activity"
)

// Logger implements cascade.Logger and cascade.EvaluatorLogger.
type Logger struct {
	z *zap.Logger
}

var (
	_ cascade.Logger          = (*Logger)(nil)
	_ cascade.EvaluatorLogger = (*Logger)(nil)
)

// New wraps z. A nil logger is replaced with zap.NewNop.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Zap returns the wrapped logger.
func (l *Logger) Zap() *zap.Logger { return l.z }

// LogCascade implements cascade.Logger. Failures log at warn, applied
// changes and completed searches at info, everything else at debug.
func (l *Logger) LogCascade(event cascade.CascadeLogEvent) {
	fields := []zap.Field{
		zap.String("kind", event.Kind),
		zap.String("session", event.Session),
		zap.String("outcome", string(event.Outcome)),
		zap.Uint64("seq", event.Seq),
	}
	if event.Field.Valid() {
		fields = append(fields, zap.String("field", event.Field.String()))
	}
	if event.Kind == cascade.LogKindResolve {
		fields = append(fields, zap.String("level", event.Level.String()))
	}
	if event.Value != "" {
		fields = append(fields, zap.String("value", event.Value))
	}
	if event.Count > 0 || event.Outcome == cascade.OutcomeApplied {
		fields = append(fields, zap.Int("count", event.Count))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Err != nil {
		fields = append(fields, zap.Error(event.Err))
	}

	msg := event.Kind + " " + string(event.Outcome)
	if ce := l.z.Check(cascadeLevel(event), msg); ce != nil {
		ce.Write(fields...)
	}
}

func cascadeLevel(event cascade.CascadeLogEvent) zapcore.Level {
	switch {
	case event.Outcome == cascade.OutcomeFailed || event.Err != nil && event.Outcome != cascade.OutcomeSkipped:
		return zapcore.WarnLevel
	case event.Kind == cascade.LogKindChange,
		event.Kind == cascade.LogKindSearch && event.Outcome == cascade.OutcomeApplied:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// LogEvaluation implements cascade.EvaluatorLogger.
func (l *Logger) LogEvaluation(event cascade.EvaluatorLogEvent) {
	fields := []zap.Field{
		zap.String("engine", event.Engine),
		zap.String("expr", event.Expr),
		zap.String("scope", event.Scope),
		zap.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		l.z.Warn("precondition error", append(fields, zap.Error(event.Err))...)
		return
	}
	if ce := l.z.Check(zapcore.DebugLevel, "precondition evaluated"); ce != nil {
		ce.Write(append(fields, zap.Any("result", event.Result))...)
	}
}

// ActivityHook returns a hook that logs every activity event at debug.
func (l *Logger) ActivityHook() activity.ActivityHook {
	return activity.HookFunc(func(_ context.Context, event activity.Event) error {
		if ce := l.z.Check(zapcore.DebugLevel, "activity"); ce != nil {
			ce.Write(
				zap.String("verb", event.Verb),
				zap.String("object_type", event.ObjectType),
				zap.String("object_id", event.ObjectID),
				zap.String("session", event.SessionID),
				zap.String("field", event.Field),
				zap.Any("metadata", event.Metadata),
			)
		}
		return nil
	})
}

// Build constructs a production zap logger at level ("debug", "info",
// "warn", "error") using the console or json encoding.
func Build(level, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("zaplog: %w", err)
	}
	config.Level = zap.NewAtomicLevelAt(parsed)
	switch strings.TrimSpace(format) {
	case "", "json":
		config.Encoding = "json"
	case "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("zaplog: unknown format %q", format)
	}
	config.DisableStacktrace = parsed > zapcore.DebugLevel
	return config.Build()
}

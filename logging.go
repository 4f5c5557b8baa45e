package cascade

import "time"

// Outcome classifies what happened to a resolution or search.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeApplied    Outcome = "applied"
	OutcomeStale      Outcome = "stale"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// Kinds reported on CascadeLogEvent.
const (
	LogKindResolve  = "resolve"
	LogKindSearch   = "search"
	LogKindChange   = "change"
	LogKindActivity = "activity"
)

// CascadeLogEvent describes one controller step for logging.
type CascadeLogEvent struct {
	Kind     string
	Session  string
	Field    FieldName
	Value    string
	Level    Level
	Seq      uint64
	Outcome  Outcome
	Count    int
	Duration time.Duration
	Err      error
}

// Logger records controller events.
type Logger interface {
	LogCascade(CascadeLogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(CascadeLogEvent)

// LogCascade implements Logger.
func (f LoggerFunc) LogCascade(event CascadeLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogCascade(CascadeLogEvent) {}

// WithLogger attaches a controller logger.
func WithLogger(logger Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// EvaluatorLogEvent describes one precondition rule evaluation.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Scope    string
	Result   any
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records rule evaluations.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// WithEvaluatorLogger attaches a logger for precondition evaluations.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.evaluatorLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evaluatorLogger = logger
	}
}

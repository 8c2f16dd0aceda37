package linkz

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig defines logger configuration. Nested under Config, its variables
// are LINKZ_LOG_LEVEL and LINKZ_LOG_DEV.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" yaml:"level"`
	Development bool   `envconfig:"DEV" yaml:"development"`
}

// NewLogger builds a json (production) or console (development) logger.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.DisableStacktrace = !cfg.Development
	return zapCfg.Build()
}

// LogReporter writes finished spans as structured log entries.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter reports to logger.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs span at info, or at error when it carries an error tag.
func (r *LogReporter) Report(span Span) {
	fields := []zap.Field{
		zap.Stringer("trace_id", span.Context.TraceID),
		zap.Stringer("span_id", span.Context.SpanID),
		zap.Stringer("kind", span.Kind),
		zap.String("name", span.Name),
		zap.Duration("duration", span.Duration),
	}
	if span.Context.ParentID != 0 {
		fields = append(fields, zap.Stringer("parent_id", span.Context.ParentID))
	}
	if span.LocalEndpoint != nil {
		fields = append(fields, zap.String("service", span.LocalEndpoint.ServiceName))
	}
	if len(span.Tags) > 0 {
		fields = append(fields, zap.Any("tags", span.Tags))
	}

	if msg, ok := span.Tags[TagError]; ok {
		r.logger.Error("span completed with error", append(fields, zap.String("error", msg))...)
		return
	}
	r.logger.Info("span completed", fields...)
}

package linkz

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds tracer configuration. Environment variables use the LINKZ_
// prefix, e.g. LINKZ_SAMPLE_RATE. Defaults come from DefaultConfig, not
// struct tags: tag defaults would overwrite values loaded from a file.
type Config struct {
	ServiceName     string    `envconfig:"SERVICE_NAME" yaml:"service_name"`
	ExtraFields     []string  `envconfig:"EXTRA_FIELDS" yaml:"extra_fields"`
	SampleRate      float64   `envconfig:"SAMPLE_RATE" yaml:"sample_rate"`
	MaxRedirects    int       `envconfig:"MAX_REDIRECTS" yaml:"max_redirects"`
	ReportWorkers   int       `envconfig:"REPORT_WORKERS" yaml:"report_workers"`
	ReportQueue     int       `envconfig:"REPORT_QUEUE" yaml:"report_queue"`
	ExecutorWorkers int       `envconfig:"EXECUTOR_WORKERS" yaml:"executor_workers"`
	ExecutorQueue   int       `envconfig:"EXECUTOR_QUEUE" yaml:"executor_queue"`
	Log             LogConfig `yaml:"log"`
	TraceID128      bool      `envconfig:"TRACE_ID_128" yaml:"trace_id_128"`
}

const envPrefix = "linkz"

// LoadConfig loads configuration from environment variables over defaults.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads YAML from path, then lets environment variables
// override it.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:     "unknown",
		SampleRate:      1,
		MaxRedirects:    DefaultMaxRedirects,
		ReportWorkers:   4,
		ReportQueue:     1024,
		ExecutorWorkers: 8,
		ExecutorQueue:   256,
		TraceID128:      true,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if !(c.SampleRate >= 0 && c.SampleRate <= 1) {
		return fmt.Errorf("sample_rate %v outside [0, 1]", c.SampleRate)
	}
	if c.ReportWorkers < 0 || c.ReportQueue < 0 {
		return fmt.Errorf("report workers and queue must not be negative")
	}
	if c.ExecutorWorkers <= 0 || c.ExecutorQueue <= 0 {
		return fmt.Errorf("executor workers and queue must be > 0")
	}
	return nil
}

// NewFromConfig builds a tracer from cfg. Later opts override the config.
// A nil registerer disables metrics registration but still counts.
func NewFromConfig(cfg *Config, logger *zap.Logger, reg prometheus.Registerer, opts ...Option) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sampler, err := RateSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := []Option{
		WithServiceName(cfg.ServiceName),
		WithSampler(sampler),
		WithLogger(logger.Named("linkz")),
		WithMetrics(metrics),
		WithTraceID128(cfg.TraceID128),
		WithPropagation(B3{ExtraFields: cfg.ExtraFields}),
	}
	tracer := New(append(base, opts...)...)
	if cfg.ReportWorkers > 0 {
		if err := tracer.EnableWorkerPool(cfg.ReportWorkers, cfg.ReportQueue); err != nil {
			return nil, err
		}
	}
	return tracer, nil
}

// NewExecutorFromConfig builds the continuation executor described by cfg.
func NewExecutorFromConfig(cfg *Config) (*Executor, error) {
	return NewExecutor(cfg.ExecutorWorkers, cfg.ExecutorQueue)
}

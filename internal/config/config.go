package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Reader     ReaderConfig     `yaml:"reader" mapstructure:"reader"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              int `yaml:"port" mapstructure:"port"`
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	BurstLimit        int `yaml:"burst_limit" mapstructure:"burst_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	MaxSources          int     `yaml:"max_sources" mapstructure:"max_sources"`
	QualityThreshold    float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestTimeoutSecs  int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	CacheTTLMinutes     int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	FetchConcurrency    int     `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	MaxContextHistory   int     `yaml:"max_context_history" mapstructure:"max_context_history"`
	MaxContentLength    int     `yaml:"max_content_length" mapstructure:"max_content_length"`
}

// RequestTimeout returns the per-request timeout as a duration.
func (c PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// CacheTTL returns the search cache TTL as a duration.
func (c PipelineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// SearchConfig holds search provider settings.
type SearchConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ReaderConfig holds the content extraction provider settings.
type ReaderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"`
	GeminiKey      string  `yaml:"gemini_key" mapstructure:"gemini_key"`
	GeminiBaseURL  string  `yaml:"gemini_base_url" mapstructure:"gemini_base_url"`
	GeminiModel    string  `yaml:"gemini_model" mapstructure:"gemini_model"`
	AnthropicKey   string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string  `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
}

// TracingConfig gates the external tracing integration. When Enabled is
// false no trace URL is attached to briefs.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Project  string `yaml:"project" mapstructure:"project"`
	Key      string `yaml:"key" mapstructure:"key"`
}

// MonitoringConfig configures the metrics registry retention and the
// background alert checker.
type MonitoringConfig struct {
	RetainedExecutions   int     `yaml:"retained_executions" mapstructure:"retained_executions"`
	RetentionTTLMinutes  int     `yaml:"retention_ttl_minutes" mapstructure:"retention_ttl_minutes"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	AlertWebhookURL      string  `yaml:"alert_webhook_url" mapstructure:"alert_webhook_url"`
}

// RetentionTTL returns the finished-metrics TTL as a duration.
func (c MonitoringConfig) RetentionTTL() time.Duration {
	return time.Duration(c.RetentionTTLMinutes) * time.Minute
}

// PricingConfig holds per-provider pricing for cost estimation.
type PricingConfig struct {
	Gemini    ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	Anthropic ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Search    QueryPricing `yaml:"search" mapstructure:"search"`
	Reader    TokenPricing `yaml:"reader" mapstructure:"reader"`
}

// ModelPricing holds token pricing in USD per million tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// QueryPricing holds per-query pricing.
type QueryPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// TokenPricing holds flat per-million-token pricing.
type TokenPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_minute", 60)
	v.SetDefault("server.burst_limit", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research-brief.db")
	v.SetDefault("pipeline.max_sources", 10)
	v.SetDefault("pipeline.quality_threshold", 5.0)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.initial_backoff_ms", 500)
	v.SetDefault("pipeline.max_backoff_ms", 30000)
	v.SetDefault("pipeline.request_timeout_secs", 300)
	v.SetDefault("pipeline.cache_ttl_minutes", 60)
	v.SetDefault("pipeline.fetch_concurrency", 4)
	v.SetDefault("pipeline.max_context_history", 5)
	v.SetDefault("pipeline.max_content_length", 50000)
	v.SetDefault("search.base_url", "https://api.tavily.com")
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm.gemini_model", "gemini-1.5-flash")
	v.SetDefault("llm.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "https://api.smith.langchain.com")
	v.SetDefault("tracing.project", "research-brief")
	v.SetDefault("monitoring.retained_executions", 256)
	v.SetDefault("monitoring.retention_ttl_minutes", 60)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("pricing.gemini.input", 0.075)
	v.SetDefault("pricing.gemini.output", 0.30)
	v.SetDefault("pricing.anthropic.input", 1.00)
	v.SetDefault("pricing.anthropic.output", 5.00)
	v.SetDefault("pricing.search.per_query", 0.005)
	v.SetDefault("pricing.reader.per_mtok", 0.02)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Findymail  FindymailConfig  `yaml:"findymail" mapstructure:"findymail"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Pinecone   PineconeConfig   `yaml:"pinecone" mapstructure:"pinecone"`
	Smartlead  SmartleadConfig  `yaml:"smartlead" mapstructure:"smartlead"`
	Unipile    UnipileConfig    `yaml:"unipile" mapstructure:"unipile"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Dedupe     DedupeConfig     `yaml:"dedupe" mapstructure:"dedupe"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable lead store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PerplexityConfig holds research API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds visual analysis API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// FindymailConfig holds contact discovery API settings.
type FindymailConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds outreach content generation settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds embedding API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PineconeConfig holds vector index settings. Empty host falls back to the
// in-memory index (offline mode).
type PineconeConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	IndexHost string `yaml:"index_host" mapstructure:"index_host"`
}

// SmartleadConfig holds email campaign dispatch settings.
type SmartleadConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	CampaignID string `yaml:"campaign_id" mapstructure:"campaign_id"`
}

// UnipileConfig holds LinkedIn DM dispatch settings.
type UnipileConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	AccountID string `yaml:"account_id" mapstructure:"account_id"`
}

// SMTPConfig holds the direct-SMTP fallback for email outreach.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// SheetsConfig holds the spreadsheet queue settings.
type SheetsConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SpreadsheetID string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	TabName       string `yaml:"tab_name" mapstructure:"tab_name"`
}

// QueueConfig holds the AMQP event intake settings. Empty URL disables the
// consumer.
type QueueConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	QueueName string `yaml:"queue_name" mapstructure:"queue_name"`
}

// DedupeConfig configures embedding-based duplicate suppression.
type DedupeConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	TopK                int     `yaml:"top_k" mapstructure:"top_k"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	StageTimeoutSecs int           `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	RetryBaseBackoff time.Duration `yaml:"retry_base_backoff" mapstructure:"retry_base_backoff"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	MinVibeScore     int           `yaml:"min_vibe_score" mapstructure:"min_vibe_score"`
	MaxConcurrent    int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// PollConfig configures the spreadsheet poll adapter.
type PollConfig struct {
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
	RatePerSec float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("findymail.base_url", "https://api.findymail.com")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.model", "text-embedding-3-small")
	v.SetDefault("smartlead.base_url", "https://server.smartlead.ai")
	v.SetDefault("unipile.base_url", "https://api.unipile.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("sheets.tab_name", "Leads")
	v.SetDefault("queue.queue_name", "q.leads")
	v.SetDefault("dedupe.similarity_threshold", 0.95)
	v.SetDefault("dedupe.top_k", 1)
	v.SetDefault("pipeline.stage_timeout_secs", 60)
	v.SetDefault("pipeline.retry_base_backoff", "2s")
	v.SetDefault("pipeline.retry_max_attempts", 3)
	v.SetDefault("pipeline.min_vibe_score", 0)
	v.SetDefault("pipeline.max_concurrent", 5)
	v.SetDefault("poll.interval", "1h")
	v.SetDefault("poll.batch_size", 10)
	v.SetDefault("poll.rate_per_sec", 1.0)

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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	t := c.Dedupe.SimilarityThreshold
	if t < 0.80 || t > 1.0 {
		return eris.Errorf("config: dedupe.similarity_threshold %.2f outside [0.80, 1.00]", t)
	}
	if c.Pipeline.RetryMaxAttempts < 1 {
		return eris.New("config: pipeline.retry_max_attempts must be >= 1")
	}
	return nil
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

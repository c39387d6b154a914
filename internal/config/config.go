package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	CEIDG     CEIDGConfig     `yaml:"ceidg" mapstructure:"ceidg"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the task store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings. FastModel serves the
// high-volume filter and classification calls; ProModel drives the
// browser decision loop and page extraction.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	FastModel string `yaml:"fast_model" mapstructure:"fast_model"`
	ProModel  string `yaml:"pro_model" mapstructure:"pro_model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SearchConfig holds Google Custom Search API settings.
type SearchConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	EngineID    string  `yaml:"engine_id" mapstructure:"engine_id"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	ResultCount int     `yaml:"result_count" mapstructure:"result_count"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// CEIDGConfig holds business-registry API settings.
type CEIDGConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	MaxPages   int     `yaml:"max_pages" mapstructure:"max_pages"`
	MaxFirms   int     `yaml:"max_firms" mapstructure:"max_firms"`
	PageLimit  int     `yaml:"page_limit" mapstructure:"page_limit"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BrowserConfig holds the browser-automation RPC service settings.
type BrowserConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Secret      string `yaml:"secret" mapstructure:"secret"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScrapeConfig bounds the browser-driven scraping loops.
type ScrapeConfig struct {
	MaxSteps  int `yaml:"max_steps" mapstructure:"max_steps"`
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// EnrichConfig bounds the contact-enrichment pass.
type EnrichConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// CatalogConfig points at the PKD catalog file; empty uses the embedded one.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
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
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.pro_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.result_count", 10)
	v.SetDefault("search.rate_per_sec", 2.0)
	v.SetDefault("ceidg.base_url", "https://dane.biznes.gov.pl/api/ceidg/v3")
	v.SetDefault("ceidg.max_pages", 20)
	v.SetDefault("ceidg.max_firms", 30)
	v.SetDefault("ceidg.page_limit", 25)
	v.SetDefault("ceidg.rate_per_sec", 2.0)
	v.SetDefault("browser.timeout_secs", 90)
	v.SetDefault("scrape.max_steps", 5)
	v.SetDefault("scrape.batch_size", 3)
	v.SetDefault("enrich.concurrency", 3)

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

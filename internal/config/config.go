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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	BrightData BrightDataConfig `yaml:"brightdata" mapstructure:"brightdata"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	RedisURL        string `yaml:"redis_url" mapstructure:"redis_url"`
	SQLitePath      string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	ProfileTTLHours int    `yaml:"profile_ttl_hours" mapstructure:"profile_ttl_hours"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrightDataConfig holds Bright Data API settings.
type BrightDataConfig struct {
	Token          string  `yaml:"token" mapstructure:"token"`
	Zone           string  `yaml:"zone" mapstructure:"zone"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	ProfileDataset string  `yaml:"profile_dataset" mapstructure:"profile_dataset"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ParserModel   string `yaml:"parser_model" mapstructure:"parser_model"`
	SummaryModel  string `yaml:"summary_model" mapstructure:"summary_model"`
	ResearchModel string `yaml:"research_model" mapstructure:"research_model"`
}

// SearchConfig configures candidate discovery.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// ResearchConfig configures the research worker pool and workflow.
type ResearchConfig struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	QueueSize    int    `yaml:"queue_size" mapstructure:"queue_size"`
	MaxSummaries int    `yaml:"max_summaries" mapstructure:"max_summaries"`
	ConfigPath   string `yaml:"config_path" mapstructure:"config_path"`
}

// RetryConfig configures provider call retries.
type RetryConfig struct {
	MaxAttempts   int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS   int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxBackoffSec int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "profile-scout.db")
	v.SetDefault("store.profile_ttl_hours", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("brightdata.zone", "unblocker")
	v.SetDefault("brightdata.base_url", "https://api.brightdata.com")
	v.SetDefault("brightdata.timeout_secs", 60)
	v.SetDefault("brightdata.rate_limit", 5)
	v.SetDefault("anthropic.parser_model", "claude-haiku-4-5")
	v.SetDefault("anthropic.summary_model", "claude-haiku-4-5")
	v.SetDefault("anthropic.research_model", "claude-sonnet-4-5")
	v.SetDefault("search.max_results", 50)
	v.SetDefault("research.workers", 2)
	v.SetDefault("research.queue_size", 64)
	v.SetDefault("research.max_summaries", 5)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 500)
	v.SetDefault("retry.max_backoff_secs", 30)

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

// Validate checks the fields required by the given run mode. Modes map to
// commands: "serve", "search", "research", "import".
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "redis":
			if c.Store.RedisURL == "" {
				missing = append(missing, "store.redis_url is required for the redis driver")
			}
		default:
			missing = append(missing, "store.driver must be sqlite, postgres, or redis")
		}
	}

	switch mode {
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.BrightData.Token == "" {
			missing = append(missing, "brightdata.token is required")
		}
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Research.Workers < 1 || c.Research.Workers > 32 {
			missing = append(missing, "research.workers must be between 1 and 32")
		}
	case "search", "research":
		requireStore()
		if c.BrightData.Token == "" {
			missing = append(missing, "brightdata.token is required")
		}
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	case "import":
		requireStore()
		if c.BrightData.Token == "" {
			missing = append(missing, "brightdata.token is required")
		}
	case "jobs":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
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

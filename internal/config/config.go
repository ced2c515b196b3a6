package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Job     JobConfig     `yaml:"job" mapstructure:"job"`
	Pattern PatternConfig `yaml:"pattern" mapstructure:"pattern"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres result store.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures the MongoDB capture store.
type SourceConfig struct {
	URI            string        `yaml:"uri" mapstructure:"uri"`
	Database       string        `yaml:"database" mapstructure:"database"`
	BatchSize      int32         `yaml:"batch_size" mapstructure:"batch_size"`
	MaxPoolSize    uint64        `yaml:"max_pool_size" mapstructure:"max_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// JobConfig configures the reconciliation job and its schedule.
type JobConfig struct {
	Interval           time.Duration `yaml:"interval" mapstructure:"interval"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	BatchSize          int           `yaml:"batch_size" mapstructure:"batch_size"`
	ProjectConcurrency int           `yaml:"project_concurrency" mapstructure:"project_concurrency"`
	MaxRetries         int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBase          time.Duration `yaml:"retry_base" mapstructure:"retry_base"`
	RetryMax           time.Duration `yaml:"retry_max" mapstructure:"retry_max"`
	RetryLimit         int           `yaml:"retry_limit" mapstructure:"retry_limit"`
}

// PatternConfig configures step-name pattern resolution.
type PatternConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ServerConfig configures the statistics API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	APIToken       string   `yaml:"api_token" mapstructure:"api_token"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RetryConfig configures retries of connection setup.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
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
	v.SetEnvPrefix("KEYINGQC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("source.uri", "")
	v.SetDefault("source.database", "capture")
	v.SetDefault("source.batch_size", 100)
	v.SetDefault("source.max_pool_size", 20)
	v.SetDefault("source.connect_timeout", "10s")
	v.SetDefault("job.interval", "10m")
	v.SetDefault("job.timeout", "9m")
	v.SetDefault("job.batch_size", 200)
	v.SetDefault("job.project_concurrency", 4)
	v.SetDefault("job.max_retries", 5)
	v.SetDefault("job.retry_base", "5m")
	v.SetDefault("job.retry_max", "6h")
	v.SetDefault("job.retry_limit", 100)
	v.SetDefault("pattern.cache_ttl", "5m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "1s")
	v.SetDefault("retry.max_backoff", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode needs. Modes: "run",
// "schedule", "serve", "migrate" and "config".
func (c *Config) Validate(mode string) error {
	var errs []string

	needSource := false
	needJob := false
	switch mode {
	case "run":
		needSource, needJob = true, true
	case "schedule":
		needSource, needJob = true, true
		if c.Job.Interval <= 0 {
			errs = append(errs, "job.interval must be > 0")
		} else if c.Job.Timeout <= 0 || c.Job.Timeout >= c.Job.Interval {
			errs = append(errs, fmt.Sprintf("job.timeout (%s) must be > 0 and below job.interval (%s)", c.Job.Timeout, c.Job.Interval))
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "migrate", "config":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if needSource {
		if c.Source.URI == "" {
			errs = append(errs, "source.uri is required")
		}
		if c.Source.Database == "" {
			errs = append(errs, "source.database is required")
		}
	}
	if needJob {
		if c.Job.BatchSize < 1 || c.Job.BatchSize > 5000 {
			errs = append(errs, "job.batch_size must be between 1 and 5000")
		}
		if c.Job.ProjectConcurrency < 1 || c.Job.ProjectConcurrency > 64 {
			errs = append(errs, "job.project_concurrency must be between 1 and 64")
		}
		if c.Job.MaxRetries < 0 {
			errs = append(errs, "job.max_retries must be >= 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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

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
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// OverpassConfig configures the OpenStreetMap Overpass source.
type OverpassConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BrowserConfig configures the Maps enrichment browser.
type BrowserConfig struct {
	Headless           bool   `yaml:"headless" mapstructure:"headless"`
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	ConsentTimeoutSecs int    `yaml:"consent_timeout_secs" mapstructure:"consent_timeout_secs"`
	SettleDelaySecs    int    `yaml:"settle_delay_secs" mapstructure:"settle_delay_secs"`
	SearchSettleSecs   int    `yaml:"search_settle_secs" mapstructure:"search_settle_secs"`
}

// DiscoveryConfig configures discovery run behavior.
type DiscoveryConfig struct {
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	AreaTimeoutSecs int     `yaml:"area_timeout_secs" mapstructure:"area_timeout_secs"`
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

// Validate checks that the fields the given mode depends on are set.
func (c *Config) Validate(mode string) error {
	var missing []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	switch mode {
	case "discover":
		checkStore()
		if c.Overpass.BaseURL == "" {
			missing = append(missing, "overpass.base_url is required")
		}
		if c.Discovery.Concurrency < 1 || c.Discovery.Concurrency > 10 {
			missing = append(missing, "discovery.concurrency must be between 1 and 10")
		}
		if c.Discovery.RateLimit <= 0 {
			missing = append(missing, "discovery.rate_limit must be > 0")
		}
	case "enrich":
		checkStore()
		if c.Browser.BaseURL == "" {
			missing = append(missing, "browser.base_url is required")
		}
	case "serve":
		checkStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "migrate", "prospects":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
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
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "prospects.db")
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.base_url", "https://www.google.fr/maps")
	v.SetDefault("browser.consent_timeout_secs", 10)
	v.SetDefault("browser.settle_delay_secs", 1)
	v.SetDefault("browser.search_settle_secs", 3)
	v.SetDefault("discovery.concurrency", 1)
	v.SetDefault("discovery.rate_limit", 1.0)
	v.SetDefault("discovery.area_timeout_secs", 180)
	v.SetDefault("server.port", 8080)
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

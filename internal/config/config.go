// Package config loads application configuration from config.yaml with
// environment-variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"daytrader/internal/logger"
)

type Config struct {
	Alpaca   AlpacaConfig   `mapstructure:"alpaca"`
	Screen   ScreenConfig   `mapstructure:"screen"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Log      logger.Options `mapstructure:"log"`
}

type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	Feed      string `mapstructure:"feed"` // "iex" or "sip"
}

// ScreenConfig bounds the universe selected at startup.
type ScreenConfig struct {
	MinSharePrice   float64 `mapstructure:"min_share_price"`
	MaxSharePrice   float64 `mapstructure:"max_share_price"`
	MinDollarVolume float64 `mapstructure:"min_dollar_volume"`
	MinChangePct    float64 `mapstructure:"min_change_pct"`
	MaxSymbols      int     `mapstructure:"max_symbols"`
}

type TradingConfig struct {
	BackfillMinutes int           `mapstructure:"backfill_minutes"`
	StaleOrderAfter time.Duration `mapstructure:"stale_order_after"`
	AccountCacheTTL time.Duration `mapstructure:"account_cache_ttl"`
	DecisionsPath   string        `mapstructure:"decisions_path"`
}

// PostgresConfig configures the minute-bar sink. An empty host disables it.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) Enabled() bool { return c.Host != "" }

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Load reads config.yaml from the working directory (or the path given in
// DAYTRADER_CONFIG) and applies environment overrides with dot-to-underscore
// mapping, e.g. ALPACA_API_KEY.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("DAYTRADER_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	// Defaults also register every key so environment overrides reach
	// Unmarshal even without a config file.
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env + defaults may be enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// The Alpaca SDK's canonical variable names always win when set.
	if key := v.GetString("APCA_API_KEY_ID"); key != "" {
		cfg.Alpaca.APIKey = key
	}
	if secret := v.GetString("APCA_API_SECRET_KEY"); secret != "" {
		cfg.Alpaca.APISecret = secret
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alpaca.api_key", "")
	v.SetDefault("alpaca.api_secret", "")
	v.SetDefault("alpaca.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.feed", "iex")
	v.SetDefault("screen.min_share_price", 5.0)
	v.SetDefault("screen.max_share_price", 50.0)
	v.SetDefault("screen.min_dollar_volume", 1000000.0)
	v.SetDefault("screen.min_change_pct", 3.5)
	v.SetDefault("screen.max_symbols", 50)
	v.SetDefault("trading.backfill_minutes", 1000)
	v.SetDefault("trading.stale_order_after", time.Minute)
	v.SetDefault("trading.account_cache_ttl", 30*time.Second)
	v.SetDefault("trading.decisions_path", "decisions.ndjson")
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg Config) error {
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return fmt.Errorf("alpaca api_key and api_secret are required")
	}
	if cfg.Alpaca.Feed != "iex" && cfg.Alpaca.Feed != "sip" {
		return fmt.Errorf("invalid feed: %s", cfg.Alpaca.Feed)
	}
	if cfg.Screen.MinSharePrice <= 0 || cfg.Screen.MaxSharePrice < cfg.Screen.MinSharePrice {
		return fmt.Errorf("screen price band is invalid")
	}
	if cfg.Screen.MaxSymbols <= 0 {
		return fmt.Errorf("screen max_symbols must be > 0")
	}
	if cfg.Trading.BackfillMinutes <= 0 {
		return fmt.Errorf("trading backfill_minutes must be > 0")
	}
	if cfg.Trading.StaleOrderAfter <= 0 {
		return fmt.Errorf("trading stale_order_after must be > 0")
	}
	if cfg.Trading.AccountCacheTTL < 0 {
		return fmt.Errorf("trading account_cache_ttl must be >= 0")
	}
	return nil
}

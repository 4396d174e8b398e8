package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Alpaca: AlpacaConfig{
			APIKey:    "key",
			APISecret: "secret",
			Feed:      "iex",
		},
		Screen: ScreenConfig{
			MinSharePrice:   5,
			MaxSharePrice:   50,
			MinDollarVolume: 1000000,
			MinChangePct:    3.5,
			MaxSymbols:      50,
		},
		Trading: TradingConfig{
			BackfillMinutes: 1000,
			StaleOrderAfter: time.Minute,
			AccountCacheTTL: 30 * time.Second,
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing credentials", func(c *Config) { c.Alpaca.APIKey = "" }},
		{"bad feed", func(c *Config) { c.Alpaca.Feed = "polygon" }},
		{"inverted price band", func(c *Config) { c.Screen.MaxSharePrice = 1 }},
		{"zero max symbols", func(c *Config) { c.Screen.MaxSymbols = 0 }},
		{"zero backfill", func(c *Config) { c.Trading.BackfillMinutes = 0 }},
		{"zero stale-order cutoff", func(c *Config) { c.Trading.StaleOrderAfter = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("ALPACA_API_SECRET", "env-secret")
	t.Setenv("SCREEN_MAX_SYMBOLS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Alpaca.APIKey)
	require.Equal(t, 10, cfg.Screen.MaxSymbols)
	require.Equal(t, "https://paper-api.alpaca.markets", cfg.Alpaca.BaseURL)
}

func TestLoadPrefersAlpacaCanonicalEnv(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "config-key")
	t.Setenv("ALPACA_API_SECRET", "config-secret")
	t.Setenv("APCA_API_KEY_ID", "canonical-key")
	t.Setenv("APCA_API_SECRET_KEY", "canonical-secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "canonical-key", cfg.Alpaca.APIKey)
	require.Equal(t, "canonical-secret", cfg.Alpaca.APISecret)
}

func TestPostgresDSN(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "bars", SSLMode: "disable"}
	require.True(t, pg.Enabled())
	require.Equal(t, "host=db port=5432 user=u password=p dbname=bars sslmode=disable", pg.DSN())
	require.False(t, PostgresConfig{}.Enabled())
}

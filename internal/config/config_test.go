package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	quote, base, err := cfg.Trading.SeedBalances()
	require.NoError(t, err)
	assert.Equal(t, "500", quote.String())
	assert.Equal(t, "0.1", base.String())
	assert.Equal(t, ":8000", cfg.Server.Addr())
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "server"

[trading]
seed_quote = "1000"
scope = "pair"

[feed]
pairs = ["SOLUSDT"]
price_interval = "250ms"

[archive]
cron = "*/15 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "1000", cfg.Trading.SeedQuote)
	assert.Equal(t, "0.1", cfg.Trading.SeedBase)
	assert.Equal(t, "pair", cfg.Trading.Scope)
	assert.Equal(t, []string{"SOLUSDT"}, cfg.Feed.Pairs)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.PriceInterval.Duration)
	assert.Equal(t, time.Second, cfg.Feed.DepthInterval.Duration)
	assert.Equal(t, "*/15 * * * *", cfg.Archive.Cron)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAPERTRADE_MODE", "feed")
	t.Setenv("PAPERTRADE_FEED_PAIRS", " btcusdt , ,ethusdt")
	t.Setenv("PAPERTRADE_FEED_DEPTH_INTERVAL", "3s")
	t.Setenv("PAPERTRADE_REDIS_DB", "4")
	t.Setenv("PAPERTRADE_REDIS_STREAM_MAX_LEN", "77")
	t.Setenv("PAPERTRADE_S3_ENABLED", "true")
	t.Setenv("PAPERTRADE_SERVER_API_KEY", "secret")
	t.Setenv("PAPERTRADE_POSTGRES_PORT", "not-a-number")
	t.Setenv("PAPERTRADE_SERVER_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.4")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "feed", cfg.Mode)
	assert.Equal(t, []string{"btcusdt", "ethusdt"}, cfg.Feed.Pairs)
	assert.Equal(t, 3*time.Second, cfg.Feed.DepthInterval.Duration)
	assert.Equal(t, 4, cfg.Redis.DB)
	assert.Equal(t, int64(77), cfg.Redis.StreamMaxLen)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.4"}, cfg.Server.TrustedProxies)
}

func TestServerConfig_TrustedProxyPrefixes(t *testing.T) {
	s := ServerConfig{TrustedProxies: []string{"10.0.0.1/8", " 192.0.2.4 ", "", "::1"}}
	got, err := s.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "192.0.2.4/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())

	cfg := Defaults()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/33"}
	assert.ErrorContains(t, cfg.Validate(), "trusted_proxies")
	cfg.Server.TrustedProxies = []string{"proxy.internal"}
	assert.ErrorContains(t, cfg.Validate(), "trusted_proxies")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Trading.SeedQuote = "abc"
	cfg.Trading.Scope = "global"
	cfg.Redis.Addr = ""
	cfg.Server.APIKeyHash = "deadbeef"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "trading: seed_quote")
	assert.Contains(t, msg, "trading: scope")
	assert.Contains(t, msg, "redis: addr")
	assert.Contains(t, msg, "api_key_hash and api_key_salt")
}

func TestValidate_NegativeSeed(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.SeedBase = "-1"
	assert.ErrorContains(t, cfg.Validate(), "must not be negative")
}

func TestValidate_OptionalBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Database = ""
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate())

	cfg.Postgres.Enabled = true
	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: database")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidate_FeedPairsOnlyForFeedModes(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.Pairs = nil
	assert.Error(t, cfg.Validate())

	cfg.Mode = "server"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "k"
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "s"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Redis.Password)

	assert.Equal(t, "k", cfg.Server.APIKey)
	out.Feed.Pairs[0] = "XRPUSDT"
	assert.Equal(t, "BTCUSDT", cfg.Feed.Pairs[0])
}

func TestLoad_ExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)

	def := Defaults()
	assert.Equal(t, def, *cfg)
}

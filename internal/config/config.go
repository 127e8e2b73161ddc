package config

import (
	"strings"
	"time"

	"price-aggregator/internal/domain"

	"github.com/spf13/viper"
)

type SourceConfig struct {
	Enabled bool
	BaseURL string
	// APIKeys are rotated round-robin by the batcher.
	APIKeys    []string
	PerMinute  int
	PerDay     int
	BatchDelay time.Duration
}

type ChainlinkConfig struct {
	Enabled         bool
	NodeURL         string
	EtherscanURL    string
	EtherscanAPIKey string
	ContractsFile   string
	CryptoPrimary   bool
}

type DiscordConfig struct {
	WebhookURL string
	Username   string
	AvatarURL  string
}

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port        string
	DatabaseURL string
	// Driver
	CycleDuration   time.Duration
	CycleMinDelay   time.Duration
	ProviderTimeout time.Duration
	ReferenceTicker string
	// Redis (reference cache, quota ledger)
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ReferenceCache       string
	ReferenceRefreshCron string
	// Sources
	AlphaVantage  SourceConfig
	CoinGecko     SourceConfig
	CoinMarketCap SourceConfig
	Chainlink     ChainlinkConfig
	// Incidents
	Discord DiscordConfig
	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
	ServiceName    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "local")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("CYCLE_DURATION", "0")
	v.SetDefault("CYCLE_MIN_DELAY", "1m")
	v.SetDefault("PROVIDER_TIMEOUT", "30s")
	v.SetDefault("REFERENCE_TICKER", "USD")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REFERENCE_CACHE", "redis")
	v.SetDefault("REFERENCE_REFRESH_CRON", "0 0 2 * * *")

	v.SetDefault("AA_ENABLED", true)
	v.SetDefault("AA_URL", "https://www.alphavantage.co")
	v.SetDefault("AA_API_KEY", "")
	v.SetDefault("AA_API_KEYS", "")
	v.SetDefault("AA_LIMIT_PER_MINUTE", 5)
	v.SetDefault("AA_LIMIT_PER_DAY", 500)
	v.SetDefault("AA_BATCH_DELAY", "0")

	v.SetDefault("CG_ENABLED", true)
	v.SetDefault("CG_URL", "https://api.coingecko.com/api/v3")
	v.SetDefault("CG_API_KEY", "")
	v.SetDefault("CG_LIMIT_PER_MINUTE", 1)
	v.SetDefault("CG_LIMIT_PER_DAY", 0)
	v.SetDefault("CG_BATCH_DELAY", "10s")

	v.SetDefault("CMC_ENABLED", true)
	v.SetDefault("CMC_URL", "https://pro-api.coinmarketcap.com/v1")
	v.SetDefault("CMC_API_KEY", "")

	v.SetDefault("CHAINLINK_ENABLED", true)
	v.SetDefault("ETHEREUM_NODE_URL", "")
	v.SetDefault("ETHERSCAN_URL", "https://api.etherscan.io/api")
	v.SetDefault("ETHERSCAN_API_KEY", "")
	v.SetDefault("CHAINLINK_CONTRACTS_FILE", "currency-contract-address.json")
	v.SetDefault("CHAINLINK_CRYPTO_PRIMARY", false)

	v.SetDefault("DISCORD_WEBHOOK_URL", "")
	v.SetDefault("DISCORD_WEBHOOK_USERNAME", "Price Aggregator Logger")
	v.SetDefault("DISCORD_WEBHOOK_AVATAR_URL", "")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SERVICE_NAME", "price-aggregator")
}

// splitKeys merges a single key and a comma-separated key list, dropping blanks and duplicates.
func splitKeys(single, list string) []string {
	var out []string
	seen := map[string]bool{}
	for _, k := range append([]string{single}, strings.Split(list, ",")...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Load reads environment variables and applies defaults.
func Load() Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return Config{
		Env:                  v.GetString("ENV"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		Port:                 v.GetString("PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		CycleDuration:        v.GetDuration("CYCLE_DURATION"),
		CycleMinDelay:        v.GetDuration("CYCLE_MIN_DELAY"),
		ProviderTimeout:      v.GetDuration("PROVIDER_TIMEOUT"),
		ReferenceTicker:      strings.ToUpper(v.GetString("REFERENCE_TICKER")),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		ReferenceCache:       strings.ToLower(v.GetString("REFERENCE_CACHE")),
		ReferenceRefreshCron: v.GetString("REFERENCE_REFRESH_CRON"),
		AlphaVantage: SourceConfig{
			Enabled:    v.GetBool("AA_ENABLED"),
			BaseURL:    v.GetString("AA_URL"),
			APIKeys:    splitKeys(v.GetString("AA_API_KEY"), v.GetString("AA_API_KEYS")),
			PerMinute:  v.GetInt("AA_LIMIT_PER_MINUTE"),
			PerDay:     v.GetInt("AA_LIMIT_PER_DAY"),
			BatchDelay: v.GetDuration("AA_BATCH_DELAY"),
		},
		CoinGecko: SourceConfig{
			Enabled:    v.GetBool("CG_ENABLED"),
			BaseURL:    v.GetString("CG_URL"),
			APIKeys:    splitKeys(v.GetString("CG_API_KEY"), ""),
			PerMinute:  v.GetInt("CG_LIMIT_PER_MINUTE"),
			PerDay:     v.GetInt("CG_LIMIT_PER_DAY"),
			BatchDelay: v.GetDuration("CG_BATCH_DELAY"),
		},
		CoinMarketCap: SourceConfig{
			Enabled: v.GetBool("CMC_ENABLED"),
			BaseURL: v.GetString("CMC_URL"),
			APIKeys: splitKeys(v.GetString("CMC_API_KEY"), ""),
		},
		Chainlink: ChainlinkConfig{
			Enabled:         v.GetBool("CHAINLINK_ENABLED"),
			NodeURL:         v.GetString("ETHEREUM_NODE_URL"),
			EtherscanURL:    v.GetString("ETHERSCAN_URL"),
			EtherscanAPIKey: v.GetString("ETHERSCAN_API_KEY"),
			ContractsFile:   v.GetString("CHAINLINK_CONTRACTS_FILE"),
			CryptoPrimary:   v.GetBool("CHAINLINK_CRYPTO_PRIMARY"),
		},
		Discord: DiscordConfig{
			WebhookURL: v.GetString("DISCORD_WEBHOOK_URL"),
			Username:   v.GetString("DISCORD_WEBHOOK_USERNAME"),
			AvatarURL:  v.GetString("DISCORD_WEBHOOK_AVATAR_URL"),
		},
		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		OTLPEndpoint:   v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:    v.GetString("OTEL_SERVICE_NAME"),
	}
}

// DisabledSources returns the sources that cannot run, keyed by source label, with the reason.
func (c Config) DisabledSources() map[string]string {
	out := map[string]string{}
	switch {
	case !c.AlphaVantage.Enabled:
		out[domain.SourceAlphaVantage] = "AA_ENABLED=false"
	case len(c.AlphaVantage.APIKeys) == 0:
		out[domain.SourceAlphaVantage] = "AA_API_KEY not set"
	}
	if !c.CoinGecko.Enabled {
		out[domain.SourceCoinGecko] = "CG_ENABLED=false"
	}
	switch {
	case !c.CoinMarketCap.Enabled:
		out[domain.SourceCoinMarketCap] = "CMC_ENABLED=false"
	case c.CoinMarketCap.BaseURL == "" || len(c.CoinMarketCap.APIKeys) == 0:
		out[domain.SourceCoinMarketCap] = "CMC_URL or CMC_API_KEY not set"
	}
	switch {
	case !c.Chainlink.Enabled:
		out[domain.SourceChainlink] = "CHAINLINK_ENABLED=false"
	case c.Chainlink.NodeURL == "":
		out[domain.SourceChainlink] = "ETHEREUM_NODE_URL not set"
	}
	return out
}

func (c Config) SourceEnabled(source string) bool {
	_, disabled := c.DisabledSources()[source]
	return !disabled
}

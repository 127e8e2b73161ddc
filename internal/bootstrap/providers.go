package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/config"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/httpx"
	"price-aggregator/internal/infrastructure/logx"
	"price-aggregator/internal/infrastructure/notify"
	"price-aggregator/internal/infrastructure/pg"
	"price-aggregator/internal/infrastructure/provider"
	redisstore "price-aggregator/internal/infrastructure/redis"
	"price-aggregator/internal/infrastructure/worker"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

var ErrMissingDBURL = errors.New("DATABASE_URL is required")

type Stores struct {
	Currencies *pg.CurrencyRepo
	History    *pg.HistoryRepo
	Watermarks *pg.WatermarkRepo
	ABIs       *pg.ABIRepo
}

// Sources holds the enabled adapters. Disabled ones are nil.
type Sources struct {
	AlphaVantage  *provider.AlphaVantage
	CoinGecko     *provider.CoinGecko
	CoinMarketCap *provider.CoinMarketCap
	Chainlink     *provider.Chainlink
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

func ProvideDB(ctx context.Context, log *zap.Logger, cfg config.Config) (*pg.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, ErrMissingDBURL
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}
	if err := pg.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, func() {}, err
	}
	cleanup := func() {
		log.Info("closing pg")
		db.Close()
	}
	return db, cleanup, nil
}

func ProvideStores(db *pg.DB) Stores {
	return Stores{
		Currencies: pg.NewCurrencyRepo(db),
		History:    pg.NewHistoryRepo(db),
		Watermarks: pg.NewWatermarkRepo(db),
		ABIs:       pg.NewABIRepo(db),
	}
}

// ProvideRedisClient returns nil when REFERENCE_CACHE=memory.
func ProvideRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, func(), error) {
	if cfg.ReferenceCache == "memory" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, func() {}, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideReferenceCache(client *redis.Client) application.ReferenceCache {
	if client == nil {
		return redisstore.NewMemoryCache()
	}
	return redisstore.New(client)
}

func dailyBudget(s config.SourceConfig) int {
	if s.PerDay <= 0 {
		return 0
	}
	return s.PerDay * max(1, len(s.APIKeys))
}

// ProvideQuotaLedger keeps daily budgets in Redis when available so restarts
// within a day do not reset them.
func ProvideQuotaLedger(client *redis.Client, cfg config.Config) (application.QuotaLedger, error) {
	limits := map[string]int{
		domain.SourceAlphaVantage: dailyBudget(cfg.AlphaVantage),
		domain.SourceCoinGecko:    dailyBudget(cfg.CoinGecko),
	}
	if client == nil {
		return redisstore.NewQuotaLedger(memory.NewStore(), limits), nil
	}
	store, err := redisstore.NewRedisQuotaStore(client)
	if err != nil {
		return nil, err
	}
	return redisstore.NewQuotaLedger(store, limits), nil
}

func ProvideIncidents(cfg config.Config) application.IncidentSink {
	if cfg.Discord.WebhookURL == "" {
		return notify.LogSink{}
	}
	return notify.NewDiscord(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.AvatarURL, nil)
}

func ProvideHTTPClient(cfg config.Config) *httpx.Client {
	return &httpx.Client{
		HTTP:       &http.Client{Timeout: cfg.ProviderTimeout},
		MaxElapsed: 10 * time.Second,
	}
}

// ProvideSources builds the adapters that have the settings they need.
func ProvideSources(ctx context.Context, cfg config.Config, client *httpx.Client, cache application.ReferenceCache, stores Stores) (Sources, func(), error) {
	var s Sources
	cleanup := func() {}
	if cfg.SourceEnabled(domain.SourceAlphaVantage) {
		s.AlphaVantage = provider.NewAlphaVantage(cfg.AlphaVantage.BaseURL, client, cache)
	}
	if cfg.SourceEnabled(domain.SourceCoinGecko) {
		var key string
		if len(cfg.CoinGecko.APIKeys) > 0 {
			key = cfg.CoinGecko.APIKeys[0]
		}
		s.CoinGecko = provider.NewCoinGecko(cfg.CoinGecko.BaseURL, key, client, cache)
	}
	if cfg.SourceEnabled(domain.SourceCoinMarketCap) {
		s.CoinMarketCap = provider.NewCoinMarketCap(cfg.CoinMarketCap.BaseURL, cfg.CoinMarketCap.APIKeys[0], cfg.ProviderTimeout, nil)
	}
	if cfg.SourceEnabled(domain.SourceChainlink) {
		eth, err := ethclient.DialContext(ctx, cfg.Chainlink.NodeURL)
		if err != nil {
			return Sources{}, cleanup, fmt.Errorf("dial ethereum node: %w", err)
		}
		cleanup = eth.Close
		var es *provider.Etherscan
		if cfg.Chainlink.EtherscanAPIKey != "" {
			es = provider.NewEtherscan(cfg.Chainlink.EtherscanURL, cfg.Chainlink.EtherscanAPIKey, client)
		}
		registry := provider.NewContractRegistry(cfg.Chainlink.ContractsFile, stores.ABIs, es)
		s.Chainlink = provider.NewChainlink(eth, registry, stores.Currencies, cache)
	}
	return s, cleanup, nil
}

func batcherConfig(source string, s config.SourceConfig, timeout time.Duration) application.BatcherConfig {
	return application.BatcherConfig{
		Source:      source,
		PerMinute:   s.PerMinute,
		PerDay:      dailyBudget(s),
		Credentials: s.APIKeys,
		Delay:       s.BatchDelay,
		CallTimeout: timeout,
	}
}

func ProvideHistorySyncs(cfg config.Config, s Sources, stores Stores, ledger application.QuotaLedger, incidents application.IncidentSink, log *zap.Logger) []application.HistoryPass {
	var out []application.HistoryPass
	add := func(src application.SeriesSource, sc config.SourceConfig) {
		b := application.NewBatcher(batcherConfig(src.Name(), sc, cfg.ProviderTimeout),
			application.WithQuotaLedger(ledger),
			application.WithBatcherIncidents(incidents),
			application.WithBatcherLogger(log),
		)
		out = append(out, application.NewHistorySync(src, b, stores.Currencies, stores.History, stores.Watermarks,
			application.WithHistoryIncidents(incidents),
			application.WithHistoryLogger(log),
		))
	}
	if s.AlphaVantage != nil {
		add(s.AlphaVantage, cfg.AlphaVantage)
	}
	if s.CoinGecko != nil {
		add(s.CoinGecko, cfg.CoinGecko)
	}
	return out
}

func ProvideReconciler(cfg config.Config, s Sources, stores Stores, incidents application.IncidentSink, log *zap.Logger) *application.Reconciler {
	opts := []application.ReconcilerOption{
		application.WithReconcilerIncidents(incidents),
		application.WithReconcilerLogger(log),
	}
	if s.Chainlink != nil {
		opts = append(opts, application.WithOracle(s.Chainlink))
	}
	if s.CoinGecko != nil {
		opts = append(opts, application.WithLive(s.CoinGecko))
	}
	if s.CoinMarketCap != nil {
		opts = append(opts, application.WithListing(s.CoinMarketCap))
	}
	return application.NewReconciler(application.ReconcilerConfig{
		ReferenceTicker: cfg.ReferenceTicker,
		OracleForCrypto: cfg.Chainlink.CryptoPrimary,
	}, stores.Currencies, opts...)
}

func ProvideDriver(cfg config.Config, r *application.Reconciler, histories []application.HistoryPass, incidents application.IncidentSink, log *zap.Logger) *application.Driver {
	return application.NewDriver(application.DriverConfig{
		Period:   cfg.CycleDuration,
		MinDelay: cfg.CycleMinDelay,
		Disabled: cfg.DisabledSources(),
	}, r, histories,
		application.WithDriverIncidents(incidents),
		application.WithDriverLogger(log),
	)
}

func refreshers(s Sources) []application.ReferenceRefresher {
	var out []application.ReferenceRefresher
	if s.AlphaVantage != nil {
		out = append(out, s.AlphaVantage)
	}
	if s.CoinGecko != nil {
		out = append(out, s.CoinGecko)
	}
	return out
}

// ProvideRefreshWorker schedules the supported-symbol list refresh. It returns nil when
// REFERENCE_REFRESH_CRON is empty or no source keeps a list.
func ProvideRefreshWorker(cfg config.Config, s Sources, incidents application.IncidentSink, log *zap.Logger) (*worker.CronWorker, error) {
	refs := refreshers(s)
	if cfg.ReferenceRefreshCron == "" || len(refs) == 0 {
		return nil, nil
	}
	refresh := application.NewReferenceRefresh(refs, incidents, log)
	return worker.NewCronWorker("reference_refresh", cfg.ReferenceRefreshCron, func(ctx context.Context) {
		refresh.Run(ctx)
	}, log)
}

package bootstrap

import (
	"context"
	"slices"

	"price-aggregator/internal/application"
	"price-aggregator/internal/config"
	httpserver "price-aggregator/internal/infrastructure/http"
	"price-aggregator/internal/infrastructure/logx"
	"price-aggregator/internal/infrastructure/tracing"
	"price-aggregator/internal/infrastructure/worker"

	"go.uber.org/zap"
)

// cleanups runs registered teardown funcs in reverse order.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for _, fn := range slices.Backward(c) {
		fn()
	}
}

func provideTracer(ctx context.Context, cfg config.Config, log *zap.Logger) (func(), error) {
	tp, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return func() {}, err
	}
	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer_shutdown_failed", zap.Error(err))
		}
	}, nil
}

// Aggregator is the long-running process: the pass driver plus the optional
// reference list refresh.
type Aggregator struct {
	Driver  *application.Driver
	Refresh *worker.CronWorker
}

// Workers lists the long-running processes to start.
func (a *Aggregator) Workers() []application.Worker {
	out := []application.Worker{a.Driver}
	if a.Refresh != nil {
		out = append(out, a.Refresh)
	}
	return out
}

// Run executes a single pass when once is set or no cycle period is configured,
// otherwise it starts every worker and blocks until ctx is canceled.
func (a *Aggregator) Run(ctx context.Context, once bool) {
	if once || !a.Driver.Continuous() {
		rep := a.Driver.RunPass(ctx)
		logx.L().Info("aggregator.single_pass_done",
			zap.Duration("took", rep.Duration),
			zap.Bool("panicked", rep.Panicked),
		)
		return
	}
	worker.Run(ctx, a.Workers()...)
}

func InitAggregator(ctx context.Context) (*Aggregator, func(), error) {
	var cl cleanups
	fail := func(err error) (*Aggregator, func(), error) {
		cl.run()
		return nil, func() {}, err
	}

	log := ProvideLogger()
	cfg := ProvideConfig()

	stopTracer, err := provideTracer(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	cl.add(stopTracer)

	db, closeDB, err := ProvideDB(ctx, log, cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(closeDB)
	stores := ProvideStores(db)

	rdb, closeRedis, err := ProvideRedisClient(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(closeRedis)
	cache := ProvideReferenceCache(rdb)
	ledger, err := ProvideQuotaLedger(rdb, cfg)
	if err != nil {
		return fail(err)
	}

	incidents := ProvideIncidents(cfg)
	sources, closeSources, err := ProvideSources(ctx, cfg, ProvideHTTPClient(cfg), cache, stores)
	if err != nil {
		return fail(err)
	}
	cl.add(closeSources)

	histories := ProvideHistorySyncs(cfg, sources, stores, ledger, incidents, log)
	reconciler := ProvideReconciler(cfg, sources, stores, incidents, log)
	driver := ProvideDriver(cfg, reconciler, histories, incidents, log)
	refresh, err := ProvideRefreshWorker(cfg, sources, incidents, log)
	if err != nil {
		return fail(err)
	}
	return &Aggregator{Driver: driver, Refresh: refresh}, cl.run, nil
}

func InitAPI(ctx context.Context) (*httpserver.Server, func(), error) {
	var cl cleanups
	log := ProvideLogger()
	cfg := ProvideConfig()

	stopTracer, err := provideTracer(ctx, cfg, log)
	if err != nil {
		return nil, func() {}, err
	}
	cl.add(stopTracer)

	db, closeDB, err := ProvideDB(ctx, log, cfg)
	if err != nil {
		cl.run()
		return nil, func() {}, err
	}
	cl.add(closeDB)
	stores := ProvideStores(db)

	srv := httpserver.NewServer(application.NewCatalogService(stores.Currencies, stores.History))
	srv.SetReadyCheck(db.Ping)
	return srv, cl.run, nil
}

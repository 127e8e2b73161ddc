package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"price-aggregator/internal/application"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var _ application.Worker = (*CronWorker)(nil)

// CronWorker runs job on a six-field (with seconds) cron schedule, in UTC.
// Overlapping runs are skipped.
type CronWorker struct {
	name string
	cron *cron.Cron
	job  func(ctx context.Context)
	log  *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

func NewCronWorker(name, spec string, job func(ctx context.Context), log *zap.Logger) (*CronWorker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w := &CronWorker{name: name, job: job, log: log.With(zap.String("worker", name))}
	w.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := w.cron.AddFunc(spec, w.run); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return w, nil
}

func (w *CronWorker) run() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	start := time.Now()
	w.job(ctx)
	w.log.Info("cron_worker.run_done", zap.Duration("took", time.Since(start)))
}

// Start blocks until ctx is canceled, then waits for a running job to return.
func (w *CronWorker) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.cron.Start()
	w.log.Info("cron_worker.started", zap.Time("next", w.cron.Entries()[0].Next))
	<-ctx.Done()
	<-w.cron.Stop().Done()
	w.log.Info("cron_worker.stopped")
}

// Run starts every worker and returns once all of them have returned.
func Run(ctx context.Context, workers ...application.Worker) {
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Start(ctx)
		}()
	}
	wg.Wait()
}

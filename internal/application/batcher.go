package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"price-aggregator/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one rate-limited provider call. Run receives the credential assigned to it.
type Job struct {
	ID  string
	Run func(ctx context.Context, credential string) error
}

type BatcherConfig struct {
	Source string
	// PerMinute is the provider's per-minute call limit for a single credential.
	PerMinute int
	// PerDay caps jobs executed in one pass. Zero disables the cap.
	PerDay      int
	Credentials []string
	// Delay overrides the derived inter-window delay.
	Delay       time.Duration
	CallTimeout time.Duration
}

// BatchReport summarises one Execute call.
type BatchReport struct {
	Windows  []int
	Executed int
	Failed   int
	Empty    int
	Deferred int
	QuotaHit bool
}

// Batcher runs jobs in fixed-size windows with a delay between windows.
// Windows run strictly one after another; jobs inside a window run concurrently.
type Batcher struct {
	cfg    BatcherConfig
	window int
	delay  time.Duration

	mu     sync.Mutex
	cursor int

	sleep     Sleeper
	ledger    QuotaLedger
	incidents IncidentSink
	log       *zap.Logger
}

type BatcherOption func(*Batcher)

func WithSleeper(s Sleeper) BatcherOption { return func(b *Batcher) { b.sleep = s } }
func WithQuotaLedger(l QuotaLedger) BatcherOption {
	return func(b *Batcher) { b.ledger = l }
}
func WithBatcherIncidents(s IncidentSink) BatcherOption {
	return func(b *Batcher) { b.incidents = s }
}
func WithBatcherLogger(l *zap.Logger) BatcherOption { return func(b *Batcher) { b.log = l } }

func NewBatcher(cfg BatcherConfig, opts ...BatcherOption) *Batcher {
	keys := len(cfg.Credentials)
	if keys == 0 {
		keys = 1
	}
	b := &Batcher{cfg: cfg}
	switch {
	case cfg.PerMinute > 0:
		b.window = cfg.PerMinute * keys
		b.delay = time.Minute
	default:
		b.window = 1
	}
	if cfg.Delay > 0 {
		b.delay = cfg.Delay
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sleep == nil {
		b.sleep = sleepCtx
	}
	if b.incidents == nil {
		b.incidents = nopSink{}
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	b.log = b.log.With(zap.String("source", cfg.Source))
	return b
}

func (b *Batcher) WindowSize() int      { return b.window }
func (b *Batcher) Delay() time.Duration { return b.delay }

// NextCredential advances the rotation cursor and returns the credential to use.
func (b *Batcher) NextCredential() string {
	if len(b.cfg.Credentials) == 0 {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cfg.Credentials[b.cursor%len(b.cfg.Credentials)]
	b.cursor++
	return c
}

// Execute runs jobs window by window. Jobs past the per-pass cap, the daily ledger
// budget, or a quota refusal are deferred and counted, never executed.
func (b *Batcher) Execute(ctx context.Context, jobs []Job) BatchReport {
	var rep BatchReport
	allowed := jobs
	if b.cfg.PerDay > 0 && len(allowed) > b.cfg.PerDay {
		allowed = allowed[:b.cfg.PerDay]
	}
	rep.Deferred = len(jobs) - len(allowed)

	for start := 0; start < len(allowed); start += b.window {
		end := min(start+b.window, len(allowed))
		if start > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				rep.Deferred += len(allowed) - start
				b.log.Info("batcher.canceled", zap.Int("deferred", rep.Deferred), zap.Error(err))
				return rep
			}
		}
		window := allowed[start:end]
		exhausted := false
		if b.ledger != nil {
			granted, err := b.ledger.Reserve(ctx, b.cfg.Source, len(window))
			if err != nil {
				b.log.Warn("batcher.ledger_failed", zap.Int("granted", granted), zap.Error(err))
			}
			// A failed reservation with no grant runs the window unmetered; a partial grant is honoured.
			if (err == nil || granted > 0) && granted < len(window) {
				exhausted = true
				window = window[:granted]
				end = start + granted
				b.log.Info("batcher.daily_budget_reached", zap.Int("granted", granted))
			}
		}
		if len(window) == 0 {
			rep.Deferred += len(allowed) - start
			return rep
		}

		n := len(rep.Windows) + 1
		b.log.Debug("batcher.window_start", zap.Int("window", n), zap.Int("jobs", len(window)))
		failed, empty, quota := b.runWindow(ctx, n, window)
		rep.Windows = append(rep.Windows, len(window))
		rep.Executed += len(window)
		rep.Failed += failed
		rep.Empty += empty

		if quota {
			rep.QuotaHit = true
			rep.Deferred += len(allowed) - end
			b.log.Warn("batcher.quota_exceeded", zap.Int("window", n), zap.Int("deferred", len(allowed)-end))
			return rep
		}
		if exhausted {
			rep.Deferred += len(allowed) - end
			return rep
		}
	}
	return rep
}

func (b *Batcher) runWindow(ctx context.Context, n int, window []Job) (failed, empty int, quota bool) {
	errs := make([]error, len(window))
	var g errgroup.Group
	for i, job := range window {
		cred := b.NextCredential()
		g.Go(func() error {
			errs[i] = b.runJob(ctx, job, cred)
			return nil
		})
	}
	_ = g.Wait()

	var last error
	for i, err := range errs {
		switch domain.Classify(err) {
		case domain.OutcomeOK:
		case domain.OutcomeEmpty:
			empty++
		case domain.OutcomeQuotaExceeded:
			quota = true
			failed++
		default:
			failed++
			last = err
			b.log.Warn("batcher.job_failed", zap.String("job", window[i].ID), zap.Error(err))
		}
	}
	if failed == len(window) && last != nil && !quota {
		msg := fmt.Sprintf("%s: all %d jobs of window %d failed", b.cfg.Source, len(window), n)
		id := b.incidents.Report(ctx, "[Batcher]", msg, last)
		b.log.Error("batcher.window_failed", zap.Int("window", n), zap.String("incident_id", id), zap.Error(last))
	}
	return failed, empty, quota
}

func (b *Batcher) runJob(ctx context.Context, job Job, cred string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}
	err = job.Run(ctx, cred)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("job %s timed out: %w", job.ID, err)
	}
	return err
}

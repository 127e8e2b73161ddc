package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMinDelay is the floor between passes when the period is shorter than a pass.
const DefaultMinDelay = time.Minute

type LivePass interface {
	Reconcile(ctx context.Context) (ReconcileReport, error)
}

type HistoryPass interface {
	Name() string
	Run(ctx context.Context) (SyncReport, error)
}

type DriverConfig struct {
	// Period is the target cadence. Zero runs a single pass.
	Period   time.Duration
	MinDelay time.Duration
	// Disabled lists source names skipped for the whole run, with the reason.
	Disabled map[string]string
}

type PassReport struct {
	Duration  time.Duration
	Reconcile ReconcileReport
	History   []SyncReport
	Panicked  bool
}

// Driver runs passes back to back: reconcile, then every history source.
type Driver struct {
	cfg       DriverConfig
	live      LivePass
	histories []HistoryPass

	clock     Clock
	sleep     Sleeper
	incidents IncidentSink
	log       *zap.Logger

	disabledOnce sync.Once
}

var _ Worker = (*Driver)(nil)

type DriverOption func(*Driver)

func WithDriverClock(c Clock) DriverOption     { return func(d *Driver) { d.clock = c } }
func WithDriverSleeper(s Sleeper) DriverOption { return func(d *Driver) { d.sleep = s } }
func WithDriverIncidents(s IncidentSink) DriverOption {
	return func(d *Driver) { d.incidents = s }
}
func WithDriverLogger(l *zap.Logger) DriverOption { return func(d *Driver) { d.log = l } }

func NewDriver(cfg DriverConfig, live LivePass, histories []HistoryPass, opts ...DriverOption) *Driver {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	d := &Driver{cfg: cfg, live: live, histories: histories}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = realClock{}
	}
	if d.sleep == nil {
		d.sleep = sleepCtx
	}
	if d.incidents == nil {
		d.incidents = nopSink{}
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// NextDelay keeps the cadence close to period by subtracting the pass duration.
func NextDelay(period, elapsed, floor time.Duration) time.Duration {
	return max(period-elapsed, floor)
}

// Continuous reports whether passes repeat. Without a period the driver runs one pass.
func (d *Driver) Continuous() bool { return d.cfg.Period > 0 }

// Start runs passes until ctx is canceled, or once when no period is configured.
func (d *Driver) Start(ctx context.Context) {
	d.log.Info("driver_started", zap.Duration("period", d.cfg.Period), zap.Duration("min_delay", d.cfg.MinDelay))
	for {
		rep := d.RunPass(ctx)
		if d.cfg.Period <= 0 {
			d.log.Info("driver_stopped", zap.String("reason", "single pass"))
			return
		}
		delay := NextDelay(d.cfg.Period, rep.Duration, d.cfg.MinDelay)
		d.log.Info("driver.waiting", zap.Duration("delay", delay))
		if err := d.sleep(ctx, delay); err != nil {
			d.log.Info("driver_stopped", zap.Error(err))
			return
		}
	}
}

// RunPass never panics; the caller can always schedule the next pass.
func (d *Driver) RunPass(ctx context.Context) (rep PassReport) {
	d.disabledOnce.Do(func() {
		for name, reason := range d.cfg.Disabled {
			d.log.Warn("driver.source_disabled", zap.String("source", name), zap.String("reason", reason))
		}
	})

	started := d.clock.Now()
	ctx, span := otel.Tracer("price-aggregator/application").Start(ctx, "pass")
	defer func() {
		if r := recover(); r != nil {
			rep.Panicked = true
			err := fmt.Errorf("pass panicked: %v", r)
			id := d.incidents.Report(ctx, "[Driver]", "pass aborted", err)
			d.log.Error("driver.pass_panic", zap.String("incident_id", id), zap.Error(err))
		}
		rep.Duration = d.clock.Now().Sub(started)
		span.End()
		d.log.Info("driver.pass_done", zap.Duration("duration", rep.Duration), zap.Bool("panicked", rep.Panicked))
	}()

	if d.live != nil {
		res, err := d.live.Reconcile(ctx)
		rep.Reconcile = res
		if err != nil {
			id := d.incidents.Report(ctx, "[UpdateLatest]", "live reconciliation failed", err)
			d.log.Error("driver.reconcile_failed", zap.String("incident_id", id), zap.Error(err))
		}
	}

	rep.History = make([]SyncReport, len(d.histories))
	var g errgroup.Group
	for i, h := range d.histories {
		g.Go(func() error {
			res, err := d.runHistory(ctx, h)
			rep.History[i] = res
			if err != nil {
				id := d.incidents.Report(ctx, "[History]", h.Name()+": history sync failed", err)
				d.log.Error("driver.history_failed", zap.String("source", h.Name()), zap.String("incident_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func (d *Driver) runHistory(ctx context.Context, h HistoryPass) (rep SyncReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s history panicked: %v", h.Name(), r)
		}
	}()
	return h.Run(ctx)
}

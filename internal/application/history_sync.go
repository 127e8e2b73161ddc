package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"price-aggregator/internal/domain"

	"go.uber.org/zap"
)

// catalogLimit bounds how many catalog rows one pass loads.
const catalogLimit = 99999

// HistorySync incrementally copies one source's daily series into the history store.
type HistorySync struct {
	source     SeriesSource
	batcher    *Batcher
	currencies CurrencyStore
	history    HistoryStore
	watermarks WatermarkStore
	clock      Clock
	incidents  IncidentSink
	log        *zap.Logger
}

type HistoryOption func(*HistorySync)

func WithHistoryClock(c Clock) HistoryOption { return func(h *HistorySync) { h.clock = c } }
func WithHistoryIncidents(s IncidentSink) HistoryOption {
	return func(h *HistorySync) { h.incidents = s }
}
func WithHistoryLogger(l *zap.Logger) HistoryOption { return func(h *HistorySync) { h.log = l } }

func NewHistorySync(source SeriesSource, batcher *Batcher, currencies CurrencyStore, history HistoryStore, watermarks WatermarkStore, opts ...HistoryOption) *HistorySync {
	h := &HistorySync{
		source:     source,
		batcher:    batcher,
		currencies: currencies,
		history:    history,
		watermarks: watermarks,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = realClock{}
	}
	if h.incidents == nil {
		h.incidents = nopSink{}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

type SyncReport struct {
	Source   string
	Planned  int
	UpToDate int
	Synced   int
	Entries  int
	Empty    int
	Failed   int
	Batch    BatchReport
}

type syncPlan struct {
	currency  domain.Currency
	watermark domain.SyncWatermark
	window    domain.WindowSize
}

type fetchResult struct {
	series domain.Series
	err    error
	done   bool
}

func (h *HistorySync) Name() string { return h.source.Name() }

// Run performs one incremental sync pass. Only failures that prevent planning are
// returned; per-currency failures are logged and counted.
func (h *HistorySync) Run(ctx context.Context) (SyncReport, error) {
	name := h.source.Name()
	rep := SyncReport{Source: name}
	log := h.log.With(zap.String("source", name))

	plans, upToDate, err := h.plan(ctx)
	if err != nil {
		return rep, err
	}
	rep.Planned = len(plans)
	rep.UpToDate = upToDate
	log.Info("history.sync_start", zap.Int("planned", len(plans)), zap.Int("up_to_date", upToDate))

	results := make([]fetchResult, len(plans))
	jobs := make([]Job, len(plans))
	for i, p := range plans {
		jobs[i] = Job{
			ID: p.currency.Ticker,
			Run: func(ctx context.Context, cred string) error {
				s, err := h.source.FetchSeries(ctx, SeriesRequest{
					Currency:   p.currency,
					Since:      p.watermark.LastDay,
					Window:     p.window,
					Credential: cred,
				})
				results[i] = fetchResult{series: s, err: err, done: true}
				return err
			},
		}
	}
	rep.Batch = h.batcher.Execute(ctx, jobs)

	mirror := make(map[string]domain.Currency)
	var marks []domain.SyncWatermark
	for i, p := range plans {
		r := results[i]
		if !r.done {
			continue
		}
		clog := log.With(zap.String("ticker", p.currency.Ticker), zap.String("window", string(p.window)))
		switch domain.Classify(r.err) {
		case domain.OutcomeOK:
		case domain.OutcomeEmpty:
			rep.Empty++
			clog.Info("history.empty")
			continue
		case domain.OutcomeQuotaExceeded:
			continue
		default:
			rep.Failed++
			id := h.incidents.Report(ctx, "[History]", fmt.Sprintf("%s %s: fetch failed", name, p.currency.Ticker), r.err)
			clog.Error("history.fetch_failed", zap.String("incident_id", id), zap.Error(r.err))
			continue
		}

		points := NewPoints(r.series, p.watermark.LastDay)
		if len(points) == 0 {
			rep.Empty++
			clog.Info("history.no_new_days")
			continue
		}
		entries := make(map[string]domain.HistoryEntry, len(points))
		for _, pt := range points {
			e := domain.NewHistoryEntry(p.currency, pt, name)
			entries[e.ID] = e
		}
		if err := h.history.SetAll(ctx, entries, false); err != nil {
			rep.Failed++
			id := h.incidents.Report(ctx, "[History]", fmt.Sprintf("%s %s: save history", name, p.currency.Ticker), err)
			clog.Error("history.save_failed", zap.String("incident_id", id), zap.Error(err))
			continue
		}
		latest := points[len(points)-1]
		rep.Synced++
		rep.Entries += len(entries)
		if c, ok := p.currency.WithHistoricalPrice(latest, name); ok {
			mirror[c.ID] = c
		}
		marks = append(marks, p.watermark.Advance(latest.Date))
		clog.Debug("history.saved", zap.Int("entries", len(entries)), zap.Time("last_day", latest.Date))
	}

	if len(mirror) > 0 {
		if err := h.currencies.SetAll(ctx, mirror, false); err != nil {
			id := h.incidents.Report(ctx, "[History]", name+": save currency price mirror", err)
			log.Error("history.mirror_failed", zap.String("incident_id", id), zap.Error(err))
		}
	}
	if len(marks) > 0 {
		if err := h.watermarks.SetAll(ctx, marks); err != nil {
			id := h.incidents.Report(ctx, "[History]", name+": save watermarks", err)
			log.Error("history.watermark_failed", zap.String("incident_id", id), zap.Error(err))
		}
	}

	log.Info("history.sync_done",
		zap.Int("synced", rep.Synced),
		zap.Int("entries", rep.Entries),
		zap.Int("empty", rep.Empty),
		zap.Int("failed", rep.Failed),
		zap.Int("deferred", rep.Batch.Deferred),
		zap.Bool("quota_hit", rep.Batch.QuotaHit),
	)
	return rep, nil
}

func (h *HistorySync) plan(ctx context.Context) ([]syncPlan, int, error) {
	name := h.source.Name()
	all, err := h.currencies.Search(ctx, CurrencyFilter{Types: h.source.Types()}, catalogLimit, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: load currencies: %v", domain.ErrStore, err)
	}
	supported, err := h.source.Supported(ctx, all)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: resolve supported symbols: %w", name, err)
	}
	ids := make([]string, len(supported))
	for i, c := range supported {
		ids[i] = c.ID
	}
	marks, err := h.watermarks.GetAll(ctx, name, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: load watermarks: %v", domain.ErrStore, err)
	}

	now := h.clock.Now()
	upToDate := 0
	plans := make([]syncPlan, 0, len(supported))
	for _, c := range supported {
		wm, ok := marks[c.ID]
		if !ok {
			wm = domain.SyncWatermark{CurrencyID: c.ID, Source: name}
		}
		state := wm.StateAt(now)
		if state == domain.UpToDate {
			upToDate++
			continue
		}
		plans = append(plans, syncPlan{currency: c, watermark: wm, window: state.Window()})
	}
	return plans, upToDate, nil
}

// NewPoints keeps the series days strictly after the watermark, one point per day
// (the later sample wins), sorted ascending.
func NewPoints(s domain.Series, after time.Time) []domain.SeriesPoint {
	byDay := make(map[time.Time]domain.SeriesPoint, len(s.Points))
	for _, p := range s.Points {
		d := domain.Day(p.Date)
		if !after.IsZero() && !d.After(domain.Day(after)) {
			continue
		}
		p.Date = d
		byDay[d] = p
	}
	out := make([]domain.SeriesPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"price-aggregator/internal/domain"

	"github.com/stretchr/testify/mock"
)

var errStoreDown = errors.New("store down")

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

type fakeCurrencyStore struct {
	mu     sync.Mutex
	items  map[string]domain.Currency
	writes []map[string]domain.Currency
	err    error
	setErr error
}

func newCurrencyStore(cs ...domain.Currency) *fakeCurrencyStore {
	s := &fakeCurrencyStore{items: map[string]domain.Currency{}}
	for _, c := range cs {
		s.items[c.ID] = c
	}
	return s
}

func (f *fakeCurrencyStore) GetAll(_ context.Context, ids []string, _ int) (map[string]domain.Currency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]domain.Currency{}
	for id, c := range f.items {
		out[id] = c
	}
	if ids == nil {
		return out, nil
	}
	sel := map[string]domain.Currency{}
	for _, id := range ids {
		if c, ok := out[id]; ok {
			sel[id] = c
		}
	}
	return sel, nil
}

func (f *fakeCurrencyStore) Search(_ context.Context, flt CurrencyFilter, limit, skip int) ([]domain.Currency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Currency
	for _, c := range f.items {
		if flt.Ticker != "" && c.Ticker != flt.Ticker {
			continue
		}
		if len(flt.Types) > 0 && !isType(flt.Types...)(c) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCurrencyStore) SetAll(_ context.Context, items map[string]domain.Currency, insertOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.writes = append(f.writes, items)
	for id, c := range items {
		if _, ok := f.items[id]; ok && insertOnly {
			continue
		}
		f.items[id] = c
	}
	return nil
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	items   map[string]domain.HistoryEntry
	calls   int
	failFor string
}

func newHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{items: map[string]domain.HistoryEntry{}}
}

func (f *fakeHistoryStore) SetAll(_ context.Context, items map[string]domain.HistoryEntry, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, e := range items {
		if e.Ticker == f.failFor {
			return errStoreDown
		}
	}
	for id, e := range items {
		f.items[id] = e
	}
	return nil
}

func (f *fakeHistoryStore) Search(_ context.Context, currencyID string, limit, skip int) ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.HistoryEntry
	for _, e := range f.items {
		if e.CurrencyID == currencyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeWatermarkStore struct {
	mu    sync.Mutex
	items map[string]domain.SyncWatermark
}

func newWatermarkStore(ws ...domain.SyncWatermark) *fakeWatermarkStore {
	s := &fakeWatermarkStore{items: map[string]domain.SyncWatermark{}}
	for _, w := range ws {
		s.items[w.Source+"/"+w.CurrencyID] = w
	}
	return s
}

func (f *fakeWatermarkStore) GetAll(_ context.Context, source string, ids []string) (map[string]domain.SyncWatermark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]domain.SyncWatermark{}
	for _, id := range ids {
		if w, ok := f.items[source+"/"+id]; ok {
			out[id] = w
		}
	}
	return out, nil
}

func (f *fakeWatermarkStore) SetAll(_ context.Context, items []domain.SyncWatermark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range items {
		f.items[w.Source+"/"+w.CurrencyID] = w
	}
	return nil
}

func (f *fakeWatermarkStore) get(source, id string) domain.SyncWatermark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[source+"/"+id]
}

// fakeSeriesSource serves canned series and records every request.
type fakeSeriesSource struct {
	name   string
	types  []domain.CurrencyType
	series map[string]domain.Series
	errs   map[string]error

	mu   sync.Mutex
	reqs []SeriesRequest
}

func (f *fakeSeriesSource) Name() string                 { return f.name }
func (f *fakeSeriesSource) Types() []domain.CurrencyType { return f.types }

func (f *fakeSeriesSource) Supported(_ context.Context, cs []domain.Currency) ([]domain.Currency, error) {
	return cs, nil
}

func (f *fakeSeriesSource) FetchSeries(_ context.Context, req SeriesRequest) (domain.Series, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if err := f.errs[req.Currency.Ticker]; err != nil {
		return domain.Series{}, err
	}
	s, ok := f.series[req.Currency.Ticker]
	if !ok {
		return domain.Series{}, domain.ErrEmptyResult
	}
	return s, nil
}

func (f *fakeSeriesSource) requests() map[string]SeriesRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]SeriesRequest{}
	for _, r := range f.reqs {
		out[r.Currency.Ticker] = r
	}
	return out
}

type mockLiveSource struct {
	mock.Mock
	name string
}

func (m *mockLiveSource) Name() string { return m.name }

func (m *mockLiveSource) FetchLive(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	args := m.Called(ctx, symbols)
	quotes, _ := args.Get(0).(map[string]domain.Quote)
	return quotes, args.Error(1)
}

func day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

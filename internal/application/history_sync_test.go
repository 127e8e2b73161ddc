package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"price-aggregator/internal/domain"

	"github.com/stretchr/testify/require"
)

var syncNow = time.Date(2024, 3, 20, 9, 30, 0, 0, time.UTC)

func newTestSync(src *fakeSeriesSource, cs *fakeCurrencyStore, hs *fakeHistoryStore, ws *fakeWatermarkStore) *HistorySync {
	b := NewBatcher(BatcherConfig{Source: src.name, PerMinute: 5}, WithSleeper((&recordingSleeper{}).Sleep))
	return NewHistorySync(src, b, cs, hs, ws, WithHistoryClock(fakeClock{t: syncNow}))
}

func Test_HistorySync_StockEndToEnd(t *testing.T) {
	t.Parallel()
	abc := domain.Currency{ID: "c-abc", Ticker: "ABC", Name: "Abc Corp", Type: domain.TypeStock}
	cs := newCurrencyStore(abc)
	hs := newHistoryStore()
	ws := newWatermarkStore()
	src := &fakeSeriesSource{
		name:  domain.SourceAlphaVantage,
		types: []domain.CurrencyType{domain.TypeStock},
		series: map[string]domain.Series{"ABC": {Symbol: "ABC", Points: []domain.SeriesPoint{
			{Date: day("2024-03-15"), RatioOfExchange: domain.ROEFromFloat(10)},
			{Date: day("2024-03-18"), RatioOfExchange: domain.ROEFromFloat(11)},
			{Date: day("2024-03-19"), RatioOfExchange: domain.ROEFromFloat(12)},
		}}},
	}

	rep, err := newTestSync(src, cs, hs, ws).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Synced)
	require.Equal(t, 3, rep.Entries)

	require.Equal(t, domain.WindowFull, src.requests()["ABC"].Window)
	require.Len(t, hs.items, 3)
	for _, d := range []string{"2024-03-15", "2024-03-18", "2024-03-19"} {
		e, ok := hs.items[domain.HistoryEntryID(day(d), "ABC", domain.TypeStock)]
		require.True(t, ok, d)
		require.Equal(t, "c-abc", e.CurrencyID)
		require.Equal(t, domain.SourceAlphaVantage, e.Source)
	}

	require.Equal(t, day("2024-03-19"), ws.get(domain.SourceAlphaVantage, "c-abc").LastDay)
	got := cs.items["c-abc"]
	require.Equal(t, domain.ROE(12*100_000_000), got.RatioOfExchange)
	require.Equal(t, day("2024-03-19"), got.PriceUpdatedAt)
	require.Equal(t, domain.SourceAlphaVantage, got.Source)
}

func Test_HistorySync_WindowSelection(t *testing.T) {
	t.Parallel()
	cs := newCurrencyStore(
		domain.Currency{ID: "1", Ticker: "NEW", Name: "n", Type: domain.TypeStock},
		domain.Currency{ID: "2", Ticker: "RECENT", Name: "r", Type: domain.TypeStock},
		domain.Currency{ID: "3", Ticker: "STALE", Name: "s", Type: domain.TypeStock},
		domain.Currency{ID: "4", Ticker: "DONE", Name: "d", Type: domain.TypeStock},
	)
	src := &fakeSeriesSource{name: "src", types: []domain.CurrencyType{domain.TypeStock}}
	ws := newWatermarkStore(
		domain.SyncWatermark{CurrencyID: "2", Source: "src", LastDay: day("2024-03-01")},
		domain.SyncWatermark{CurrencyID: "3", Source: "src", LastDay: day("2023-10-01")},
		domain.SyncWatermark{CurrencyID: "4", Source: "src", LastDay: day("2024-03-19")},
	)

	rep, err := newTestSync(src, cs, newHistoryStore(), ws).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, rep.Planned)
	require.Equal(t, 1, rep.UpToDate)
	require.Equal(t, 3, rep.Empty)

	reqs := src.requests()
	require.Equal(t, domain.WindowFull, reqs["NEW"].Window)
	require.True(t, reqs["NEW"].Since.IsZero())
	require.Equal(t, domain.WindowCompact, reqs["RECENT"].Window)
	require.Equal(t, day("2024-03-01"), reqs["RECENT"].Since)
	require.Equal(t, domain.WindowFull, reqs["STALE"].Window)
	require.NotContains(t, reqs, "DONE")
}

func Test_HistorySync_IncrementalOnlyNewDaysAndMonotonic(t *testing.T) {
	t.Parallel()
	c := domain.Currency{ID: "eur", Ticker: "EUR", Name: "Euro", Type: domain.TypeFiat,
		RatioOfExchange: domain.ROEFromFloat(1.2), PriceUpdatedAt: time.Date(2024, 3, 19, 15, 0, 0, 0, time.UTC)}
	cs := newCurrencyStore(c)
	hs := newHistoryStore()
	ws := newWatermarkStore(domain.SyncWatermark{CurrencyID: "eur", Source: "src", LastDay: day("2024-03-10")})
	src := &fakeSeriesSource{
		name:  "src",
		types: []domain.CurrencyType{domain.TypeFiat},
		series: map[string]domain.Series{"EUR": {Points: []domain.SeriesPoint{
			{Date: day("2024-03-19"), RatioOfExchange: 109_000_000},
			{Date: day("2024-03-08"), RatioOfExchange: 107_000_000},
			{Date: day("2024-03-10"), RatioOfExchange: 108_000_000},
			{Date: day("2024-03-11"), RatioOfExchange: 108_500_000},
		}}},
	}

	rep, err := newTestSync(src, cs, hs, ws).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, rep.Entries)
	require.Len(t, hs.items, 2)
	require.NotContains(t, hs.items, domain.HistoryEntryID(day("2024-03-10"), "EUR", domain.TypeFiat))

	wm := ws.get("src", "eur")
	require.False(t, wm.LastDay.Before(day("2024-03-10")))
	require.Equal(t, day("2024-03-19"), wm.LastDay)

	// the live price written later on the same day stays
	require.Equal(t, domain.ROEFromFloat(1.2), cs.items["eur"].RatioOfExchange)
}

func Test_HistorySync_RepeatedSyncOverwrites(t *testing.T) {
	t.Parallel()
	cs := newCurrencyStore(domain.Currency{ID: "x", Ticker: "XYZ", Name: "x", Type: domain.TypeStock})
	hs := newHistoryStore()
	ws := newWatermarkStore()
	src := &fakeSeriesSource{
		name:  "src",
		types: []domain.CurrencyType{domain.TypeStock},
		series: map[string]domain.Series{"XYZ": {Points: []domain.SeriesPoint{
			{Date: day("2024-03-18"), RatioOfExchange: 100},
		}}},
	}
	s := newTestSync(src, cs, hs, ws)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	// forget the watermark and serve a corrected value for the same day
	ws.items = map[string]domain.SyncWatermark{}
	src.series["XYZ"] = domain.Series{Points: []domain.SeriesPoint{{Date: day("2024-03-18"), RatioOfExchange: 200}}}
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, hs.items, 1)
	e := hs.items[domain.HistoryEntryID(day("2024-03-18"), "XYZ", domain.TypeStock)]
	require.Equal(t, domain.ROE(200), e.RatioOfExchange)
}

func Test_HistorySync_FailuresAreIsolated(t *testing.T) {
	t.Parallel()
	cs := newCurrencyStore(
		domain.Currency{ID: "a", Ticker: "AAA", Name: "a", Type: domain.TypeStock},
		domain.Currency{ID: "b", Ticker: "BBB", Name: "b", Type: domain.TypeStock},
		domain.Currency{ID: "c", Ticker: "CCC", Name: "c", Type: domain.TypeStock},
	)
	hs := newHistoryStore()
	hs.failFor = "CCC"
	ws := newWatermarkStore()
	pts := []domain.SeriesPoint{{Date: day("2024-03-19"), RatioOfExchange: 5}}
	src := &fakeSeriesSource{
		name:   "src",
		types:  []domain.CurrencyType{domain.TypeStock},
		series: map[string]domain.Series{"AAA": {Points: pts}, "CCC": {Points: pts}},
		errs:   map[string]error{"BBB": errors.New("malformed payload")},
	}

	rep, err := newTestSync(src, cs, hs, ws).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Synced)
	require.Equal(t, 2, rep.Failed)

	require.Equal(t, day("2024-03-19"), ws.get("src", "a").LastDay)
	require.True(t, ws.get("src", "b").IsZero())
	require.True(t, ws.get("src", "c").IsZero())
}

func Test_HistorySync_StoreErrorOnLoad(t *testing.T) {
	t.Parallel()
	cs := newCurrencyStore()
	cs.err = errStoreDown
	src := &fakeSeriesSource{name: "src"}

	_, err := newTestSync(src, cs, newHistoryStore(), newWatermarkStore()).Run(context.Background())
	require.ErrorIs(t, err, domain.ErrStore)
}

func Test_NewPoints_DedupesAndSorts(t *testing.T) {
	t.Parallel()
	s := domain.Series{Points: []domain.SeriesPoint{
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), RatioOfExchange: 3},
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), RatioOfExchange: 2},
		{Date: time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), RatioOfExchange: 4},
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), RatioOfExchange: 1},
	}}

	got := NewPoints(s, day("2024-01-01"))
	require.Len(t, got, 2)
	require.Equal(t, day("2024-01-02"), got[0].Date)
	require.Equal(t, day("2024-01-03"), got[1].Date)
	require.Equal(t, domain.ROE(4), got[1].RatioOfExchange)
}

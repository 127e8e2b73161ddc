package provider_test

import (
	"context"
	"testing"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/provider"
	redisstore "price-aggregator/internal/infrastructure/redis"

	"github.com/stretchr/testify/require"
)

const avDaily = `{
  "Meta Data": {"2. Symbol": "IBM"},
  "Time Series (Daily)": {
    "2024-03-01": {"4. close": "185.00", "5. adjusted close": "183.1067214009"},
    "2024-02-29": {"4. close": "184.00"}
  }
}`

const avFX = `{
  "Meta Data": {"2. From Symbol": "EUR"},
  "Time Series FX (Daily)": {
    "2024-03-01": {"4. close": "1.08390"}
  }
}`

const physicalCSV = "currency code,currency name\nEUR,Euro\nGBP,British Pound Sterling\n"

func TestAlphaVantage_StockSeries(t *testing.T) {
	rs := newRoutes(map[string]reply{"/query": {200, avDaily}})
	p := provider.NewAlphaVantage("http://av.test", rs.client(), redisstore.NewMemoryCache())

	s, err := p.FetchSeries(context.Background(), application.SeriesRequest{
		Currency:   domain.Currency{ID: "ibm", Ticker: "IBM", Type: domain.TypeStock},
		Window:     domain.WindowFull,
		Credential: "k1",
	})
	require.NoError(t, err)
	require.Equal(t, domain.SourceAlphaVantage, s.Source)
	require.Len(t, s.Points, 2)

	byDay := map[string]domain.ROE{}
	for _, pt := range s.Points {
		byDay[pt.Date.Format(domain.DateLayout)] = pt.RatioOfExchange
	}
	require.Equal(t, domain.ROE(18310672140), byDay["2024-03-01"])
	require.Equal(t, domain.ROE(0), byDay["2024-02-29"])

	q := rs.last(t).URL.Query()
	require.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", q.Get("function"))
	require.Equal(t, "IBM", q.Get("symbol"))
	require.Equal(t, "full", q.Get("outputsize"))
	require.Equal(t, "k1", q.Get("apikey"))
}

func TestAlphaVantage_FiatSeries(t *testing.T) {
	rs := newRoutes(map[string]reply{"/query": {200, avFX}})
	p := provider.NewAlphaVantage("http://av.test", rs.client(), redisstore.NewMemoryCache())

	s, err := p.FetchSeries(context.Background(), application.SeriesRequest{
		Currency:   domain.Currency{ID: "eur", Ticker: "EUR", Type: domain.TypeFiat},
		Window:     domain.WindowCompact,
		Credential: "k1",
	})
	require.NoError(t, err)
	require.Len(t, s.Points, 1)
	require.Equal(t, domain.ROE(108390000), s.Points[0].RatioOfExchange)

	q := rs.last(t).URL.Query()
	require.Equal(t, "FX_DAILY", q.Get("function"))
	require.Equal(t, "EUR", q.Get("from_symbol"))
	require.Equal(t, "USD", q.Get("to_symbol"))
}

func TestAlphaVantage_Classification(t *testing.T) {
	cases := []struct {
		name string
		body string
		want domain.Outcome
	}{
		{"note", `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, domain.OutcomeQuotaExceeded},
		{"daily limit", `{"Information": "We have detected your API key and our standard API rate limit is 25 requests per day."}`, domain.OutcomeQuotaExceeded},
		{"invalid symbol", `{"Error Message": "Invalid API call."}`, domain.OutcomeError},
		{"empty", `{"Time Series (Daily)": {}}`, domain.OutcomeEmpty},
		{"missing data", `{"Meta Data": {}}`, domain.OutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs := newRoutes(map[string]reply{"/query": {200, tc.body}})
			p := provider.NewAlphaVantage("http://av.test", rs.client(), redisstore.NewMemoryCache())
			_, err := p.FetchSeries(context.Background(), application.SeriesRequest{
				Currency:   domain.Currency{Ticker: "IBM", Type: domain.TypeStock},
				Window:     domain.WindowCompact,
				Credential: "k",
			})
			require.Error(t, err)
			require.Equal(t, tc.want, domain.Classify(err))
		})
	}
}

func TestAlphaVantage_MissingKey(t *testing.T) {
	p := provider.NewAlphaVantage("http://av.test", newRoutes(nil).client(), redisstore.NewMemoryCache())
	_, err := p.FetchSeries(context.Background(), application.SeriesRequest{
		Currency: domain.Currency{Ticker: "IBM", Type: domain.TypeStock},
	})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAlphaVantage_SupportedUsesCachedCurrencyList(t *testing.T) {
	rs := newRoutes(map[string]reply{"/physical_currency_list/": {200, physicalCSV}})
	cache := redisstore.NewMemoryCache()
	p := provider.NewAlphaVantage("http://av.test", rs.client(), cache)

	in := []domain.Currency{
		{Ticker: "IBM", Type: domain.TypeStock},
		{Ticker: "EUR", Type: domain.TypeFiat},
		{Ticker: "XYZ", Type: domain.TypeFiat},
		{Ticker: "BTC", Type: domain.TypeCrypto},
	}
	got, err := p.Supported(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "IBM", got[0].Ticker)
	require.Equal(t, "EUR", got[1].Ticker)

	_, err = p.Supported(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 1, rs.count("/physical_currency_list/"))

	list, err := cache.GetAll(context.Background(), provider.PhysicalCurrenciesKey)
	require.NoError(t, err)
	require.Equal(t, "Euro", list["EUR"])

	require.NoError(t, p.RefreshReference(context.Background()))
	require.Equal(t, 2, rs.count("/physical_currency_list/"))
}

func TestAlphaVantage_SupportedKeepsStocksWhenCurrencyListFails(t *testing.T) {
	rs := newRoutes(map[string]reply{"/physical_currency_list/": {500, `oops`}})
	p := provider.NewAlphaVantage("http://av.test", rs.client(), redisstore.NewMemoryCache())

	got, err := p.Supported(context.Background(), []domain.Currency{
		{Ticker: "IBM", Type: domain.TypeStock},
		{Ticker: "EUR", Type: domain.TypeFiat},
		{Ticker: "GBP", Type: domain.TypeFiat},
		{Ticker: "MSFT", Type: domain.TypeStock},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "IBM", got[0].Ticker)
	require.Equal(t, "MSFT", got[1].Ticker)
}

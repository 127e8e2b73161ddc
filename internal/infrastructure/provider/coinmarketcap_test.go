package provider_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/provider"

	"github.com/stretchr/testify/require"
)

const cmcListings = `{
  "status": {"error_code": 0, "error_message": null},
  "data": [
    {"symbol": "BTC", "cmc_rank": 1, "last_updated": "2024-03-01T12:00:00.000Z", "quote": {"USD": {"price": 61999.98765432109, "market_cap": 1.2e12}}},
    {"symbol": "ETH", "cmc_rank": 2, "last_updated": "2024-03-01T12:00:00.000Z", "quote": {"USD": {"price": 3400.1, "market_cap": 4e11}}},
    {"symbol": "ETH", "cmc_rank": 900, "last_updated": "2024-03-01T12:00:00.000Z", "quote": {"USD": {"price": 0.01}}},
    {"symbol": "SOL", "cmc_rank": 5, "last_updated": "2024-03-01T12:00:00.000Z", "quote": {"USD": {"price": 130}}}
  ]
}`

func TestCoinMarketCap_FetchLive(t *testing.T) {
	rs := newRoutes(map[string]reply{"/v1/cryptocurrency/listings/latest": {200, cmcListings}})
	p := provider.NewCoinMarketCap("http://cmc.test/v1/", "secret", 2*time.Second, rs.httpClient())

	got, err := p.FetchLive(context.Background(), []string{"btc", "ETH"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, domain.ROE(6199998765432), got["BTC"].RatioOfExchange)
	require.Equal(t, 1, got["BTC"].Rank)
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got["BTC"].UpdatedAt)
	require.Equal(t, domain.ROE(340010000000), got["ETH"].RatioOfExchange)
	require.Equal(t, 2, got["ETH"].Rank)
	require.Equal(t, domain.SourceCoinMarketCap, got["ETH"].Source)

	req := rs.last(t)
	require.Equal(t, "secret", req.Header.Get("X-CMC_PRO_API_KEY"))
	require.Equal(t, "5000", req.URL.Query().Get("limit"))
	require.Equal(t, "USD", req.URL.Query().Get("convert"))
}

func TestCoinMarketCap_Classification(t *testing.T) {
	cases := []struct {
		name string
		rp   reply
		want domain.Outcome
	}{
		{"credit limit", reply{http.StatusPaymentRequired, `{"status":{"error_code":1010,"error_message":"monthly credit limit"}}`}, domain.OutcomeQuotaExceeded},
		{"rate limit", reply{http.StatusTooManyRequests, `{"status":{"error_code":1008,"error_message":"minute rate limit"}}`}, domain.OutcomeQuotaExceeded},
		{"bad key", reply{http.StatusUnauthorized, `{"status":{"error_code":1001,"error_message":"invalid key"}}`}, domain.OutcomeError},
		{"no data", reply{200, `{"status":{"error_code":0},"data":[]}`}, domain.OutcomeEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs := newRoutes(map[string]reply{"/v1/cryptocurrency/listings/latest": tc.rp})
			p := provider.NewCoinMarketCap("http://cmc.test/v1", "secret", 2*time.Second, rs.httpClient())
			_, err := p.FetchLive(context.Background(), []string{"BTC"})
			require.Error(t, err)
			require.Equal(t, tc.want, domain.Classify(err))
		})
	}
}

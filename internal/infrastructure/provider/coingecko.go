package provider

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/httpx"
	"price-aggregator/internal/infrastructure/logx"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	coinGeckoName = "coingecko"
	// CoinsListKey is the reference cache entry mapping lower-case symbols to CoinGecko coin IDs.
	CoinsListKey = "coingecko-coins-list"

	// requests with ~450+ ids start failing
	cgMaxIDsPerRequest = 400
	// ranges shorter than this come back hourly instead of daily
	cgMinRange = 91 * 24 * time.Hour
	// samples taken after 22:59 UTC count as the next day's close
	cgRolloverHour = 22
)

// CoinGeckoHistoryStart is the range start used when a currency has never been synced.
var CoinGeckoHistoryStart = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

// CoinGecko serves live crypto quotes with market-cap rank and daily crypto series.
type CoinGecko struct {
	BaseURL string
	APIKey  string
	Client  *httpx.Client
	Cache   application.ReferenceCache
	Now     func() time.Time
}

var (
	_ application.LiveSource         = (*CoinGecko)(nil)
	_ application.SeriesSource       = (*CoinGecko)(nil)
	_ application.ReferenceRefresher = (*CoinGecko)(nil)
)

func NewCoinGecko(baseURL, apiKey string, client *httpx.Client, cache application.ReferenceCache) *CoinGecko {
	return &CoinGecko{BaseURL: baseURL, APIKey: apiKey, Client: client, Cache: cache, Now: time.Now}
}

func (p *CoinGecko) Name() string { return domain.SourceCoinGecko }

func (p *CoinGecko) Types() []domain.CurrencyType { return []domain.CurrencyType{domain.TypeCrypto} }

type cgCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type cgSimplePrice struct {
	USD           *float64 `json:"usd"`
	USDMarketCap  float64  `json:"usd_market_cap"`
	LastUpdatedAt int64    `json:"last_updated_at"`
}

type cgMarketChart struct {
	Prices     [][]float64 `json:"prices"`
	MarketCaps [][]float64 `json:"market_caps"`
	Error      string      `json:"error"`
}

// RefreshReference reloads the supported coins list and replaces the cached copy.
func (p *CoinGecko) RefreshReference(ctx context.Context) error {
	_, err := p.fetchCoins(ctx)
	return err
}

func (p *CoinGecko) coins(ctx context.Context) (map[string]string, error) {
	list, err := p.Cache.GetAll(ctx, CoinsListKey)
	if err != nil {
		return nil, fmt.Errorf("%s: read coins list: %w", coinGeckoName, err)
	}
	if len(list) > 0 {
		return list, nil
	}
	return p.fetchCoins(ctx)
}

func (p *CoinGecko) fetchCoins(ctx context.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "coingecko.coins-list")
	defer span.End()

	var coins []cgCoin
	if err := p.get(ctx, "/coins/list", nil, "", &coins); err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("%s: %w: empty coins list", coinGeckoName, domain.ErrProvider)
	}
	list := make(map[string]string, len(coins))
	for _, c := range coins {
		if c.Symbol != "" && c.ID != "" {
			list[strings.ToLower(c.Symbol)] = c.ID
		}
	}
	if err := p.Cache.SetAll(ctx, CoinsListKey, list, true); err != nil {
		return nil, fmt.Errorf("%s: cache coins list: %w", coinGeckoName, err)
	}
	logx.WithFields(ctx).Info("provider.reference_refreshed",
		zap.String("source", p.Name()),
		zap.Int("entries", len(list)),
	)
	return list, nil
}

func (p *CoinGecko) Supported(ctx context.Context, currencies []domain.Currency) ([]domain.Currency, error) {
	coins, err := p.coins(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Currency, 0, len(currencies))
	for _, c := range currencies {
		if c.Type != domain.TypeCrypto {
			continue
		}
		if _, ok := coins[strings.ToLower(c.Ticker)]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// FetchLive prices every symbol CoinGecko lists and ranks the results by market cap,
// highest first, starting at 1.
func (p *CoinGecko) FetchLive(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "coingecko.fetch-live")
	defer span.End()

	coins, err := p.coins(ctx)
	if err != nil {
		return nil, err
	}
	symbolByID := map[string]string{}
	for _, s := range symbols {
		if id, ok := coins[strings.ToLower(s)]; ok {
			symbolByID[id] = strings.ToUpper(s)
		}
	}
	ids := make([]string, 0, len(symbolByID))
	for id := range symbolByID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	span.SetAttributes(attribute.Int("ids", len(ids)))

	quotes := make([]domain.Quote, 0, len(ids))
	for group := range slices.Chunk(ids, cgMaxIDsPerRequest) {
		q := url.Values{}
		q.Set("ids", strings.Join(group, ","))
		q.Set("vs_currencies", "usd")
		q.Set("include_market_cap", "true")
		q.Set("include_last_updated_at", "true")
		var prices map[string]cgSimplePrice
		if err := p.get(ctx, "/simple/price", q, "", &prices); err != nil {
			return nil, err
		}
		for id, v := range prices {
			symbol, ok := symbolByID[id]
			if !ok || v.USD == nil {
				continue
			}
			quote := domain.Quote{
				Symbol:          symbol,
				RatioOfExchange: domain.ROEFromFloat(*v.USD),
				MarketCapUSD:    v.USDMarketCap,
				Source:          p.Name(),
			}
			if v.LastUpdatedAt > 0 {
				quote.UpdatedAt = time.Unix(v.LastUpdatedAt, 0).UTC()
			}
			quotes = append(quotes, quote)
		}
	}

	slices.SortStableFunc(quotes, func(a, b domain.Quote) int {
		if c := cmp.Compare(b.MarketCapUSD, a.MarketCapUSD); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	out := make(map[string]domain.Quote, len(quotes))
	for i, q := range quotes {
		q.Rank = i + 1
		out[q.Symbol] = q
	}
	return out, nil
}

// FetchSeries returns daily closes since req.Since, or since CoinGeckoHistoryStart for a
// first sync. The window size is implied by the range.
func (p *CoinGecko) FetchSeries(ctx context.Context, req application.SeriesRequest) (domain.Series, error) {
	c := req.Currency
	ctx, span := tracer.Start(ctx, "coingecko.fetch-series")
	defer span.End()
	span.SetAttributes(attribute.String("ticker", c.Ticker))

	coins, err := p.coins(ctx)
	if err != nil {
		return domain.Series{}, err
	}
	id, ok := coins[strings.ToLower(c.Ticker)]
	if !ok {
		return domain.Series{}, fmt.Errorf("%s: %w: %s", coinGeckoName, domain.ErrUnsupportedSymbol, c.Ticker)
	}

	start := CoinGeckoHistoryStart
	if !req.Since.IsZero() {
		start = domain.Day(req.Since)
	}
	to := p.Now().UTC()
	from := start
	if to.Sub(from) <= cgMinRange {
		from = to.Add(-cgMinRange)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	var chart cgMarketChart
	if err := p.get(ctx, "/coins/"+url.PathEscape(id)+"/market_chart/range", q, req.Credential, &chart); err != nil {
		return domain.Series{}, err
	}
	if chart.Error != "" {
		return domain.Series{}, fmt.Errorf("%s: %s: %w: %s", coinGeckoName, id, domain.ErrProvider, chart.Error)
	}
	if chart.Prices == nil || chart.MarketCaps == nil {
		return domain.Series{}, fmt.Errorf("%s: %s: %w: missing prices", coinGeckoName, id, domain.ErrProvider)
	}
	if len(chart.Prices) == 0 {
		return domain.Series{}, fmt.Errorf("%s: %s: %w", coinGeckoName, id, domain.ErrEmptyResult)
	}

	series := domain.Series{
		Symbol: c.Ticker,
		Source: p.Name(),
		Points: dailyPoints(chart, start, domain.Day(to)),
	}
	span.SetAttributes(attribute.Int("points", len(series.Points)))
	return series, nil
}

// dailyPoints converts market_chart samples into days. A sample after cgRolloverHour
// is dated to the following day, days before start or from today on are dropped, and
// the market cap is taken from the sample with the same timestamp.
// The last sample of a range is the current intraday price, so today is never closed.
func dailyPoints(chart cgMarketChart, start, today time.Time) []domain.SeriesPoint {
	caps := make(map[float64]float64, len(chart.MarketCaps))
	for _, mc := range chart.MarketCaps {
		if len(mc) == 2 {
			caps[mc[0]] = mc[1]
		}
	}
	start = domain.Day(start)
	out := make([]domain.SeriesPoint, 0, len(chart.Prices))
	for _, pr := range chart.Prices {
		if len(pr) != 2 {
			continue
		}
		ts := time.UnixMilli(int64(pr[0])).UTC()
		day := domain.Day(ts)
		if ts.Hour() > cgRolloverHour {
			day = day.AddDate(0, 0, 1)
		}
		if day.Before(start) || !day.Before(today) {
			continue
		}
		out = append(out, domain.SeriesPoint{
			Date:            day,
			RatioOfExchange: domain.ROEFromFloat(pr[1]),
			MarketCapUSD:    caps[pr[0]],
		})
	}
	return out
}

func (p *CoinGecko) get(ctx context.Context, path string, q url.Values, key string, out any) error {
	u, err := endpoint(p.BaseURL, path, q)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", coinGeckoName, err)
	}
	req.Header.Set("Accept", "application/json")
	if key == "" {
		key = p.APIKey
	}
	if key != "" {
		req.Header.Set("x-cg-demo-api-key", key)
	}
	return wrapHTTP(coinGeckoName, p.Client.DoJSON(ctx, req, out))
}

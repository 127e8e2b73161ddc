package provider

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/httpx"
	"price-aggregator/internal/infrastructure/logx"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	alphaVantageName = "alphavantage"
	// PhysicalCurrenciesKey is the reference cache entry holding supported fiat codes.
	PhysicalCurrenciesKey = "alphavantage-physical-currencies"

	avStockFunction = "TIME_SERIES_DAILY_ADJUSTED"
	avStockKey      = "Time Series (Daily)"
	avStockField    = "5. adjusted close"
	avFiatFunction  = "FX_DAILY"
	avFiatKey       = "Time Series FX (Daily)"
	avFiatField     = "4. close"
)

// AlphaVantage serves daily stock (adjusted close) and fiat (FX close against USD) series.
type AlphaVantage struct {
	BaseURL string
	Client  *httpx.Client
	Cache   application.ReferenceCache
}

var (
	_ application.SeriesSource       = (*AlphaVantage)(nil)
	_ application.ReferenceRefresher = (*AlphaVantage)(nil)
)

func NewAlphaVantage(baseURL string, client *httpx.Client, cache application.ReferenceCache) *AlphaVantage {
	return &AlphaVantage{BaseURL: baseURL, Client: client, Cache: cache}
}

func (p *AlphaVantage) Name() string { return domain.SourceAlphaVantage }

func (p *AlphaVantage) Types() []domain.CurrencyType {
	return []domain.CurrencyType{domain.TypeStock, domain.TypeFiat}
}

// Supported keeps every stock and the fiat tickers found in the physical currency list.
// The list is loaded on first use when the cache is empty. When it cannot be loaded the
// fiat tickers are skipped for this pass and the stocks are still returned.
func (p *AlphaVantage) Supported(ctx context.Context, currencies []domain.Currency) ([]domain.Currency, error) {
	var (
		fiat    map[string]string
		listErr error
	)
	out := make([]domain.Currency, 0, len(currencies))
	for _, c := range currencies {
		switch c.Type {
		case domain.TypeStock:
			out = append(out, c)
		case domain.TypeFiat:
			if fiat == nil && listErr == nil {
				if fiat, listErr = p.physicalCurrencies(ctx); listErr != nil {
					logx.WithFields(ctx).Warn("alphavantage.fiat_skipped", zap.Error(listErr))
				}
			}
			if _, ok := fiat[strings.ToUpper(c.Ticker)]; ok {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (p *AlphaVantage) physicalCurrencies(ctx context.Context) (map[string]string, error) {
	list, err := p.Cache.GetAll(ctx, PhysicalCurrenciesKey)
	if err != nil {
		return nil, fmt.Errorf("%s: read currency list: %w", alphaVantageName, err)
	}
	if len(list) > 0 {
		return list, nil
	}
	return p.fetchPhysicalCurrencies(ctx)
}

// RefreshReference reloads the physical currency list and replaces the cached copy.
func (p *AlphaVantage) RefreshReference(ctx context.Context) error {
	_, err := p.fetchPhysicalCurrencies(ctx)
	return err
}

func (p *AlphaVantage) fetchPhysicalCurrencies(ctx context.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "alphavantage.physical-currency-list")
	defer span.End()

	u, err := endpoint(p.BaseURL, "/physical_currency_list/", nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", alphaVantageName, err)
	}
	list := map[string]string{}
	err = p.Client.Do(ctx, req, func(body io.Reader) error {
		var perr error
		list, perr = parseCurrencyCSV(body)
		return perr
	})
	if err != nil {
		return nil, wrapHTTP(alphaVantageName, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w: empty currency list", alphaVantageName, domain.ErrProvider)
	}
	if err := p.Cache.SetAll(ctx, PhysicalCurrenciesKey, list, true); err != nil {
		return nil, fmt.Errorf("%s: cache currency list: %w", alphaVantageName, err)
	}
	logx.WithFields(ctx).Info("provider.reference_refreshed",
		zap.String("source", p.Name()),
		zap.Int("entries", len(list)),
	)
	return list, nil
}

// parseCurrencyCSV reads "currency code,currency name" rows, skipping the header.
func parseCurrencyCSV(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	out := map[string]string{}
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse currency list: %w", err)
		}
		if first || len(rec) < 2 {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(rec[0]))
		if code != "" {
			out[code] = strings.TrimSpace(rec[1])
		}
	}
}

type avResponse struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
	raw          map[string]json.RawMessage
}

func (r *avResponse) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &r.raw); err != nil {
		return err
	}
	for key, dst := range map[string]*string{"Note": &r.Note, "Information": &r.Information, "Error Message": &r.ErrorMessage} {
		if v, ok := r.raw[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	return nil
}

// FetchSeries returns the daily closes for one stock or fiat ticker. The window maps
// directly onto Alpha Vantage's outputsize.
func (p *AlphaVantage) FetchSeries(ctx context.Context, req application.SeriesRequest) (domain.Series, error) {
	c := req.Currency
	ctx, span := tracer.Start(ctx, "alphavantage.fetch-series")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticker", c.Ticker),
		attribute.String("window", string(req.Window)),
	)

	if req.Credential == "" {
		return domain.Series{}, fmt.Errorf("%s: %w: missing api key", alphaVantageName, domain.ErrConfiguration)
	}
	q := url.Values{}
	q.Set("apikey", req.Credential)
	q.Set("outputsize", string(req.Window))
	q.Set("datatype", "json")
	var dataKey, field string
	switch c.Type {
	case domain.TypeStock:
		q.Set("function", avStockFunction)
		q.Set("symbol", c.Ticker)
		dataKey, field = avStockKey, avStockField
	case domain.TypeFiat:
		q.Set("function", avFiatFunction)
		q.Set("from_symbol", c.Ticker)
		q.Set("to_symbol", "USD")
		dataKey, field = avFiatKey, avFiatField
	default:
		return domain.Series{}, fmt.Errorf("%s: %w: %s is %s", alphaVantageName, domain.ErrUnsupportedSymbol, c.Ticker, c.Type)
	}

	u, err := endpoint(p.BaseURL, "/query", q)
	if err != nil {
		return domain.Series{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Series{}, fmt.Errorf("%s: create request: %w", alphaVantageName, err)
	}
	var body avResponse
	if err := p.Client.DoJSON(ctx, httpReq, &body); err != nil {
		return domain.Series{}, wrapHTTP(alphaVantageName, err)
	}
	if err := body.err(); err != nil {
		return domain.Series{}, fmt.Errorf("%s: %s: %w", alphaVantageName, c.Ticker, err)
	}

	raw, ok := body.raw[dataKey]
	if !ok {
		return domain.Series{}, fmt.Errorf("%s: %s: %w: missing %q", alphaVantageName, c.Ticker, domain.ErrProvider, dataKey)
	}
	var days map[string]map[string]string
	if err := json.Unmarshal(raw, &days); err != nil {
		return domain.Series{}, fmt.Errorf("%s: %s: %w: %w", alphaVantageName, c.Ticker, domain.ErrProvider, err)
	}
	if len(days) == 0 {
		return domain.Series{}, fmt.Errorf("%s: %s: %w", alphaVantageName, c.Ticker, domain.ErrEmptyResult)
	}

	series := domain.Series{Symbol: c.Ticker, Source: p.Name(), Points: make([]domain.SeriesPoint, 0, len(days))}
	for date, fields := range days {
		day, err := domain.ParseDay(date)
		if err != nil {
			continue
		}
		var roe domain.ROE
		if v, ok := fields[field]; ok {
			if roe, err = domain.ROEFromString(v); err != nil {
				return domain.Series{}, fmt.Errorf("%s: %s %s: %w: %w", alphaVantageName, c.Ticker, date, domain.ErrProvider, err)
			}
		}
		series.Points = append(series.Points, domain.SeriesPoint{Date: day, RatioOfExchange: roe})
	}
	span.SetAttributes(attribute.Int("points", len(series.Points)))
	return series, nil
}

// err maps Alpha Vantage's in-band messages onto domain errors. Rate and daily limit
// notices come back as 200 with a Note or Information key.
func (r avResponse) err() error {
	switch {
	case r.ErrorMessage != "":
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedSymbol, r.ErrorMessage)
	case r.Note != "":
		return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, r.Note)
	case r.Information != "" && isLimitNotice(r.Information):
		return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, r.Information)
	case r.Information != "":
		return fmt.Errorf("%w: %s", domain.ErrProvider, r.Information)
	}
	return nil
}

func isLimitNotice(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"call frequency", "rate limit", "requests per day", "api call"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

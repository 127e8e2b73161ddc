package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	coinMarketCapName = "coinmarketcap"
	cmcListingsPath   = "cryptocurrency/listings/latest"
	cmcListingsLimit  = "5000"
)

// CoinMarketCap serves the aggregator listing tier: one call returns price and rank
// for the top listed coins.
type CoinMarketCap struct {
	client *resty.Client
}

var _ application.LiveSource = (*CoinMarketCap)(nil)

// NewCoinMarketCap builds the listing client. A nil hc uses resty's default transport.
func NewCoinMarketCap(baseURL, apiKey string, timeout time.Duration, hc *http.Client) *CoinMarketCap {
	client := resty.New()
	if hc != nil {
		client = resty.NewWithClient(hc)
	}
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})
	client.SetHeaders(map[string]string{
		"X-CMC_PRO_API_KEY": apiKey,
		"Accept":            "application/json",
	})
	return &CoinMarketCap{client: client}
}

func (p *CoinMarketCap) Name() string { return domain.SourceCoinMarketCap }

type cmcStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type cmcListing struct {
	Symbol      string `json:"symbol"`
	Rank        int    `json:"cmc_rank"`
	LastUpdated string `json:"last_updated"`
	Quote       struct {
		USD struct {
			Price     json.Number `json:"price"`
			MarketCap json.Number `json:"market_cap"`
		} `json:"USD"`
	} `json:"quote"`
}

type cmcListingsResponse struct {
	Status cmcStatus    `json:"status"`
	Data   []cmcListing `json:"data"`
}

// quota reports CoinMarketCap's rate and credit limit codes.
func (s cmcStatus) quota() bool {
	return s.ErrorCode == http.StatusTooManyRequests || (s.ErrorCode >= 1008 && s.ErrorCode <= 1011)
}

// FetchLive returns the listing quotes for the requested symbols. When a symbol is listed
// more than once the best ranked entry is kept.
func (p *CoinMarketCap) FetchLive(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "coinmarketcap.fetch-listings")
	defer span.End()

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"start":   "1",
			"limit":   cmcListingsLimit,
			"convert": "USD",
		}).
		Get(cmcListingsPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", coinMarketCapName, domain.ErrProvider, err)
	}

	var body cmcListingsResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests || body.Status.quota():
		return nil, fmt.Errorf("%s: %w: %d %s", coinMarketCapName, domain.ErrQuotaExceeded, body.Status.ErrorCode, body.Status.ErrorMessage)
	case resp.IsError():
		return nil, fmt.Errorf("%s: %w: status %d: %s", coinMarketCapName, domain.ErrProvider, resp.StatusCode(), body.Status.ErrorMessage)
	case decodeErr != nil:
		return nil, fmt.Errorf("%s: %w: decode listings: %w", coinMarketCapName, domain.ErrProvider, decodeErr)
	case body.Status.ErrorCode != 0:
		return nil, fmt.Errorf("%s: %w: %d %s", coinMarketCapName, domain.ErrProvider, body.Status.ErrorCode, body.Status.ErrorMessage)
	case len(body.Data) == 0:
		return nil, fmt.Errorf("%s: %w", coinMarketCapName, domain.ErrEmptyResult)
	}
	span.SetAttributes(attribute.Int("listings", len(body.Data)))

	want := upperSet(symbols)
	out := make(map[string]domain.Quote, len(want))
	for _, l := range body.Data {
		symbol := strings.ToUpper(l.Symbol)
		if !want[symbol] {
			continue
		}
		if prev, ok := out[symbol]; ok && prev.Rank > 0 && prev.Rank <= l.Rank {
			continue
		}
		roe, err := domain.ROEFromString(l.Quote.USD.Price.String())
		if err != nil {
			continue
		}
		q := domain.Quote{Symbol: symbol, RatioOfExchange: roe, Rank: l.Rank, Source: p.Name()}
		if mc, err := l.Quote.USD.MarketCap.Float64(); err == nil {
			q.MarketCapUSD = mc
		}
		if ts, err := time.Parse(time.RFC3339, l.LastUpdated); err == nil {
			q.UpdatedAt = ts.UTC()
		}
		out[symbol] = q
	}
	return out, nil
}

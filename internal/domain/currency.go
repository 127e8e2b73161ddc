package domain

import "time"

type CurrencyType string

const (
	TypeCrypto CurrencyType = "crypto"
	TypeFiat   CurrencyType = "fiat"
	TypeStock  CurrencyType = "stock"
)

// Source labels recorded on currencies and history entries.
const (
	SourceChainlink     = "chain.link"
	SourceCoinGecko     = "coingecko.com"
	SourceCoinMarketCap = "coinmarketcap.com"
	SourceAlphaVantage  = "alphavantage.co"
	SourceStored        = "totem.live"
)

// Currency is one row of the shared currency catalog.
type Currency struct {
	ID              string
	Ticker          string
	Name            string
	Type            CurrencyType
	RatioOfExchange ROE
	PriceUpdatedAt  time.Time
	Source          string
	Rank            int
	MarketCapUSD    float64
}

// WithLivePrice returns c with the fields a live reconciliation may overwrite:
// ratio, timestamp, source, and rank/market-cap. Rank and market cap only come from
// the live crypto quote; an oracle or listing win keeps the stored values.
func (c Currency) WithLivePrice(r PriceResolution) Currency {
	c.RatioOfExchange = r.Quote.RatioOfExchange
	c.Source = r.Tier.Source()
	if !r.Quote.UpdatedAt.IsZero() {
		c.PriceUpdatedAt = r.Quote.UpdatedAt
	}
	if r.Tier != TierLiveCrypto {
		return c
	}
	if r.Quote.Rank > 0 {
		c.Rank = r.Quote.Rank
	}
	if r.Quote.MarketCapUSD > 0 {
		c.MarketCapUSD = r.Quote.MarketCapUSD
	}
	return c
}

// WithHistoricalPrice mirrors the most recent synced daily price onto the catalog row.
// It reports false, leaving c untouched, when the row already holds a fresher price.
func (c Currency) WithHistoricalPrice(p SeriesPoint, source string) (Currency, bool) {
	if !c.PriceUpdatedAt.IsZero() && !p.Date.After(c.PriceUpdatedAt) {
		return c, false
	}
	c.RatioOfExchange = p.RatioOfExchange
	c.PriceUpdatedAt = p.Date
	c.Source = source
	return c, true
}

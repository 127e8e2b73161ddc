package domain

import "time"

// Quote is one provider's current price for a symbol.
type Quote struct {
	Symbol          string
	RatioOfExchange ROE
	UpdatedAt       time.Time
	Rank            int
	MarketCapUSD    float64
	Source          string
}

// SeriesPoint is one day of a historical series.
type SeriesPoint struct {
	Date            time.Time
	RatioOfExchange ROE
	MarketCapUSD    float64
}

// Series is a provider's daily history for one symbol. Points are not guaranteed sorted.
type Series struct {
	Symbol string
	Source string
	Points []SeriesPoint
}

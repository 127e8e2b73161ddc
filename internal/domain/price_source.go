package domain

// PriceTier identifies which live source won reconciliation for a currency.
// Lower values take precedence.
type PriceTier int

const (
	TierOracle PriceTier = iota
	TierLiveCrypto
	TierListing
	TierStored
)

func (t PriceTier) Source() string {
	switch t {
	case TierOracle:
		return SourceChainlink
	case TierLiveCrypto:
		return SourceCoinGecko
	case TierListing:
		return SourceCoinMarketCap
	default:
		return SourceStored
	}
}

func (t PriceTier) String() string {
	switch t {
	case TierOracle:
		return "oracle"
	case TierLiveCrypto:
		return "live_crypto"
	case TierListing:
		return "listing"
	default:
		return "stored"
	}
}

// PriceResolution is the outcome of reconciling live quotes for one currency.
type PriceResolution struct {
	Tier  PriceTier
	Quote Quote
}

// Stored keeps the catalog's current values.
func Stored(c Currency) PriceResolution {
	return PriceResolution{
		Tier: TierStored,
		Quote: Quote{
			Symbol:          c.Ticker,
			RatioOfExchange: c.RatioOfExchange,
			UpdatedAt:       c.PriceUpdatedAt,
			Source:          SourceStored,
		},
	}
}

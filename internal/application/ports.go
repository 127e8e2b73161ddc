package application

import (
	"context"
	"time"

	"price-aggregator/internal/domain"
)

// CurrencyFilter selects catalog rows. Zero values match everything.
type CurrencyFilter struct {
	Types  []domain.CurrencyType
	Ticker string
}

type CurrencyStore interface {
	// GetAll returns currencies keyed by ID. A nil ids slice returns the whole catalog up to limit.
	GetAll(ctx context.Context, ids []string, limit int) (map[string]domain.Currency, error)
	// Search returns currencies ordered by name descending.
	Search(ctx context.Context, f CurrencyFilter, limit, skip int) ([]domain.Currency, error)
	// SetAll bulk-upserts. With insertOnly, existing IDs are left untouched.
	SetAll(ctx context.Context, items map[string]domain.Currency, insertOnly bool) error
}

type HistoryStore interface {
	SetAll(ctx context.Context, items map[string]domain.HistoryEntry, insertOnly bool) error
	// Search returns entries for one currency, newest first.
	Search(ctx context.Context, currencyID string, limit, skip int) ([]domain.HistoryEntry, error)
}

type WatermarkStore interface {
	GetAll(ctx context.Context, source string, currencyIDs []string) (map[string]domain.SyncWatermark, error)
	SetAll(ctx context.Context, items []domain.SyncWatermark) error
}

type ABIStore interface {
	GetAll(ctx context.Context) (map[string]domain.ContractABI, error)
	Set(ctx context.Context, ticker string, abi domain.ContractABI) error
}

// ReferenceCache persists slow-changing lists under a cache identifier.
type ReferenceCache interface {
	GetAll(ctx context.Context, key string) (map[string]string, error)
	// SetAll merges entries into key; overwrite replaces the whole list.
	SetAll(ctx context.Context, key string, entries map[string]string, overwrite bool) error
}

// QuotaLedger tracks a source's daily call budget across passes.
type QuotaLedger interface {
	// Reserve grants up to n calls for source and returns how many were granted.
	Reserve(ctx context.Context, source string, n int) (int, error)
}

// SeriesRequest asks a historical source for one currency's daily series.
type SeriesRequest struct {
	Currency   domain.Currency
	Since      time.Time
	Window     domain.WindowSize
	Credential string
}

// SeriesSource is a historical daily price provider.
type SeriesSource interface {
	Name() string
	Types() []domain.CurrencyType
	// Supported narrows currencies to those the provider can serve.
	Supported(ctx context.Context, currencies []domain.Currency) ([]domain.Currency, error)
	FetchSeries(ctx context.Context, req SeriesRequest) (domain.Series, error)
}

// LiveSource returns current quotes keyed by upper-case ticker. Symbols it cannot
// price are left out of the map rather than failing the call.
type LiveSource interface {
	Name() string
	FetchLive(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
}

// ReferenceRefresher reloads a provider's cached reference list.
type ReferenceRefresher interface {
	Name() string
	RefreshReference(ctx context.Context) error
}

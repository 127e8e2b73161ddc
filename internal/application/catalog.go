package application

import (
	"context"
	"fmt"
	"strings"

	"price-aggregator/internal/domain"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// CatalogService is the read side used by the ops API.
type CatalogService struct {
	currencies CurrencyStore
	history    HistoryStore
}

func NewCatalogService(currencies CurrencyStore, history HistoryStore) *CatalogService {
	return &CatalogService{currencies: currencies, history: history}
}

func pageSize(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultPageSize, nil
	case limit < 0 || limit > MaxPageSize:
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, MaxPageSize)
	}
	return limit, nil
}

// ParseCurrencyType accepts the three catalog types, case-insensitively.
func ParseCurrencyType(s string) (domain.CurrencyType, error) {
	t := domain.CurrencyType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case domain.TypeCrypto, domain.TypeFiat, domain.TypeStock:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown currency type %q", ErrBadRequest, s)
}

func (s *CatalogService) ListCurrencies(ctx context.Context, types []domain.CurrencyType, limit, skip int) ([]domain.Currency, error) {
	n, err := pageSize(limit)
	if err != nil {
		return nil, err
	}
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", ErrBadRequest)
	}
	return s.currencies.Search(ctx, CurrencyFilter{Types: types}, n, skip)
}

func (s *CatalogService) GetCurrency(ctx context.Context, ticker string) (domain.Currency, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return domain.Currency{}, fmt.Errorf("%w: empty ticker", ErrBadRequest)
	}
	found, err := s.currencies.Search(ctx, CurrencyFilter{Ticker: ticker}, 1, 0)
	if err != nil {
		return domain.Currency{}, err
	}
	if len(found) == 0 {
		return domain.Currency{}, fmt.Errorf("currency %s: %w", ticker, ErrNotFound)
	}
	return found[0], nil
}

// History returns the newest entries first.
func (s *CatalogService) History(ctx context.Context, ticker string, limit, skip int) ([]domain.HistoryEntry, error) {
	n, err := pageSize(limit)
	if err != nil {
		return nil, err
	}
	c, err := s.GetCurrency(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return s.history.Search(ctx, c.ID, n, skip)
}

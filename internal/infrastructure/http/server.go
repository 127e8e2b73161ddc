package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"price-aggregator/internal/application"
	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Catalog is the read side served by the ops API.
type Catalog interface {
	ListCurrencies(ctx context.Context, types []domain.CurrencyType, limit, skip int) ([]domain.Currency, error)
	GetCurrency(ctx context.Context, ticker string) (domain.Currency, error)
	History(ctx context.Context, ticker string, limit, skip int) ([]domain.HistoryEntry, error)
}

var _ Catalog = (*application.CatalogService)(nil)

type Server struct {
	catalog Catalog
	ping    func(ctx context.Context) error
}

func NewServer(catalog Catalog) *Server { return &Server{catalog: catalog} }

// SetReadyCheck installs the probe used by /readyz.
func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

type currencyDTO struct {
	ID              string     `json:"id"`
	Ticker          string     `json:"ticker"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	RatioOfExchange int64      `json:"ratio_of_exchange"`
	PriceUSD        string     `json:"price_usd"`
	PriceUpdatedAt  *time.Time `json:"price_updated_at,omitempty"`
	Source          string     `json:"source,omitempty"`
	Rank            int        `json:"rank,omitempty"`
	MarketCapUSD    float64    `json:"market_cap_usd,omitempty"`
}

type historyDTO struct {
	Date            string  `json:"date"`
	RatioOfExchange int64   `json:"ratio_of_exchange"`
	PriceUSD        string  `json:"price_usd"`
	MarketCapUSD    float64 `json:"market_cap_usd,omitempty"`
	Source          string  `json:"source"`
}

func toCurrencyDTO(c domain.Currency) currencyDTO {
	out := currencyDTO{
		ID:              c.ID,
		Ticker:          c.Ticker,
		Name:            c.Name,
		Type:            string(c.Type),
		RatioOfExchange: int64(c.RatioOfExchange),
		PriceUSD:        c.RatioOfExchange.USD().StringFixed(domain.ROEDecimals),
		Source:          c.Source,
		Rank:            c.Rank,
		MarketCapUSD:    c.MarketCapUSD,
	}
	if !c.PriceUpdatedAt.IsZero() {
		ts := c.PriceUpdatedAt
		out.PriceUpdatedAt = &ts
	}
	return out
}

type listParams struct {
	Type  *string
	Limit *int
	Skip  *int
}

func (s *Server) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	var p listParams
	if err := bindQuery(r, map[string]any{"type": &p.Type, "limit": &p.Limit, "skip": &p.Skip}); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	var types []domain.CurrencyType
	if p.Type != nil {
		t, err := application.ParseCurrencyType(*p.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		types = append(types, t)
	}
	items, err := s.catalog.ListCurrencies(r.Context(), types, deref(p.Limit), deref(p.Skip))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]currencyDTO, 0, len(items))
	for _, c := range items {
		out = append(out, toCurrencyDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetCurrency(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalog.GetCurrency(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCurrencyDTO(c))
}

func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	var p listParams
	if err := bindQuery(r, map[string]any{"limit": &p.Limit, "skip": &p.Skip}); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	entries, err := s.catalog.History(r.Context(), chi.URLParam(r, "ticker"), deref(p.Limit), deref(p.Skip))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]historyDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyDTO{
			Date:            e.Date.Format(domain.DateLayout),
			RatioOfExchange: int64(e.RatioOfExchange),
			PriceUSD:        e.RatioOfExchange.USD().StringFixed(domain.ROEDecimals),
			MarketCapUSD:    e.MarketCapUSD,
			Source:          e.Source,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, application.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logx.WithFields(r.Context()).Error("api.internal_error",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

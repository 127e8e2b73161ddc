package provider

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"price-aggregator/internal/domain"
	"price-aggregator/internal/infrastructure/httpx"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("price-aggregator/provider")

// wrapHTTP tags a transport error with the domain error the engine classifies on.
func wrapHTTP(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrQuotaExceeded) || errors.Is(err, domain.ErrEmptyResult) {
		return fmt.Errorf("%s: %w", name, err)
	}
	if httpx.IsStatus(err, http.StatusTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", name, domain.ErrQuotaExceeded, err)
	}
	if httpx.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%s: %w: %w", name, domain.ErrUnsupportedSymbol, err)
	}
	return fmt.Errorf("%s: %w: %w", name, domain.ErrProvider, err)
}

// endpoint joins base and path and encodes q.
func endpoint(base, path string, q url.Values) (string, error) {
	raw := base
	if path != "" {
		raw = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base url %q: %w", domain.ErrConfiguration, base, err)
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func upperSet(symbols []string) map[string]bool {
	out := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		out[strings.ToUpper(s)] = true
	}
	return out
}

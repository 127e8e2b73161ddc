package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedSymbol = errors.New("unsupported symbol")

	// ErrQuotaExceeded means the provider refused the call because a rate or credit limit was hit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrProvider covers malformed or missing payloads.
	ErrProvider = errors.New("provider error")
	// ErrEmptyResult is a valid response with no data for the symbol.
	ErrEmptyResult = errors.New("empty result")
	// ErrConfiguration means a source is missing credentials or settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrStore wraps persistence failures.
	ErrStore = errors.New("store error")
)

type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeEmpty         Outcome = "empty"
	OutcomeError         Outcome = "error"
)

// Classify maps an adapter error to a single outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrQuotaExceeded):
		return OutcomeQuotaExceeded
	case errors.Is(err, ErrEmptyResult):
		return OutcomeEmpty
	default:
		return OutcomeError
	}
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DateLayout is the day granularity used for history dates and watermarks.
const DateLayout = "2006-01-02"

type HistoryEntry struct {
	ID              string
	CurrencyID      string
	Ticker          string
	Type            CurrencyType
	Date            time.Time
	RatioOfExchange ROE
	MarketCapUSD    float64
	Source          string
}

// HistoryEntryID is stable for a (date, ticker, type) triple so repeated syncs
// overwrite the same row.
func HistoryEntryID(date time.Time, ticker string, t CurrencyType) string {
	sum := sha256.Sum256([]byte(date.Format(DateLayout) + "_" + ticker + "." + string(t)))
	return hex.EncodeToString(sum[:])
}

// NewHistoryEntry builds the persisted entry for one series point.
func NewHistoryEntry(c Currency, p SeriesPoint, source string) HistoryEntry {
	day := Day(p.Date)
	return HistoryEntry{
		ID:              HistoryEntryID(day, c.Ticker, c.Type),
		CurrencyID:      c.ID,
		Ticker:          c.Ticker,
		Type:            c.Type,
		Date:            day,
		RatioOfExchange: p.RatioOfExchange,
		MarketCapUSD:    p.MarketCapUSD,
		Source:          source,
	}
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date as a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

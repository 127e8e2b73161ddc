package domain

import "time"

// StalenessThreshold is how old a watermark may get before a full window is requested again.
const StalenessThreshold = 100 * 24 * time.Hour

type WindowSize string

const (
	WindowCompact WindowSize = "compact"
	WindowFull    WindowSize = "full"
)

type SyncState int

const (
	NeedsFull SyncState = iota
	NeedsIncremental
	UpToDate
)

func (s SyncState) String() string {
	switch s {
	case NeedsFull:
		return "needs_full"
	case NeedsIncremental:
		return "needs_incremental"
	default:
		return "up_to_date"
	}
}

// SyncWatermark is the last day durably synced for a currency from one historical source.
type SyncWatermark struct {
	CurrencyID string
	Source     string
	LastDay    time.Time
}

func (w SyncWatermark) IsZero() bool { return w.LastDay.IsZero() }

// Advance never moves the watermark backwards.
func (w SyncWatermark) Advance(day time.Time) SyncWatermark {
	day = Day(day)
	if day.After(w.LastDay) {
		w.LastDay = day
	}
	return w
}

// StateAt classifies the watermark relative to now.
func (w SyncWatermark) StateAt(now time.Time) SyncState {
	if w.IsZero() {
		return NeedsFull
	}
	today := Day(now)
	if today.Sub(Day(w.LastDay)) > StalenessThreshold {
		return NeedsFull
	}
	if !Day(w.LastDay).Before(today.AddDate(0, 0, -1)) {
		return UpToDate
	}
	return NeedsIncremental
}

// Window maps a sync state to the fetch window size.
func (s SyncState) Window() WindowSize {
	if s == NeedsFull {
		return WindowFull
	}
	return WindowCompact
}

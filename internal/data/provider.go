// Package data holds the price- and signal-access layer the simulator
// depends on. Retry, caching and pacing live here so the core decision logic
// stays testable against a synchronous, deterministic in-memory source.
package data

import (
	"context"
	"errors"
	"time"

	"swing-backtest/internal/model"
)

// ErrNoData is returned when a provider has no bars or no signal for the
// requested ticker and date range. Callers treat it as "skip this ticker
// today", never as a fatal condition.
var ErrNoData = errors.New("no data")

// PriceProvider returns ordered daily bars for a ticker. Implementations may
// return an empty or partial series and must tolerate unknown tickers
// without failing the whole run.
type PriceProvider interface {
	DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error)
}

// SignalProvider returns the external scoring engine's entry signal for a
// ticker as of a date. Point-in-time correctness is the provider's contract.
type SignalProvider interface {
	EntrySignal(ctx context.Context, ticker string, asOf time.Time) (*model.EntrySignal, error)
}

// Pacer inserts a delay between batches of provider requests. Purely an
// operational concession to rate-limited sources; a nil Pacer never waits
// and does not change any outcome.
type Pacer func(ctx context.Context)

// SleepPacer pauses for d, or until the context is done.
func SleepPacer(d time.Duration) Pacer {
	return func(ctx context.Context) {
		if d <= 0 {
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

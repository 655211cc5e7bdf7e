package data

import (
	"context"
	"sync"
	"time"

	"swing-backtest/internal/model"
)

// PriceCache lazily loads and holds each ticker's full bar series for one
// simulator run's date range. It is owned by exactly one run and never shared
// across concurrent runs, which keeps walk-forward grid search trivially
// parallelizable.
type PriceCache struct {
	provider PriceProvider
	start    time.Time
	end      time.Time

	mu     sync.Mutex
	series map[string][]model.Bar
	failed map[string]bool
}

// NewPriceCache wraps a provider for one run over [start, end].
func NewPriceCache(provider PriceProvider, start, end time.Time) *PriceCache {
	return &PriceCache{
		provider: provider,
		start:    start,
		end:      end,
		series:   make(map[string][]model.Bar),
		failed:   make(map[string]bool),
	}
}

// load fetches the ticker's series on first use. A failed fetch is recorded
// so it is not retried on every subsequent day lookup within the run; the
// retry policy belongs to the provider decorator, not the cache.
func (c *PriceCache) load(ctx context.Context, ticker string) ([]model.Bar, error) {
	c.mu.Lock()
	if bars, ok := c.series[ticker]; ok {
		c.mu.Unlock()
		return bars, nil
	}
	if c.failed[ticker] {
		c.mu.Unlock()
		return nil, ErrNoData
	}
	c.mu.Unlock()

	bars, err := c.provider.DailyBars(ctx, ticker, c.start, c.end)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed[ticker] = true
		return nil, err
	}
	c.series[ticker] = bars
	return bars, nil
}

// Bar returns the ticker's bar for an exact date, or ErrNoData when the
// series has no bar that day (holiday, halt, unknown ticker).
func (c *PriceCache) Bar(ctx context.Context, ticker string, date time.Time) (model.Bar, error) {
	bars, err := c.load(ctx, ticker)
	if err != nil {
		return model.Bar{}, err
	}
	for _, b := range bars {
		if sameDay(b.Date, date) {
			return b, nil
		}
	}
	return model.Bar{}, ErrNoData
}

// LastClose returns the most recent close at or before date, for
// mark-to-market. ok is false when no bar at or before date exists.
func (c *PriceCache) LastClose(ctx context.Context, ticker string, date time.Time) (float64, bool) {
	bars, err := c.load(ctx, ticker)
	if err != nil {
		return 0, false
	}
	var (
		px    float64
		found bool
	)
	for _, b := range bars {
		if b.Date.After(date) {
			break
		}
		px = b.Close
		found = true
	}
	return px, found
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

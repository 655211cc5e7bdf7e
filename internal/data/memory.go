package data

import (
	"context"
	"sync"
	"time"

	"swing-backtest/internal/model"
)

// MemoryProvider is a deterministic in-memory price and signal source.
// It backs tests and offline runs; identical inputs always produce identical
// bars and signals, which keeps full simulator runs byte-for-byte repeatable.
type MemoryProvider struct {
	mu      sync.RWMutex
	bars    map[string][]model.Bar
	signals map[string]map[string]*model.EntrySignal // ticker -> yyyy-mm-dd -> signal
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		bars:    make(map[string][]model.Bar),
		signals: make(map[string]map[string]*model.EntrySignal),
	}
}

// SetBars replaces the ticker's bar series. Bars must be date-ordered.
func (m *MemoryProvider) SetBars(ticker string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[ticker] = append([]model.Bar(nil), bars...)
}

// SetSignal registers the signal returned for a ticker on a given day.
func (m *MemoryProvider) SetSignal(ticker string, asOf time.Time, sig *model.EntrySignal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDay, ok := m.signals[ticker]
	if !ok {
		byDay = make(map[string]*model.EntrySignal)
		m.signals[ticker] = byDay
	}
	byDay[dayKey(asOf)] = sig
}

func (m *MemoryProvider) DailyBars(_ context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series, ok := m.bars[ticker]
	if !ok {
		return nil, ErrNoData
	}
	out := make([]model.Bar, 0, len(series))
	for _, b := range series {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *MemoryProvider) EntrySignal(_ context.Context, ticker string, asOf time.Time) (*model.EntrySignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byDay, ok := m.signals[ticker]
	if !ok {
		return nil, ErrNoData
	}
	sig, ok := byDay[dayKey(asOf)]
	if !ok {
		return nil, ErrNoData
	}
	return sig, nil
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

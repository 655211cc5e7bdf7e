package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
)

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// countingProvider wraps a PriceProvider and counts DailyBars calls.
type countingProvider struct {
	mu    sync.Mutex
	inner PriceProvider
	calls int
}

func (c *countingProvider) DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.DailyBars(ctx, ticker, start, end)
}

func (c *countingProvider) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func seededProvider() *MemoryProvider {
	m := NewMemoryProvider()
	m.SetBars("AAPL", []model.Bar{
		{Date: day(2024, 1, 2), Open: 100, High: 102, Low: 99, Close: 101},
		{Date: day(2024, 1, 3), Open: 101, High: 103, Low: 100, Close: 102},
		{Date: day(2024, 1, 5), Open: 102, High: 104, Low: 101, Close: 103},
	})
	return m
}

func TestCacheBarExactDate(t *testing.T) {
	cache := NewPriceCache(seededProvider(), day(2024, 1, 1), day(2024, 1, 31))

	b, err := cache.Bar(context.Background(), "AAPL", day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 102.0, b.Close)

	// Jan 4 has no bar; the series skips it.
	_, err = cache.Bar(context.Background(), "AAPL", day(2024, 1, 4))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCacheFetchesEachTickerOnce(t *testing.T) {
	prov := &countingProvider{inner: seededProvider()}
	cache := NewPriceCache(prov, day(2024, 1, 1), day(2024, 1, 31))

	for i := 0; i < 5; i++ {
		_, err := cache.Bar(context.Background(), "AAPL", day(2024, 1, 2))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, prov.count())
}

func TestCacheMemoizesFailures(t *testing.T) {
	prov := &countingProvider{inner: NewMemoryProvider()} // knows no tickers
	cache := NewPriceCache(prov, day(2024, 1, 1), day(2024, 1, 31))

	for i := 0; i < 4; i++ {
		_, err := cache.Bar(context.Background(), "GHOST", day(2024, 1, 2))
		assert.ErrorIs(t, err, ErrNoData)
	}
	// The first failure is recorded; later lookups never hit the provider.
	assert.Equal(t, 1, prov.count())
}

func TestCacheLastClose(t *testing.T) {
	cache := NewPriceCache(seededProvider(), day(2024, 1, 1), day(2024, 1, 31))
	ctx := context.Background()

	// Exact bar day.
	px, ok := cache.LastClose(ctx, "AAPL", day(2024, 1, 3))
	require.True(t, ok)
	assert.Equal(t, 102.0, px)

	// Gap day falls back to the prior close.
	px, ok = cache.LastClose(ctx, "AAPL", day(2024, 1, 4))
	require.True(t, ok)
	assert.Equal(t, 102.0, px)

	// Past the end of the series the last close stands.
	px, ok = cache.LastClose(ctx, "AAPL", day(2024, 1, 20))
	require.True(t, ok)
	assert.Equal(t, 103.0, px)

	// Before the first bar there is nothing to mark against.
	_, ok = cache.LastClose(ctx, "AAPL", day(2024, 1, 1))
	assert.False(t, ok)
}

func TestCacheConcurrentLookups(t *testing.T) {
	prov := &countingProvider{inner: seededProvider()}
	cache := NewPriceCache(prov, day(2024, 1, 1), day(2024, 1, 31))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Bar(context.Background(), "AAPL", day(2024, 1, 2))
		}()
	}
	wg.Wait()
	// Concurrent first hits may race the initial load, but the cache must
	// settle and serve every later lookup from memory.
	_, err := cache.Bar(context.Background(), "AAPL", day(2024, 1, 2))
	assert.NoError(t, err)
}

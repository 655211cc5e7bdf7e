package data

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"swing-backtest/internal/model"
)

// Retry settings for transient provider failures. ErrNoData is permanent:
// retrying a ticker the source simply doesn't know is wasted budget.
const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 250 * time.Millisecond
)

func newBackOff(ctx context.Context, maxRetries uint64) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)
}

// RetryPriceProvider decorates a PriceProvider with bounded exponential
// backoff. After the attempts are exhausted the last error is returned and
// the caller degrades to "no data today" for that ticker.
type RetryPriceProvider struct {
	Inner      PriceProvider
	MaxRetries uint64
}

func NewRetryPriceProvider(inner PriceProvider) *RetryPriceProvider {
	return &RetryPriceProvider{Inner: inner, MaxRetries: defaultMaxRetries}
}

func (p *RetryPriceProvider) DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	var bars []model.Bar
	op := func() error {
		var err error
		bars, err = p.Inner.DailyBars(ctx, ticker, start, end)
		if errors.Is(err, ErrNoData) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, newBackOff(ctx, p.MaxRetries)); err != nil {
		return nil, err
	}
	return bars, nil
}

// RetrySignalProvider is the SignalProvider counterpart.
type RetrySignalProvider struct {
	Inner      SignalProvider
	MaxRetries uint64
}

func NewRetrySignalProvider(inner SignalProvider) *RetrySignalProvider {
	return &RetrySignalProvider{Inner: inner, MaxRetries: defaultMaxRetries}
}

func (p *RetrySignalProvider) EntrySignal(ctx context.Context, ticker string, asOf time.Time) (*model.EntrySignal, error) {
	var sig *model.EntrySignal
	op := func() error {
		var err error
		sig, err = p.Inner.EntrySignal(ctx, ticker, asOf)
		if errors.Is(err, ErrNoData) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, newBackOff(ctx, p.MaxRetries)); err != nil {
		return nil, err
	}
	return sig, nil
}

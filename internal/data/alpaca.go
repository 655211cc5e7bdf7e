package data

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"swing-backtest/internal/model"
)

// AlpacaProvider serves split-adjusted daily bars from the Alpaca market
// data API. It implements PriceProvider only; entry signals come from the
// external scoring engine, not from a market data vendor.
type AlpacaProvider struct {
	client *marketdata.Client
}

// NewAlpacaProvider builds a provider from API credentials.
func NewAlpacaProvider(apiKey, apiSecret string) *AlpacaProvider {
	return &AlpacaProvider{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func (p *AlpacaProvider) DailyBars(_ context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	bars, err := p.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Adjustment: marketdata.Split,
	})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, model.Bar{
			Date:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

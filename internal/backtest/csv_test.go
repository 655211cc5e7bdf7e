package backtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
)

func TestWriteTradesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	trades := []*model.Trade{
		{
			Ticker:           "AAPL",
			EntryDate:        d(2024, 1, 2),
			ExitDate:         d(2024, 1, 9),
			EntryPrice:       100,
			ExitPrice:        110,
			InitialShares:    150,
			StopLoss:         95,
			ExitReason:       model.ExitTrailingStop,
			RealizedR:        2,
			RealizedPnL:      1500,
			HoldingDays:      7,
			Partials:         []model.PartialExit{{Shares: 50, Price: 107.5, Reason: model.ExitTP1}},
			Regime:           model.RegimeBull,
			Sector:           "Technology",
			EntryProbability: 78,
			Status:           model.StatusClosed,
		},
	}

	require.NoError(t, WriteTradesCSV(path, trades))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "ticker", rows[0][0])
	assert.Equal(t, "AAPL", rows[1][0])
	assert.Equal(t, "2024-01-02", rows[1][1])
	assert.Equal(t, "trailing-stop", rows[1][7])
	assert.Equal(t, "2.0000", rows[1][8])
	assert.Equal(t, "1", rows[1][13]) // one partial fill
}

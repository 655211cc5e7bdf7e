package backtest

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"swing-backtest/internal/model"
)

// WriteTradesCSV writes the closed-trade ledger for spreadsheet inspection.
func WriteTradesCSV(path string, trades []*model.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"ticker",
		"entry_date",
		"exit_date",
		"entry_price",
		"exit_price",
		"initial_shares",
		"stop_loss",
		"exit_reason",
		"realized_r",
		"realized_pnl",
		"mfe_r",
		"mae_r",
		"holding_days",
		"partials",
		"regime",
		"sector",
		"entry_probability",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		row := []string{
			t.Ticker,
			fmtDate(t.EntryDate),
			fmtDate(t.ExitDate),
			fmtFloat(t.EntryPrice),
			fmtFloat(t.ExitPrice),
			strconv.Itoa(t.InitialShares),
			fmtFloat(t.StopLoss),
			string(t.ExitReason),
			fmtFloat(t.RealizedR),
			fmtFloat(t.RealizedPnL),
			fmtFloat(t.MFER),
			fmtFloat(t.MAER),
			strconv.Itoa(t.HoldingDays),
			strconv.Itoa(len(t.Partials)),
			string(t.Regime),
			t.Sector,
			fmtFloat(t.EntryProbability),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 4, 64)
}

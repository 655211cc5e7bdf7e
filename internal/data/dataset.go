package data

import (
	"encoding/json"
	"fmt"
	"os"

	"swing-backtest/internal/model"
)

// Dataset is the on-disk shape of a recorded bar/signal snapshot, used for
// offline, deterministic runs. Live sources (e.g. the Alpaca provider, a
// scoring service) replace it in production wiring.
type Dataset struct {
	// Bars maps ticker to its date-ordered daily series.
	Bars map[string][]model.Bar `json:"bars"`
	// Signals are point-in-time entry signals keyed by Ticker and AsOf.
	Signals []model.EntrySignal `json:"signals"`
}

// LoadDataset reads a dataset JSON file.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	if len(ds.Bars) == 0 {
		return nil, fmt.Errorf("dataset %s: no bars", path)
	}
	return &ds, nil
}

// Provider loads the dataset into a MemoryProvider serving both prices and
// signals.
func (d *Dataset) Provider() *MemoryProvider {
	m := NewMemoryProvider()
	for ticker, bars := range d.Bars {
		m.SetBars(ticker, bars)
	}
	for i := range d.Signals {
		sig := d.Signals[i]
		m.SetSignal(sig.Ticker, sig.AsOf, &sig)
	}
	return m
}

package model

import "time"

// Bar is one daily OHLC bar for a ticker.
// Prices are in dollars; Volume is the share count traded that day.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// IsTradingDay reports whether d falls on a weekday.
// Exchange holidays are not modeled; a holiday simply yields no bar
// from the price provider and the day is skipped per ticker.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

package models

import "swing-backtest/internal/config"

// BacktestRequest is the POST /api/v1/backtest body.
type BacktestRequest struct {
	Config config.Config `json:"config"`
}

// WalkForwardRequest is the POST /api/v1/walkforward body.
type WalkForwardRequest struct {
	Config      config.Config      `json:"config"`
	WalkForward config.WalkForward `json:"walkforward"`
}

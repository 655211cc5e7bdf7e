package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"swing-backtest/internal/api/models"
	"swing-backtest/internal/backtest"
	"swing-backtest/internal/data"
)

// BacktestHandler runs simulations against the server's configured
// price/signal providers.
type BacktestHandler struct {
	prices  data.PriceProvider
	signals data.SignalProvider
	log     *zap.Logger
}

func NewBacktestHandler(prices data.PriceProvider, signals data.SignalProvider, log *zap.Logger) *BacktestHandler {
	return &BacktestHandler{prices: prices, signals: signals, log: log}
}

// RunBacktest handles POST /api/v1/backtest.
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", err.Error()))
		return
	}

	cfg := req.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}

	sim, err := backtest.New(&cfg, h.prices, h.signals, h.log)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}
	res, err := sim.Run(c.Request.Context())
	if err != nil {
		h.log.Error("backtest run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.NewError("RUN_FAILED", err.Error()))
		return
	}

	c.JSON(http.StatusOK, res)
}

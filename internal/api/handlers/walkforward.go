package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"swing-backtest/internal/api/models"
	"swing-backtest/internal/data"
	"swing-backtest/internal/walkforward"
)

// WalkForwardHandler runs parameter optimization across train/validate/test
// windows.
type WalkForwardHandler struct {
	prices  data.PriceProvider
	signals data.SignalProvider
	log     *zap.Logger
}

func NewWalkForwardHandler(prices data.PriceProvider, signals data.SignalProvider, log *zap.Logger) *WalkForwardHandler {
	return &WalkForwardHandler{prices: prices, signals: signals, log: log}
}

// RunWalkForward handles POST /api/v1/walkforward.
func (h *WalkForwardHandler) RunWalkForward(c *gin.Context) {
	var req models.WalkForwardRequest
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
	if err := req.WalkForward.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_WALKFORWARD", err.Error()))
		return
	}

	opt, err := walkforward.New(&cfg, h.prices, h.signals, h.log)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}
	res, err := opt.Run(c.Request.Context(), &req.WalkForward)
	if err != nil {
		h.log.Error("walk-forward run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.NewError("RUN_FAILED", err.Error()))
		return
	}

	c.JSON(http.StatusOK, res)
}

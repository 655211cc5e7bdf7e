package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"swing-backtest/internal/api/handlers"
	"swing-backtest/internal/api/middleware"
	"swing-backtest/internal/data"
)

func main() {
	// Optional .env for local development (Alpaca keys, port).
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if os.Getenv("API_ENV") != "production" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	prices, signals, err := buildProviders(logger)
	if err != nil {
		logger.Fatal("providers", zap.Error(err))
	}

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	backtestHandler := handlers.NewBacktestHandler(prices, signals, logger)
	walkForwardHandler := handlers.NewWalkForwardHandler(prices, signals, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/backtest", backtestHandler.RunBacktest)
	v1.POST("/walkforward", walkForwardHandler.RunWalkForward)

	logger.Info("listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

// buildProviders wires the data layer. A recorded dataset (DATASET_PATH)
// always supplies signals; prices come from Alpaca when keys are present,
// from the dataset otherwise. Both providers get the retry decorator.
func buildProviders(logger *zap.Logger) (data.PriceProvider, data.SignalProvider, error) {
	dsPath := os.Getenv("DATASET_PATH")
	if dsPath == "" {
		dsPath = "testdata/dataset.json"
	}
	ds, err := data.LoadDataset(dsPath)
	if err != nil {
		return nil, nil, err
	}
	mem := ds.Provider()

	var prices data.PriceProvider = mem
	if key, secret := os.Getenv("ALPACA_API_KEY"), os.Getenv("ALPACA_SECRET_KEY"); key != "" && secret != "" {
		logger.Info("using alpaca price provider")
		prices = data.NewAlpacaProvider(key, secret)
	}

	return data.NewRetryPriceProvider(prices), data.NewRetrySignalProvider(mem), nil
}

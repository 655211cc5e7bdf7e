package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"swing-backtest/internal/backtest"
	"swing-backtest/internal/config"
	"swing-backtest/internal/data"
	"swing-backtest/internal/walkforward"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "backtest":
		cmdBacktest(os.Args[2:])
	case "walkforward":
		cmdWalkForward(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli backtest --config examples/config.yaml --data testdata/dataset.json --out results/result.json")
	fmt.Println("  cli walkforward --config examples/config.yaml --walkforward examples/walkforward.yaml --data testdata/dataset.json --out results/wf.json")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - backtest writes the full result JSON and optionally a trades CSV (--trades-csv)")
	fmt.Println("  - walkforward grid-searches TRAIN periods and reports out-of-sample aggregates")
	fmt.Println("  - set ALPACA_API_KEY/ALPACA_SECRET_KEY (or a .env) to price from Alpaca instead of the dataset")
}

func cmdBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML backtest config")
	dataPath := fs.String("data", "testdata/dataset.json", "Path to dataset JSON (bars + signals)")
	outPath := fs.String("out", "results/result.json", "Output result JSON path")
	csvPath := fs.String("trades-csv", "", "Optional: also write closed trades CSV")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	prices, signals := buildProviders(logger, *dataPath)

	sim, err := backtest.New(cfg, prices, signals, logger)
	if err != nil {
		logger.Fatal("simulator", zap.Error(err))
	}
	res, err := sim.Run(context.Background())
	if err != nil {
		logger.Fatal("run", zap.Error(err))
	}

	writeJSON(logger, *outPath, res)
	if *csvPath != "" {
		if err := backtest.WriteTradesCSV(*csvPath, res.Trades); err != nil {
			logger.Fatal("trades csv", zap.Error(err))
		}
	}

	fmt.Printf("Trades=%d WinRate=%.1f%% TotalPnL=$%.2f MaxDD=%.1f%% Sharpe=%.2f\n",
		res.Metrics.TotalTrades,
		res.Metrics.WinRate*100,
		res.Metrics.TotalPnL,
		res.Metrics.MaxDrawdownPct,
		res.Metrics.Sharpe,
	)
}

func cmdWalkForward(args []string) {
	fs := flag.NewFlagSet("walkforward", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML base backtest config")
	wfPath := fs.String("walkforward", "", "Path to YAML walk-forward config")
	dataPath := fs.String("data", "testdata/dataset.json", "Path to dataset JSON (bars + signals)")
	outPath := fs.String("out", "results/wf.json", "Output result JSON path")
	_ = fs.Parse(args)

	if *cfgPath == "" || *wfPath == "" {
		fmt.Println("--config and --walkforward are required")
		os.Exit(2)
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	wf, err := config.LoadWalkForward(*wfPath)
	if err != nil {
		logger.Fatal("walkforward config", zap.Error(err))
	}
	prices, signals := buildProviders(logger, *dataPath)

	opt, err := walkforward.New(cfg, prices, signals, logger)
	if err != nil {
		logger.Fatal("optimizer", zap.Error(err))
	}
	res, err := opt.Run(context.Background(), wf)
	if err != nil {
		logger.Fatal("run", zap.Error(err))
	}

	writeJSON(logger, *outPath, res)

	oos := res.OutOfSample
	fmt.Printf("OOS periods=%d trades=%d pnl=$%.2f winRate=%.1f%% worstDD=%.1f%%\n",
		oos.Periods, oos.TotalTrades, oos.TotalPnL, oos.WinRate*100, oos.WorstDrawdownPct)
}

func newLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}

func buildProviders(logger *zap.Logger, dataPath string) (data.PriceProvider, data.SignalProvider) {
	_ = godotenv.Load()

	ds, err := data.LoadDataset(dataPath)
	if err != nil {
		logger.Fatal("dataset", zap.Error(err))
	}
	mem := ds.Provider()

	var prices data.PriceProvider = mem
	if key, secret := os.Getenv("ALPACA_API_KEY"), os.Getenv("ALPACA_SECRET_KEY"); key != "" && secret != "" {
		logger.Info("using alpaca price provider")
		prices = data.NewAlpacaProvider(key, secret)
	}

	return data.NewRetryPriceProvider(prices), data.NewRetrySignalProvider(mem)
}

func writeJSON(logger *zap.Logger, path string, v any) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Fatal("mkdir", zap.Error(err))
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatal("marshal", zap.Error(err))
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.Fatal("write", zap.Error(err))
	}
	fmt.Printf("Wrote %s\n", path)
}

// Package backtest walks a trading calendar day by day, managing entries,
// open positions and equity accounting, and produces a full backtest result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swing-backtest/internal/config"
	"swing-backtest/internal/data"
	"swing-backtest/internal/exit"
	"swing-backtest/internal/model"
)

// minSectorRS is the relative-strength floor a candidate's sector must meet.
const minSectorRS = 0.95

// Simulator owns one run's state: the price cache, the per-ticker cooldown
// map, cash and positions. Nothing here is shared between runs, so grid
// searches can hold many simulators without coordination.
type Simulator struct {
	cfg     *config.Config
	prices  data.PriceProvider
	signals data.SignalProvider
	engine  *exit.Engine
	log     *zap.Logger
	pacer   data.Pacer

	cache       *data.PriceCache
	lastExit    map[string]time.Time
	cash        float64
	open        []*model.Trade
	closed      []*model.Trade
	equity      []model.EquityPoint
	peak        float64
	dayRealized float64
}

// New validates the config and builds a simulator. The providers are the
// external collaborators; wrap them in the data package's retry decorators
// when the source is unreliable.
func New(cfg *config.Config, prices data.PriceProvider, signals data.SignalProvider, log *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator config: %w", err)
	}
	if prices == nil || signals == nil {
		return nil, errors.New("simulator: price and signal providers are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	var pacer data.Pacer
	if cfg.BatchDelay > 0 {
		pacer = data.SleepPacer(cfg.BatchDelay)
	}
	return &Simulator{
		cfg:     cfg,
		prices:  prices,
		signals: signals,
		engine:  exit.New(cfg),
		log:     log,
		pacer:   pacer,
	}, nil
}

// Run executes the full calendar walk and returns the result. The walk is
// strictly sequential: one day's position updates, entry scan and equity
// record complete before the next day begins, because entry admissibility
// depends on that day's closing position state.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	days := tradingDays(s.cfg.Start(), s.cfg.End())
	if len(days) == 0 {
		return nil, errors.New("simulator: no trading days in range")
	}

	s.cache = data.NewPriceCache(s.prices, s.cfg.Start(), s.cfg.End())
	s.lastExit = make(map[string]time.Time)
	s.cash = s.cfg.InitialCapital
	s.peak = s.cfg.InitialCapital
	s.open = nil
	s.closed = nil
	s.equity = nil

	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.updatePositions(ctx, day)
		s.scanEntries(ctx, day)
		if i == len(days)-1 {
			s.forceClose(ctx, day)
		}
		s.recordEquity(ctx, day)
	}

	res := s.buildResult()
	s.log.Info("backtest complete",
		zap.String("run_id", res.RunID),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("total_pnl", res.Metrics.TotalPnL),
		zap.Float64("final_equity", s.equity[len(s.equity)-1].Equity),
	)
	return res, nil
}

// tradingDays expands [start, end] inclusive, skipping weekends.
func tradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if model.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// updatePositions fetches today's bar for every open trade, updates
// excursions, and applies the exit engine's decision. Fetches run
// concurrently in fixed-size batches; decisions are applied in position
// order after each batch resolves, so concurrency never changes the outcome.
func (s *Simulator) updatePositions(ctx context.Context, day time.Time) {
	positions := s.open
	for from := 0; from < len(positions); from += s.cfg.BatchSize {
		to := from + s.cfg.BatchSize
		if to > len(positions) {
			to = len(positions)
		}
		batch := positions[from:to]

		bars := make([]model.Bar, len(batch))
		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, t := range batch {
			wg.Add(1)
			go func(i int, ticker string) {
				defer wg.Done()
				bars[i], errs[i] = s.cache.Bar(ctx, ticker, day)
			}(i, t.Ticker)
		}
		wg.Wait()

		for i, t := range batch {
			if errs[i] != nil {
				// Best effort: the position stays open and is
				// retried on the next day's bar.
				s.log.Debug("no bar for open position",
					zap.String("ticker", t.Ticker),
					zap.Time("day", day),
					zap.Error(errs[i]))
				continue
			}
			bar := bars[i]
			t.UpdateExcursion(bar.High, bar.Low)
			s.applyDecision(t, s.engine.Decide(t, bar.High, bar.Low, bar.Close, day), day)
		}

		if s.pacer != nil && to < len(positions) {
			s.pacer(ctx)
		}
	}

	remaining := s.open[:0]
	for _, t := range s.open {
		if t.Status == model.StatusOpen {
			remaining = append(remaining, t)
		}
	}
	s.open = remaining
}

func (s *Simulator) applyDecision(t *model.Trade, d exit.Decision, day time.Time) {
	switch dec := d.(type) {
	case exit.PartialExit:
		if dec.Shares >= t.Shares {
			// The tranche would empty the position; close instead so
			// a zero-share trade can never linger OPEN.
			s.closeTrade(t, day, dec.Price, dec.Reason)
			return
		}
		fill := s.sellFill(dec.Price)
		pnl := (fill-t.EntryPrice)*float64(dec.Shares) - s.cfg.CommissionPerShare*float64(dec.Shares)
		s.cash += fill*float64(dec.Shares) - s.cfg.CommissionPerShare*float64(dec.Shares)
		t.ApplyPartial(day, fill, dec.Shares, dec.Reason, pnl)
		s.dayRealized += pnl
	case exit.FullExit:
		s.closeTrade(t, day, dec.Price, dec.Reason)
	case exit.NoAction:
	}
}

func (s *Simulator) closeTrade(t *model.Trade, day time.Time, price float64, reason model.ExitReason) {
	fill := s.sellFill(price)
	remaining := float64(t.Shares)
	pnl := (fill-t.EntryPrice)*remaining - s.cfg.CommissionPerShare*remaining
	s.cash += fill*remaining - s.cfg.CommissionPerShare*remaining
	t.Close(day, fill, reason, pnl)
	s.dayRealized += pnl
	s.lastExit[t.Ticker] = day
	s.closed = append(s.closed, t)
}

// forceClose liquidates everything still open at the end of the run, at the
// last known close or the entry price as a last resort.
func (s *Simulator) forceClose(ctx context.Context, day time.Time) {
	for _, t := range s.open {
		px, ok := s.cache.LastClose(ctx, t.Ticker, day)
		if !ok {
			px = t.EntryPrice
		}
		s.closeTrade(t, day, px, model.ExitTime)
	}
	s.open = nil
}

// scanEntries requests signals for the eligible universe and enters the
// highest-probability admissible candidates into the remaining slots.
func (s *Simulator) scanEntries(ctx context.Context, day time.Time) {
	slots := s.cfg.MaxPositions - len(s.open)
	if slots <= 0 {
		return
	}

	heldOrCooling := make(map[string]bool, len(s.open))
	for _, t := range s.open {
		heldOrCooling[t.Ticker] = true
	}
	var candidates []string
	for _, ticker := range s.cfg.Universe {
		if heldOrCooling[ticker] {
			continue
		}
		if last, ok := s.lastExit[ticker]; ok {
			if int(day.Sub(last).Hours()/24) < s.cfg.CooldownDays {
				continue
			}
		}
		candidates = append(candidates, ticker)
	}

	admitted := s.collectSignals(ctx, day, candidates)
	rankAdmitted(admitted)

	for i, sig := range admitted {
		if len(s.open) >= s.cfg.MaxPositions {
			break
		}
		s.enter(ctx, day, sig)
		if s.pacer != nil && i < len(admitted)-1 {
			s.pacer(ctx)
		}
	}
}

// collectSignals fetches signals in bounded batches and keeps the admissible
// ones. A failed fetch drops that candidate for the day only.
func (s *Simulator) collectSignals(ctx context.Context, day time.Time, candidates []string) []*model.EntrySignal {
	var admitted []*model.EntrySignal
	for from := 0; from < len(candidates); from += s.cfg.BatchSize {
		to := from + s.cfg.BatchSize
		if to > len(candidates) {
			to = len(candidates)
		}
		batch := candidates[from:to]

		sigs := make([]*model.EntrySignal, len(batch))
		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, ticker := range batch {
			wg.Add(1)
			go func(i int, ticker string) {
				defer wg.Done()
				sigs[i], errs[i] = s.signals.EntrySignal(ctx, ticker, day)
			}(i, ticker)
		}
		wg.Wait()

		for i, ticker := range batch {
			if errs[i] != nil || sigs[i] == nil {
				if errs[i] != nil && !errors.Is(errs[i], data.ErrNoData) {
					s.log.Warn("signal fetch failed",
						zap.String("ticker", ticker),
						zap.Time("day", day),
						zap.Error(errs[i]))
				}
				continue
			}
			if s.admissible(sigs[i]) {
				admitted = append(admitted, sigs[i])
			}
		}

		if s.pacer != nil && to < len(candidates) {
			s.pacer(ctx)
		}
	}
	return admitted
}

// admissible applies every entry gate to a candidate signal.
func (s *Simulator) admissible(sig *model.EntrySignal) bool {
	minProb, minRR := s.cfg.EffectiveThresholds(sig.Regime)
	if sig.Probability < minProb || sig.RiskReward < minRR {
		return false
	}
	if sig.TradeType != model.TradeTypeLongSwing {
		return false
	}
	if s.cfg.RequireConfirmation && !(sig.VolumeConfirmed && sig.MTFConfirmed) {
		return false
	}
	if s.cfg.MaxVIX > 0 && sig.VIX > s.cfg.MaxVIX {
		return false
	}
	if sig.SectorRS < minSectorRS {
		return false
	}
	// Momentum gates tighten with the regime: bulls tolerate RSI up to 50
	// without a divergence; choppy and crash tape demands an oversold
	// reading plus a bullish divergence.
	switch sig.Regime {
	case model.RegimeBull:
		if sig.RSI > 50 && sig.Divergence != model.DivergenceBullish {
			return false
		}
	case model.RegimeChoppy:
		if sig.RSI > 35 || sig.Divergence != model.DivergenceBullish {
			return false
		}
	case model.RegimeCrash:
		if sig.RSI > 30 || sig.Divergence != model.DivergenceBullish {
			return false
		}
	}
	return true
}

// rankAdmitted orders by probability descending, ticker ascending as a
// deterministic tie-break.
func rankAdmitted(sigs []*model.EntrySignal) {
	sort.Slice(sigs, func(i, j int) bool {
		if sigs[i].Probability != sigs[j].Probability {
			return sigs[i].Probability > sigs[j].Probability
		}
		return sigs[i].Ticker < sigs[j].Ticker
	})
}

// enter sizes and opens a position from an admitted signal. A computed share
// count of zero or invalid trade economics abort the entry silently.
func (s *Simulator) enter(ctx context.Context, day time.Time, sig *model.EntrySignal) {
	bar, err := s.cache.Bar(ctx, sig.Ticker, day)
	if err != nil {
		s.log.Debug("no bar for entry", zap.String("ticker", sig.Ticker), zap.Time("day", day))
		return
	}

	fill := s.buyFill(bar.Close)
	riskPerShare := fill - sig.StopLoss
	if riskPerShare <= 0 {
		s.log.Debug("invalid trade economics",
			zap.String("ticker", sig.Ticker),
			zap.Float64("entry", fill),
			zap.Float64("stop", sig.StopLoss))
		return
	}

	sizing := s.cfg.InitialCapital
	if s.cfg.SizeFromEquity {
		sizing = s.currentEquity()
	}
	shares := int(math.Floor(sizing * s.cfg.RiskPerTrade / riskPerShare))

	if maxValue := s.cfg.MaxPositionValuePct * s.cfg.InitialCapital; float64(shares)*fill > maxValue {
		shares = int(math.Floor(maxValue / fill))
	}
	if cost := float64(shares) * (fill + s.cfg.CommissionPerShare); cost > s.cash {
		shares = int(math.Floor(s.cash / (fill + s.cfg.CommissionPerShare)))
	}
	if shares <= 0 {
		return
	}

	t := &model.Trade{
		ID:               tradeID(sig.Ticker, day),
		Ticker:           sig.Ticker,
		SignalDate:       day,
		EntryDate:        day,
		EntryPrice:       fill,
		EntryProbability: sig.Probability,
		Shares:           shares,
		InitialShares:    shares,
		PositionValue:    float64(shares) * fill,
		StopLoss:         sig.StopLoss,
		TP1:              fill + s.cfg.TPMultiples[0]*riskPerShare,
		TP2:              fill + s.cfg.TPMultiples[1]*riskPerShare,
		TP3:              fill + s.cfg.TPMultiples[2]*riskPerShare,
		MFEPrice:         fill,
		MAEPrice:         fill,
		Status:           model.StatusOpen,
		Regime:           sig.Regime,
		Sector:           sig.Sector,
		EntryCommission:  s.cfg.CommissionPerShare * float64(shares),
	}
	s.cash -= float64(shares)*fill + t.EntryCommission
	s.open = append(s.open, t)

	s.log.Debug("entered position",
		zap.String("ticker", t.Ticker),
		zap.Time("day", day),
		zap.Int("shares", shares),
		zap.Float64("entry", fill),
		zap.Float64("stop", t.StopLoss))
}

// tradeID is deterministic for a (ticker, entry date) pair so identical runs
// produce identical trade lists.
func tradeID(ticker string, day time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(ticker+day.Format("2006-01-02"))).String()
}

// recordEquity appends the day's snapshot: cash plus open positions marked
// at the last available close, falling back to entry price.
func (s *Simulator) recordEquity(ctx context.Context, day time.Time) {
	positions := 0.0
	for _, t := range s.open {
		mark := t.EntryPrice
		if px, ok := s.cache.LastClose(ctx, t.Ticker, day); ok {
			mark = px
		}
		t.PositionValue = float64(t.Shares) * mark
		positions += t.PositionValue
	}
	equity := s.cash + positions

	if equity > s.peak {
		s.peak = equity
	}
	dd := s.peak - equity
	ddPct := 0.0
	if s.peak > 0 {
		ddPct = dd / s.peak * 100
	}

	prev := s.cfg.InitialCapital
	if len(s.equity) > 0 {
		prev = s.equity[len(s.equity)-1].Equity
	}
	ret := 0.0
	if prev != 0 {
		ret = (equity - prev) / prev
	}

	s.equity = append(s.equity, model.EquityPoint{
		Date:          day,
		Equity:        equity,
		Drawdown:      dd,
		DrawdownPct:   ddPct,
		OpenPositions: len(s.open),
		RealizedPnL:   s.dayRealized,
		DailyReturn:   ret,
	})
	s.dayRealized = 0
}

func (s *Simulator) currentEquity() float64 {
	if len(s.equity) == 0 {
		return s.cfg.InitialCapital
	}
	return s.equity[len(s.equity)-1].Equity
}

func (s *Simulator) buyFill(price float64) float64 {
	return price * (1 + s.cfg.SlippagePct/100)
}

func (s *Simulator) sellFill(price float64) float64 {
	return price * (1 - s.cfg.SlippagePct/100)
}

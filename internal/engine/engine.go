// Package engine owns the position lifecycle and the polling loop for one
// strategy instance.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quantbot-go/internal/bitmart"
	"quantbot-go/internal/config"
	"quantbot-go/internal/indicator"
	"quantbot-go/internal/journal"
	"quantbot-go/internal/metrics"
)

// Exchange is the venue surface the engine consumes. Implementations must
// treat a non-success embedded status code as a failed call.
type Exchange interface {
	SetLeverage(ctx context.Context, symbol, leverage, openType string) error
	CancelAllPlanOrders(ctx context.Context, symbol string) error
	GetKlines(ctx context.Context, symbol string, stepMinutes int, start, end time.Time) ([]bitmart.Kline, error)
	GetCurrentPosition(ctx context.Context, symbol string) (*bitmart.Position, error)
	PlaceMarketOrder(ctx context.Context, req bitmart.OrderRequest) (string, error)
	SubmitPlanOrder(ctx context.Context, symbol string, kind bitmart.PlanKind, trigger decimal.Decimal) error
	GetRealizedPnLHistory(ctx context.Context, symbol string) ([]bitmart.PnLRecord, error)
}

// Engine runs one symbol's mean-reversion rule: poll candles on the
// configured grid, enter on bias extremes, hand TP/SL to the venue, and
// journal the round trip once the position disappears.
type Engine struct {
	cfg            config.Strategy
	exchange       Exchange
	status         *journal.StatusReporter
	ledger         *journal.TradeLedger
	log            zerolog.Logger
	tradingEnabled bool

	// active caches the last confirmed position so closure can be detected
	// and journaled after the venue-side position is gone.
	active        *bitmart.Position
	lastKlineOpen time.Time

	now         func() time.Time
	settleDelay time.Duration
	idleSleep   time.Duration
	holdSleep   time.Duration
	cooldown    time.Duration
}

// New wires an engine for the given strategy. When tradingEnabled is false
// the engine computes indicators and logs signals but never touches orders.
func New(cfg config.Strategy, exchange Exchange, status *journal.StatusReporter, ledger *journal.TradeLedger, log zerolog.Logger, tradingEnabled bool) *Engine {
	return &Engine{
		cfg:            cfg,
		exchange:       exchange,
		status:         status,
		ledger:         ledger,
		log:            log,
		tradingEnabled: tradingEnabled,
		now:            time.Now,
		settleDelay:    3 * time.Second,
		idleSleep:      10 * time.Second,
		holdSleep:      time.Minute,
		cooldown:       time.Minute,
	}
}

func (e *Engine) step() time.Duration {
	return time.Duration(e.cfg.TimeframeMinutes) * time.Minute
}

// PrepareTradingEnvironment sets leverage and clears stale plan orders. Run
// once at startup when trading is enabled.
func (e *Engine) PrepareTradingEnvironment(ctx context.Context) error {
	if !e.tradingEnabled {
		return nil
	}
	e.log.Info().Str("symbol", e.cfg.Symbol).Str("leverage", e.cfg.Leverage).Msg("setting leverage")
	if err := e.exchange.SetLeverage(ctx, e.cfg.Symbol, e.cfg.Leverage, e.cfg.OpenType); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}
	e.cancelPlanOrders(ctx, "first run cleanup")
	return nil
}

// Run drives the scheduling loop until ctx is canceled, then performs
// best-effort plan order cleanup.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info().Str("symbol", e.cfg.Symbol).Bool("trading", e.tradingEnabled).Msg("engine running")
	for ctx.Err() == nil {
		if err := e.cycle(ctx); err != nil {
			e.log.Error().Err(err).Msg("cycle failed")
			metrics.EngineErrorsTotal.WithLabelValues("cycle").Inc()
			e.statusUpdate(fmt.Sprintf("engine error: %v", err))
			e.wait(ctx, e.cooldown)
		}
	}

	e.log.Info().Msg("interrupt received, cleaning up")
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.cancelPlanOrders(cleanupCtx, "shutdown")
}

func (e *Engine) cycle(ctx context.Context) error {
	step := e.step()
	now := e.now()
	nextBoundary := now.Truncate(step).Add(step)

	// The candle covering the current boundary was already processed;
	// short-sleep instead of fetching the same data again.
	if !e.lastKlineOpen.IsZero() && !e.lastKlineOpen.Before(nextBoundary.Add(-step)) {
		e.wait(ctx, e.idleSleep)
		return nil
	}

	// Closure detection is cadence-independent and runs every pass.
	e.checkTradeClosure(ctx)

	if e.active != nil {
		e.statusUpdate(fmt.Sprintf("holding %s position, waiting for TP/SL", e.active.Side))
		e.wait(ctx, e.holdSleep)
		return nil
	}

	if sleep := nextBoundary.Sub(now); sleep > 0 {
		e.statusUpdate(fmt.Sprintf("waiting for %dm candle (%.0fs left)", e.cfg.TimeframeMinutes, sleep.Seconds()))
		if !e.wait(ctx, sleep) {
			return nil
		}
	}

	e.statusUpdate("fetching klines and computing indicators...")
	klines, err := e.fetchClosedKlines(ctx)
	if err != nil {
		return fmt.Errorf("fetch klines: %w", err)
	}
	e.lastKlineOpen = klines[len(klines)-1].OpenTime

	closes := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	ind, err := indicator.Compute(closes, e.cfg.MAPeriod)
	if err != nil {
		return fmt.Errorf("compute indicators: %w", err)
	}
	metrics.CyclesTotal.WithLabelValues(e.cfg.Symbol).Inc()
	e.log.Info().
		Str("price", ind.CurrentPrice.String()).
		Str("ma", ind.MovingAverage.StringFixed(4)).
		Str("bias", ind.Bias.StringFixed(6)).
		Msg("indicators")

	e.evaluateEntry(ctx, ind)
	return nil
}

// fetchClosedKlines pulls a window wide enough for the moving average and
// drops the still-forming candle at the tail.
func (e *Engine) fetchClosedKlines(ctx context.Context) ([]bitmart.Kline, error) {
	step := e.step()
	limit := e.cfg.MAPeriod + 5
	end := e.now()
	start := end.Add(-time.Duration(limit) * step)

	klines, err := e.exchange.GetKlines(ctx, e.cfg.Symbol, e.cfg.TimeframeMinutes, start, end)
	if err != nil {
		return nil, err
	}
	if n := len(klines); n > 0 && klines[n-1].OpenTime.Add(step).After(end) {
		klines = klines[:n-1]
	}
	if len(klines) < e.cfg.MAPeriod {
		return nil, fmt.Errorf("need %d closed candles, got %d", e.cfg.MAPeriod, len(klines))
	}
	return klines, nil
}

func (e *Engine) evaluateEntry(ctx context.Context, ind indicator.Indicators) {
	longEntry := decimal.NewFromFloat(e.cfg.BiasEntryLong)
	shortEntry := decimal.NewFromFloat(e.cfg.BiasEntryShort)

	// Long is evaluated first: if a misconfiguration lets both thresholds
	// fire on the same candle, the long branch wins.
	switch {
	case ind.Bias.LessThanOrEqual(longEntry):
		e.log.Info().Str("bias", ind.Bias.StringFixed(6)).Msg("long entry signal")
		e.enterPosition(ctx, bitmart.SideOpenLong, ind)
	case ind.Bias.GreaterThanOrEqual(shortEntry):
		e.log.Info().Str("bias", ind.Bias.StringFixed(6)).Msg("short entry signal")
		e.enterPosition(ctx, bitmart.SideOpenShort, ind)
	}
}

func (e *Engine) enterPosition(ctx context.Context, side bitmart.Side, ind indicator.Indicators) {
	if !e.tradingEnabled {
		return
	}
	e.statusUpdate(fmt.Sprintf("entry signal detected (%s), placing order...", side))

	orderID, err := e.exchange.PlaceMarketOrder(ctx, bitmart.OrderRequest{
		Symbol:     e.cfg.Symbol,
		Side:       side,
		Size:       e.cfg.OrderSize,
		MarginMode: e.cfg.MarginMode,
		OpenType:   e.cfg.OpenType,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("entry order failed")
		metrics.EngineErrorsTotal.WithLabelValues("entry").Inc()
		return
	}
	e.log.Info().Str("order_id", orderID).Msg("entry order accepted")
	metrics.OrdersTotal.WithLabelValues(e.cfg.Symbol, side.String()).Inc()

	// Give the venue a moment to materialize the position before querying.
	e.wait(ctx, e.settleDelay)
	position, err := e.exchange.GetCurrentPosition(ctx, e.cfg.Symbol)
	if err != nil || position == nil {
		// Fatal for this cycle: without a confirmed position no TP/SL can
		// be placed, so the cycle is abandoned and the next one retries.
		e.log.Error().Err(err).Msg("no position found after order ack, skipping TP/SL")
		metrics.EngineErrorsTotal.WithLabelValues("confirm").Inc()
		return
	}
	e.active = position

	one := decimal.NewFromInt(1)
	slPct := decimal.NewFromFloat(e.cfg.StopLossPct)
	takeProfit := ind.MovingAverage
	stopLoss := position.OpenAvgPrice.Mul(one.Sub(slPct))
	if position.Side != "long" {
		stopLoss = position.OpenAvgPrice.Mul(one.Add(slPct))
	}

	e.log.Info().
		Str("open", position.OpenAvgPrice.StringFixed(4)).
		Str("tp", takeProfit.StringFixed(4)).
		Str("sl", stopLoss.StringFixed(4)).
		Msg("position confirmed, submitting protection")
	e.statusUpdate(fmt.Sprintf("holding %s position, open %s, TP %s, SL %s",
		position.Side, position.OpenAvgPrice.StringFixed(4), takeProfit.StringFixed(4), stopLoss.StringFixed(4)))

	if err := e.submitProtection(ctx, takeProfit, stopLoss); err != nil {
		e.log.Error().Err(err).Msg("plan order submission failed, flattening position")
		metrics.EngineErrorsTotal.WithLabelValues("protect").Inc()
		// Flatten at the size the venue reports, not the configured one:
		// a partial fill would otherwise leave residue behind.
		flatten := bitmart.OrderRequest{
			Symbol: e.cfg.Symbol,
			Side:   bitmart.CloseSide(position.Side),
			Size:   position.Size,
		}
		if _, err := e.exchange.PlaceMarketOrder(ctx, flatten); err != nil {
			e.log.Error().Err(err).Msg("emergency flatten failed, position is unprotected")
		}
	}
}

func (e *Engine) submitProtection(ctx context.Context, takeProfit, stopLoss decimal.Decimal) error {
	if err := e.exchange.SubmitPlanOrder(ctx, e.cfg.Symbol, bitmart.PlanTakeProfit, takeProfit); err != nil {
		return fmt.Errorf("take profit: %w", err)
	}
	if err := e.exchange.SubmitPlanOrder(ctx, e.cfg.Symbol, bitmart.PlanStopLoss, stopLoss); err != nil {
		return fmt.Errorf("stop loss: %w", err)
	}
	return nil
}

// checkTradeClosure notices when the venue-side position has vanished and
// writes exactly one ledger record for the round trip. The write happens
// even when the PnL history lookup fails.
func (e *Engine) checkTradeClosure(ctx context.Context) {
	if !e.tradingEnabled || e.active == nil {
		return
	}

	position, err := e.exchange.GetCurrentPosition(ctx, e.cfg.Symbol)
	if err != nil {
		// Transient failure is not closure; keep the cached position.
		e.log.Warn().Err(err).Msg("position poll failed")
		return
	}
	if position != nil {
		return
	}

	e.log.Info().Str("side", e.active.Side).Msg("position closed, recording trade")
	e.statusUpdate("position closed, recording trade...")

	record := journal.TradeRecord{
		Time:   e.now(),
		Symbol: e.cfg.Symbol,
		Side:   e.active.Side,
		Amount: strconv.Itoa(e.active.Size),
	}
	history, err := e.exchange.GetRealizedPnLHistory(ctx, e.cfg.Symbol)
	if err != nil || len(history) == 0 {
		e.log.Warn().Err(err).Msg("could not fetch PnL history for trade record")
		record.Notes = "position closed, failed to fetch PnL history"
	} else {
		last := history[0]
		record.PnL = last.RealizedPnL
		record.Fee = last.Fee
		record.Notes = fmt.Sprintf("TP/SL triggered, closed at %s", last.CloseAvgPrice)
	}

	if err := e.ledger.Append(record); err != nil {
		e.log.Error().Err(err).Msg("ledger append failed")
	} else {
		metrics.TradesClosedTotal.WithLabelValues(e.cfg.Symbol).Inc()
	}

	e.active = nil
	e.cancelPlanOrders(ctx, "cleanup after close")
}

func (e *Engine) cancelPlanOrders(ctx context.Context, reason string) {
	if !e.tradingEnabled {
		return
	}
	e.log.Info().Str("reason", reason).Msg("cancelling plan orders")
	if err := e.exchange.CancelAllPlanOrders(ctx, e.cfg.Symbol); err != nil {
		e.log.Error().Err(err).Msg("cancel plan orders failed")
	}
}

func (e *Engine) statusUpdate(message string) {
	if err := e.status.Update(message); err != nil {
		e.log.Warn().Err(err).Msg("status write failed")
	}
}

// wait sleeps for d or until ctx is canceled, reporting whether the full
// duration elapsed.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

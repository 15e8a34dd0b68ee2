// Package signal turns evaluation results into prioritised trading signals.
package signal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vrachnos/steer/internal/api"
	"github.com/vrachnos/steer/internal/metrics"
	"github.com/vrachnos/steer/internal/model"
)

// minimum data quality below which no signals are emitted
const minQuality = 0.3

// Config tunes signal emission.
type Config struct {
	// MinConfidence is the default trigger confidence floor, overridden
	// by the strategy risk config when set.
	MinConfidence float64 `json:"min_confidence"`
	// TopReasons is the number of conditions quoted in the reasoning text.
	TopReasons int `json:"top_reasons"`
	// Validity is the life span of regular buy/sell signals.
	Validity time.Duration `json:"validity"`
	// ProtectiveValidity is the short life span of synthesised
	// stop-loss/take-profit signals.
	ProtectiveValidity time.Duration `json:"protective_validity"`
	Filter             FilterConfig  `json:"filter"`
}

// NewConfig returns the default signal generation settings.
func NewConfig() Config {
	return Config{
		MinConfidence:      0.6,
		TopReasons:         3,
		Validity:           time.Hour,
		ProtectiveValidity: 5 * time.Minute,
		Filter: FilterConfig{
			MinConfidence: 0.5,
		},
	}
}

// Generator converts evaluation results into trading signals.
type Generator struct {
	cfg    Config
	market api.MarketData
	now    func() time.Time
}

// New creates a new generator on top of the market data collaborator.
func New(cfg Config, market api.MarketData) *Generator {
	if cfg.Validity <= 0 {
		cfg.Validity = time.Hour
	}
	if cfg.ProtectiveValidity <= 0 {
		cfg.ProtectiveValidity = 5 * time.Minute
	}
	if cfg.TopReasons <= 0 {
		cfg.TopReasons = 3
	}
	return &Generator{
		cfg:    cfg,
		market: market,
		now:    time.Now,
	}
}

// WithClock overrides the generator clock, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate emits zero or more signals for the evaluation result.
// A pipeline level failure aborts emission for this cycle and is returned.
func (g *Generator) Generate(ctx context.Context, result model.EvaluationResult, riskCfg model.RiskConfig, portfolio model.PortfolioState) ([]model.TradingSignal, error) {
	if !result.Ok() {
		return nil, nil
	}
	if result.DataQuality < minQuality {
		log.Debug().
			Str("strategy", result.StrategyID).
			Float64("quality", result.DataQuality).
			Msg("data quality too low for signals")
		return nil, nil
	}

	minConfidence := g.cfg.MinConfidence
	if riskCfg.MinConfidence > 0 {
		minConfidence = riskCfg.MinConfidence
	}

	conditions, err := g.market.MarketConditions(ctx, result.Symbol)
	if err != nil {
		// conditions are advisory, their absence only weakens the filter
		log.Debug().Err(err).Str("symbol", result.Symbol).Msg("no market conditions")
		conditions = model.Conditions{}
	}

	signals := make([]model.TradingSignal, 0, 4)

	if result.BuyTriggered && result.BuyConfidence >= minConfidence {
		s, err := g.buy(ctx, result, riskCfg, portfolio, conditions)
		if err != nil {
			return nil, fmt.Errorf("could not generate buy signal: %w", err)
		}
		signals = append(signals, s)
	}

	if result.SellTriggered && result.SellConfidence >= minConfidence {
		if s, ok, err := g.sell(ctx, result, portfolio, conditions); err != nil {
			return nil, fmt.Errorf("could not generate sell signal: %w", err)
		} else if ok {
			signals = append(signals, s)
		}
	}

	signals = append(signals, g.protective(ctx, result, portfolio, conditions)...)

	out := make([]model.TradingSignal, 0, len(signals))
	for _, s := range signals {
		if !g.cfg.Filter.pass(s, conditions) {
			continue
		}
		metrics.Observer.IncrementSignals(s.StrategyID, s.Symbol, string(s.Type), "emitted")
		out = append(out, s)
	}
	return out, nil
}

func (g *Generator) buy(ctx context.Context, result model.EvaluationResult, riskCfg model.RiskConfig, portfolio model.PortfolioState, conditions model.Conditions) (model.TradingSignal, error) {
	price, err := g.market.CurrentPrice(ctx, result.Symbol)
	if err != nil {
		return model.TradingSignal{}, err
	}
	if price.IsZero() {
		return model.TradingSignal{}, fmt.Errorf("no price for %s", result.Symbol)
	}

	fraction := decimal.NewFromFloat(0.1)
	if riskCfg.SizingValue > 0 {
		fraction = decimal.NewFromFloat(riskCfg.SizingValue)
	}
	amount := portfolio.Cash.Mul(fraction)
	quantity := amount.DivRound(price, 8)

	s := g.base(result, model.Buy, result.BuyConfidence, conditions)
	s.PriceTarget = price
	s.Quantity = quantity
	if riskCfg.StopLossPct > 0 {
		s.StopLoss = price.Mul(decimal.NewFromFloat(1 - riskCfg.StopLossPct))
	}
	if riskCfg.TakeProfitPct > 0 {
		s.TakeProfit = price.Mul(decimal.NewFromFloat(1 + riskCfg.TakeProfitPct))
	}
	s.Conditions, s.Reasoning = reasoning(result.BuyDetails, g.cfg.TopReasons)
	return s, nil
}

func (g *Generator) sell(ctx context.Context, result model.EvaluationResult, portfolio model.PortfolioState, conditions model.Conditions) (model.TradingSignal, bool, error) {
	held := portfolio.Position(result.Symbol)
	if held.IsZero() {
		// nothing to sell
		return model.TradingSignal{}, false, nil
	}
	price, err := g.market.CurrentPrice(ctx, result.Symbol)
	if err != nil {
		return model.TradingSignal{}, false, err
	}
	if price.IsZero() {
		return model.TradingSignal{}, false, fmt.Errorf("no price for %s", result.Symbol)
	}

	s := g.base(result, model.Sell, result.SellConfidence, conditions)
	s.PriceTarget = price
	s.Quantity = held.DivRound(price, 8)
	s.Conditions, s.Reasoning = reasoning(result.SellDetails, g.cfg.TopReasons)
	return s, true, nil
}

// protective synthesises dedicated stop-loss/take-profit signals from
// individually met sell conditions, regardless of the sell side verdict.
func (g *Generator) protective(ctx context.Context, result model.EvaluationResult, portfolio model.PortfolioState, conditions model.Conditions) []model.TradingSignal {
	held := portfolio.Position(result.Symbol)
	if held.IsZero() {
		return nil
	}
	price, err := g.market.CurrentPrice(ctx, result.Symbol)
	if err != nil || price.IsZero() {
		return nil
	}

	out := make([]model.TradingSignal, 0, 2)
	for _, d := range result.SellDetails {
		if !d.Met {
			continue
		}
		var signalType model.Type
		switch d.Indicator {
		case "stop_loss":
			signalType = model.StopLoss
		case "take_profit":
			signalType = model.TakeProfit
		default:
			continue
		}
		confidence := d.Confidence
		if confidence == 0 {
			confidence = result.SellConfidence
		}
		s := g.base(result, signalType, confidence, conditions)
		s.Validity = g.cfg.ProtectiveValidity
		s.PriceTarget = price
		s.Quantity = held.DivRound(price, 8)
		s.Conditions = []string{d.ConditionID}
		s.Reasoning = fmt.Sprintf("%s %s %v (observed %.2f)", d.Indicator, d.Operator, d.Threshold, d.Observed)
		out = append(out, s)
	}
	return out
}

func (g *Generator) base(result model.EvaluationResult, signalType model.Type, confidence float64, conditions model.Conditions) model.TradingSignal {
	return model.TradingSignal{
		ID:         uuid.New().String(),
		StrategyID: result.StrategyID,
		Symbol:     result.Symbol,
		Type:       signalType,
		Timestamp:  g.now(),
		Confidence: confidence,
		Tier:       model.TierFor(confidence),
		Priority:   model.PriorityFor(signalType, confidence),
		Validity:   g.cfg.Validity,
		Market:     conditions,
		RiskMetrics: map[string]float64{
			"data_quality": result.DataQuality,
		},
	}
}

// reasoning assembles a human readable trigger summary from the top met
// conditions, most confident first.
func reasoning(details []model.ConditionDetail, top int) ([]string, string) {
	met := make([]model.ConditionDetail, 0, len(details))
	for _, d := range details {
		if d.Met {
			met = append(met, d)
		}
	}
	sort.Slice(met, func(i, j int) bool {
		return met[i].Confidence > met[j].Confidence
	})
	if len(met) > top {
		met = met[:top]
	}
	ids := make([]string, 0, len(met))
	parts := make([]string, 0, len(met))
	for _, d := range met {
		ids = append(ids, d.ConditionID)
		parts = append(parts, fmt.Sprintf("%s %s %v (observed %.2f)", d.Indicator, d.Operator, d.Threshold, d.Observed))
	}
	return ids, strings.Join(parts, "; ")
}

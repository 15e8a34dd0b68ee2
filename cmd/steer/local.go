package main

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vrachnos/steer/internal/api"
	"github.com/vrachnos/steer/internal/model"
)

// localMarket is a deterministic in-memory market data provider. Each
// snapshot call advances a seeded random walk per symbol, so the binary
// runs end-to-end without an exchange connection.
type localMarket struct {
	lock   sync.Mutex
	rnd    *rand.Rand
	prices map[string][]float64
}

func newLocalMarket(seed int64) *localMarket {
	return &localMarket{
		rnd:    rand.New(rand.NewSource(seed)),
		prices: make(map[string][]float64),
	}
}

func (m *localMarket) series(symbol string) []float64 {
	prices, ok := m.prices[symbol]
	if !ok {
		prices = make([]float64, 0, 256)
		price := 100.0
		for i := 0; i < 60; i++ {
			price *= 1 + m.rnd.NormFloat64()*0.01
			prices = append(prices, price)
		}
	}
	last := prices[len(prices)-1]
	prices = append(prices, last*(1+m.rnd.NormFloat64()*0.01))
	if len(prices) > 240 {
		prices = prices[len(prices)-240:]
	}
	m.prices[symbol] = prices
	return prices
}

func (m *localMarket) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	prices := m.series(symbol)
	return decimal.NewFromFloat(prices[len(prices)-1]), nil
}

func (m *localMarket) MarketConditions(_ context.Context, symbol string) (model.Conditions, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return model.Conditions{
		"volume_ratio": 1 + math.Abs(m.rnd.NormFloat64())*0.5,
		"spread":       math.Abs(m.rnd.NormFloat64()) * 0.001,
	}, nil
}

func (m *localMarket) Snapshot(_ context.Context, symbol string, _ string) (model.Snapshot, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	prices := m.series(symbol)
	volumes := make([]float64, len(prices))
	for i := range volumes {
		volumes[i] = 1000 + m.rnd.Float64()*200
	}
	return model.Snapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Prices:    append([]float64{}, prices...),
		Volumes:   volumes,
	}, nil
}

// paperPortfolio tracks a cash-and-positions book updated by fills.
type paperPortfolio struct {
	lock      sync.RWMutex
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
}

func newPaperPortfolio(cash float64) *paperPortfolio {
	return &paperPortfolio{
		cash:      decimal.NewFromFloat(cash),
		positions: make(map[string]decimal.Decimal),
	}
}

func (p *paperPortfolio) State(_ context.Context) (model.PortfolioState, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	invested := decimal.Zero
	positions := make(map[string]decimal.Decimal, len(p.positions))
	for symbol, value := range p.positions {
		positions[symbol] = value
		invested = invested.Add(value)
	}
	total := p.cash.Add(invested)
	weights := make(map[string]decimal.Decimal, len(positions))
	if !total.IsZero() {
		for symbol, value := range positions {
			weights[symbol] = value.Div(total)
		}
	}
	return model.PortfolioState{
		TotalValue: total,
		Cash:       p.cash,
		Invested:   invested,
		Positions:  positions,
		Weights:    weights,
		LastUpdate: time.Now(),
	}, nil
}

// fill books the monetary delta of an executed signal.
func (p *paperPortfolio) fill(symbol string, value decimal.Decimal) {
	p.lock.Lock()
	defer p.lock.Unlock()
	held := p.positions[symbol]
	next := held.Add(value)
	if next.IsNegative() {
		value = held.Neg()
		next = decimal.Zero
	}
	p.positions[symbol] = next
	p.cash = p.cash.Sub(value)
}

// paperExecution fills every signal at its target price against the
// paper portfolio and logs the fill.
type paperExecution struct {
	portfolio *paperPortfolio
}

func (e *paperExecution) ExecuteSignal(_ context.Context, s model.TradingSignal) (api.ExecutionReport, error) {
	value := s.Exposure()
	if s.Type == model.Sell || s.Type == model.StopLoss || s.Type == model.TakeProfit {
		value = value.Neg()
	}
	e.portfolio.fill(s.Symbol, value)
	orderID := uuid.New().String()
	log.Info().
		Str("order", orderID).
		Str("symbol", s.Symbol).
		Str("type", string(s.Type)).
		Str("value", value.String()).
		Msg("paper fill")
	return api.ExecutionReport{
		Success:   true,
		OrderID:   orderID,
		FillPrice: s.PriceTarget,
	}, nil
}

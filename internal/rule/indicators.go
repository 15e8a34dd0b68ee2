package rule

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/vrachnos/steer/internal/model"
)

// Category classifies indicators by the data they consume.
type Category string

const (
	Technical   Category = "technical"
	Fundamental Category = "fundamental"
	Sentiment   Category = "sentiment"
	Volume      Category = "volume"
	Price       Category = "price"
	Risk        Category = "risk"
	Neutral     Category = "neutral"
)

// Observation is the value an indicator evaluator observed, together with
// the previous value of the same series for crossover operators.
type Observation struct {
	Value float64
	Prev  float64
}

// Evaluator derives an indicator observation from a market snapshot.
type Evaluator func(s model.Snapshot) (Observation, error)

type entry struct {
	category Category
	eval     Evaluator
}

// indicatorTable is the closed name to evaluator mapping. Adding an
// indicator is a compile-time checked addition here.
var indicatorTable = map[string]entry{
	"rsi":         {Technical, series(func(s model.Snapshot) []float64 { return talib.Rsi(s.Prices, 14) }, 15)},
	"sma_20":      {Technical, series(func(s model.Snapshot) []float64 { return talib.Sma(s.Prices, 20) }, 20)},
	"sma_50":      {Technical, series(func(s model.Snapshot) []float64 { return talib.Sma(s.Prices, 50) }, 50)},
	"sma_200":     {Technical, series(func(s model.Snapshot) []float64 { return talib.Sma(s.Prices, 200) }, 200)},
	"ema_12":      {Technical, series(func(s model.Snapshot) []float64 { return talib.Ema(s.Prices, 12) }, 12)},
	"ema_26":      {Technical, series(func(s model.Snapshot) []float64 { return talib.Ema(s.Prices, 26) }, 26)},
	"macd":        {Technical, series(macdLine, 35)},
	"macd_signal": {Technical, series(macdSignal, 35)},
	"bb_upper":    {Technical, series(func(s model.Snapshot) []float64 { u, _, _ := bbands(s); return u }, 20)},
	"bb_middle":   {Technical, series(func(s model.Snapshot) []float64 { _, m, _ := bbands(s); return m }, 20)},
	"bb_lower":    {Technical, series(func(s model.Snapshot) []float64 { _, _, l := bbands(s); return l }, 20)},

	"price":       {Price, price},
	"close":       {Price, price},
	"stop_loss":   {Price, price},
	"take_profit": {Price, price},

	"volume":       {Volume, volume},
	"volume_ratio": {Volume, volumeRatio},

	"pe_ratio":       {Fundamental, fundamental("pe_ratio")},
	"eps":            {Fundamental, fundamental("eps")},
	"revenue_growth": {Fundamental, fundamental("revenue_growth")},
	"debt_to_equity": {Fundamental, fundamental("debt_to_equity")},
	"dividend_yield": {Fundamental, fundamental("dividend_yield")},

	"sentiment_score":  {Sentiment, sentiment("sentiment_score")},
	"news_sentiment":   {Sentiment, sentiment("news_sentiment")},
	"social_sentiment": {Sentiment, sentiment("social_sentiment")},

	"volatility": {Risk, volatility},
	"drawdown":   {Risk, drawdown},
}

// Lookup resolves an indicator name to its category and evaluator.
// Unknown names fall back to the neutral evaluator.
func Lookup(name string) (Category, Evaluator) {
	if e, ok := indicatorTable[name]; ok {
		return e.category, e.eval
	}
	return Neutral, neutral
}

// neutral is the fallback for unknown indicator names. It observes a
// constant zero and never errors, so an unknown indicator degrades to a
// low confidence miss instead of failing the rule.
func neutral(model.Snapshot) (Observation, error) {
	return Observation{}, nil
}

// series wraps a talib style series computation, picking the last two
// values of the derived series.
func series(f func(model.Snapshot) []float64, need int) Evaluator {
	return func(s model.Snapshot) (Observation, error) {
		if len(s.Prices) < need {
			return Observation{}, fmt.Errorf("insufficient history: have %d, need %d", len(s.Prices), need)
		}
		vv := f(s)
		if len(vv) == 0 {
			return Observation{}, fmt.Errorf("empty indicator series")
		}
		obs := Observation{Value: vv[len(vv)-1]}
		if len(vv) > 1 {
			obs.Prev = vv[len(vv)-2]
		} else {
			obs.Prev = obs.Value
		}
		if math.IsNaN(obs.Value) {
			return Observation{}, fmt.Errorf("indicator value is NaN")
		}
		return obs, nil
	}
}

func macdLine(s model.Snapshot) []float64 {
	line, _, _ := talib.Macd(s.Prices, 12, 26, 9)
	return line
}

func macdSignal(s model.Snapshot) []float64 {
	_, signal, _ := talib.Macd(s.Prices, 12, 26, 9)
	return signal
}

func bbands(s model.Snapshot) ([]float64, []float64, []float64) {
	return talib.BBands(s.Prices, 20, 2, 2, talib.SMA)
}

func price(s model.Snapshot) (Observation, error) {
	if len(s.Prices) == 0 {
		return Observation{}, fmt.Errorf("no price data")
	}
	return Observation{Value: s.Price(), Prev: s.Prev()}, nil
}

func volume(s model.Snapshot) (Observation, error) {
	if len(s.Volumes) == 0 {
		return Observation{}, fmt.Errorf("no volume data")
	}
	v := s.Volumes[len(s.Volumes)-1]
	prev := v
	if len(s.Volumes) > 1 {
		prev = s.Volumes[len(s.Volumes)-2]
	}
	return Observation{Value: v, Prev: prev}, nil
}

func volumeRatio(s model.Snapshot) (Observation, error) {
	avg := s.AvgVolume()
	if avg == 0 {
		return Observation{}, fmt.Errorf("no volume data")
	}
	v := s.Volumes[len(s.Volumes)-1] / avg
	return Observation{Value: v, Prev: v}, nil
}

func fundamental(key string) Evaluator {
	return func(s model.Snapshot) (Observation, error) {
		v, ok := s.Fundamentals[key]
		if !ok {
			return Observation{}, fmt.Errorf("fundamental '%s' not available", key)
		}
		return Observation{Value: v, Prev: v}, nil
	}
}

func sentiment(key string) Evaluator {
	return func(s model.Snapshot) (Observation, error) {
		v, ok := s.Sentiment[key]
		if !ok {
			return Observation{}, fmt.Errorf("sentiment '%s' not available", key)
		}
		return Observation{Value: v, Prev: v}, nil
	}
}

// volatility observes the annualised standard deviation of log returns.
func volatility(s model.Snapshot) (Observation, error) {
	if len(s.Prices) < 3 {
		return Observation{}, fmt.Errorf("insufficient history: have %d, need 3", len(s.Prices))
	}
	v := stdevLogReturns(s.Prices)
	prev := stdevLogReturns(s.Prices[:len(s.Prices)-1])
	return Observation{Value: v, Prev: prev}, nil
}

func stdevLogReturns(prices []float64) float64 {
	rr := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			rr = append(rr, math.Log(prices[i]/prices[i-1]))
		}
	}
	if len(rr) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rr {
		mean += r
	}
	mean /= float64(len(rr))
	d := 0.0
	for _, r := range rr {
		d += (r - mean) * (r - mean)
	}
	return math.Sqrt(d/float64(len(rr)-1)) * math.Sqrt(252)
}

// drawdown observes the maximum peak-to-trough loss fraction of the series.
func drawdown(s model.Snapshot) (Observation, error) {
	if len(s.Prices) < 2 {
		return Observation{}, fmt.Errorf("insufficient history: have %d, need 2", len(s.Prices))
	}
	peak := s.Prices[0]
	max := 0.0
	for _, p := range s.Prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			dd := (peak - p) / peak
			if dd > max {
				max = dd
			}
		}
	}
	return Observation{Value: max, Prev: max}, nil
}

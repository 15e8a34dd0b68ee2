// Package evaluate executes compiled rules against market context and
// scores the outcome.
package evaluate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrachnos/steer/internal/api"
	"github.com/vrachnos/steer/internal/cache"
	coinmath "github.com/vrachnos/steer/internal/math"
	"github.com/vrachnos/steer/internal/metrics"
	"github.com/vrachnos/steer/internal/model"
	"github.com/vrachnos/steer/internal/rule"
)

// Config bounds a single evaluation.
type Config struct {
	// MaxEvalTime is the hard budget for one rule evaluation.
	MaxEvalTime time.Duration `json:"max_eval_time"`
	// CacheTTL bounds the life of derived indicator cache entries.
	CacheTTL time.Duration `json:"cache_ttl"`
	// CacheBucket is the coarse time bucket of the indicator cache key.
	CacheBucket time.Duration `json:"cache_bucket"`
	// MinAvgVolume below which the data quality takes a penalty.
	MinAvgVolume float64 `json:"min_avg_volume"`
}

// NewConfig returns the default evaluation bounds.
func NewConfig() Config {
	return Config{
		MaxEvalTime: 10 * time.Second,
		CacheTTL:    5 * time.Minute,
		CacheBucket: time.Minute,
	}
}

// Evaluator executes compiled rules. It owns an indicator cache and is
// safe for concurrent use.
type Evaluator struct {
	cfg        Config
	cache      *cache.TTL
	indicators api.IndicatorService
	now        func() time.Time
}

// New creates a new evaluator. The indicator service is optional, a nil
// service means indicators are derived from the snapshot directly.
func New(cfg Config, indicators api.IndicatorService) *Evaluator {
	if cfg.MaxEvalTime <= 0 {
		cfg.MaxEvalTime = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheBucket <= 0 {
		cfg.CacheBucket = time.Minute
	}
	return &Evaluator{
		cfg:        cfg,
		cache:      cache.NewTTL(cfg.CacheTTL),
		indicators: indicators,
		now:        time.Now,
	}
}

// WithClock overrides the evaluator clock, for tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	e.cache.WithClock(now)
	return e
}

// Evaluate scores the compiled rule against the evaluation context.
// Condition level failures are absorbed into the result, never returned.
func (e *Evaluator) Evaluate(ctx context.Context, r *rule.CompiledRule, ectx model.EvaluationContext) (result model.EvaluationResult) {
	start := e.now()

	result = model.EvaluationResult{
		StrategyID: ectx.StrategyID,
		Symbol:     ectx.Symbol,
		Timestamp:  ectx.Timestamp,
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("strategy", ectx.StrategyID).
				Str("symbol", ectx.Symbol).
				Interface("panic", rec).
				Msg("evaluation panicked")
			result.Status = model.EvaluationFailed
			result.Errors = append(result.Errors, fmt.Sprintf("panic: %v", rec))
		}
		result.Latency = e.now().Sub(start)
		metrics.Observer.IncrementEvaluations(ectx.StrategyID, ectx.Symbol, string(result.Status))
	}()

	result.DataQuality = DataQuality(ectx.Market, start, e.cfg.MinAvgVolume)

	pre := e.resolveIndicators(ctx, ectx)

	buy := e.evaluateList(ctx, start, r.Buy, ectx.Market, pre, result.DataQuality)
	sell := e.evaluateList(ctx, start, r.Sell, ectx.Market, pre, result.DataQuality)

	result.BuyTriggered = buy.triggered
	result.BuyConfidence = buy.confidence
	result.BuyDetails = buy.details
	result.SellTriggered = sell.triggered
	result.SellConfidence = sell.confidence
	result.SellDetails = sell.details
	result.Errors = append(result.Errors, buy.errors...)
	result.Errors = append(result.Errors, sell.errors...)

	total := len(buy.details) + len(sell.details)
	failed := len(buy.errors) + len(sell.errors)
	elapsed := e.now().Sub(start)

	switch {
	case buy.timedOut || sell.timedOut || elapsed > e.cfg.MaxEvalTime:
		result.Status = model.EvaluationTimeout
	case total == 0:
		result.Status = model.EvaluationInsufficientData
	case failed == total:
		result.Status = model.EvaluationFailed
	case failed > 0:
		result.Status = model.EvaluationPartial
	default:
		result.Status = model.EvaluationSuccess
	}
	return result
}

// resolveIndicators merges pre-computed indicators from the context with
// cached or service-computed ones, keyed by symbol and coarse time bucket.
func (e *Evaluator) resolveIndicators(ctx context.Context, ectx model.EvaluationContext) map[string]float64 {
	pre := make(map[string]float64, len(ectx.Indicators))
	for k, v := range ectx.Indicators {
		pre[k] = v
	}

	key := cache.BucketKey(ectx.Symbol, ectx.Timestamp, e.cfg.CacheBucket)
	if values, ok := e.cache.Get(key); ok {
		for k, v := range values {
			if _, set := pre[k]; !set {
				pre[k] = v
			}
		}
		return pre
	}

	if e.indicators == nil {
		return pre
	}
	values, err := e.indicators.CalculateIndicators(ctx, ectx.Symbol, ectx.Market)
	if err != nil {
		// indicator service failures degrade to local computation
		log.Debug().Err(err).Str("symbol", ectx.Symbol).Msg("indicator service failed")
		return pre
	}
	e.cache.Put(key, cache.Values(values))
	for k, v := range values {
		if _, set := pre[k]; !set {
			pre[k] = v
		}
	}
	return pre
}

type listResult struct {
	triggered  bool
	confidence float64
	details    []model.ConditionDetail
	errors     []string
	timedOut   bool
}

func (e *Evaluator) evaluateList(ctx context.Context, start time.Time, list rule.CompiledList, snapshot model.Snapshot, pre map[string]float64, quality float64) listResult {
	out := listResult{
		details: make([]model.ConditionDetail, 0, len(list.Conditions)),
	}
	met := make([]bool, 0, len(list.Conditions))
	var weighted, weights float64

	for _, c := range list.Conditions {
		if e.now().Sub(start) > e.cfg.MaxEvalTime || ctx.Err() != nil {
			out.timedOut = true
			break
		}
		detail := e.evaluateCondition(c, snapshot, pre, quality)
		if detail.Error != "" {
			out.errors = append(out.errors, fmt.Sprintf("%s: %s", c.ID, detail.Error))
		}
		out.details = append(out.details, detail)
		met = append(met, detail.Met)
		weighted += detail.Confidence * c.Weight
		weights += c.Weight
	}

	out.triggered = list.Operator.Apply(met)
	if weights > 0 {
		out.confidence = coinmath.Clamp01(weighted / weights)
	}
	return out
}

// evaluateCondition runs one condition, absorbing its failure into a
// zero confidence miss.
func (e *Evaluator) evaluateCondition(c rule.CompiledCondition, snapshot model.Snapshot, pre map[string]float64, quality float64) model.ConditionDetail {
	begin := e.now()
	detail := model.ConditionDetail{
		ConditionID: c.ID,
		Indicator:   c.Indicator,
		Operator:    string(c.Operator),
		Threshold:   c.Threshold,
	}

	obs, ok, err := c.Predicate(snapshot, pre)
	detail.Latency = e.now().Sub(begin)
	if err != nil {
		detail.Error = err.Error()
		return detail
	}

	detail.Observed = obs.Value
	detail.Met = ok
	if ok {
		distance := c.Operator.Distance(obs, c.Threshold)
		detail.Confidence = (0.5 + 0.5*distance) * quality
	}
	return detail
}

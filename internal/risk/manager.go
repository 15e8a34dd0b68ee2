// Package risk gates signals and strategies against quantitative limits.
package risk

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vrachnos/steer/internal/buffer"
	coinmath "github.com/vrachnos/steer/internal/math"
	"github.com/vrachnos/steer/internal/metrics"
	"github.com/vrachnos/steer/internal/model"
)

// Placeholder estimates used when no return history is available.
// Real deployments should replace these with measured statistics.
const (
	defaultVolatility  = 0.25
	defaultCorrelation = 0.3
	drawdownFactor     = 0.5
)

// metric names quoted in assessments
const (
	metricPositionRisk    = "position_risk"
	metricLiquidityRisk   = "liquidity_risk"
	metricCorrelationRisk = "correlation_risk"
	metricConcentration   = "concentration"
	metricVolatility      = "volatility"
	metricDrawdownRisk    = "drawdown_risk"
)

// Limits are the configured caps per risk metric.
type Limits struct {
	PositionRisk    float64 `json:"position_risk"`
	LiquidityRisk   float64 `json:"liquidity_risk"`
	CorrelationRisk float64 `json:"correlation_risk"`
	Concentration   float64 `json:"concentration"`
	Volatility      float64 `json:"volatility"`
	DrawdownRisk    float64 `json:"drawdown_risk"`
}

// NewLimits returns conservative default limits.
func NewLimits() Limits {
	return Limits{
		PositionRisk:    0.2,
		LiquidityRisk:   0.6,
		CorrelationRisk: 0.7,
		Concentration:   0.5,
		Volatility:      0.4,
		DrawdownRisk:    0.2,
	}
}

// Manager assesses signals and strategies against the configured limits.
type Manager struct {
	limits  Limits
	history *buffer.History
	now     func() time.Time
}

// New creates a new risk manager. The history feeds volatility and
// correlation estimates and may be shared with the allocator.
func New(limits Limits, history *buffer.History) *Manager {
	if history == nil {
		history = buffer.NewHistory(64)
	}
	return &Manager{
		limits:  limits,
		history: history,
		now:     time.Now,
	}
}

// WithClock overrides the manager clock, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// History exposes the shared return history for market data feeds.
func (m *Manager) History() *buffer.History {
	return m.history
}

// AssessSignal measures the risk a signal adds to the portfolio.
// A failure to assess is a rejection, never a silent approval.
func (m *Manager) AssessSignal(signal model.TradingSignal, state model.PortfolioState) model.RiskAssessment {
	mm := []model.RiskMetric{
		m.metric(metricPositionRisk, m.positionRisk(signal, state), m.limits.PositionRisk),
		m.metric(metricLiquidityRisk, liquidityRisk(signal.Market), m.limits.LiquidityRisk),
		m.metric(metricCorrelationRisk, m.correlationRisk(signal.Symbol, state), m.limits.CorrelationRisk),
	}
	assessment := m.build(mm)
	metrics.Observer.IncrementAssessments(signal.StrategyID, assessment.Level.String(), fmt.Sprintf("%v", assessment.Acceptable))
	if !assessment.Acceptable {
		log.Warn().
			Str("signal", signal.ID).
			Str("strategy", signal.StrategyID).
			Str("level", assessment.Level.String()).
			Str("reason", assessment.Reason).
			Msg("signal rejected on risk")
	}
	return assessment
}

// AssessStrategy measures the standing risk of running the strategy
// against the current portfolio.
func (m *Manager) AssessStrategy(strategy model.Strategy, state model.PortfolioState) model.RiskAssessment {
	vol, ok := m.history.Volatility(strategy.Symbol)
	if !ok || vol <= 0 {
		vol = defaultVolatility
	}
	mm := []model.RiskMetric{
		m.metric(metricConcentration, concentration(state), m.limits.Concentration),
		m.metric(metricVolatility, vol, m.limits.Volatility),
		m.metric(metricDrawdownRisk, vol*drawdownFactor, m.limits.DrawdownRisk),
	}
	assessment := m.build(mm)
	metrics.Observer.IncrementAssessments(strategy.ID, assessment.Level.String(), fmt.Sprintf("%v", assessment.Acceptable))
	return assessment
}

func (m *Manager) metric(name string, current, limit float64) model.RiskMetric {
	// breach severities are compared against exact boundaries
	// downstream, so the ratio is derived in decimal
	severity := 0.0
	if limit > 0 && current > limit {
		c := decimal.NewFromFloat(current)
		l := decimal.NewFromFloat(limit)
		severity, _ = c.Sub(l).Div(l).Float64()
	}
	return model.RiskMetric{
		Name:     name,
		Current:  current,
		Limit:    limit,
		Breach:   severity > 0,
		Severity: severity,
	}
}

// positionRisk is the signal exposure as a fraction of the portfolio.
func (m *Manager) positionRisk(signal model.TradingSignal, state model.PortfolioState) float64 {
	if state.TotalValue.IsZero() {
		return 1
	}
	exposure, _ := signal.Exposure().Div(state.TotalValue).Float64()
	if exposure < 0 {
		exposure = -exposure
	}
	return exposure
}

// liquidityRisk grows as traded volume thins out relative to its average.
func liquidityRisk(conditions model.Conditions) float64 {
	risk := 1 - conditions.VolumeRatio()/2
	if risk < 0 {
		risk = 0
	}
	return risk
}

// correlationRisk is the average absolute return correlation of the
// symbol against the currently held positions.
func (m *Manager) correlationRisk(symbol string, state model.PortfolioState) float64 {
	sum, n := 0.0, 0
	for held := range state.Positions {
		if held == symbol {
			continue
		}
		c, ok := m.history.Correlation(symbol, held)
		if !ok {
			c = defaultCorrelation
		}
		if c < 0 {
			c = -c
		}
		sum += c
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// build assembles the assessment: overall level, acceptability,
// confidence adjustment and budget usage.
func (m *Manager) build(mm []model.RiskMetric) model.RiskAssessment {
	assessment := model.RiskAssessment{
		ID:                   uuid.New().String(),
		Timestamp:            m.now(),
		Metrics:              mm,
		Acceptable:           true,
		ConfidenceAdjustment: 1,
	}

	level := model.RiskVeryLow
	severe, moderate := 0, 0
	usage := 0.0
	worst := ""
	worstSeverity := -1.0

	for _, metric := range mm {
		if l := metricLevel(metric); l > level {
			level = l
		}
		if metric.Severity >= 0.5 {
			severe++
		}
		if metric.Severity >= 0.2 {
			moderate++
		}
		if metric.Limit > 0 {
			usage += metric.Current / metric.Limit
		}
		if metric.Breach {
			assessment.ConfidenceAdjustment *= 1 - min(0.3, metric.Severity*0.3)
			assessment.Recommendations = append(assessment.Recommendations,
				fmt.Sprintf("reduce %s: %s over limit %s", metric.Name, coinmath.Format(metric.Current), coinmath.Format(metric.Limit)))
			if metric.Severity > worstSeverity {
				worst = metric.Name
				worstSeverity = metric.Severity
			}
		}
	}

	// escalate on clusters of breaches
	if severe >= 2 {
		level = model.RiskCritical
	} else if (severe >= 1 || moderate >= 3) && level < model.RiskVeryHigh {
		level = model.RiskVeryHigh
	}

	if severe >= 1 || moderate >= 3 {
		assessment.Acceptable = false
		assessment.Reason = fmt.Sprintf("risk limit breached on %s (severity %.2f)", worst, worstSeverity)
	}
	if assessment.ConfidenceAdjustment < 0.1 {
		assessment.ConfidenceAdjustment = 0.1
	}
	if len(mm) > 0 {
		assessment.BudgetUsage = coinmath.Clamp01(usage / float64(len(mm)))
	}
	assessment.Level = level
	return assessment
}

// metricLevel grades a single metric by its usage ratio.
func metricLevel(metric model.RiskMetric) model.RiskLevel {
	if metric.Limit <= 0 {
		return model.RiskVeryLow
	}
	ratio := metric.Current / metric.Limit
	switch {
	case ratio >= 1.5:
		return model.RiskCritical
	case ratio >= 1:
		return model.RiskVeryHigh
	case ratio >= 0.75:
		return model.RiskHigh
	case ratio >= 0.5:
		return model.RiskModerate
	case ratio >= 0.25:
		return model.RiskLow
	}
	return model.RiskVeryLow
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

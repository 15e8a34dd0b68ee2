package signal

import (
	"github.com/rs/zerolog/log"
	"github.com/vrachnos/steer/internal/metrics"
	"github.com/vrachnos/steer/internal/model"
)

// FilterConfig bounds the quality gate every emitted signal passes.
type FilterConfig struct {
	MinConfidence  float64 `json:"min_confidence"`
	MinVolumeRatio float64 `json:"min_volume_ratio"`
	MaxSpread      float64 `json:"max_spread"`
}

// pass applies the quality gate. Filtered signals are counted and dropped
// silently, never surfaced as errors. Protective signals are exempt from
// the confidence check, their urgency outranks it.
func (f FilterConfig) pass(s model.TradingSignal, conditions model.Conditions) bool {
	protective := s.Type == model.StopLoss || s.Type == model.TakeProfit
	switch {
	case !protective && s.Confidence < f.MinConfidence:
	case f.MinVolumeRatio > 0 && conditions.VolumeRatio() < f.MinVolumeRatio:
	case f.MaxSpread > 0 && conditions.Spread() > f.MaxSpread:
	default:
		return true
	}
	log.Debug().
		Str("strategy", s.StrategyID).
		Str("symbol", s.Symbol).
		Str("type", string(s.Type)).
		Float64("confidence", s.Confidence).
		Msg("signal filtered")
	metrics.Observer.IncrementSignals(s.StrategyID, s.Symbol, string(s.Type), "filtered")
	return false
}

package evaluate

import (
	"time"

	coinmath "github.com/vrachnos/steer/internal/math"
	"github.com/vrachnos/steer/internal/model"
)

// quality thresholds for the multiplicative data penalties
const (
	minHistory   = 20
	staleAfter   = 15 * time.Minute
	veryStale    = time.Hour
	stalePenalty = 0.8
	deadPenalty  = 0.5
	thinPenalty  = 0.7
)

// DataQuality scores the completeness and freshness of the market snapshot
// in [0,1]. Penalties are multiplicative: short history, stale timestamps
// and thin volume each reduce the score.
func DataQuality(s model.Snapshot, now time.Time, minAvgVolume float64) float64 {
	if len(s.Prices) == 0 {
		return 0
	}
	q := 1.0
	if len(s.Prices) < minHistory {
		q *= float64(len(s.Prices)) / float64(minHistory)
	}
	age := now.Sub(s.Timestamp)
	if age > veryStale {
		q *= deadPenalty
	} else if age > staleAfter {
		q *= stalePenalty
	}
	if minAvgVolume > 0 && s.AvgVolume() < minAvgVolume {
		q *= thinPenalty
	}
	return coinmath.Clamp01(q)
}

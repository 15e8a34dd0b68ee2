package model

import (
	"time"

	"github.com/vrachnos/steer/internal/buffer"
)

// Snapshot is a point-in-time view of the market for a single symbol.
// Price and volume series are ordered oldest to newest.
type Snapshot struct {
	Symbol       string             `json:"symbol"`
	Timestamp    time.Time          `json:"timestamp"`
	Prices       []float64          `json:"prices"`
	Volumes      []float64          `json:"volumes"`
	Fundamentals map[string]float64 `json:"fundamentals,omitempty"`
	Sentiment    map[string]float64 `json:"sentiment,omitempty"`
}

// Price returns the latest price of the snapshot, or 0 if there is none.
func (s Snapshot) Price() float64 {
	if len(s.Prices) == 0 {
		return 0
	}
	return s.Prices[len(s.Prices)-1]
}

// Prev returns the previous price of the snapshot, falling back to the
// latest one when the series is too short.
func (s Snapshot) Prev() float64 {
	if len(s.Prices) < 2 {
		return s.Price()
	}
	return s.Prices[len(s.Prices)-2]
}

// AvgVolume returns the average traded volume over the snapshot series.
func (s Snapshot) AvgVolume() float64 {
	if len(s.Volumes) == 0 {
		return 0
	}
	stats := buffer.NewStats()
	for _, v := range s.Volumes {
		stats.Push(v)
	}
	return stats.Avg()
}

// Conditions is an opaque bag of current market conditions for a symbol,
// e.g. volume_ratio, spread, trend.
type Conditions map[string]float64

// VolumeRatio returns the current to average volume ratio, defaulting to 1.
func (c Conditions) VolumeRatio() float64 {
	if v, ok := c["volume_ratio"]; ok {
		return v
	}
	return 1
}

// Spread returns the relative bid-ask spread, defaulting to 0.
func (c Conditions) Spread() float64 {
	return c["spread"]
}

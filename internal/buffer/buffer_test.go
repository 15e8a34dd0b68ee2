package buffer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_Push(t *testing.T) {

	stats := NewStats()
	for _, v := range []float64{1, 2, 3, 4, 5} {
		stats.Push(v)
	}

	assert.Equal(t, 5, stats.Count())
	assert.Equal(t, 3.0, stats.Avg())
	assert.Equal(t, 4.0, stats.Diff())
	assert.InDelta(t, math.Sqrt(2), stats.StDev(), 1e-9)

	min, max := stats.Range()
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 5.0, max)
}

func TestRing_Overwrite(t *testing.T) {

	ring := NewRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		ring.Push(v)
	}

	assert.Equal(t, 3, ring.Size())
	assert.Equal(t, []float64{3, 4, 5}, ring.Get())
}

func TestHistory_Volatility(t *testing.T) {

	type test struct {
		prices []float64
		ok     bool
		zero   bool
	}

	tests := map[string]test{
		"no-samples": {
			prices: []float64{100},
			ok:     false,
		},
		"single-return": {
			prices: []float64{100, 101},
			ok:     false,
		},
		"flat-series": {
			prices: []float64{100, 100, 100, 100},
			ok:     true,
			zero:   true,
		},
		"moving-series": {
			prices: []float64{100, 102, 99, 104, 101},
			ok:     true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			history := NewHistory(16)
			for _, p := range tt.prices {
				history.Push("BTC", p)
			}
			vol, ok := history.Volatility("BTC")
			assert.Equal(t, tt.ok, ok)
			if tt.zero {
				assert.Equal(t, 0.0, vol)
			} else if tt.ok {
				assert.True(t, vol > 0)
			}
		})
	}
}

func TestHistory_Correlation(t *testing.T) {

	history := NewHistory(16)
	for _, p := range []float64{100, 102, 101, 105, 103, 108} {
		history.Push("BTC", p)
		// ETH moves in lockstep with BTC
		history.Push("ETH", p*2)
	}

	c, ok := history.Correlation("BTC", "ETH")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, c, 1e-9)

	_, ok = history.Correlation("BTC", "XRP")
	assert.False(t, ok)
}

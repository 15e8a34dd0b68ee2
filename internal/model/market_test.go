package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_AvgVolume(t *testing.T) {

	type test struct {
		volumes []float64
		avg     float64
	}

	tests := map[string]test{
		"empty": {
			volumes: nil,
			avg:     0,
		},
		"constant": {
			volumes: []float64{100, 100, 100},
			avg:     100,
		},
		"mixed": {
			volumes: []float64{50, 100, 150},
			avg:     100,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := Snapshot{Volumes: tt.volumes}
			assert.InDelta(t, tt.avg, s.AvgVolume(), 1e-9)
		})
	}
}

func TestSnapshot_PriceAndPrev(t *testing.T) {

	s := Snapshot{Prices: []float64{100, 101, 102}}
	assert.Equal(t, 102.0, s.Price())
	assert.Equal(t, 101.0, s.Prev())

	short := Snapshot{Prices: []float64{100}}
	assert.Equal(t, 100.0, short.Prev())

	assert.Equal(t, 0.0, Snapshot{}.Price())
}

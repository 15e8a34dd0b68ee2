package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperator_Compare(t *testing.T) {

	type test struct {
		op        Operator
		obs       Observation
		threshold []float64
		met       bool
	}

	tests := map[string]test{
		"gt-met":         {op: GT, obs: Observation{Value: 31}, threshold: []float64{30}, met: true},
		"gt-equal":       {op: GT, obs: Observation{Value: 30}, threshold: []float64{30}, met: false},
		"gte-equal":      {op: GTE, obs: Observation{Value: 30}, threshold: []float64{30}, met: true},
		"lt-met":         {op: LT, obs: Observation{Value: 25}, threshold: []float64{30}, met: true},
		"lte-equal":      {op: LTE, obs: Observation{Value: 30}, threshold: []float64{30}, met: true},
		"eq-met":         {op: EQ, obs: Observation{Value: 30}, threshold: []float64{30}, met: true},
		"neq-met":        {op: NEQ, obs: Observation{Value: 31}, threshold: []float64{30}, met: true},
		"between-inside": {op: Between, obs: Observation{Value: 45}, threshold: []float64{30, 70}, met: true},
		"between-edge":   {op: Between, obs: Observation{Value: 70}, threshold: []float64{30, 70}, met: true},
		"between-out":    {op: Between, obs: Observation{Value: 71}, threshold: []float64{30, 70}, met: false},
		"outside-low":    {op: Outside, obs: Observation{Value: 29}, threshold: []float64{30, 70}, met: true},
		"outside-in":     {op: Outside, obs: Observation{Value: 50}, threshold: []float64{30, 70}, met: false},
		"crossover-up": {
			op:        CrossoverUp,
			obs:       Observation{Value: 105, Prev: 99},
			threshold: []float64{100},
			met:       true,
		},
		"crossover-up-already-above": {
			op:        CrossoverUp,
			obs:       Observation{Value: 105, Prev: 101},
			threshold: []float64{100},
			met:       false,
		},
		"crossover-down": {
			op:        CrossoverDown,
			obs:       Observation{Value: 95, Prev: 100},
			threshold: []float64{100},
			met:       true,
		},
		"crossover-down-already-below": {
			op:        CrossoverDown,
			obs:       Observation{Value: 95, Prev: 98},
			threshold: []float64{100},
			met:       false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.met, tt.op.Compare(tt.obs, tt.threshold))
		})
	}
}

func TestOperator_Distance(t *testing.T) {

	// distance is relative to the nearest bound and capped at 1
	assert.InDelta(t, 1.0/6.0, LT.Distance(Observation{Value: 25}, []float64{30}), 1e-9)
	assert.InDelta(t, 0.0, EQ.Distance(Observation{Value: 30}, []float64{30}), 1e-9)
	assert.Equal(t, 1.0, GT.Distance(Observation{Value: 100}, []float64{10}))
	// between picks the nearest of the two bounds
	assert.InDelta(t, 5.0/70.0, Between.Distance(Observation{Value: 65}, []float64{30, 70}), 1e-9)
}

func TestParseOperator(t *testing.T) {
	for _, valid := range []string{">", ">=", "<", "<=", "==", "!=", "between", "outside", "crossover-up", "crossover-down"} {
		op, err := ParseOperator(valid)
		assert.NoError(t, err)
		assert.Equal(t, Operator(valid), op)
	}
	_, err := ParseOperator("~=")
	assert.Error(t, err)
}

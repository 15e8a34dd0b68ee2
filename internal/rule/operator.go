package rule

import (
	"fmt"

	coinmath "github.com/vrachnos/steer/internal/math"
)

// Operator compares an observed indicator value against a threshold.
type Operator string

const (
	GT            Operator = ">"
	GTE           Operator = ">="
	LT            Operator = "<"
	LTE           Operator = "<="
	EQ            Operator = "=="
	NEQ           Operator = "!="
	Between       Operator = "between"
	Outside       Operator = "outside"
	CrossoverUp   Operator = "crossover-up"
	CrossoverDown Operator = "crossover-down"
)

// ParseOperator resolves the declarative operator token.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case GT, GTE, LT, LTE, EQ, NEQ, Between, Outside, CrossoverUp, CrossoverDown:
		return Operator(s), nil
	}
	return "", fmt.Errorf("unknown operator '%s'", s)
}

// Stateful reports whether the operator compares against the previous
// observation, which only the series evaluators can provide.
func (op Operator) Stateful() bool {
	return op == CrossoverUp || op == CrossoverDown
}

// Arity returns the number of threshold values the operator expects.
func (op Operator) Arity() int {
	switch op {
	case Between, Outside:
		return 2
	}
	return 1
}

// Compare applies the operator to the observation and threshold.
func (op Operator) Compare(obs Observation, threshold []float64) bool {
	v := obs.Value
	switch op {
	case GT:
		return v > threshold[0]
	case GTE:
		return v >= threshold[0]
	case LT:
		return v < threshold[0]
	case LTE:
		return v <= threshold[0]
	case EQ:
		return v == threshold[0]
	case NEQ:
		return v != threshold[0]
	case Between:
		return v >= threshold[0] && v <= threshold[1]
	case Outside:
		return v < threshold[0] || v > threshold[1]
	case CrossoverUp:
		return obs.Prev <= threshold[0] && v > threshold[0]
	case CrossoverDown:
		return obs.Prev >= threshold[0] && v < threshold[0]
	}
	return false
}

// Distance returns the distance of the observation to the nearest
// threshold bound, used for confidence grading.
func (op Operator) Distance(obs Observation, threshold []float64) float64 {
	nearest := threshold[0]
	if op.Arity() == 2 {
		d0 := abs(obs.Value - threshold[0])
		d1 := abs(obs.Value - threshold[1])
		if d1 < d0 {
			nearest = threshold[1]
		}
	}
	return coinmath.RelDistance(obs.Value, nearest)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

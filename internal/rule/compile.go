// Package rule compiles declarative rule specs into executable rules.
// Compilation is pure: it touches no market data and keeps no state.
package rule

import (
	"fmt"
	"time"

	"github.com/vrachnos/steer/internal/model"
)

// CompilationError reports a structurally invalid rule spec.
type CompilationError struct {
	Rule   string
	Reason string
}

func (e CompilationError) Error() string {
	return fmt.Sprintf("could not compile rule '%s': %s", e.Rule, e.Reason)
}

// CompiledCondition is the executable form of one condition.
// Immutable once compiled, owned exclusively by its CompiledRule.
type CompiledCondition struct {
	ID        string
	Indicator string
	Category  Category
	Operator  Operator
	Threshold []float64
	Timeframe string
	Weight    float64
	eval      Evaluator
}

// Observe resolves the indicator value, preferring pre-computed values
// when the indicator name is present in the given map. Crossover
// operators always derive from the snapshot, as the flat values carry no
// previous observation to cross from.
func (c CompiledCondition) Observe(s model.Snapshot, pre map[string]float64) (Observation, error) {
	if v, ok := pre[c.Indicator]; ok && !c.Operator.Stateful() {
		return Observation{Value: v, Prev: v}, nil
	}
	return c.eval(s)
}

// Predicate evaluates the condition against the snapshot.
func (c CompiledCondition) Predicate(s model.Snapshot, pre map[string]float64) (Observation, bool, error) {
	obs, err := c.Observe(s, pre)
	if err != nil {
		return obs, false, err
	}
	return obs, c.Operator.Compare(obs, c.Threshold), nil
}

// CompiledList is one compiled side of a rule.
type CompiledList struct {
	Operator   model.LogicalOp
	Conditions []CompiledCondition
}

// CompiledRule is the immutable executable form of a rule spec.
// It is shared read-only by the evaluator across calls.
type CompiledRule struct {
	ID        string
	Buy       CompiledList
	Sell      CompiledList
	CreatedAt time.Time
}

// Compile turns the declarative rule spec into a CompiledRule.
// It fails only on structurally invalid specs.
func Compile(spec model.RuleSpec, id string) (*CompiledRule, error) {
	buy, err := compileList(spec.Buy, id, "buy")
	if err != nil {
		return nil, err
	}
	sell, err := compileList(spec.Sell, id, "sell")
	if err != nil {
		return nil, err
	}
	return &CompiledRule{
		ID:        id,
		Buy:       buy,
		Sell:      sell,
		CreatedAt: time.Now(),
	}, nil
}

func compileList(list model.ConditionList, id, side string) (CompiledList, error) {
	if len(list.Conditions) == 0 {
		// a side without conditions never triggers
		return CompiledList{Operator: list.Operator}, nil
	}
	switch list.Operator {
	case model.AND, model.OR:
		if len(list.Conditions) < 2 {
			return CompiledList{}, CompilationError{Rule: id,
				Reason: fmt.Sprintf("%s operator %s requires at least two conditions, got %d", side, list.Operator, len(list.Conditions))}
		}
	case model.NOT:
		if len(list.Conditions) != 1 {
			return CompiledList{}, CompilationError{Rule: id,
				Reason: fmt.Sprintf("%s operator NOT requires exactly one condition, got %d", side, len(list.Conditions))}
		}
	default:
		return CompiledList{}, CompilationError{Rule: id,
			Reason: fmt.Sprintf("%s has unknown logical operator '%s'", side, list.Operator)}
	}

	conditions := make([]CompiledCondition, 0, len(list.Conditions))
	for i, spec := range list.Conditions {
		c, err := compileCondition(spec, id, fmt.Sprintf("%s-%d", side, i))
		if err != nil {
			return CompiledList{}, err
		}
		conditions = append(conditions, c)
	}
	return CompiledList{Operator: list.Operator, Conditions: conditions}, nil
}

func compileCondition(spec model.ConditionSpec, id, conditionID string) (CompiledCondition, error) {
	if spec.Indicator == "" {
		return CompiledCondition{}, CompilationError{Rule: id,
			Reason: fmt.Sprintf("condition %s is missing an indicator name", conditionID)}
	}
	op, err := ParseOperator(spec.Operator)
	if err != nil {
		return CompiledCondition{}, CompilationError{Rule: id,
			Reason: fmt.Sprintf("condition %s: %s", conditionID, err.Error())}
	}
	if len(spec.Value) != op.Arity() {
		return CompiledCondition{}, CompilationError{Rule: id,
			Reason: fmt.Sprintf("condition %s: operator %s expects %d threshold value(s), got %d", conditionID, op, op.Arity(), len(spec.Value))}
	}
	weight := spec.Weight
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	category, eval := Lookup(spec.Indicator)
	return CompiledCondition{
		ID:        conditionID,
		Indicator: spec.Indicator,
		Category:  category,
		Operator:  op,
		Threshold: append([]float64(nil), spec.Value...),
		Timeframe: spec.Timeframe,
		Weight:    weight,
		eval:      eval,
	}, nil
}

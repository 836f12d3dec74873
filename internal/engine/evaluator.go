package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/rules"
)

// Evaluator decides the outcome of single conditions.  It never mutates the
// case and never fails: malformed conditions are Undetermined.
type Evaluator struct {
	cmp    *Comparator
	logger *zap.Logger
}

// NewEvaluator returns an evaluator comparing values with cmp.
func NewEvaluator(cmp *Comparator, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cmp == nil {
		cmp = NewComparator(logger)
	}
	return &Evaluator{cmp: cmp, logger: logger}
}

func (e *Evaluator) withComparator(cmp *Comparator) *Evaluator {
	return &Evaluator{cmp: cmp, logger: e.logger}
}

// Evaluate returns the outcome of cond against snap.
func (e *Evaluator) Evaluate(ctx context.Context, cond rules.Condition, snap casestore.Snapshot) Outcome {
	if err := cond.Validate(); err != nil {
		e.logger.Debug("skipping malformed condition", zap.String("condition", cond.String()), zap.Error(err))
		return Undetermined
	}
	switch cond.Type {
	case rules.ConditionSymptom:
		return evaluateSymptoms(cond.Symptoms, cond.LogicType, snap)
	case rules.ConditionSlot:
		return e.evaluateSlot(ctx, cond, snap)
	case rules.ConditionAttribute:
		return e.evaluateAttribute(ctx, cond, snap)
	}
	return Undetermined
}

// evaluateSymptoms applies OR/AND over the presence flags of codes.
//
//	OR:  any true -> Satisfied, all false -> Violated
//	AND: all true -> Satisfied, any false -> Violated
func evaluateSymptoms(codes []string, logic rules.LogicType, snap casestore.Snapshot) Outcome {
	var trues, falses int
	for _, code := range codes {
		switch snap.Presence(code) {
		case casestore.PresenceTrue:
			trues++
		case casestore.PresenceFalse:
			falses++
		}
	}
	if logic == rules.LogicOr {
		switch {
		case trues > 0:
			return Satisfied
		case falses == len(codes):
			return Violated
		}
		return Undetermined
	}
	switch {
	case falses > 0:
		return Violated
	case trues == len(codes):
		return Satisfied
	}
	return Undetermined
}

// evaluateSlot only looks at the slot once the parent symptom is known to be
// present.  A denied or unknown parent leaves the slot Undetermined; the rule
// is pruned through its own symptom condition instead.
func (e *Evaluator) evaluateSlot(ctx context.Context, cond rules.Condition, snap casestore.Snapshot) Outcome {
	if snap.Presence(cond.ParentSymptom) != casestore.PresenceTrue {
		return Undetermined
	}
	actual := snap.Slot(cond.ParentSymptom, cond.Slot)
	if actual == nil {
		return Undetermined
	}
	return e.cmp.Compare(ctx, Comparison{
		Actual:   actual,
		Expected: cond.Value,
		Operator: cond.Operator,
	})
}

// evaluateAttribute compares a positive attribute value, or, when only a
// denial is known, reports Violated iff the expectation names a denied value.
func (e *Evaluator) evaluateAttribute(ctx context.Context, cond rules.Condition, snap casestore.Snapshot) Outcome {
	attr, ok := snap.Attribute(cond.Attribute)
	if !ok {
		return Undetermined
	}
	if attr.Value != nil {
		return e.cmp.Compare(ctx, Comparison{
			Actual:    attr.Value,
			Expected:  cond.Value,
			Operator:  cond.Operator,
			Attribute: cond.Attribute,
		})
	}
	for _, want := range stringsOf(cond.Value) {
		for _, denied := range attr.Denied {
			if strings.EqualFold(want, denied) {
				return Violated
			}
		}
	}
	return Undetermined
}

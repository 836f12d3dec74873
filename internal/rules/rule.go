// Package rules holds the triage rule model: prioritised rules made of
// symptom, slot and attribute conditions, plus loading and validation.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vetbox-triage/internal/casestore"
)

// ErrMalformedCondition marks a condition that lacks required fields.  Such a
// condition can never be satisfied.
var ErrMalformedCondition = errors.New("malformed condition")

// ConditionType is the discriminant of a Condition.
type ConditionType string

const (
	ConditionSymptom   ConditionType = "symptom"
	ConditionSlot      ConditionType = "slot"
	ConditionAttribute ConditionType = "attribute"
)

// LogicType combines the symptoms of a symptom condition.
type LogicType string

const (
	LogicAnd LogicType = "AND"
	LogicOr  LogicType = "OR"
)

// Operator compares an observed value with the expected one.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "IN"
)

// Valid reports whether the operator is one the comparator understands.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpIn:
		return true
	}
	return false
}

// ParseOperator accepts the operator spellings found in rule files and the
// rule_conditions table ("equals", "EQUALS", "in", "IN", ...).
func ParseOperator(s string) Operator {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equals", "eq", "=", "==":
		return OpEquals
	case "contains":
		return OpContains
	case "greater_than", "gt", ">":
		return OpGreaterThan
	case "less_than", "lt", "<":
		return OpLessThan
	case "in":
		return OpIn
	}
	return Operator(strings.TrimSpace(s))
}

// Condition is one clause of a rule.  Which fields are meaningful depends on
// Type:
//   - symptom:   Symptoms (+ LogicType); Symptom is the legacy single form
//   - slot:      ParentSymptom, Slot, Operator, Value
//   - attribute: Attribute, Operator, Value
type Condition struct {
	ID            int           `yaml:"id,omitempty" json:"id,omitempty"`
	Type          ConditionType `yaml:"type" json:"type"`
	Symptom       string        `yaml:"symptom,omitempty" json:"symptom,omitempty"`
	Symptoms      []string      `yaml:"symptoms,omitempty" json:"symptoms,omitempty"`
	LogicType     LogicType     `yaml:"logic_type,omitempty" json:"logic_type,omitempty"`
	ParentSymptom string        `yaml:"parent_symptom,omitempty" json:"parent_symptom,omitempty"`
	Slot          string        `yaml:"slot,omitempty" json:"slot,omitempty"`
	Attribute     string        `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Operator      Operator      `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value         any           `yaml:"value,omitempty" json:"value,omitempty"`
}

// Normalize canonicalises codes, folds the legacy single symptom into
// Symptoms and decodes JSON-encoded list values.
func (c *Condition) Normalize() {
	c.Type = ConditionType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	if c.Symptom != "" {
		if !containsKey(c.Symptoms, c.Symptom) {
			c.Symptoms = append([]string{c.Symptom}, c.Symptoms...)
		}
		c.Symptom = ""
	}
	codes := make([]string, 0, len(c.Symptoms))
	for _, s := range c.Symptoms {
		if k := casestore.Key(s); k != "" {
			codes = append(codes, k)
		}
	}
	c.Symptoms = codes
	switch LogicType(strings.ToUpper(strings.TrimSpace(string(c.LogicType)))) {
	case LogicOr:
		c.LogicType = LogicOr
	default:
		c.LogicType = LogicAnd
	}
	if c.Type != ConditionSymptom {
		c.Symptoms = nil
		c.LogicType = ""
	}
	c.ParentSymptom = casestore.Key(c.ParentSymptom)
	c.Slot = casestore.Key(c.Slot)
	c.Attribute = casestore.Key(c.Attribute)
	if c.Operator != "" {
		c.Operator = ParseOperator(string(c.Operator))
	}
	c.Value = normalizeExpected(c.Value)
}

// Validate returns ErrMalformedCondition (wrapped) when required fields are
// missing.  Validation is advisory: the evaluator treats malformed
// conditions as undetermined.
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionSymptom:
		if len(c.Symptoms) == 0 {
			return fmt.Errorf("%w: symptom condition without symptoms", ErrMalformedCondition)
		}
	case ConditionSlot:
		if c.ParentSymptom == "" {
			return fmt.Errorf("%w: slot condition without parent_symptom", ErrMalformedCondition)
		}
		if c.Slot == "" {
			return fmt.Errorf("%w: slot condition without slot", ErrMalformedCondition)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("%w: slot %s has unknown operator %q", ErrMalformedCondition, c.Slot, c.Operator)
		}
	case ConditionAttribute:
		if c.Attribute == "" {
			return fmt.Errorf("%w: attribute condition without attribute", ErrMalformedCondition)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("%w: attribute %s has unknown operator %q", ErrMalformedCondition, c.Attribute, c.Operator)
		}
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrMalformedCondition, c.Type)
	}
	return nil
}

// String is a compact human-readable form used in logs.
func (c Condition) String() string {
	switch c.Type {
	case ConditionSymptom:
		return fmt.Sprintf("symptom %s(%s)", c.LogicType, strings.Join(c.Symptoms, ","))
	case ConditionSlot:
		return fmt.Sprintf("slot %s.%s %s %v", c.ParentSymptom, c.Slot, c.Operator, c.Value)
	case ConditionAttribute:
		return fmt.Sprintf("attribute %s %s %v", c.Attribute, c.Operator, c.Value)
	}
	return fmt.Sprintf("condition %q", c.Type)
}

// Rule is a prioritised conjunction of conditions.  Rules are read-only once
// loaded and may be shared between sessions.
type Rule struct {
	ID         int         `yaml:"id" json:"id"`
	RuleCode   string      `yaml:"rule_code" json:"rule_code"`
	Priority   string      `yaml:"priority" json:"priority"`
	Rationale  string      `yaml:"rationale" json:"rationale"`
	Conditions []Condition `yaml:"conditions" json:"conditions"`
}

// Normalize normalises every condition of the rule in place.
func (r *Rule) Normalize() {
	r.RuleCode = strings.TrimSpace(r.RuleCode)
	r.Priority = strings.TrimSpace(r.Priority)
	for i := range r.Conditions {
		r.Conditions[i].Normalize()
	}
}

// Problem is one validation finding.
type Problem struct {
	RuleCode  string
	Condition int
	Err       error
}

func (p Problem) Error() string {
	if p.Condition < 0 {
		return fmt.Sprintf("rule %s: %v", p.RuleCode, p.Err)
	}
	return fmt.Sprintf("rule %s condition %d: %v", p.RuleCode, p.Condition, p.Err)
}

func (p Problem) Unwrap() error { return p.Err }

// Validate checks every rule and condition and returns all problems found.
func Validate(rs []Rule) []Problem {
	var problems []Problem
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if r.RuleCode == "" {
			problems = append(problems, Problem{RuleCode: fmt.Sprintf("#%d", r.ID), Condition: -1, Err: errors.New("missing rule_code")})
		} else if seen[r.RuleCode] {
			problems = append(problems, Problem{RuleCode: r.RuleCode, Condition: -1, Err: errors.New("duplicate rule_code")})
		}
		seen[r.RuleCode] = true
		if len(r.Conditions) == 0 {
			problems = append(problems, Problem{RuleCode: r.RuleCode, Condition: -1, Err: errors.New("rule has no conditions")})
		}
		for i, c := range r.Conditions {
			if err := c.Validate(); err != nil {
				problems = append(problems, Problem{RuleCode: r.RuleCode, Condition: i, Err: err})
			}
		}
	}
	return problems
}

// normalizeExpected decodes list values stored as JSON strings (the database
// keeps lists as '["a","b"]') and flattens YAML/JSON lists to []string.
func normalizeExpected(v any) any {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if strings.HasPrefix(s, "[") {
			var list []any
			if err := json.Unmarshal([]byte(s), &list); err == nil {
				return toStrings(list)
			}
		}
		return s
	case []any:
		return toStrings(val)
	case []string:
		return append([]string(nil), val...)
	case int:
		return float64(val)
	default:
		return v
	}
}

func toStrings(list []any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		out = append(out, casestore.Stringify(item))
	}
	return out
}

func containsKey(list []string, code string) bool {
	for _, s := range list {
		if casestore.Key(s) == casestore.Key(code) {
			return true
		}
	}
	return false
}

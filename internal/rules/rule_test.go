package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionNormalize_LegacySymptom(t *testing.T) {
	c := Condition{Type: "Symptom", Symptom: "vomiting"}
	c.Normalize()

	assert.Equal(t, ConditionSymptom, c.Type)
	assert.Equal(t, []string{"VOMITING"}, c.Symptoms)
	assert.Equal(t, LogicAnd, c.LogicType)
	assert.Empty(t, c.Symptom)
	assert.NoError(t, c.Validate())
}

func TestConditionNormalize_OrGroup(t *testing.T) {
	c := Condition{Type: ConditionSymptom, Symptoms: []string{"retching", " Unproductive_Vomiting "}, LogicType: "or"}
	c.Normalize()

	assert.Equal(t, []string{"RETCHING", "UNPRODUCTIVE_VOMITING"}, c.Symptoms)
	assert.Equal(t, LogicOr, c.LogicType)
}

func TestConditionNormalize_SlotJSONListValue(t *testing.T) {
	c := Condition{Type: ConditionSlot, ParentSymptom: "vomiting", Slot: "frequency", Operator: "EQUALS", Value: `["daily", "constant"]`}
	c.Normalize()

	assert.Equal(t, "VOMITING", c.ParentSymptom)
	assert.Equal(t, "FREQUENCY", c.Slot)
	assert.Equal(t, OpEquals, c.Operator)
	assert.Equal(t, []string{"daily", "constant"}, c.Value)
	assert.NoError(t, c.Validate())
}

func TestConditionValidate_Malformed(t *testing.T) {
	cases := []Condition{
		{Type: ConditionSymptom},
		{Type: ConditionSlot, Slot: "FREQUENCY", Operator: OpEquals},
		{Type: ConditionSlot, ParentSymptom: "VOMITING", Operator: OpEquals},
		{Type: ConditionSlot, ParentSymptom: "VOMITING", Slot: "FREQUENCY", Operator: "matches"},
		{Type: ConditionAttribute, Operator: OpEquals},
		{Type: "weather"},
	}
	for _, c := range cases {
		err := c.Validate()
		require.Error(t, err, c.String())
		assert.True(t, errors.Is(err, ErrMalformedCondition))
	}
}

func TestParseOperator(t *testing.T) {
	assert.Equal(t, OpIn, ParseOperator("in"))
	assert.Equal(t, OpIn, ParseOperator("IN"))
	assert.Equal(t, OpGreaterThan, ParseOperator(">"))
	assert.Equal(t, OpLessThan, ParseOperator("less_than"))
	assert.Equal(t, Operator("between"), ParseOperator(" between "))
	assert.False(t, ParseOperator("between").Valid())
}

func TestPriorityScale(t *testing.T) {
	s := DefaultPriorities()
	assert.Greater(t, s.Rank("Emergency"), s.Rank("URGENT"))
	assert.Greater(t, s.Rank("urgent"), s.Rank("Sick"))
	assert.Greater(t, s.Rank("sick"), s.Rank("Routine"))
	assert.Equal(t, 0, s.Rank("whenever"))
	assert.Equal(t, 7, s.Rank("7"))

	ext := s.With(map[string]int{"Critical": 5})
	assert.Greater(t, ext.Rank("critical"), ext.Rank("emergency"))
	assert.Equal(t, 0, s.Rank("critical"))
}

func TestSortByPriority_Stable(t *testing.T) {
	rs := []Rule{
		{RuleCode: "R1", Priority: "Routine"},
		{RuleCode: "U1", Priority: "Urgent"},
		{RuleCode: "E1", Priority: "Emergency"},
		{RuleCode: "U2", Priority: "urgent"},
	}
	sorted := DefaultPriorities().SortByPriority(rs)

	var codes []string
	for _, r := range sorted {
		codes = append(codes, r.RuleCode)
	}
	assert.Equal(t, []string{"E1", "U1", "U2", "R1"}, codes)
	assert.Equal(t, "R1", rs[0].RuleCode)
}

func TestValidate_Rules(t *testing.T) {
	rs := []Rule{
		{RuleCode: "A", Conditions: []Condition{{Type: ConditionSymptom, Symptoms: []string{"X"}}}},
		{RuleCode: "A", Conditions: []Condition{{Type: ConditionSlot, Slot: "S", Operator: OpEquals}}},
		{RuleCode: "B"},
	}
	problems := Validate(rs)
	require.Len(t, problems, 3)
	assert.Contains(t, problems[0].Error(), "duplicate rule_code")
	assert.True(t, errors.Is(problems[1], ErrMalformedCondition))
	assert.Contains(t, problems[2].Error(), "no conditions")
}

func TestDescribe(t *testing.T) {
	sym := Condition{Type: ConditionSymptom, Symptoms: []string{"RETCHING", "GAGGING"}, LogicType: LogicOr}
	d := sym.Describe("E-BLOAT")
	assert.Equal(t, "RETCHING", d.Symptom)
	assert.Equal(t, []string{"RETCHING", "GAGGING"}, d.Symptoms)
	assert.Equal(t, LogicOr, d.LogicType)
	assert.Equal(t, "E-BLOAT", d.RuleCode)

	slot := Condition{Type: ConditionSlot, ParentSymptom: "VOMITING", Slot: "FREQUENCY", Operator: OpEquals, Value: "daily"}
	d = slot.Describe("U-1")
	assert.Equal(t, ConditionSlot, d.Type)
	assert.Equal(t, "VOMITING", d.ParentSymptom)
	assert.Equal(t, "FREQUENCY", d.Slot)
	assert.Empty(t, d.Symptom)
}

func TestParse_YAMLDocument(t *testing.T) {
	raw := []byte(`
priorities:
  critical: 5
rules:
  - id: 1
    rule_code: U-1
    priority: Urgent
    rationale: see a vet
    conditions:
      - type: symptom
        symptom: vomiting
      - type: slot
        parent_symptom: vomiting
        slot: frequency
        operator: equals
        value: [daily, constant]
      - type: attribute
        attribute: age
        operator: greater_than
        value: 10
`)
	f, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, f.Rules, 1)

	r := f.Rules[0]
	assert.Equal(t, "U-1", r.RuleCode)
	require.Len(t, r.Conditions, 3)
	assert.Equal(t, []string{"VOMITING"}, r.Conditions[0].Symptoms)
	assert.Equal(t, []string{"daily", "constant"}, r.Conditions[1].Value)
	assert.Equal(t, float64(10), r.Conditions[2].Value)
	assert.Equal(t, 5, f.Scale().Rank("Critical"))
	assert.Empty(t, Validate(f.Rules))
}

func TestParse_JSONList(t *testing.T) {
	raw := []byte(`[{"id": 7, "rule_code": "R-7", "priority": "Routine", "rationale": "monitor",
	  "conditions": [{"type": "symptom", "symptom": "coughing"}]}]`)
	f, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, f.Rules, 1)
	assert.Equal(t, []string{"COUGHING"}, f.Rules[0].Conditions[0].Symptoms)
}

func TestLoadFile(t *testing.T) {
	f, err := LoadFile(filepath.Join("..", "..", "data", "rules.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, f.Rules)
	assert.Empty(t, Validate(f.Rules))

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: {not: [a list"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

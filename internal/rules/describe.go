package rules

// Descriptor tells the question generator which single piece of information
// is missing.  The extraction collaborator receives the same shape back as
// question context so it can interpret short follow-up answers.
type Descriptor struct {
	Type          ConditionType `json:"type"`
	RuleCode      string        `json:"rule_code,omitempty"`
	Symptom       string        `json:"symptom,omitempty"`
	Symptoms      []string      `json:"symptoms,omitempty"`
	LogicType     LogicType     `json:"logic_type,omitempty"`
	Slot          string        `json:"slot,omitempty"`
	ParentSymptom string        `json:"parent_symptom,omitempty"`
	Attribute     string        `json:"attribute,omitempty"`
	Operator      Operator      `json:"operator,omitempty"`
	Value         any           `json:"value,omitempty"`
}

// Describe builds the descriptor for a condition of the given rule.
func (c Condition) Describe(ruleCode string) Descriptor {
	d := Descriptor{
		Type:     c.Type,
		RuleCode: ruleCode,
	}
	switch c.Type {
	case ConditionSymptom:
		if len(c.Symptoms) > 0 {
			d.Symptom = c.Symptoms[0]
		}
		if len(c.Symptoms) > 1 {
			d.Symptoms = append([]string(nil), c.Symptoms...)
			d.LogicType = c.LogicType
		}
	case ConditionSlot:
		d.Slot = c.Slot
		d.ParentSymptom = c.ParentSymptom
		d.Operator = c.Operator
		d.Value = c.Value
	case ConditionAttribute:
		d.Attribute = c.Attribute
		d.Operator = c.Operator
		d.Value = c.Value
	}
	return d
}

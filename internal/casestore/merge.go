package casestore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	attributesKey = "attributes"
	presentKey    = "present"
	notKey        = "not"
)

// Delta is one turn's worth of structured observations as produced by the
// extraction collaborator.  Entries are keyed by symptom code, except the
// reserved "attributes" entry which carries patient attributes:
//
//	{"vomiting": true}
//	{"vomiting": {"present": true, "frequency": "daily"}}
//	{"attributes": {"species": "dog", "sex": {"not": "female"}}}
//	{"cough": "dry"}                      // ad hoc "VALUE" slot
type Delta map[string]any

// ParseDelta decodes a JSON object into a Delta.
func ParseDelta(raw []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	if d == nil {
		d = Delta{}
	}
	return d, nil
}

// Merge folds a delta into the case.  Merging is additive: values overwrite
// same-named keys but nothing is ever removed, and merging the same delta
// twice leaves the case as merging it once.  Null entries carry no
// information and are skipped, so an uncertain answer never erases a known
// presence flag or slot.
func (c *Case) Merge(d Delta) {
	for key, v := range d {
		if strings.EqualFold(strings.TrimSpace(key), attributesKey) {
			if attrs, ok := v.(map[string]any); ok {
				c.mergeAttributes(attrs)
			}
			continue
		}
		switch val := v.(type) {
		case nil:
		case bool:
			c.SetPresence(key, presenceOf(val))
		case map[string]any:
			c.mergeSymptom(key, val)
		default:
			c.SetSlot(key, ValueSlot, val)
		}
	}
}

func (c *Case) mergeSymptom(code string, obj map[string]any) {
	k := Key(code)
	s := c.symptom(k)
	for field, v := range obj {
		if strings.EqualFold(strings.TrimSpace(field), presentKey) {
			if p := presenceOf(v); p != PresenceUnknown {
				s.Present = p
			}
			continue
		}
		if v == nil {
			continue
		}
		s.Slots[Key(field)] = normalizeValue(v)
	}
	c.symptoms[k] = s
}

func (c *Case) mergeAttributes(attrs map[string]any) {
	for code, v := range attrs {
		k := Key(code)
		switch val := v.(type) {
		case nil:
		case map[string]any:
			if denied, ok := lookupFold(val, notKey); ok {
				c.mergeDenial(k, stringList(denied))
				continue
			}
			if pos, ok := lookupFold(val, "value"); ok && pos != nil {
				c.mergePositive(k, pos)
			}
		default:
			c.mergePositive(k, val)
		}
	}
}

// mergePositive records a positive attribute value.  Denials that name the
// new value are dropped; the rest are kept.
func (c *Case) mergePositive(key string, v any) {
	nv := normalizeValue(v)
	prev := c.attributes[key]
	var denied []string
	for _, d := range prev.Denied {
		if !strings.EqualFold(d, Stringify(nv)) {
			denied = append(denied, d)
		}
	}
	c.attributes[key] = Attribute{Value: nv, Denied: denied}
}

// mergeDenial unions the denied values into the attribute.  A positive value
// survives unless it is itself denied.
func (c *Case) mergeDenial(key string, values []string) {
	prev := c.attributes[key]
	denied := append([]string(nil), prev.Denied...)
	for _, v := range values {
		if v == "" || containsFold(denied, v) {
			continue
		}
		denied = append(denied, v)
	}
	value := prev.Value
	if value != nil && containsFold(denied, Stringify(value)) {
		value = nil
	}
	c.attributes[key] = Attribute{Value: value, Denied: denied}
}

func lookupFold(m map[string]any, key string) (any, bool) {
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v, true
		}
	}
	return nil, false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// normalizeValue turns decoded JSON into the value shapes the case stores:
// string, float64, bool or []string.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []string:
		return append([]string(nil), val...)
	case []any:
		return stringList(val)
	default:
		return v
	}
}

func cloneValue(v any) any {
	if list, ok := v.([]string); ok {
		return append([]string(nil), list...)
	}
	return v
}

// stringList flattens a scalar or list into trimmed strings.
func stringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, Stringify(item))
		}
		return out
	default:
		return []string{Stringify(val)}
	}
}

// Stringify renders a scalar value for comparison.  Numbers use the shortest
// representation, so 5.0 becomes "5".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case []string:
		return strings.Join(val, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

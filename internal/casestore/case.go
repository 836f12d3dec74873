package casestore

import (
	"strings"
)

// Presence is the tri-state presence flag of a symptom.
type Presence int

const (
	PresenceUnknown Presence = iota
	PresenceTrue
	PresenceFalse
)

// String renders the presence the way the extraction collaborator writes it.
func (p Presence) String() string {
	switch p {
	case PresenceTrue:
		return "true"
	case PresenceFalse:
		return "false"
	default:
		return "unknown"
	}
}

// presenceOf converts a decoded JSON value to a Presence.  Anything that is
// not a boolean (null, strings, numbers) is treated as unknown.
func presenceOf(v any) Presence {
	switch b := v.(type) {
	case bool:
		if b {
			return PresenceTrue
		}
		return PresenceFalse
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes":
			return PresenceTrue
		case "false", "no":
			return PresenceFalse
		}
	}
	return PresenceUnknown
}

// Key canonicalises a symptom, slot or attribute code.  Every code that enters
// the case or is looked up in it goes through this function.
func Key(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValueSlot is the ad hoc slot name used when the extractor reports a bare
// scalar for a symptom.
const ValueSlot = "VALUE"

// Symptom is everything known about one symptom.
type Symptom struct {
	Present Presence
	Slots   map[string]any
}

// Slot returns the value recorded for slot, or nil when it is absent.
func (s Symptom) Slot(slot string) any {
	if s.Slots == nil {
		return nil
	}
	return s.Slots[Key(slot)]
}

func (s Symptom) clone() Symptom {
	out := Symptom{Present: s.Present, Slots: make(map[string]any, len(s.Slots))}
	for k, v := range s.Slots {
		out.Slots[k] = cloneValue(v)
	}
	return out
}

// Attribute is a patient attribute.  Either Value holds a positive
// observation, or Denied lists the values the owner explicitly ruled out
// ({"not": ...}) without asserting a positive one.
type Attribute struct {
	Value  any
	Denied []string
}

// IsDenial reports whether the attribute only records denied values.
func (a Attribute) IsDenial() bool {
	return a.Value == nil && len(a.Denied) > 0
}

func (a Attribute) clone() Attribute {
	out := Attribute{Value: cloneValue(a.Value)}
	if a.Denied != nil {
		out.Denied = append([]string(nil), a.Denied...)
	}
	return out
}

// Case accumulates what has been learned about one patient during a session.
// A Case is owned by a single conversation and is not safe for concurrent
// mutation; evaluation works on a Snapshot.
type Case struct {
	symptoms   map[string]Symptom
	attributes map[string]Attribute
}

// New returns an empty case.
func New() *Case {
	return &Case{
		symptoms:   make(map[string]Symptom),
		attributes: make(map[string]Attribute),
	}
}

// Reset forgets everything recorded so far.
func (c *Case) Reset() {
	c.symptoms = make(map[string]Symptom)
	c.attributes = make(map[string]Attribute)
}

// SetPresence records the presence flag of a symptom, creating it if needed.
func (c *Case) SetPresence(code string, p Presence) {
	s := c.symptom(Key(code))
	s.Present = p
	c.symptoms[Key(code)] = s
}

// SetSlot records a slot value on a symptom.  A symptom created this way has
// unknown presence.
func (c *Case) SetSlot(code, slot string, value any) {
	s := c.symptom(Key(code))
	s.Slots[Key(slot)] = normalizeValue(value)
	c.symptoms[Key(code)] = s
}

// SetAttribute records a positive attribute value, replacing any denial.
func (c *Case) SetAttribute(code string, value any) {
	c.attributes[Key(code)] = Attribute{Value: normalizeValue(value)}
}

// DenyAttribute records that the attribute is none of the given values.
func (c *Case) DenyAttribute(code string, values ...string) {
	c.attributes[Key(code)] = Attribute{Denied: append([]string(nil), values...)}
}

// RemoveSymptom drops a symptom and all of its slots.  It is used for
// corrections only; merging never deletes.
func (c *Case) RemoveSymptom(code string) {
	delete(c.symptoms, Key(code))
}

// Len returns the number of symptoms and attributes recorded.
func (c *Case) Len() int {
	return len(c.symptoms) + len(c.attributes)
}

func (c *Case) symptom(key string) Symptom {
	s, ok := c.symptoms[key]
	if !ok {
		return Symptom{Present: PresenceUnknown, Slots: map[string]any{}}
	}
	if s.Slots == nil {
		s.Slots = map[string]any{}
	}
	return s
}

// Snapshot returns a deep copy of the case for one evaluation pass.
func (c *Case) Snapshot() Snapshot {
	snap := Snapshot{
		symptoms:   make(map[string]Symptom, len(c.symptoms)),
		attributes: make(map[string]Attribute, len(c.attributes)),
	}
	for k, s := range c.symptoms {
		snap.symptoms[k] = s.clone()
	}
	for k, a := range c.attributes {
		snap.attributes[k] = a.clone()
	}
	return snap
}

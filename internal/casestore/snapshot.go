package casestore

import "sort"

// Snapshot is a read-only view of a Case taken at the start of an evaluation
// pass.  Accessors return copies so callers cannot alter the snapshot.
type Snapshot struct {
	symptoms   map[string]Symptom
	attributes map[string]Attribute
}

// Symptom returns the record for code and whether it is present in the case.
func (s Snapshot) Symptom(code string) (Symptom, bool) {
	sym, ok := s.symptoms[Key(code)]
	if !ok {
		return Symptom{}, false
	}
	return sym.clone(), true
}

// Presence returns the presence flag for code, Unknown when never mentioned.
func (s Snapshot) Presence(code string) Presence {
	sym, ok := s.symptoms[Key(code)]
	if !ok {
		return PresenceUnknown
	}
	return sym.Present
}

// Slot returns the value recorded for a symptom's slot, nil when absent.
func (s Snapshot) Slot(code, slot string) any {
	sym, ok := s.symptoms[Key(code)]
	if !ok {
		return nil
	}
	return cloneValue(sym.Slot(slot))
}

// Attribute returns the attribute recorded for code.
func (s Snapshot) Attribute(code string) (Attribute, bool) {
	a, ok := s.attributes[Key(code)]
	if !ok {
		return Attribute{}, false
	}
	return a.clone(), true
}

// SymptomCodes returns the recorded symptom codes in sorted order.
func (s Snapshot) SymptomCodes() []string {
	codes := make([]string, 0, len(s.symptoms))
	for k := range s.symptoms {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

// IsEmpty reports whether nothing has been recorded.
func (s Snapshot) IsEmpty() bool {
	return len(s.symptoms) == 0 && len(s.attributes) == 0
}

// Map renders the snapshot in the shape the extraction collaborator produces,
// e.g. {"VOMITING": {"present": true, "FREQUENCY": "daily"},
// "attributes": {"SPECIES": "dog", "SEX": {"not": ["female"]}}}.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.symptoms)+1)
	for code, sym := range s.symptoms {
		rec := map[string]any{}
		switch sym.Present {
		case PresenceTrue:
			rec["present"] = true
		case PresenceFalse:
			rec["present"] = false
		default:
			rec["present"] = nil
		}
		for slot, v := range sym.Slots {
			rec[slot] = cloneValue(v)
		}
		out[code] = rec
	}
	if len(s.attributes) > 0 {
		attrs := make(map[string]any, len(s.attributes))
		for code, a := range s.attributes {
			if a.IsDenial() {
				attrs[code] = map[string]any{"not": append([]string(nil), a.Denied...)}
				continue
			}
			attrs[code] = cloneValue(a.Value)
		}
		out[attributesKey] = attrs
	}
	return out
}

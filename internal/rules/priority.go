package rules

import (
	"sort"
	"strconv"
	"strings"
)

// Default priority categories, most urgent first.
const (
	PriorityEmergency = "Emergency"
	PriorityUrgent    = "Urgent"
	PrioritySick      = "Sick"
	PriorityRoutine   = "Routine"
)

// PriorityScale maps priority names (case-insensitive) to ordinal ranks.
// Higher ranks are more urgent.
type PriorityScale map[string]int

// DefaultPriorities is Emergency > Urgent > Sick > Routine.
func DefaultPriorities() PriorityScale {
	return PriorityScale{
		"emergency": 4,
		"urgent":    3,
		"sick":      2,
		"routine":   1,
	}
}

// With returns a copy of the scale extended with extra categories.
func (s PriorityScale) With(extra map[string]int) PriorityScale {
	out := make(PriorityScale, len(s)+len(extra))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range extra {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// Rank returns the ordinal of a priority.  Numeric priorities rank by their
// value; unknown names rank 0, below every known category.
func (s PriorityScale) Rank(priority string) int {
	p := strings.ToLower(strings.TrimSpace(priority))
	if r, ok := s[p]; ok {
		return r
	}
	if n, err := strconv.Atoi(p); err == nil {
		return n
	}
	return 0
}

// SortByPriority returns the rules ordered by descending rank.  The sort is
// stable so rules of equal priority keep their load order.
func (s PriorityScale) SortByPriority(rs []Rule) []Rule {
	out := append([]Rule(nil), rs...)
	sort.SliceStable(out, func(i, j int) bool {
		return s.Rank(out[i].Priority) > s.Rank(out[j].Priority)
	})
	return out
}

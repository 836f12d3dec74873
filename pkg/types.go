package pkg

import "time"

// SessionState describes where a triage conversation stands.
type SessionState string

const (
	// StateCollecting: still asking questions.
	StateCollecting SessionState = "collecting"
	// StateMatched: a rule matched and its recommendation was given.
	StateMatched SessionState = "matched"
	// StateExhausted: every rule was ruled out; the routine fallback was given.
	StateExhausted SessionState = "exhausted"
)

// Terminal reports whether the session has finished.
func (s SessionState) Terminal() bool {
	return s == StateMatched || s == StateExhausted
}

// ChatRequest represents a message sent by the pet owner.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse contains the reply for one turn.  Priority and RuleCode are
// set once a rule has matched; Missing describes what the reply asks about.
type ChatResponse struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	State     SessionState `json:"state"`
	Priority  string       `json:"priority,omitempty"`
	RuleCode  string       `json:"rule_code,omitempty"`
	Missing   any          `json:"missing,omitempty"`
}

// SessionView is the inspection view of a session.
type SessionView struct {
	ID           string         `json:"id"`
	State        SessionState   `json:"state"`
	Case         map[string]any `json:"case"`
	RuleCode     string         `json:"rule_code,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	LastQuestion string         `json:"last_question"`
	Turns        int            `json:"turns"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Outcome is published when a session reaches a terminal state.
type Outcome struct {
	SessionID string       `json:"session_id"`
	State     SessionState `json:"state"`
	RuleCode  string       `json:"rule_code,omitempty"`
	Priority  string       `json:"priority,omitempty"`
	Turns     int          `json:"turns"`
	At        time.Time    `json:"at"`
}

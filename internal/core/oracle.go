package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vetbox-triage/internal/llm"
)

// ErrUnclearVerdict is returned when the model answers neither yes nor no.
var ErrUnclearVerdict = errors.New("oracle answer is neither yes nor no")

// SemanticOracle asks the language model whether a free-text answer means the
// same as one of a rule's expected values.
type SemanticOracle struct {
	LLM llm.Client
}

// NewSemanticOracle constructs an oracle backed by client.
func NewSemanticOracle(client llm.Client) *SemanticOracle {
	return &SemanticOracle{LLM: client}
}

// Equivalent implements engine.Oracle.
func (o *SemanticOracle) Equivalent(ctx context.Context, actual string, candidates []string) (bool, error) {
	resp, err := o.LLM.Chat(ctx, []llm.Message{
		{Role: "system", Content: OraclePrompt},
		{Role: "user", Content: fmt.Sprintf("Answer: %q\nReference values: %s", actual, strings.Join(quoteAll(candidates), ", "))},
	})
	if err != nil {
		return false, fmt.Errorf("oracle: %w", err)
	}
	return parseVerdict(resp)
}

func parseVerdict(resp string) (bool, error) {
	fields := strings.Fields(strings.ToLower(resp))
	if len(fields) == 0 {
		return false, ErrUnclearVerdict
	}
	switch strings.Trim(fields[0], `."'!,:`) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnclearVerdict, resp)
}

func quoteAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

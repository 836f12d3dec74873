package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/llm"
	"vetbox-triage/internal/rules"
)

// Extractor turns a free-text answer into a case delta.
type Extractor struct {
	LLM    llm.Client
	logger *zap.Logger
}

// NewExtractor constructs an extractor backed by client.
func NewExtractor(client llm.Client, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{LLM: client, logger: logger}
}

// Extract asks the model for the delta described by answer.  questionCtx is
// the descriptor of the condition the question was generated for, if any; it
// lets short answers ("every day") be attached to the right slot.
func (e *Extractor) Extract(ctx context.Context, question, answer string, questionCtx *rules.Descriptor) (casestore.Delta, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Q: %s\nA: %s", question, answer)
	if questionCtx != nil {
		raw, err := json.Marshal(questionCtx)
		if err != nil {
			return nil, fmt.Errorf("encode question context: %w", err)
		}
		fmt.Fprintf(&b, "\nContext: %s", raw)
	}

	resp, err := e.LLM.ChatJSON(ctx, []llm.Message{
		{Role: "system", Content: ExtractionPrompt},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	delta, err := casestore.ParseDelta([]byte(stripFence(resp)))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	e.logger.Debug("extracted delta", zap.Int("keys", len(delta)))
	return delta, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

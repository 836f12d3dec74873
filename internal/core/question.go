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

// QuestionGenerator phrases the next follow-up question.
type QuestionGenerator struct {
	LLM    llm.Client
	logger *zap.Logger
}

// NewQuestionGenerator constructs a generator.  A nil client always uses the
// template questions.
func NewQuestionGenerator(client llm.Client, logger *zap.Logger) *QuestionGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionGenerator{LLM: client, logger: logger}
}

// Generate returns one question asking for the missing information.  It
// never fails: when the model is unavailable a template question is used.
func (g *QuestionGenerator) Generate(ctx context.Context, snap casestore.Snapshot, missing rules.Descriptor) string {
	if g.LLM == nil {
		return TemplateQuestion(missing)
	}
	caseJSON, err := json.Marshal(snap.Map())
	if err != nil {
		return TemplateQuestion(missing)
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return TemplateQuestion(missing)
	}

	resp, err := g.LLM.Chat(ctx, []llm.Message{
		{Role: "system", Content: QuestionPrompt},
		{Role: "user", Content: fmt.Sprintf("Current case data:\n%s\n\nMissing information:\n%s", caseJSON, missingJSON)},
	})
	q := strings.Trim(strings.TrimSpace(resp), `"`)
	if err != nil || q == "" {
		g.logger.Warn("question generation failed, using template", zap.Error(err))
		return TemplateQuestion(missing)
	}
	return q
}

// TemplateQuestion is the deterministic question for a descriptor.
func TemplateQuestion(d rules.Descriptor) string {
	switch d.Type {
	case rules.ConditionSymptom:
		if len(d.Symptoms) > 1 {
			names := make([]string, len(d.Symptoms))
			for i, s := range d.Symptoms {
				names[i] = humanize(s)
			}
			return fmt.Sprintf("Has your pet shown any of the following: %s?", strings.Join(names, ", "))
		}
		return fmt.Sprintf("Has your pet had any %s?", humanize(d.Symptom))
	case rules.ConditionSlot:
		return fmt.Sprintf("Can you tell me about the %s of the %s?", humanize(d.Slot), humanize(d.ParentSymptom))
	case rules.ConditionAttribute:
		return fmt.Sprintf("What is your pet's %s?", humanize(d.Attribute))
	}
	return NeedDetailMessage
}

// humanize renders a canonical code as words: "ABDOMINAL_DISTENSION" ->
// "abdominal distension".
func humanize(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "_", " "))
}

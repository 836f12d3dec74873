package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetbox-triage/internal/core"
)

const goodRules = `
rules:
  - id: 1
    rule_code: U-VOMIT
    priority: Urgent
    rationale: See a vet today.
    conditions:
      - type: symptom
        symptom: vomiting
`

const badRules = `
rules:
  - id: 1
    rule_code: U-VOMIT
    priority: Urgent
    conditions:
      - type: slot
        parent_symptom: vomiting
        slot: frequency
        operator: between
        value: daily
  - id: 2
    rule_code: U-EMPTY
    priority: Urgent
`

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, "", "validate", "--rules", writeRules(t, goodRules))
	require.NoError(t, err)
	assert.Contains(t, out, "1 rules, 0 problems")

	bad := writeRules(t, badRules)
	out, err = run(t, "", "validate", "--rules", bad)
	require.NoError(t, err)
	assert.Contains(t, out, "rule U-VOMIT condition 0")
	assert.Contains(t, out, "rule U-EMPTY: rule has no conditions")
	assert.Contains(t, out, "2 rules, 2 problems")

	_, err = run(t, "", "validate", "--strict", "--rules", bad)
	assert.Error(t, err)

	_, err = run(t, "", "validate", "--rules", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeed_RequiresDatabaseURL(t *testing.T) {
	_, err := run(t, "", "seed", "--database-url", "", "--rules", writeRules(t, goodRules))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestChat_TemplateQuestionsWithoutModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RULES_SOURCE", "")
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "my dog threw up\n/reset\n/quit\n", "chat", "--rules", writeRules(t, goodRules))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, core.OpeningQuestion))
	assert.Contains(t, out, "Has your pet had any vomiting?")
}

func TestChat_EOFEndsSession(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RULES_SOURCE", "")

	out, err := run(t, "", "chat", "--rules", writeRules(t, goodRules))
	require.NoError(t, err)
	assert.Contains(t, out, core.OpeningQuestion)
}

package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/rules"
)

// AgeAttribute is the only attribute whose values are normalised to a
// number before comparison ("3 years" -> 3).
const AgeAttribute = "AGE"

// DefaultOracleTimeout bounds a single semantic-equivalence call.
const DefaultOracleTimeout = 5 * time.Second

// Oracle answers whether a free-text answer means the same thing as one of a
// rule's expected values.  Implementations usually call an LLM.
type Oracle interface {
	Equivalent(ctx context.Context, actual string, candidates []string) (bool, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, actual string, candidates []string) (bool, error)

func (f OracleFunc) Equivalent(ctx context.Context, actual string, candidates []string) (bool, error) {
	return f(ctx, actual, candidates)
}

// placeholders are stripped from IN lists before membership tests; rule
// authors use them for "any answer" stubs.  A list holding nothing else is
// satisfied by any present answer.
var placeholders = map[string]bool{
	"":        true,
	"?":       true,
	"...":     true,
	"null":    true,
	"n/a":     true,
	"tbd":     true,
	"any":     true,
	"<value>": true,
}

var numericRun = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Comparison is one observed value checked against a rule's expectation.
type Comparison struct {
	Actual    any
	Expected  any
	Operator  rules.Operator
	Attribute string // canonical attribute code; empty for slot values
}

// Comparator compares observed values with expected ones.  It is stateless
// apart from its configuration and is safe for concurrent use.
type Comparator struct {
	oracle    Oracle
	exactOnly map[string]bool
	timeout   time.Duration
	observe   func(result string)
	logger    *zap.Logger
}

// ComparatorOption configures a Comparator.
type ComparatorOption func(*Comparator)

// WithOracle enables the semantic-equivalence fallback.
func WithOracle(o Oracle) ComparatorOption {
	return func(c *Comparator) { c.oracle = o }
}

// WithExactMatchAttributes lists attributes that must never be matched
// semantically (species identity, for instance).
func WithExactMatchAttributes(codes ...string) ComparatorOption {
	return func(c *Comparator) {
		for _, code := range codes {
			if k := casestore.Key(code); k != "" {
				c.exactOnly[k] = true
			}
		}
	}
}

// WithOracleTimeout bounds each oracle call.
func WithOracleTimeout(d time.Duration) ComparatorOption {
	return func(c *Comparator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOracleObserver registers a callback receiving "match", "no_match" or
// "error" after every oracle call.
func WithOracleObserver(fn func(result string)) ComparatorOption {
	return func(c *Comparator) { c.observe = fn }
}

// NewComparator builds a comparator.  Without WithOracle only exact matching
// is performed.
func NewComparator(logger *zap.Logger, opts ...ComparatorOption) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Comparator{
		exactOnly: map[string]bool{},
		timeout:   DefaultOracleTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withOracle returns a copy of the comparator that consults o instead.
func (c *Comparator) withOracle(o Oracle) *Comparator {
	cp := *c
	cp.oracle = o
	return &cp
}

// Compare evaluates one comparison.  An absent actual value is always
// Undetermined; so is anything that cannot be coerced for the operator.
func (c *Comparator) Compare(ctx context.Context, in Comparison) Outcome {
	actual := in.Actual
	if in.Attribute == AgeAttribute {
		actual = normalizeAge(actual)
	}
	if isAbsent(actual) {
		return Undetermined
	}

	switch in.Operator {
	case rules.OpEquals:
		expected := stringsOf(in.Expected)
		if len(expected) == 0 {
			return Undetermined
		}
		if matchAny(stringsOf(actual), expected) {
			return Satisfied
		}
		return c.semantic(ctx, in, actual, expected)

	case rules.OpContains:
		expected := stringsOf(in.Expected)
		if len(expected) == 0 {
			return Undetermined
		}
		return fromBool(contains(actual, expected))

	case rules.OpGreaterThan, rules.OpLessThan:
		a, ok := toFloat(actual)
		if !ok {
			return Undetermined
		}
		e, ok := toFloat(in.Expected)
		if !ok {
			return Undetermined
		}
		if in.Operator == rules.OpGreaterThan {
			return fromBool(a > e)
		}
		return fromBool(a < e)

	case rules.OpIn:
		switch yesNo(actual) {
		case "yes":
			return Satisfied
		case "no":
			return Violated
		}
		listed := stringsOf(in.Expected)
		if len(listed) == 0 {
			return Undetermined
		}
		expected := stripPlaceholders(listed)
		if len(expected) == 0 {
			// only stubs listed: any answer will do
			return Satisfied
		}
		if matchAny(stringsOf(actual), expected) {
			return Satisfied
		}
		return c.semantic(ctx, in, actual, expected)
	}

	c.logger.Debug("unknown operator", zap.String("operator", string(in.Operator)))
	return Undetermined
}

// semantic is the fallback after an exact equals/IN miss.  It only applies
// when the rule expects a list, the attribute is not exact-match-only and the
// answer is free text.  Oracle failures fail closed to "not matched".
func (c *Comparator) semantic(ctx context.Context, in Comparison, actual any, candidates []string) Outcome {
	if c.oracle == nil || !isList(in.Expected) || c.exactOnly[in.Attribute] {
		return Violated
	}
	text, ok := actual.(string)
	if !ok {
		return Violated
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	match, err := c.oracle.Equivalent(callCtx, text, candidates)
	if err != nil {
		c.logger.Warn("semantic oracle failed, using exact match",
			zap.String("actual", text),
			zap.Strings("candidates", candidates),
			zap.Error(err),
		)
		c.report("error")
		return Violated
	}
	if match {
		c.report("match")
		return Satisfied
	}
	c.report("no_match")
	return Violated
}

func (c *Comparator) report(result string) {
	if c.observe != nil {
		c.observe(result)
	}
}

// normalizeAge extracts a number from an age answer: numbers pass through,
// strings yield their first numeric run and lists their first element.
func normalizeAge(v any) any {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		m := numericRun.FindString(val)
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return f
	case []string:
		if len(val) == 0 {
			return nil
		}
		return normalizeAge(val[0])
	}
	return v
}

func isAbsent(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

func isList(v any) bool {
	switch v.(type) {
	case []string, []any:
		return true
	}
	return false
}

// stringsOf flattens a scalar or list into comparable strings.
func stringsOf(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			out = append(out, strings.TrimSpace(s))
		}
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item != nil {
				out = append(out, casestore.Stringify(item))
			}
		}
		return out
	}
	return []string{casestore.Stringify(v)}
}

func matchAny(actual, expected []string) bool {
	for _, a := range actual {
		for _, e := range expected {
			if strings.EqualFold(a, e) {
				return true
			}
		}
	}
	return false
}

// contains is a case-insensitive membership test for list answers and a
// substring test for text answers.
func contains(actual any, expected []string) bool {
	if list, ok := actual.([]string); ok {
		return matchAny(list, expected)
	}
	text := strings.ToLower(casestore.Stringify(actual))
	for _, e := range expected {
		if e == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case []string:
		if len(val) == 0 {
			return 0, false
		}
		return toFloat(val[0])
	case []any:
		if len(val) == 0 {
			return 0, false
		}
		return toFloat(val[0])
	}
	return 0, false
}

func yesNo(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "yes":
			return "yes"
		case "no":
			return "no"
		}
	}
	return ""
}

func stripPlaceholders(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if placeholders[strings.ToLower(strings.TrimSpace(s))] {
			continue
		}
		out = append(out, s)
	}
	return out
}

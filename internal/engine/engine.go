package engine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/rules"
)

// DefaultConcurrency bounds the conditions evaluated in parallel in a pass.
const DefaultConcurrency = 4

// DecisionKind is the outcome of SelectNextQuestion.
type DecisionKind string

const (
	// DecisionAsk: keep collecting, Missing names what to ask about.
	DecisionAsk DecisionKind = "ask"
	// DecisionMatched: Rule is fully satisfied.
	DecisionMatched DecisionKind = "matched"
	// DecisionExhausted: every rule has been ruled out.
	DecisionExhausted DecisionKind = "exhausted"
	// DecisionNeedDetail: the leading candidate has nothing missing yet is
	// not satisfied.  Should not happen; handled with a generic prompt.
	DecisionNeedDetail DecisionKind = "need_detail"
)

// Decision is the engine's answer for one turn.
type Decision struct {
	Kind       DecisionKind
	Rule       *rules.Rule
	Missing    *rules.Condition
	Candidates []rules.Rule
}

// Descriptor returns the missing-condition descriptor for DecisionAsk.
func (d Decision) Descriptor() *rules.Descriptor {
	if d.Missing == nil {
		return nil
	}
	code := ""
	if d.Rule != nil {
		code = d.Rule.RuleCode
	}
	desc := d.Missing.Describe(code)
	return &desc
}

// RuleResult holds the outcome of every condition of one rule.
type RuleResult struct {
	Rule     rules.Rule
	Outcomes []Outcome
}

// Violated reports whether any condition is contradicted by the case.
func (r RuleResult) Violated() bool {
	for _, o := range r.Outcomes {
		if o == Violated {
			return true
		}
	}
	return false
}

// Satisfied reports whether every condition holds.  A rule without
// conditions is never satisfied.
func (r RuleResult) Satisfied() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o != Satisfied {
			return false
		}
	}
	return true
}

// Missing returns the Undetermined conditions in rule order.
func (r RuleResult) Missing() []rules.Condition {
	var out []rules.Condition
	for i, o := range r.Outcomes {
		if o == Undetermined {
			out = append(out, r.Rule.Conditions[i])
		}
	}
	return out
}

// Engine evaluates an immutable, priority-ordered rule list.  An Engine holds
// no per-case state and may be shared; each session still owns its own
// instance so sessions can be reset independently.
type Engine struct {
	rules       []rules.Rule
	scale       rules.PriorityScale
	eval        *Evaluator
	concurrency int
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPriorityScale overrides the default Emergency > Urgent > Sick > Routine.
func WithPriorityScale(s rules.PriorityScale) Option {
	return func(e *Engine) {
		if s != nil {
			e.scale = s
		}
	}
}

// WithConcurrency bounds parallel condition evaluation in a pass.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New builds an engine over rs.  The rules are copied and sorted by
// descending priority; malformed conditions are logged once here.
func New(rs []rules.Rule, eval *Evaluator, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eval == nil {
		eval = NewEvaluator(nil, logger)
	} else if eval.cmp == nil || eval.logger == nil {
		eval = NewEvaluator(eval.cmp, logger)
	}
	e := &Engine{
		scale:       rules.DefaultPriorities(),
		eval:        eval,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = e.scale.SortByPriority(rs)
	for _, p := range rules.Validate(e.rules) {
		logger.Warn("rule problem", zap.String("rule_code", p.RuleCode), zap.Int("condition", p.Condition), zap.Error(p.Err))
	}
	return e
}

// Fork returns an independent engine over the same read-only rule list,
// without validating the rules again.
func (e *Engine) Fork() *Engine {
	cp := *e
	return &cp
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []rules.Rule {
	return append([]rules.Rule(nil), e.rules...)
}

// Evaluate runs one pass over every rule.  Conditions are evaluated
// concurrently; outcomes are stored by position, so the result does not
// depend on completion order.
func (e *Engine) Evaluate(ctx context.Context, snap casestore.Snapshot) []RuleResult {
	return e.evaluate(ctx, e.rules, snap)
}

func (e *Engine) evaluate(ctx context.Context, rs []rules.Rule, snap casestore.Snapshot) []RuleResult {
	eval := e.eval
	if e.eval.cmp.oracle != nil {
		eval = e.eval.withComparator(e.eval.cmp.withOracle(newPassOracle(e.eval.cmp.oracle)))
	}

	results := make([]RuleResult, len(rs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, r := range rs {
		results[i] = RuleResult{Rule: r, Outcomes: make([]Outcome, len(r.Conditions))}
		for j, cond := range r.Conditions {
			i, j, cond := i, j, cond
			g.Go(func() error {
				results[i].Outcomes[j] = eval.Evaluate(gctx, cond, snap)
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

// FindBestMatchingRule returns the highest-priority rule whose conditions
// are all Satisfied.
func (e *Engine) FindBestMatchingRule(ctx context.Context, snap casestore.Snapshot) (rules.Rule, bool) {
	return bestMatch(e.Evaluate(ctx, snap))
}

// FindCandidateRules returns, in priority order, every rule with no Violated
// condition.
func (e *Engine) FindCandidateRules(ctx context.Context, snap casestore.Snapshot) []rules.Rule {
	return candidates(e.Evaluate(ctx, snap))
}

// GetMissingConditions returns the Undetermined conditions of rule.
func (e *Engine) GetMissingConditions(ctx context.Context, rule rules.Rule, snap casestore.Snapshot) []rules.Condition {
	return e.evaluate(ctx, []rules.Rule{rule}, snap)[0].Missing()
}

// SelectNextQuestion decides the turn: a matched rule, the next missing
// condition of the leading candidate, or exhaustion.  Candidates whose
// missing conditions are all malformed are passed over for the question but
// stay in Candidates.
func (e *Engine) SelectNextQuestion(ctx context.Context, snap casestore.Snapshot) Decision {
	results := e.Evaluate(ctx, snap)

	if best, ok := bestMatch(results); ok {
		e.logger.Debug("rule matched", zap.String("rule_code", best.RuleCode), zap.String("priority", best.Priority))
		return Decision{Kind: DecisionMatched, Rule: &best}
	}

	var cands []rules.Rule
	var lead, ask *RuleResult
	var next rules.Condition
	for i := range results {
		if !isCandidate(results[i]) {
			continue
		}
		cands = append(cands, results[i].Rule)
		if lead == nil {
			lead = &results[i]
		}
		if ask == nil {
			if askable := askableConditions(results[i].Missing()); len(askable) > 0 {
				ask, next = &results[i], pickNext(askable)
			}
		}
	}
	if lead == nil {
		e.logger.Debug("no viable rule")
		return Decision{Kind: DecisionExhausted}
	}
	if ask == nil {
		rule := lead.Rule
		e.logger.Warn("no candidate has an askable condition", zap.String("rule_code", rule.RuleCode))
		return Decision{Kind: DecisionNeedDetail, Rule: &rule, Candidates: cands}
	}

	rule := ask.Rule
	e.logger.Debug("next question",
		zap.String("rule_code", rule.RuleCode),
		zap.String("condition", next.String()),
		zap.Int("candidates", len(cands)),
	)
	return Decision{Kind: DecisionAsk, Rule: &rule, Missing: &next, Candidates: cands}
}

// askableConditions drops malformed conditions: they can never be
// satisfied, so there is nothing to ask about them.
func askableConditions(missing []rules.Condition) []rules.Condition {
	var out []rules.Condition
	for _, c := range missing {
		if c.Validate() == nil {
			out = append(out, c)
		}
	}
	return out
}

// pickNext prefers symptom conditions, then falls back to rule order.
func pickNext(missing []rules.Condition) rules.Condition {
	for _, c := range missing {
		if c.Type == rules.ConditionSymptom {
			return c
		}
	}
	return missing[0]
}

func isCandidate(r RuleResult) bool {
	return len(r.Outcomes) > 0 && !r.Violated()
}

func bestMatch(results []RuleResult) (rules.Rule, bool) {
	for _, r := range results {
		if r.Satisfied() {
			return r.Rule, true
		}
	}
	return rules.Rule{}, false
}

func candidates(results []RuleResult) []rules.Rule {
	var out []rules.Rule
	for _, r := range results {
		if isCandidate(r) {
			out = append(out, r.Rule)
		}
	}
	return out
}

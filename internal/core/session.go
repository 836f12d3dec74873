package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/engine"
	"vetbox-triage/internal/metrics"
	"vetbox-triage/internal/rules"
	"vetbox-triage/pkg"
)

// DeltaExtractor turns an answer into a case delta.  *Extractor is the
// production implementation.
type DeltaExtractor interface {
	Extract(ctx context.Context, question, answer string, questionCtx *rules.Descriptor) (casestore.Delta, error)
}

// Asker phrases a question for a missing condition.  *QuestionGenerator is
// the production implementation.
type Asker interface {
	Generate(ctx context.Context, snap casestore.Snapshot, missing rules.Descriptor) string
}

// OutcomeSink is told when a session reaches a terminal state.
type OutcomeSink interface {
	Publish(ctx context.Context, o pkg.Outcome) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, pkg.Outcome) error { return nil }

var errNoExtractor = errors.New("no extractor configured")

type noExtractor struct{}

func (noExtractor) Extract(context.Context, string, string, *rules.Descriptor) (casestore.Delta, error) {
	return nil, errNoExtractor
}

// Reply is the outcome of one turn.
type Reply struct {
	Text    string
	State   pkg.SessionState
	Rule    *rules.Rule
	Missing *rules.Descriptor
}

// Response renders the reply for the wire.
func (r Reply) Response(sessionID string) pkg.ChatResponse {
	resp := pkg.ChatResponse{SessionID: sessionID, Reply: r.Text, State: r.State}
	if r.State == pkg.StateMatched && r.Rule != nil {
		resp.Priority = r.Rule.Priority
		resp.RuleCode = r.Rule.RuleCode
	}
	if r.Missing != nil {
		resp.Missing = r.Missing
	}
	return resp
}

// Session is one triage conversation.  It owns its case and its engine
// instance; turns of the same session are serialised.
type Session struct {
	ID string

	mu        sync.Mutex
	c         *casestore.Case
	eng       *engine.Engine
	extractor DeltaExtractor
	questions Asker
	sink      OutcomeSink
	maxTurns  int
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	state        pkg.SessionState
	final        Reply
	lastQuestion string
	lastMissing  *rules.Descriptor
	turns        int
	createdAt    time.Time
	updatedAt    time.Time
}

func (s *Session) opening() Reply {
	s.state = pkg.StateCollecting
	s.final = Reply{}
	s.lastQuestion = OpeningQuestion
	s.lastMissing = nil
	return Reply{Text: OpeningQuestion, State: pkg.StateCollecting}
}

// Turn processes one answer: extract, merge, evaluate, respond.  It never
// fails; extraction errors leave the case unchanged and the conversation
// goes on.  A panicking collaborator yields FallbackMessage.  A session
// still collecting after its turn limit ends as exhausted with CapMessage.
// Once the session is terminal the final reply is repeated until Reset.
func (s *Session) Turn(ctx context.Context, answer string) (reply Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("turn failed", zap.String("session_id", s.ID), zap.Any("panic", r))
			reply = Reply{Text: FallbackMessage, State: s.state}
		}
	}()

	if s.state.Terminal() {
		return s.final
	}
	start := s.now()
	s.turns++
	s.updatedAt = start

	delta, err := s.extractor.Extract(ctx, s.lastQuestion, answer, s.lastMissing)
	if err != nil {
		s.logger.Warn("extraction failed, answer not merged", zap.String("session_id", s.ID), zap.Error(err))
		s.metrics.ExtractionFailed()
	} else {
		s.c.Merge(delta)
	}

	reply = s.decide(ctx)
	if !reply.State.Terminal() && s.maxTurns > 0 && s.turns >= s.maxTurns {
		s.logger.Info("turn limit reached", zap.String("session_id", s.ID), zap.Int("turns", s.turns))
		reply = s.finish(ctx, Reply{Text: CapMessage, State: pkg.StateExhausted})
	}
	s.metrics.ObserveTurn(string(reply.State), s.now().Sub(start))
	return reply
}

func (s *Session) decide(ctx context.Context) Reply {
	snap := s.c.Snapshot()
	d := s.eng.SelectNextQuestion(ctx, snap)

	switch d.Kind {
	case engine.DecisionMatched:
		return s.finish(ctx, Reply{
			Text:  fmt.Sprintf(recommendationFormat, d.Rule.Priority, d.Rule.Rationale),
			State: pkg.StateMatched,
			Rule:  d.Rule,
		})
	case engine.DecisionExhausted:
		return s.finish(ctx, Reply{Text: NoViableRuleMessage, State: pkg.StateExhausted})
	case engine.DecisionAsk:
		missing := d.Descriptor()
		q := s.questions.Generate(ctx, snap, *missing)
		s.lastQuestion, s.lastMissing = q, missing
		return Reply{Text: q, State: pkg.StateCollecting, Missing: missing}
	}

	s.lastQuestion, s.lastMissing = NeedDetailMessage, nil
	return Reply{Text: NeedDetailMessage, State: pkg.StateCollecting}
}

func (s *Session) finish(ctx context.Context, reply Reply) Reply {
	s.state = reply.State
	s.final = reply
	s.lastMissing = nil

	o := pkg.Outcome{SessionID: s.ID, State: reply.State, Turns: s.turns, At: s.now()}
	if reply.Rule != nil {
		o.RuleCode = reply.Rule.RuleCode
		o.Priority = reply.Rule.Priority
	}
	s.logger.Info("triage finished",
		zap.String("session_id", s.ID),
		zap.String("state", string(o.State)),
		zap.String("rule_code", o.RuleCode),
		zap.String("priority", o.Priority),
		zap.Int("turns", o.Turns),
	)
	if err := s.sink.Publish(ctx, o); err != nil {
		s.logger.Warn("publish outcome", zap.String("session_id", s.ID), zap.Error(err))
	}
	return reply
}

// Reset forgets the case and starts over with the opening question.
func (s *Session) Reset() Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Reset()
	s.turns = 0
	s.updatedAt = s.now()
	return s.opening()
}

// State returns the current state.
func (s *Session) State() pkg.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns an inspection copy of the session.
func (s *Session) View() pkg.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := pkg.SessionView{
		ID:           s.ID,
		State:        s.state,
		Case:         s.c.Snapshot().Map(),
		LastQuestion: s.lastQuestion,
		Turns:        s.turns,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.final.Rule != nil {
		v.RuleCode = s.final.Rule.RuleCode
		v.Priority = s.final.Rule.Priority
	}
	return v
}

// idleSince reports the last activity.  ok is false when a turn is running.
func (s *Session) idleSince() (time.Time, bool) {
	if !s.mu.TryLock() {
		return time.Time{}, false
	}
	defer s.mu.Unlock()
	return s.updatedAt, true
}

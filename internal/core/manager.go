package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/engine"
	"vetbox-triage/internal/metrics"
	"vetbox-triage/internal/rules"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// DefaultIdleTTL is how long an untouched session is kept.
const DefaultIdleTTL = 30 * time.Minute

// DefaultMaxTurns is the number of answers a session accepts before it ends
// without a recommendation.
const DefaultMaxTurns = 20

// Config wires the collaborators every session shares.
type Config struct {
	Rules         []rules.Rule
	Evaluator     *engine.Evaluator
	EngineOptions []engine.Option
	Extractor     DeltaExtractor
	Questions     Asker
	Sink          OutcomeSink
	IdleTTL       time.Duration
	MaxTurns      int
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Manager holds the live sessions of the service.  The rule list is loaded
// once and shared read-only; every session gets its own case and engine.
type Manager struct {
	base      *engine.Engine
	extractor DeltaExtractor
	questions Asker
	sink      OutcomeSink
	ttl       time.Duration
	maxTurns  int
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager validates the rule base once and prepares session creation.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		base:      engine.New(cfg.Rules, cfg.Evaluator, logger, cfg.EngineOptions...),
		extractor: cfg.Extractor,
		questions: cfg.Questions,
		sink:      cfg.Sink,
		ttl:       cfg.IdleTTL,
		maxTurns:  cfg.MaxTurns,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	if m.extractor == nil {
		m.extractor = noExtractor{}
	}
	if m.questions == nil {
		m.questions = NewQuestionGenerator(nil, logger)
	}
	if m.sink == nil {
		m.sink = nopSink{}
	}
	if m.ttl <= 0 {
		m.ttl = DefaultIdleTTL
	}
	if m.maxTurns <= 0 {
		m.maxTurns = DefaultMaxTurns
	}
	m.metrics.SetRulesLoaded(len(cfg.Rules))
	return m
}

// Rules returns the shared rule base in evaluation order.
func (m *Manager) Rules() []rules.Rule {
	return m.base.Rules()
}

// Create starts a new session and returns it with its opening reply.
func (m *Manager) Create() (*Session, Reply) {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		c:         casestore.New(),
		eng:       m.base.Fork(),
		extractor: m.extractor,
		questions: m.questions,
		sink:      m.sink,
		maxTurns:  m.maxTurns,
		metrics:   m.metrics,
		logger:    m.logger,
		now:       m.now,
		createdAt: now,
		updatedAt: now,
	}
	reply := s.opening()

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(n)
	m.logger.Info("session created", zap.String("session_id", s.ID))
	return s, reply
}

// Get looks a session up.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Turn runs one turn of session id.
func (m *Manager) Turn(ctx context.Context, id, answer string) (Reply, error) {
	s, err := m.Get(id)
	if err != nil {
		return Reply{}, err
	}
	return s.Turn(ctx, answer), nil
}

// Reset clears session id and returns the opening reply.
func (m *Manager) Reset(id string) (Reply, error) {
	s, err := m.Get(id)
	if err != nil {
		return Reply{}, err
	}
	return s.Reset(), nil
}

// Delete ends session id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.metrics.SetActiveSessions(n)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL.  Sessions in the middle
// of a turn are left alone.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var removed int
	for id, s := range m.sessions {
		last, ok := s.idleSince()
		if ok && last.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.metrics.SetActiveSessions(n)
		m.logger.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("active", n))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

package engine

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

type oracleAnswer struct {
	match bool
	err   error
}

// passOracle memoises oracle answers for one evaluation pass.  Rules often
// repeat the same slot check, so identical questions issued concurrently are
// collapsed into a single call.
type passOracle struct {
	inner Oracle
	group singleflight.Group

	mu      sync.Mutex
	answers map[string]oracleAnswer
}

func newPassOracle(inner Oracle) *passOracle {
	return &passOracle{inner: inner, answers: map[string]oracleAnswer{}}
}

func (p *passOracle) Equivalent(ctx context.Context, actual string, candidates []string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(actual)) + "\x00" + strings.ToLower(strings.Join(candidates, "\x1f"))

	if a, ok := p.lookup(key); ok {
		return a.match, a.err
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if a, ok := p.lookup(key); ok {
			return a.match, a.err
		}
		match, err := p.inner.Equivalent(ctx, actual, candidates)
		p.mu.Lock()
		p.answers[key] = oracleAnswer{match: match, err: err}
		p.mu.Unlock()
		return match, err
	})
	match, _ := v.(bool)
	return match, err
}

func (p *passOracle) lookup(key string) (oracleAnswer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.answers[key]
	return a, ok
}

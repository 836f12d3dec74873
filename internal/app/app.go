// Package app wires configuration, rule source and collaborators into a
// session manager.  Both the HTTP server and the console chat use it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"vetbox-triage/internal/config"
	"vetbox-triage/internal/core"
	"vetbox-triage/internal/db"
	"vetbox-triage/internal/engine"
	"vetbox-triage/internal/llm"
	"vetbox-triage/internal/metrics"
	"vetbox-triage/internal/rules"
)

// OpenDB connects to Postgres, checks the connection and applies the schema.
func OpenDB(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// LoadRules reads the rule base from the configured source.  Rules stored in
// the database use the default priority scale; a rule file may extend it.
func LoadRules(ctx context.Context, cfg *config.Config, conn *sql.DB) ([]rules.Rule, rules.PriorityScale, error) {
	if cfg.Rules.Source == config.SourceDB {
		if conn == nil {
			return nil, nil, fmt.Errorf("rules source db: no database connection")
		}
		rs, err := db.NewRepository(conn).LoadRules(ctx)
		if err != nil {
			return nil, nil, err
		}
		return rs, rules.DefaultPriorities(), nil
	}
	f, err := rules.LoadFile(cfg.Rules.File)
	if err != nil {
		return nil, nil, err
	}
	return f.Rules, f.Scale(), nil
}

// Deps are the optional collaborators of NewManager.  A nil LLM disables
// extraction by model, the semantic oracle and generated questions.
type Deps struct {
	LLM     llm.Client
	Sink    core.OutcomeSink
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// NewManager builds the session manager for rs.
func NewManager(cfg *config.Config, rs []rules.Rule, scale rules.PriorityScale, deps Deps) *core.Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cmpOpts := []engine.ComparatorOption{
		engine.WithExactMatchAttributes(cfg.Engine.ExactAttributes...),
		engine.WithOracleTimeout(cfg.Engine.OracleTimeout),
		engine.WithOracleObserver(deps.Metrics.ObserveOracle),
	}
	if deps.LLM != nil && cfg.Engine.OracleEnabled {
		cmpOpts = append(cmpOpts, engine.WithOracle(core.NewSemanticOracle(deps.LLM)))
	}
	eval := engine.NewEvaluator(engine.NewComparator(logger, cmpOpts...), logger)

	mc := core.Config{
		Rules:     rs,
		Evaluator: eval,
		EngineOptions: []engine.Option{
			engine.WithPriorityScale(scale),
			engine.WithConcurrency(cfg.Engine.Concurrency),
		},
		Questions: core.NewQuestionGenerator(deps.LLM, logger),
		Sink:      deps.Sink,
		IdleTTL:   cfg.Session.IdleTTL,
		MaxTurns:  cfg.Session.MaxTurns,
		Metrics:   deps.Metrics,
		Logger:    logger,
	}
	if deps.LLM != nil {
		mc.Extractor = core.NewExtractor(deps.LLM, logger)
	}
	return core.NewManager(mc)
}

// NewLLM returns the OpenAI client, or nil when no API key is configured.
func NewLLM(cfg *config.Config) llm.Client {
	if cfg.OpenAI.APIKey == "" {
		return nil
	}
	return llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	})
}

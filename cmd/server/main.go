package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vetbox-triage/internal/app"
	"vetbox-triage/internal/config"
	"vetbox-triage/internal/core"
	"vetbox-triage/internal/db"
	httpserver "vetbox-triage/internal/http"
	"vetbox-triage/internal/logger"
	"vetbox-triage/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vetbox-triage")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = app.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database unavailable", zap.Error(err))
		}
		defer conn.Close()
	}

	rs, scale, err := app.LoadRules(ctx, cfg, conn)
	if err != nil {
		log.Fatal("load rules", zap.Error(err), zap.String("source", cfg.Rules.Source))
	}
	log.Info("rules loaded", zap.Int("count", len(rs)), zap.String("source", cfg.Rules.Source))

	client := app.NewLLM(cfg)
	if client == nil {
		log.Warn("OPENAI_API_KEY not set; answers will not be understood and questions use templates")
	}

	var sink core.OutcomeSink
	if conn != nil {
		sink = db.NewNotifier(conn, cfg.NotifyChannel)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	sessions := app.NewManager(cfg, rs, scale, app.Deps{
		LLM:     client,
		Sink:    sink,
		Metrics: m,
		Logger:  log,
	})
	go sessions.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpserver.NewServer(sessions, promhttp.Handler(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped")
}

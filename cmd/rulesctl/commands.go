package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vetbox-triage/internal/app"
	"vetbox-triage/internal/config"
	"vetbox-triage/internal/core"
	"vetbox-triage/internal/db"
	"vetbox-triage/internal/logger"
	"vetbox-triage/internal/metrics"
	"vetbox-triage/internal/rules"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rulesctl",
		Short:         "Manage and try out the triage rule base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newSeedCmd(), newChatCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	var (
		file   string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a rule file and report malformed rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := rules.LoadFile(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			problems := rules.Validate(f.Rules)
			for _, p := range problems {
				fmt.Fprintln(out, p.Error())
			}
			fmt.Fprintf(out, "%d rules, %d problems\n", len(f.Rules), len(problems))
			if strict && len(problems) > 0 {
				return fmt.Errorf("%s has %d problems", file, len(problems))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "rules", "data/rules.yaml", "rule file (YAML or JSON)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any rule is malformed")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var file, dsn string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and insert the rules of a file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			f, err := rules.LoadFile(file)
			if err != nil {
				return err
			}
			conn, err := app.OpenDB(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			n, err := db.NewRepository(conn).SeedRules(cmd.Context(), f.Rules)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d rules\n", n, len(f.Rules))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "rules", "data/rules.yaml", "rule file (YAML or JSON)")
	cmd.Flags().StringVar(&dsn, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	return cmd
}

func newChatCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a triage conversation on the console",
		Long: `Runs one triage session against a rule file.  Type /reset to start
over and /quit to leave.  Without OPENAI_API_KEY answers are not understood.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Rules.Source = config.SourceFile
			if file != "" {
				cfg.Rules.File = file
			}
			log, err := logger.NewLogger(cfg.Log.Level, "console", "")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rs, scale, err := app.LoadRules(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			client := app.NewLLM(cfg)
			if client == nil {
				log.Warn("OPENAI_API_KEY not set; answers will not be understood")
			}
			sessions := app.NewManager(cfg, rs, scale, app.Deps{
				LLM:     client,
				Metrics: metrics.New(prometheus.NewRegistry()),
				Logger:  log,
			})
			return converse(cmd, sessions, log)
		},
	}
	cmd.Flags().StringVar(&file, "rules", "", "rule file (defaults to RULES_FILE)")
	return cmd
}

// converse reads answers line by line until EOF, /quit or a final reply.
func converse(cmd *cobra.Command, sessions *core.Manager, log *zap.Logger) error {
	out := cmd.OutOrStdout()
	sess, reply := sessions.Create()
	defer func() { _ = sessions.Delete(sess.ID) }()
	printReply(out, reply.Text)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			printReply(out, sess.Reset().Text)
			continue
		}

		reply := sess.Turn(cmd.Context(), line)
		printReply(out, reply.Text)
		if reply.State.Terminal() {
			log.Debug("session finished", zap.String("state", string(reply.State)))
			return nil
		}
	}
}

func printReply(w io.Writer, text string) {
	fmt.Fprintln(w, text)
}

package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/examforge/examforge/internal/billing"
	"github.com/examforge/examforge/internal/content"
	"github.com/examforge/examforge/internal/generation"
	"github.com/examforge/examforge/internal/handler"
	appI18n "github.com/examforge/examforge/internal/i18n"
	"github.com/examforge/examforge/internal/identity"
	"github.com/examforge/examforge/internal/jobstate"
	"github.com/examforge/examforge/internal/llm"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/scoring"
	"github.com/examforge/examforge/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examforge",
		Short: "Exam generation and scoring service powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), sweepCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examforge.db", "SQLite database path")
	f.StringSliceP("content", "c", nil, "Paths to content chunk JSON files to import on startup (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Int("llm-max-tokens", 4096, "Max tokens per LLM response")
	f.Duration("llm-timeout", 2*time.Minute, "Timeout for a single LLM call")
	f.StringP("lang", "l", "en", "Default language (en, ru)")
	f.Int("max-questions", 50, "Maximum questions per generation (usage gate)")
	f.Int("chunk-limit", content.DefaultLimit, "Maximum content chunks per generation")
	f.Duration("job-stale-after", 15*time.Minute, "Age after which a non-terminal job is failed by reconciliation")
	f.Duration("reconcile-interval", 5*time.Minute, "How often to sweep stale jobs")
	f.String("auth", "header", "Identity source (header, static)")
	f.String("user-id", "local", "User id for --auth=static")
	f.String("user-email", "local@localhost", "User email for --auth=static")
	f.Bool("cors", true, "Allow cross-origin requests from the web UI")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import content chunks from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "examforge.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail generation jobs stuck in a non-terminal state",
		RunE:  runSweep,
	}
	f := cmd.Flags()
	f.String("db", "examforge.db", "SQLite database path")
	f.Duration("job-stale-after", 15*time.Minute, "Age after which a non-terminal job is failed")
	f.StringP("lang", "l", "en", "Default language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examforge")
	v.AddConfigPath("/etc/examforge")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	logger := slog.Default()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadChunks(db, v.GetStringSlice("content")); err != nil {
		return fmt.Errorf("import content: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetInt("llm-max-tokens"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	jobs := jobstate.New(db, logger)
	retriever := content.New(db, logger)
	orch := generation.New(generation.Config{
		Jobs:       jobs,
		Retriever:  retriever,
		Synth:      llmClient,
		Writer:     db,
		Gate:       billing.MaxQuestionsGate{Max: v.GetInt("max-questions")},
		Logger:     logger,
		LLMTimeout: v.GetDuration("llm-timeout"),
		ChunkLimit: v.GetInt("chunk-limit"),
	})
	scorer := scoring.New(db, llmClient, logger, v.GetDuration("llm-timeout"))

	var idp identity.Provider
	switch v.GetString("auth") {
	case "static":
		idp = identity.Static{User: model.User{ID: v.GetString("user-id"), Email: v.GetString("user-email")}}
	default:
		idp = identity.HeaderProvider{}
	}

	h := handler.New(db, jobs, orch, scorer, idp, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if v.GetBool("cors") {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", "X-User-Id", "X-User-Email"},
		}))
	}
	r.Use(appI18n.Middleware(lang))
	r.Use(identity.Middleware)
	h.Routes(r)

	// Jobs orphaned by an earlier crash are failed at startup and on a
	// periodic sweep thereafter.
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	go orch.RunReconciler(reconcileCtx, v.GetDuration("reconcile-interval"), v.GetDuration("job-stale-after"))

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"max_questions", v.GetInt("max-questions"),
		"chunk_limit", v.GetInt("chunk-limit"),
	)
	return http.ListenAndServe(addr, r)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return loadChunks(db, args)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	logger := slog.Default()
	orch := generation.New(generation.Config{
		Jobs:   jobstate.New(db, logger),
		Logger: logger,
	})
	n, err := orch.ReconcileStale(v.GetDuration("job-stale-after"))
	if err != nil {
		return err
	}
	slog.Info("sweep finished", "reconciled", n)
	return nil
}

// loadChunks imports content chunk files, skipping files whose hash has
// not changed since the last import.
func loadChunks(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("content file unchanged, skipping", "path", path)
			continue
		}

		var chunks []model.ChunkImport
		if err := json.Unmarshal(data, &chunks); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, ci := range chunks {
			lang := ci.Language
			if lang == "" {
				lang = "en"
			}
			_, err := db.InsertChunk(model.ContentChunk{
				Text:     ci.Text,
				Subject:  ci.Subject,
				Topic:    ci.Topic,
				Language: lang,
			})
			if err != nil {
				return fmt.Errorf("insert chunk from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported content chunks", "path", path, "count", len(chunks))
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/eventmarketer/internal/config"
	"github.com/wilhg/eventmarketer/pkg/adapters/llm"
	_ "github.com/wilhg/eventmarketer/pkg/adapters/llm/fake"
	_ "github.com/wilhg/eventmarketer/pkg/adapters/llm/gemini"
	_ "github.com/wilhg/eventmarketer/pkg/adapters/llm/openai"
	"github.com/wilhg/eventmarketer/pkg/eval"
	"github.com/wilhg/eventmarketer/pkg/generation"
	"github.com/wilhg/eventmarketer/pkg/httpapi"
	"github.com/wilhg/eventmarketer/pkg/mcpserver"
	appotel "github.com/wilhg/eventmarketer/pkg/otel"
	"github.com/wilhg/eventmarketer/pkg/store/fallback"
	"github.com/wilhg/eventmarketer/pkg/store/remote"
	"github.com/wilhg/eventmarketer/pkg/store/sqlstore"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "eventmarketer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var showVersion bool
	var evalDir string
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	flag.StringVar(&evalDir, "eval", "", "score prompt fixtures in this directory and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("eventmarketer %s (commit=%s, date=%s)\n", version, commit, date)
		return nil
	}

	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	if evalDir != "" {
		return runEval(os.Stdout, evalDir)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("starting", "version", version, "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := appotel.Init(ctx, appotel.Config{ServiceVersion: version, UseStdout: cfg.OTelStdout})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	materials, err := newDispatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cache, err := sqlstore.Open(ctx, cfg.CacheDatabaseURL, cfg.CacheKey)
	if err != nil {
		return fmt.Errorf("open event cache: %w", err)
	}
	defer func() { _ = cache.Close() }()
	if err := cache.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate event cache: %w", err)
	}
	events := fallback.New(newRemote(cfg), cache, fallback.WithLogger(logger))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(buildMux(materials, events, logger), "eventmarketer"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*generation.Dispatcher, error) {
	model, err := llm.Open(ctx, string(cfg.Provider), cfg.LLMConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s provider: %w", cfg.Provider, err)
	}
	opts := []generation.ClientOption{generation.WithLogger(logger)}
	if cfg.TokenEstimateModel != "" {
		est, err := generation.NewTikTokenEstimator(cfg.TokenEstimateModel)
		if err != nil {
			logger.Warn("token estimation disabled", "model", cfg.TokenEstimateModel, "error", err)
		} else {
			opts = append(opts, generation.WithTokenEstimator(est))
		}
	}
	return generation.NewDispatcher(generation.NewClient(model, opts...)), nil
}

// newRemote returns nil when no remote is configured, which serves every call locally.
func newRemote(cfg *config.Config) fallback.Remote {
	if cfg.EventsRemoteURL == "" {
		return nil
	}
	return remote.New(cfg.EventsRemoteURL, remote.WithProbeTimeout(cfg.EventsProbeTimeout))
}

func buildMux(materials httpapi.MaterialService, events httpapi.EventService, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpapi.NewMaterials(materials, logger).Register(mux, "/api/gemini")
	httpapi.NewEvents(events, logger).Register(mux, "/api/events")
	mux.Handle("/mcp", mcpserver.New(materials, version).Handler())
	return mux
}

func runEval(w io.Writer, dir string) error {
	score, total, passed, details, err := eval.EvaluatePromptFixtures(os.DirFS(dir), ".")
	if err != nil {
		return fmt.Errorf("eval %s: %w", dir, err)
	}
	for _, d := range details {
		fmt.Fprintln(w, d)
	}
	fmt.Fprintf(w, "score=%.2f passed=%d total=%d\n", score, passed, total)
	if passed != total {
		return fmt.Errorf("%d of %d fixtures failed", total-passed, total)
	}
	return nil
}

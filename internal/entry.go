// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/zettel/internal/api"
	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/enrich"
	"github.com/starford/zettel/internal/inbox"
	"github.com/starford/zettel/internal/mcpserver"
	"github.com/starford/zettel/internal/noteservice"
	"github.com/starford/zettel/internal/sse"
	"github.com/starford/zettel/internal/storage"
	"github.com/starford/zettel/internal/store"
)

// services is the dependency graph shared by the HTTP and MCP commands.
type services struct {
	db     *store.DB
	broker *sse.Broker
	runner *enrich.Runner // nil when no classifier is configured
	svc    *noteservice.Service
}

func (s *services) close() {
	s.broker.Close()
	_ = s.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func buildServices(cfg *Config, logger *slog.Logger) (*services, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	broker := sse.NewBroker(cfg.SSE.GraphThrottle, api.OwnerFromRequest)
	svcOpts := []noteservice.Option{
		noteservice.WithPublisher(broker),
		noteservice.WithMinConfidence(cfg.Projects.MinConfidence),
	}

	var runner *enrich.Runner
	if cfg.Classifier.Enabled() {
		cls, err := classifier.New(cfg.Classifier.Settings())
		if err != nil {
			broker.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init classifier: %w", err)
		}
		runner = enrich.New(db, cls, logger, cfg.Enrich.Options(),
			enrich.WithOnEnriched(func(n *store.Note, _ []string) {
				broker.PublishNoteEvent(n.OwnerID, sse.KindEnriched, n.ID)
			}))
		svcOpts = append(svcOpts, noteservice.WithEnqueuer(runner), noteservice.WithProjectSuggester(cls))
	} else {
		logger.Warn("classifier disabled: captures will not be enriched or assigned to projects")
	}

	return &services{
		db:     db,
		broker: broker,
		runner: runner,
		svc:    noteservice.New(db, logger, svcOpts...),
	}, nil
}

// Run starts the HTTP server, the enrichment workers and, when enabled, the
// inbox watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("classifier", cfg.Classifier.Provider),
		slog.Bool("inbox", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	s, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	auth := api.Auth{
		Enabled:      cfg.Auth.AuthEnabled(),
		Tokens:       cfg.Auth.TokenOwners(),
		DefaultOwner: cfg.Auth.DefaultOwner,
	}
	apiRouter := api.NewRouter(s.svc, auth, s.broker, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := s.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	var watcher *inbox.Watcher
	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		fsys, err := storage.NewFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		watcher = inbox.New(fsys, s.svc, cfg.Inbox.OwnerID, logger)
	}

	g, gCtx := errgroup.WithContext(ctx)

	if s.runner != nil {
		g.Go(func() error {
			if err := s.runner.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("enrichment workers: %w", err)
			}
			return nil
		})
	}

	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Run(gCtx); err != nil {
				logger.Error("inbox watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the workers and the watcher stop with the
// server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio as the configured default owner.
// Enrichment workers run alongside so generated metadata still arrives.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	s, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	if s.runner != nil {
		go func() {
			defer close(done)
			if err := s.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("enrichment workers stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		close(done)
	}

	logger.Info("MCP server starting on stdio", slog.Int64("owner_id", cfg.Auth.DefaultOwner))
	err = mcpserver.New(s.svc, cfg.Auth.DefaultOwner).ServeStdio()
	cancel()
	<-done
	return err
}

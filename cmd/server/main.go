package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	tarimweb "github.com/tarimai/tarim-web"
	"github.com/tarimai/tarim-web/internal/handlers"
	"github.com/tarimai/tarim-web/internal/services"
)

var version = "1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "tarimweb",
		Short: "Category-scoped agricultural chat and image analysis web UI",
		Long: `tarimweb serves a web interface where a sidebar selects a category (apple, tea,
hazelnut), a chat panel asks questions to the document search backend of that
category, and an image panel classifies a photo with the category's model.

The config file defaults to tarimweb/config.yaml in the user config directory.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to the config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, cfg config) error {
	logger := cfg.Log.logger(os.Stderr)

	apiOpts := services.APIOptions{
		BaseURL:   cfg.API.BaseURL,
		Headers:   cfg.API.Headers,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
	}
	qa := services.NewQA(apiOpts, cfg.Chat.TopK, logger)
	classifier := services.NewClassifier(apiOpts, cfg.Image.TopK, logger)

	m, err := handlers.NewMain(qa, classifier, services.NewMarkdown(), func() handlers.Store {
		return services.NewConversations()
	}, handlers.Options{
		Title:         cfg.UI.Title,
		Subtitle:      cfg.UI.Subtitle,
		Version:       version,
		SessionTTL:    cfg.Session.TTL,
		MaxSessions:   cfg.Session.Max,
		MaxImageBytes: cfg.Image.MaxSizeMB << 20,
	}, logger)
	if err != nil {
		return err
	}

	router, err := newRouter(m, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("api", cfg.API.BaseURL))
		serverErrors <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("forcing server close: %w", err)
			}
		}
	}
	return nil
}

func newRouter(m handlers.Main, cfg config) (http.Handler, error) {
	staticFS, err := fs.Sub(tarimweb.StaticFS, "static")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Get("/", m.HandleHome)
	r.Get("/healthz", m.HandleHealth)
	r.Post("/chat", m.HandleChats)
	r.Get("/sse/messages", m.HandleSSE)
	r.Post("/images", m.HandleImageSelect)
	r.Post("/images/analyze", m.HandleImageAnalyze)
	r.Post("/images/reset", m.HandleImageReset)

	return r, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"resume-matcher/internal/ai/gemini"
	"resume-matcher/internal/config"
	"resume-matcher/internal/extract"
	apphttp "resume-matcher/internal/http"
	"resume-matcher/internal/metrics"
	"resume-matcher/internal/scraper"
	"resume-matcher/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	logger := newLogger(cfg)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.close()

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsHandler = m.Handler()
	}

	provider, err := buildIdentityProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client, err := gemini.NewClient(ctx, cfg.AI.APIKey)
	if err != nil {
		return fmt.Errorf("setup gemini: %w", err)
	}
	model := gemini.ResolveModel(ctx, gemini.NewModelLister(client), cfg.AI.Model, logger)
	generator := gemini.NewGenerator(client, model, gemini.GeneratorOptions{
		MaxRetries: cfg.AI.MaxRetries,
		MaxElapsed: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		Logger:     logger,
	})
	assistant := gemini.NewAssistant(generator, logger)

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	demo := demoIdentity(cfg)
	ledger := service.NewQuotaLedger(st.users, st.analyses, nil)
	identities := service.NewIdentityResolver(service.IdentityResolverOptions{
		Users:    st.users,
		Ledger:   ledger,
		Provider: provider,
		Demo:     demo,
		Logger:   logger,
		Metrics:  m,
	})

	handler := apphttp.NewHandler(apphttp.HandlerOptions{
		Analysis: service.NewAnalysisService(service.AnalysisServiceOptions{
			Identities: identities,
			Ledger:     ledger,
			Assistant:  assistant,
			Scraper:    scraper.New(time.Duration(cfg.Scraper.TimeoutSeconds)*time.Second, cfg.Scraper.UserAgent),
			Logger:     logger,
			Metrics:    m,
		}),
		Users: service.NewUserService(service.UserServiceOptions{
			Identities:   identities,
			Ledger:       ledger,
			Users:        st.users,
			Analyses:     st.analyses,
			Demo:         demo,
			AdminKeyHash: cfg.Auth.AdminKeyHash,
			Logger:       logger,
		}),
		Resumes:     service.NewResumeService(identities, extract.New(), archive, logger),
		Metrics:     metricsHandler,
		FrontendURL: cfg.Server.FrontendURL,
		Logger:      logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}

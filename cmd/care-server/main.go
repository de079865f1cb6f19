package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/config"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/booking"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/episode"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/overrideaudit"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/slot"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/auth"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/calendar"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/db"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/events"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/middleware"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "care-server",
		Short: "Episode-pathway scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Post-commit event fan-out
	dispatcher := events.NewDispatcher(logger, 256)
	defer dispatcher.Close()

	// Repositories
	pathwayRepo := pathway.NewRepoPG(pool)
	episodeRepo := episode.NewRepoPG(pool)
	linkRepo := episode.NewLinkRepoPG(pool)
	stepRepo := episode.NewStepRepoPG(pool)
	intentRepo := episode.NewIntentRepoPG(pool)
	slotRepo := slot.NewRepoPG(pool)
	apptRepo := booking.NewRepoPG(pool)
	auditRepo := overrideaudit.NewRepoPG(pool)

	txRunner := db.PoolTxRunner(pool)

	// Services
	pathwaySvc := pathway.NewService(pathwayRepo)
	episodeSvc := episode.NewService(episodeRepo, linkRepo, stepRepo, intentRepo,
		pathwayRepo, txRunner, dispatcher, logger)
	slotSvc := slot.NewService(slotRepo)
	auditSvc := overrideaudit.NewService(auditRepo)
	bookingSvc := booking.NewService(apptRepo, slotRepo, episodeRepo, linkRepo,
		stepRepo, intentRepo, pathwayRepo, auditRepo, txRunner, dispatcher,
		booking.Config{
			StrictOneHardNext:        cfg.StrictOneHardNext,
			OverrideMinJustification: cfg.OverrideMinJustification,
		}, logger)

	// Collaborators behind the dispatcher. Failures are logged by the
	// dispatcher, never surfaced into booking results.
	var mailer notification.Mailer = notification.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	var pusher notification.Pusher = notification.NewHTTPPusher(cfg.PushGatewayURL)
	notification.NewSubscriber(mailer, pusher).Register(dispatcher)

	if cfg.CalendarBaseURL != "" {
		calendar.NewSubscriber(calendar.NewClient(cfg.CalendarBaseURL)).Register(dispatcher)
	}
	dispatcher.Subscribe(events.EpisodeReproject, events.SubscriberFunc(episodeSvc.HandleReprojectEvent))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() && cfg.JWTSecret == "" {
		e.Use(auth.DevMiddleware())
	} else {
		e.Use(auth.Middleware(cfg.JWTSecret))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	api := e.Group("/api")
	pathway.NewHandler(pathwaySvc).RegisterRoutes(api)
	episode.NewHandler(episodeSvc).RegisterRoutes(api)
	slot.NewHandler(slotSvc).RegisterRoutes(api)
	booking.NewHandler(bookingSvc).RegisterRoutes(api)
	overrideaudit.NewHandler(auditSvc).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("starting care-server")
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-scheduling/internal/app"
	"github.com/jwalitptl/care-scheduling/internal/config"
	"github.com/jwalitptl/care-scheduling/internal/handler/appointment"
	"github.com/jwalitptl/care-scheduling/internal/handler/health"
	"github.com/jwalitptl/care-scheduling/internal/handler/schedule"
	"github.com/jwalitptl/care-scheduling/internal/middleware"
	"github.com/jwalitptl/care-scheduling/internal/router"
	"github.com/jwalitptl/care-scheduling/internal/worker"
	"github.com/jwalitptl/care-scheduling/pkg/validator"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	withWorker := flag.Bool("with-worker", false, "run the reminder sweep in this process")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := app.NewLogger(cfg.Log)
	if cfg.JWT.Secret == "" {
		logger.Fatal(nil, "jwt.secret must be set")
	}

	if err := validator.RegisterGin(); err != nil {
		logger.Fatal(err, "failed to register validators")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialise application")
	}
	defer a.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT)
	r := router.NewRouter(
		authMiddleware,
		health.NewHandler(a.Registry, a.ReadinessChecks()),
		schedule.NewHandler(a.ScheduleService(), authMiddleware),
		appointment.NewHandler(a.AppointmentService(), authMiddleware),
		logger,
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RequestTimeout: cfg.Server.RequestTimeout,
			RateLimit:      cfg.RateLimit,
			CORSConfig:     middleware.DefaultCORSConfig(cfg.CORS.AllowedOrigins),
			MetricsPrefix:  app.MetricsNamespace + "_http",
			Registerer:     a.Registry,
		},
	)
	r.Setup()

	if *withWorker && cfg.Reminder.Enabled {
		w := worker.NewReminderWorker(a.ReminderService(), cfg.Reminder.Interval, cfg.Reminder.SweepTimeout, logger)
		go w.Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server forced to shutdown")
	}

	logger.Info("Server exited properly")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-scheduling/internal/app"
	"github.com/jwalitptl/care-scheduling/internal/config"
	"github.com/jwalitptl/care-scheduling/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	metricsPort := flag.Int("metrics-port", 9091, "port serving /metrics, 0 disables it")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := app.NewLogger(cfg.Log)

	if !cfg.Reminder.Enabled {
		logger.Info("Reminders are disabled, nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialise application")
	}
	defer a.Close()

	if *metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(err, "Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	w := worker.NewReminderWorker(a.ReminderService(), cfg.Reminder.Interval, cfg.Reminder.SweepTimeout, logger)
	w.Start(ctx)

	logger.Info("Worker exited properly")
}

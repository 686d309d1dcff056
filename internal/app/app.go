// Package app wires configuration, storage, messaging and services for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-scheduling/internal/config"
	"github.com/jwalitptl/care-scheduling/internal/email"
	"github.com/jwalitptl/care-scheduling/internal/handler/health"
	"github.com/jwalitptl/care-scheduling/internal/repository"
	"github.com/jwalitptl/care-scheduling/internal/repository/memory"
	"github.com/jwalitptl/care-scheduling/internal/repository/postgres"
	"github.com/jwalitptl/care-scheduling/internal/service/appointment"
	"github.com/jwalitptl/care-scheduling/internal/service/notification"
	"github.com/jwalitptl/care-scheduling/internal/service/reminder"
	"github.com/jwalitptl/care-scheduling/internal/service/schedule"
	"github.com/jwalitptl/care-scheduling/pkg/circuitbreaker"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/messaging"
	"github.com/jwalitptl/care-scheduling/pkg/messaging/amqp"
	"github.com/jwalitptl/care-scheduling/pkg/messaging/redis"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
)

const MetricsNamespace = "scheduling"

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB           *sqlx.DB
	Schedules    repository.ScheduleRepository
	Appointments repository.AppointmentRepository
	Tx           repository.Transactor

	Broker messaging.Broker
	Sink   notification.Sink
}

// NewLogger builds the application logger and installs it as zerolog's
// global logger, which the HTTP middleware writes to.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
	log.Logger = l.ZL
	return l
}

// New connects storage and the broker. Call Close when done.
func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		Config:   cfg,
		Log:      l,
		Registry: reg,
		Metrics:  metrics.NewMetrics(MetricsNamespace, reg),
	}

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	if err := a.openBroker(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.Database.Driver {
	case "memory":
		store := memory.NewStore()
		a.Schedules = store.Schedules()
		a.Appointments = store.Appointments()
		a.Tx = store
		a.Log.Warn("Using in-memory storage; data is lost on restart")
	default:
		db, err := postgres.NewDB(ctx, a.Config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		a.Schedules = postgres.NewScheduleRepository(db)
		a.Appointments = postgres.NewAppointmentRepository(db)
		a.Tx = postgres.NewTransactor(db, a.Config.Retry, a.Metrics, a.Log)
	}
	return nil
}

func (a *App) openBroker(ctx context.Context) error {
	var (
		broker messaging.Broker
		err    error
	)
	switch a.Config.Messaging.Driver {
	case "redis":
		broker, err = redis.NewRedisBroker(ctx, a.Config.Redis, &a.Log.ZL)
	case "amqp":
		broker, err = amqp.NewBroker(a.Config.AMQP, &a.Log.ZL)
	default:
		broker = messaging.NopBroker{}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s broker: %w", a.Config.Messaging.Driver, err)
	}

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             a.Config.Messaging.Driver,
		MaxRequests:      a.Config.Messaging.BreakerHalfOpen,
		Interval:         a.Config.Messaging.BreakerInterval,
		Timeout:          a.Config.Messaging.BreakerTimeout,
		FailureThreshold: a.Config.Messaging.BreakerFailures,
		OnStateChange: func(name, from, to string) {
			a.Log.Warn("Broker circuit breaker changed state", "broker", name, "from", from, "to", to)
		},
	})

	a.Broker = messaging.NewGuardedBroker(broker, cb, a.Metrics.ObservePublish)
	a.Sink = notification.NewService(a.Broker, a.Config.Messaging.PublishTimeout)
	return nil
}

func (a *App) ScheduleService() *schedule.Service {
	return schedule.NewService(a.Schedules, a.Tx, a.Sink, a.Metrics, a.Log, schedule.Config{
		Location:       a.Config.Location(),
		LockoutWindow:  a.Config.Scheduling.LockoutWindow,
		RecurringWeeks: a.Config.Scheduling.RecurringWeeks,
	})
}

func (a *App) AppointmentService() *appointment.Service {
	return appointment.NewService(a.Appointments, a.Schedules, a.Tx, a.Sink, a.Metrics, a.Log, appointment.Config{
		Location:       a.Config.Location(),
		ConflictWindow: a.Config.Scheduling.ConflictWindow,
	})
}

func (a *App) ReminderService() *reminder.Service {
	return reminder.NewService(a.Appointments, a.Sink, email.NewService(a.Config.SMTP, a.Log), a.Metrics, a.Log, reminder.Config{
		Location:    a.Config.Location(),
		EarlyWindow: a.Config.Reminder.EarlyWindow,
		LateWindow:  a.Config.Reminder.LateWindow,
	})
}

// ReadinessChecks lists the dependencies the API needs to serve traffic.
func (a *App) ReadinessChecks() map[string]health.Check {
	checks := map[string]health.Check{}
	if a.DB != nil {
		checks["database"] = a.DB.PingContext
	}
	return checks
}

func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Log.Error(err, "Failed to close broker")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Error(err, "Failed to close database")
		}
	}
}

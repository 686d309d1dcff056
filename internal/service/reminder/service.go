package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/care-scheduling/internal/email"
	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/repository"
	"github.com/jwalitptl/care-scheduling/internal/service/notification"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
)

const (
	DefaultEarlyWindow = 24 * time.Hour
	DefaultLateWindow  = 2 * time.Hour
)

type Config struct {
	Location *time.Location
	// EarlyWindow bounds the 24h reminder, LateWindow the 2h one.
	EarlyWindow time.Duration
	LateWindow  time.Duration
}

type Service struct {
	repo    repository.AppointmentRepository
	sink    notification.Sink
	mailer  email.Service
	metrics *metrics.Metrics
	log     *logger.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(repo repository.AppointmentRepository, sink notification.Sink, mailer email.Service, m *metrics.Metrics, log *logger.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.EarlyWindow == 0 {
		cfg.EarlyWindow = DefaultEarlyWindow
	}
	if cfg.LateWindow == 0 {
		cfg.LateWindow = DefaultLateWindow
	}
	return &Service{
		repo:    repo,
		sink:    sink,
		mailer:  mailer,
		metrics: m,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sweep claims and dispatches every reminder due at the current time. A
// reminder is claimed by a conditional update, so concurrent or repeated
// sweeps dispatch each one at most once.
func (s *Service) Sweep(ctx context.Context) (model.SweepResult, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.SweepDuration)
		defer timer.ObserveDuration()
	}

	now := s.now()
	windows := []struct {
		kind     model.ReminderKind
		from, to time.Time
	}{
		{kind: model.Reminder24h, from: now.Add(s.cfg.LateWindow), to: now.Add(s.cfg.EarlyWindow)},
		{kind: model.Reminder2h, from: now, to: now.Add(s.cfg.LateWindow)},
	}

	var result model.SweepResult
	for _, w := range windows {
		due, err := s.repo.FindDueReminders(ctx, w.from, w.to, w.kind)
		if err != nil {
			s.metrics.ObserveDatabase("find_due_reminders", "error")
			return result, fmt.Errorf("failed to find due %s reminders: %w", w.kind, err)
		}
		s.metrics.ObserveDatabase("find_due_reminders", "success")
		result.Due += len(due)

		for _, r := range due {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.dispatch(ctx, r, now, &result)
		}
	}

	if result.Due > 0 {
		s.log.Info("Reminder sweep finished",
			"due", result.Due, "claimed", result.Claimed, "sent", result.Sent, "failed", result.Failed)
	}
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, r *model.DueReminder, now time.Time, result *model.SweepResult) {
	apt := r.Appointment
	claimed, err := s.repo.MarkReminderSent(ctx, apt.ID, r.Kind, now)
	if err != nil {
		result.Failed++
		s.metrics.ObserveReminder(string(r.Kind), "failed")
		s.log.Error(err, "Failed to claim reminder", "appointment_id", apt.ID.String(), "kind", string(r.Kind))
		return
	}
	if !claimed {
		s.metrics.ObserveClaimLost()
		return
	}
	result.Claimed++

	payload := model.ReminderPayload{
		AppointmentID: apt.ID.String(),
		DoctorID:      apt.DoctorID.String(),
		PatientID:     apt.PatientID.String(),
		Kind:          r.Kind,
		Date:          apt.Date.String(),
		TimeSlot:      apt.TimeSlot.String(),
		StartsAt:      apt.StartsAt,
	}
	notification.Notify(ctx, s.sink, s.log, model.EventAppointmentReminder, payload, model.PatientRoom(apt.PatientID))

	if r.PatientEmail != nil && *r.PatientEmail != "" {
		subject, body := s.render(payload)
		if err := s.mailer.SendReminder(ctx, *r.PatientEmail, subject, body); err != nil {
			// the claim stands; a failed mail is not retried by later sweeps
			result.Failed++
			s.metrics.ObserveReminder(string(r.Kind), "failed")
			s.log.Error(err, "Failed to mail reminder", "appointment_id", apt.ID.String(), "kind", string(r.Kind))
			return
		}
	}

	result.Sent++
	s.metrics.ObserveReminder(string(r.Kind), "sent")
}

func (s *Service) render(p model.ReminderPayload) (subject, body string) {
	lead := "within the next day"
	if p.Kind == model.Reminder2h {
		lead = "in about two hours"
	}
	at := p.StartsAt.In(s.cfg.Location).Format("Monday 2 January 2006 at 15:04 MST")
	subject = "Appointment reminder"
	body = fmt.Sprintf("Your appointment is %s: %s (%s).\n\nReference: %s\n", lead, at, p.TimeSlot, p.AppointmentID)
	return subject, body
}

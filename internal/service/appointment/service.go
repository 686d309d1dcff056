package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/repository"
	"github.com/jwalitptl/care-scheduling/internal/service/notification"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

// DefaultConflictWindow keeps bookings of one doctor at least an hour apart.
const DefaultConflictWindow = time.Hour

type Config struct {
	Location       *time.Location
	ConflictWindow time.Duration
}

type Service struct {
	repo      repository.AppointmentRepository
	schedules repository.ScheduleRepository
	tx        repository.Transactor
	sink      notification.Sink
	metrics   *metrics.Metrics
	log       *logger.Logger
	cfg       Config
	now       func() time.Time
}

func NewService(repo repository.AppointmentRepository, schedules repository.ScheduleRepository, tx repository.Transactor, sink notification.Sink, m *metrics.Metrics, log *logger.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ConflictWindow == 0 {
		cfg.ConflictWindow = DefaultConflictWindow
	}
	return &Service{
		repo:      repo,
		schedules: schedules,
		tx:        tx,
		sink:      sink,
		metrics:   m,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateAppointment books a slot that is in the future, clear of the doctor's
// other bookings and covered by an available schedule entry.
func (s *Service) CreateAppointment(ctx context.Context, req model.CreateAppointmentRequest) (apt *model.Appointment, err error) {
	defer func() {
		s.metrics.ObserveBooking(bookingResult(err))
		s.logFailure(ctx, "create appointment", err)
	}()

	if req.PatientID == uuid.Nil {
		return nil, errors.Validation("patient_id is required", nil)
	}
	if req.DoctorID == uuid.Nil {
		return nil, errors.Validation("doctor_id is required", nil)
	}

	date, err := timeslot.ParseDate(req.Date)
	if err != nil {
		return nil, errors.Validation("invalid date format", err)
	}
	if date.Before(timeslot.DateOf(s.now().In(s.cfg.Location))) {
		return nil, errors.PastDate("appointment date must be in the future")
	}
	slot, err := parseSlot(req.TimeSlot)
	if err != nil {
		return nil, err
	}

	apt = &model.Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Status:    model.AppointmentStatusScheduled,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	s.place(apt, date, slot)
	if !apt.StartsAt.After(s.now()) {
		return nil, errors.PastDate("appointment date must be in the future")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		apt.ID = uuid.Nil
		if err := s.checkBookable(ctx, apt); err != nil {
			return err
		}
		return s.repo.Create(ctx, apt)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventAppointmentCreated, apt)
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logFailure(ctx, "list appointments", err)
		return nil, err
	}
	return appointments, nil
}

// UpdateAppointment edits a scheduled appointment. Moving it re-runs the
// future, conflict and coverage checks against its new time.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, req model.UpdateAppointmentRequest) (updated *model.Appointment, err error) {
	defer func() { s.logFailure(ctx, "update appointment", err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return errors.InvalidTransition("cannot update a " + string(current.Status) + " appointment")
		}

		next := *current
		date, slot := current.Date, current.TimeSlot
		if req.Date != nil {
			if date, err = timeslot.ParseDate(*req.Date); err != nil {
				return errors.Validation("invalid date format", err)
			}
		}
		if req.TimeSlot != nil {
			if slot, err = parseSlot(*req.TimeSlot); err != nil {
				return err
			}
		}
		if req.Reason != nil {
			next.Reason = req.Reason
		}
		if req.Notes != nil {
			next.Notes = req.Notes
		}

		if date != current.Date || !slot.Equal(current.TimeSlot) {
			s.place(&next, date, slot)
			if !next.StartsAt.After(s.now()) {
				return errors.PastDate("appointment date must be in the future")
			}
			// reminders already sent were for the old time
			next.Reminder24hSentAt = nil
			next.Reminder2hSentAt = nil
			if err := s.checkBookable(ctx, &next); err != nil {
				return err
			}
		}

		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventAppointmentUpdated, updated)
	return updated, nil
}

// CancelAppointment moves a scheduled appointment to cancelled and keeps the
// reason in its notes.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason *string) (*model.Appointment, error) {
	apt, err := s.transition(ctx, id, model.AppointmentStatusCancelled, reason)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.EventAppointmentCancelled, apt)
	return apt, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, notes *string) (*model.Appointment, error) {
	apt, err := s.transition(ctx, id, model.AppointmentStatusCompleted, notes)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.EventAppointmentCompleted, apt)
	return apt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, notes *string) (apt *model.Appointment, err error) {
	defer func() { s.logFailure(ctx, string(to)+" appointment", err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(to) {
			return transitionError(current.Status, to)
		}

		current.Status = to
		if notes != nil {
			current.Notes = notes
		}
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		apt = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return apt, nil
}

func transitionError(from, to model.AppointmentStatus) error {
	if from == to {
		return errors.InvalidTransition("appointment is already " + string(from))
	}
	verb := "cancel"
	if to == model.AppointmentStatusCompleted {
		verb = "complete"
	}
	return errors.InvalidTransition("cannot " + verb + " a " + string(from) + " appointment")
}

// DeleteAppointment soft-deletes; the row disappears from every later read.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.SoftDelete(ctx, id)
	})
	s.logFailure(ctx, "delete appointment", err)
	return err
}

// Availability lists the free parts of a doctor's available entries on date.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, rawDate string) (*model.Availability, error) {
	date, err := timeslot.ParseDate(rawDate)
	if err != nil {
		return nil, errors.Validation("invalid date format", err)
	}

	available := true
	entries, err := s.schedules.ListByDoctor(ctx, doctorID, model.ScheduleFilter{Date: &date, IsAvailable: &available})
	if err != nil {
		s.logFailure(ctx, "availability", err)
		return nil, err
	}
	booked, err := s.repo.List(ctx, model.AppointmentFilter{
		DoctorID:  doctorID,
		Status:    model.AppointmentStatusScheduled,
		StartDate: &date,
		EndDate:   &date,
	})
	if err != nil {
		s.logFailure(ctx, "availability", err)
		return nil, err
	}

	open := make([]timeslot.Slot, 0, len(entries))
	for _, e := range entries {
		open = append(open, e.TimeSlot)
	}
	busy := make([]timeslot.Slot, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, a.TimeSlot)
	}

	return &model.Availability{DoctorID: doctorID, Date: date, Free: timeslot.Free(open, busy)}, nil
}

// checkBookable runs the conflict check, then the coverage check.
func (s *Service) checkBookable(ctx context.Context, apt *model.Appointment) error {
	conflicts, err := s.repo.FindConflicts(ctx, model.ConflictQuery{
		DoctorID:  apt.DoctorID,
		Start:     apt.StartsAt,
		End:       apt.EndsAt,
		Window:    s.cfg.ConflictWindow,
		ExcludeID: apt.ID,
	})
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return errors.Conflict("doctor is not available at this time", nil)
	}

	available := true
	entries, err := s.schedules.ListByDoctor(ctx, apt.DoctorID, model.ScheduleFilter{Date: &apt.Date, IsAvailable: &available})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsAvailable && e.TimeSlot.Overlaps(apt.TimeSlot) {
			return nil
		}
	}
	return errors.Coverage("doctor is not available in schedule")
}

func (s *Service) place(apt *model.Appointment, date timeslot.Date, slot timeslot.Slot) {
	apt.Date = date
	apt.TimeSlot = slot
	apt.StartsAt, apt.EndsAt = slot.On(date, s.cfg.Location)
}

func (s *Service) notify(ctx context.Context, event string, apt *model.Appointment) {
	notification.Notify(ctx, s.sink, s.log, event, apt, model.DoctorRoom(apt.DoctorID), model.PatientRoom(apt.PatientID))
}

func (s *Service) logFailure(ctx context.Context, op string, err error) {
	switch errors.CodeOf(err) {
	case errors.ErrInternal, errors.ErrDataIntegrity:
		if err != nil {
			logger.FromContext(ctx, s.log).Error(err, op+" failed")
		}
	}
}

func parseSlot(raw string) (timeslot.Slot, error) {
	if raw == "" {
		return timeslot.Slot{}, errors.Validation("time slot is required", nil)
	}
	slot, err := timeslot.Parse(raw)
	if err != nil {
		return timeslot.Slot{}, errors.Validation(err.Error(), err)
	}
	return slot, nil
}

func bookingResult(err error) string {
	if err == nil {
		return "booked"
	}
	switch errors.CodeOf(err) {
	case errors.ErrConflict:
		return "conflict"
	case errors.ErrCoverage:
		return "uncovered"
	case errors.ErrValidation, errors.ErrPastDate:
		return "invalid"
	}
	return "error"
}

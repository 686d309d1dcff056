package schedule

import (
	"context"
	"fmt"
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

// Business rule defaults
const (
	DefaultLockoutWindow  = 24 * time.Hour
	DefaultRecurringWeeks = 12
)

type Config struct {
	// Location anchors naive dates and slots to instants.
	Location       *time.Location
	LockoutWindow  time.Duration
	RecurringWeeks int
}

type Service struct {
	repo    repository.ScheduleRepository
	tx      repository.Transactor
	sink    notification.Sink
	metrics *metrics.Metrics
	log     *logger.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(repo repository.ScheduleRepository, tx repository.Transactor, sink notification.Sink, m *metrics.Metrics, log *logger.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockoutWindow == 0 {
		cfg.LockoutWindow = DefaultLockoutWindow
	}
	if cfg.RecurringWeeks <= 0 {
		cfg.RecurringWeeks = DefaultRecurringWeeks
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		sink:    sink,
		metrics: m,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateSchedule stores one entry, or one per week for RecurringWeeks weeks
// when RepeatWeekly is set. A recurring batch is all or nothing.
func (s *Service) CreateSchedule(ctx context.Context, doctorID uuid.UUID, req model.CreateScheduleRequest) (entries []*model.ScheduleEntry, err error) {
	defer func() { s.observe(ctx, "create", err) }()

	date, slot, err := parseDateSlot(req.Date, req.TimeSlot)
	if err != nil {
		return nil, err
	}
	if start, _ := slot.On(date, s.cfg.Location); !start.After(s.now()) {
		return nil, errors.PastDate("schedule must start in the future")
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	weeks := 1
	if req.RepeatWeekly {
		weeks = s.cfg.RecurringWeeks
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entries = make([]*model.ScheduleEntry, 0, weeks)
		for week := 0; week < weeks; week++ {
			day := date.AddDays(7 * week)
			if err := s.checkConflicts(ctx, doctorID, day, slot, uuid.Nil, false); err != nil {
				return err
			}
			entry := &model.ScheduleEntry{
				DoctorID:    doctorID,
				Date:        day,
				TimeSlot:    slot,
				IsAvailable: available,
				Notes:       req.Notes,
			}
			if err := s.repo.Create(ctx, entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	return s.repo.Get(ctx, id)
}

// ListSchedules hides past dates unless IncludePast is set or a lower bound is given.
func (s *Service) ListSchedules(ctx context.Context, doctorID uuid.UUID, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	if !filter.IncludePast && filter.Date == nil && filter.StartDate == nil {
		today := timeslot.DateOf(s.now().In(s.cfg.Location))
		filter.StartDate = &today
	}
	entries, err := s.repo.ListByDoctor(ctx, doctorID, filter)
	if err != nil {
		s.logFailure(ctx, "list schedules", err)
		return nil, err
	}
	return entries, nil
}

// UpdateSchedule applies a partial update. Withdrawing or moving availability
// inside the lockout window is rejected without touching the entry.
func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, req model.UpdateScheduleRequest) (updated *model.ScheduleEntry, err error) {
	defer func() { s.observe(ctx, "update", err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		next := *current
		if req.Date != nil {
			date, err := parseDate(*req.Date)
			if err != nil {
				return err
			}
			next.Date = date
		}
		if req.TimeSlot != nil {
			slot, err := parseSlot(*req.TimeSlot)
			if err != nil {
				return err
			}
			next.TimeSlot = slot
		}
		if req.IsAvailable != nil {
			next.IsAvailable = *req.IsAvailable
		}
		if req.Notes != nil {
			next.Notes = req.Notes
		}

		moved := next.Date != current.Date || !next.TimeSlot.Equal(current.TimeSlot)
		if current.IsAvailable {
			switch {
			case !next.IsAvailable:
				if err := s.checkLockout(current.Date, current.TimeSlot, "cannot withdraw availability less than 24 hours before the scheduled time"); err != nil {
					return err
				}
			case moved:
				if err := s.checkLockout(current.Date, current.TimeSlot, "cannot move availability less than 24 hours before the scheduled time"); err != nil {
					return err
				}
			}
		}

		switch {
		case moved:
			if start, _ := next.TimeSlot.On(next.Date, s.cfg.Location); !start.After(s.now()) {
				return errors.PastDate("schedule must start in the future")
			}
			if err := s.checkConflicts(ctx, next.DoctorID, next.Date, next.TimeSlot, next.ID, false); err != nil {
				return err
			}
		case !current.IsAvailable && next.IsAvailable:
			if err := s.checkConflicts(ctx, next.DoctorID, next.Date, next.TimeSlot, next.ID, true); err != nil {
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
	return updated, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.observe(ctx, "delete", err) }()

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
}

// checkConflicts rejects slot when it overlaps another entry of the doctor's
// day. availableOnly restricts the scan to bookable entries.
func (s *Service) checkConflicts(ctx context.Context, doctorID uuid.UUID, date timeslot.Date, slot timeslot.Slot, excludeID uuid.UUID, availableOnly bool) error {
	entries, err := s.repo.ListByDoctor(ctx, doctorID, model.ScheduleFilter{Date: &date})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == excludeID || (availableOnly && !e.IsAvailable) {
			continue
		}
		if e.TimeSlot.Overlaps(slot) {
			return errors.Conflict(fmt.Sprintf("time slot %s on %s conflicts with existing schedule %s", slot, date, e.TimeSlot), nil)
		}
	}
	return nil
}

func (s *Service) checkLockout(date timeslot.Date, slot timeslot.Slot, msg string) error {
	start, _ := slot.On(date, s.cfg.Location)
	if start.Sub(s.now()) < s.cfg.LockoutWindow {
		return errors.Lockout(msg)
	}
	return nil
}

func (s *Service) observe(ctx context.Context, operation string, err error) {
	s.metrics.ObserveScheduleChange(operation, metrics.Result(err))
	if err != nil {
		s.logFailure(ctx, operation+" schedule", err)
	}
}

// logFailure logs storage and integrity failures; rule rejections are the
// caller's concern and stay quiet.
func (s *Service) logFailure(ctx context.Context, op string, err error) {
	switch errors.CodeOf(err) {
	case errors.ErrInternal, errors.ErrDataIntegrity:
		logger.FromContext(ctx, s.log).Error(err, op+" failed")
	}
}

func parseDate(raw string) (timeslot.Date, error) {
	date, err := timeslot.ParseDate(raw)
	if err != nil {
		return timeslot.Date{}, errors.Validation("invalid date format", err)
	}
	return date, nil
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

func parseDateSlot(rawDate, rawSlot string) (timeslot.Date, timeslot.Slot, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return timeslot.Date{}, timeslot.Slot{}, err
	}
	slot, err := parseSlot(rawSlot)
	if err != nil {
		return timeslot.Date{}, timeslot.Slot{}, err
	}
	return date, slot, nil
}

// Package memory keeps schedules and appointments in process. It backs the
// "memory" database driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/repository"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
)

type txKey struct{}

// Store holds both tables behind one lock.
type Store struct {
	mu           sync.RWMutex
	txMu         sync.Mutex
	schedules    map[uuid.UUID]model.ScheduleEntry
	appointments map[uuid.UUID]model.Appointment
	contacts     map[uuid.UUID]string
}

func NewStore() *Store {
	return &Store{
		schedules:    make(map[uuid.UUID]model.ScheduleEntry),
		appointments: make(map[uuid.UUID]model.Appointment),
		contacts:     make(map[uuid.UUID]string),
	}
}

func (s *Store) Schedules() repository.ScheduleRepository       { return &scheduleRepository{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepository{s} }

// SetPatientEmail records the address reminders are mailed to.
func (s *Store) SetPatientEmail(patientID uuid.UUID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[patientID] = email
}

// WithinTx serialises units of work and restores both tables when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	schedules := make(map[uuid.UUID]model.ScheduleEntry, len(s.schedules))
	for k, v := range s.schedules {
		schedules[k] = v
	}
	appointments := make(map[uuid.UUID]model.Appointment, len(s.appointments))
	for k, v := range s.appointments {
		appointments[k] = v
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.schedules = schedules
		s.appointments = appointments
		s.mu.Unlock()
		return err
	}
	return nil
}

type scheduleRepository struct {
	s *Store
}

func (r *scheduleRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.ScheduleEntry
	for _, e := range r.s.schedules {
		if e.DoctorID != doctorID {
			continue
		}
		if filter.Date != nil && e.Date != *filter.Date {
			continue
		}
		if filter.StartDate != nil && e.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && e.Date.After(*filter.EndDate) {
			continue
		}
		if filter.IsAvailable != nil && e.IsAvailable != *filter.IsAvailable {
			continue
		}
		entry := e
		out = append(out, &entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeSlot.Start < out[j].TimeSlot.Start
	})
	return out, nil
}

func (r *scheduleRepository) Get(_ context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.schedules[id]
	if !ok {
		return nil, errors.NotFound("schedule", nil)
	}
	return &e, nil
}

func (r *scheduleRepository) Create(_ context.Context, entry *model.ScheduleEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if _, exists := r.s.schedules[entry.ID]; exists {
		return errors.Conflict(fmt.Sprintf("schedule %s already exists", entry.ID), nil)
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	r.s.schedules[entry.ID] = *entry
	return nil
}

func (r *scheduleRepository) Update(_ context.Context, entry *model.ScheduleEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.schedules[entry.ID]; !ok {
		return errors.NotFound("schedule", nil)
	}
	entry.UpdatedAt = time.Now().UTC()
	r.s.schedules[entry.ID] = *entry
	return nil
}

func (r *scheduleRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.schedules[id]; !ok {
		return errors.NotFound("schedule", nil)
	}
	delete(r.s.schedules, id)
	return nil
}

type appointmentRepository struct {
	s *Store
}

func (r *appointmentRepository) Create(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, exists := r.s.appointments[a.ID]; exists {
		return errors.Conflict(fmt.Sprintf("appointment %s already exists", a.ID), nil)
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.s.appointments[a.ID] = *a
	return nil
}

func (r *appointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appointments[id]
	if !ok || a.DeletedAt != nil {
		return nil, errors.NotFound("appointment", nil)
	}
	return &a, nil
}

func (r *appointmentRepository) Update(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.appointments[a.ID]
	if !ok || current.DeletedAt != nil {
		return errors.NotFound("appointment", nil)
	}
	a.UpdatedAt = time.Now().UTC()
	// Reminder stamps belong to the sweep; they survive unless the start moves.
	if a.StartsAt.Equal(current.StartsAt) {
		a.Reminder24hSentAt = current.Reminder24hSentAt
		a.Reminder2hSentAt = current.Reminder2hSentAt
	} else {
		a.Reminder24hSentAt = nil
		a.Reminder2hSentAt = nil
	}
	r.s.appointments[a.ID] = *a
	return nil
}

func (r *appointmentRepository) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok || a.DeletedAt != nil {
		return errors.NotFound("appointment", nil)
	}
	now := time.Now().UTC()
	a.DeletedAt = &now
	a.UpdatedAt = now
	r.s.appointments[id] = a
	return nil
}

func (r *appointmentRepository) List(_ context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Appointment
	for _, a := range r.s.appointments {
		if a.DeletedAt != nil {
			continue
		}
		if filter.PatientID != uuid.Nil && a.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != uuid.Nil && a.DoctorID != filter.DoctorID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.StartDate != nil && a.Date.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && a.Date.After(*filter.EndDate) {
			continue
		}
		appt := a
		out = append(out, &appt)
	}
	sortByStart(out)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *appointmentRepository) FindConflicts(_ context.Context, q model.ConflictQuery) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*model.Appointment
	for _, a := range r.s.appointments {
		appt := a
		if q.Matches(&appt) {
			out = append(out, &appt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *appointmentRepository) FindDueReminders(_ context.Context, from, to time.Time, kind model.ReminderKind) ([]*model.DueReminder, error) {
	if _, err := model.ParseReminderKind(string(kind)); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var appts []*model.Appointment
	for _, a := range r.s.appointments {
		if a.Status != model.AppointmentStatusScheduled || a.DeletedAt != nil {
			continue
		}
		if sentAt(&a, kind) != nil {
			continue
		}
		if !a.StartsAt.After(from) || a.StartsAt.After(to) {
			continue
		}
		appt := a
		appts = append(appts, &appt)
	}
	sortByStart(appts)

	due := make([]*model.DueReminder, 0, len(appts))
	for _, a := range appts {
		d := &model.DueReminder{Appointment: a, Kind: kind}
		if email, ok := r.s.contacts[a.PatientID]; ok {
			d.PatientEmail = &email
		}
		due = append(due, d)
	}
	return due, nil
}

func (r *appointmentRepository) MarkReminderSent(_ context.Context, id uuid.UUID, kind model.ReminderKind, at time.Time) (bool, error) {
	if _, err := model.ParseReminderKind(string(kind)); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok || a.DeletedAt != nil || a.Status != model.AppointmentStatusScheduled || sentAt(&a, kind) != nil {
		return false, nil
	}
	stamp := at
	if kind == model.Reminder24h {
		a.Reminder24hSentAt = &stamp
	} else {
		a.Reminder2hSentAt = &stamp
	}
	r.s.appointments[id] = a
	return true, nil
}

func sentAt(a *model.Appointment, kind model.ReminderKind) *time.Time {
	if kind == model.Reminder24h {
		return a.Reminder24hSentAt
	}
	return a.Reminder2hSentAt
}

func sortByStart(list []*model.Appointment) {
	sort.Slice(list, func(i, j int) bool { return list[i].StartsAt.Before(list[j].StartsAt) })
}

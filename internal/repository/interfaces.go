package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/model"
)

// All repository interfaces in one file. Get, Update and Delete return a
// pkg/errors NotFound error when the row does not exist.
type (
	ScheduleRepository interface {
		ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error)
		Get(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error)
		Create(ctx context.Context, entry *model.ScheduleEntry) error
		Update(ctx context.Context, entry *model.ScheduleEntry) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// AppointmentRepository never returns soft-deleted rows.
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		SoftDelete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error)
		FindConflicts(ctx context.Context, query model.ConflictQuery) ([]*model.Appointment, error)
		// FindDueReminders returns scheduled appointments starting in (from, to]
		// whose reminder of kind has not been marked sent.
		FindDueReminders(ctx context.Context, from, to time.Time, kind model.ReminderKind) ([]*model.DueReminder, error)
		// MarkReminderSent is a conditional update; it reports false when the
		// reminder was already marked.
		MarkReminderSent(ctx context.Context, id uuid.UUID, kind model.ReminderKind, at time.Time) (bool, error)
	}

	// Transactor runs fn as one unit of work. Repositories called with the
	// ctx passed to fn join the transaction.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

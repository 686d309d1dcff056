package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

const appointmentColumns = `a.id, a.patient_id, a.doctor_id, a.date, a.time_slot, a.starts_at, a.ends_at,
	a.status, a.reason, a.notes, a.reminder_24h_sent_at, a.reminder_2h_sent_at,
	a.deleted_at, a.created_at, a.updated_at`

type appointmentRow struct {
	ID                uuid.UUID     `db:"id"`
	PatientID         uuid.UUID     `db:"patient_id"`
	DoctorID          uuid.UUID     `db:"doctor_id"`
	Date              timeslot.Date `db:"date"`
	TimeSlot          string        `db:"time_slot"`
	StartsAt          time.Time     `db:"starts_at"`
	EndsAt            time.Time     `db:"ends_at"`
	Status            string        `db:"status"`
	Reason            *string       `db:"reason"`
	Notes             *string       `db:"notes"`
	Reminder24hSentAt *time.Time    `db:"reminder_24h_sent_at"`
	Reminder2hSentAt  *time.Time    `db:"reminder_2h_sent_at"`
	DeletedAt         *time.Time    `db:"deleted_at"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

type dueReminderRow struct {
	appointmentRow
	Email *string `db:"email"`
}

func (r appointmentRow) toModel() (*model.Appointment, error) {
	slot, err := timeslot.ParseStored(r.TimeSlot)
	if err != nil {
		return nil, errors.DataIntegrity(fmt.Sprintf("appointment %s has a malformed time slot", r.ID), err)
	}
	status := model.AppointmentStatus(r.Status)
	if !status.Valid() {
		return nil, errors.DataIntegrity(fmt.Sprintf("appointment %s has unknown status %q", r.ID, r.Status), nil)
	}
	return &model.Appointment{
		Base:              model.Base{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		PatientID:         r.PatientID,
		DoctorID:          r.DoctorID,
		Date:              r.Date,
		TimeSlot:          slot,
		StartsAt:          r.StartsAt,
		EndsAt:            r.EndsAt,
		Status:            status,
		Reason:            r.Reason,
		Notes:             r.Notes,
		Reminder24hSentAt: r.Reminder24hSentAt,
		Reminder2hSentAt:  r.Reminder2hSentAt,
		DeletedAt:         r.DeletedAt,
	}, nil
}

func toAppointments(rows []appointmentRow) ([]*model.Appointment, error) {
	out := make([]*model.Appointment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// reminderColumn whitelists the column written for each reminder kind.
func reminderColumn(kind model.ReminderKind) (string, error) {
	switch kind {
	case model.Reminder24h:
		return "reminder_24h_sent_at", nil
	case model.Reminder2h:
		return "reminder_2h_sent_at", nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", kind)
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, date, time_slot, starts_at, ends_at,
			status, reason, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	now := time.Now().UTC()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Date,
		appointment.TimeSlot.String(),
		appointment.StartsAt,
		appointment.EndsAt,
		appointment.Status,
		appointment.Reason,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "failed to create appointment")
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.id = $1 AND a.deleted_at IS NULL`

	var row appointmentRow
	if err := sqlx.GetContext(ctx, r.conn(ctx), &row, query, id); err != nil {
		return nil, notFoundOr(err, "appointment", "failed to get appointment")
	}
	return row.toModel()
}

// Update leaves reminder stamps to the sweep, except that moving the start
// clears them so the new time is reminded again.
func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET date = $1, time_slot = $2, starts_at = $3, ends_at = $4,
			status = $5, reason = $6, notes = $7, updated_at = $8,
			reminder_24h_sent_at = CASE WHEN starts_at = $3 THEN reminder_24h_sent_at END,
			reminder_2h_sent_at = CASE WHEN starts_at = $3 THEN reminder_2h_sent_at END
		WHERE id = $9 AND deleted_at IS NULL
	`
	appointment.UpdatedAt = time.Now().UTC()

	result, err := r.conn(ctx).ExecContext(ctx, query,
		appointment.Date,
		appointment.TimeSlot.String(),
		appointment.StartsAt,
		appointment.EndsAt,
		appointment.Status,
		appointment.Reason,
		appointment.Notes,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return mapError(err, "failed to update appointment")
	}
	return expectOne(result, "appointment")
}

func (r *appointmentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`

	result, err := r.conn(ctx).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return expectOne(result, "appointment")
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	q := newBuilder(`SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.deleted_at IS NULL`)
	if filter.PatientID != uuid.Nil {
		q.where("a.patient_id = ?", filter.PatientID)
	}
	if filter.DoctorID != uuid.Nil {
		q.where("a.doctor_id = ?", filter.DoctorID)
	}
	if filter.Status != "" {
		q.where("a.status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		q.where("a.date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q.where("a.date <= ?", *filter.EndDate)
	}
	q.raw(" ORDER BY a.starts_at ASC")
	q.limit(filter.Limit, "LIMIT")
	q.limit(filter.Offset, "OFFSET")

	var rows []appointmentRow
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &rows, q.String(), q.args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return toAppointments(rows)
}

// FindConflicts matches a start strictly inside the window, or any overlap of
// [starts_at, ends_at) with the requested interval.
func (r *appointmentRepository) FindConflicts(ctx context.Context, cq model.ConflictQuery) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		WHERE a.doctor_id = $1
			AND a.status = 'scheduled'
			AND a.deleted_at IS NULL
			AND a.id <> $2
			AND (
				(a.starts_at > $3 AND a.starts_at < $4)
				OR (a.starts_at < $6 AND a.ends_at > $5)
			)
		ORDER BY a.starts_at ASC
	`
	var rows []appointmentRow
	err := sqlx.SelectContext(ctx, r.conn(ctx), &rows, query,
		cq.DoctorID,
		cq.ExcludeID,
		cq.Start.Add(-cq.Window),
		cq.Start.Add(cq.Window),
		cq.Start,
		cq.End,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicting appointments: %w", err)
	}
	return toAppointments(rows)
}

func (r *appointmentRepository) FindDueReminders(ctx context.Context, from, to time.Time, kind model.ReminderKind) ([]*model.DueReminder, error) {
	column, err := reminderColumn(kind)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + appointmentColumns + `, pc.email
		FROM appointments a
		LEFT JOIN patient_contacts pc ON pc.patient_id = a.patient_id
		WHERE a.status = 'scheduled'
			AND a.deleted_at IS NULL
			AND a.` + column + ` IS NULL
			AND a.starts_at > $1
			AND a.starts_at <= $2
		ORDER BY a.starts_at ASC
	`
	var rows []dueReminderRow
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to find due reminders: %w", err)
	}

	due := make([]*model.DueReminder, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		due = append(due, &model.DueReminder{Appointment: a, Kind: kind, PatientEmail: row.Email})
	}
	return due, nil
}

// MarkReminderSent claims the reminder with a conditional update; only one
// caller ever sees true for a given appointment and kind.
func (r *appointmentRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, kind model.ReminderKind, at time.Time) (bool, error) {
	column, err := reminderColumn(kind)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE appointments
		SET ` + column + ` = $1
		WHERE id = $2
			AND ` + column + ` IS NULL
			AND status = 'scheduled'
			AND deleted_at IS NULL
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

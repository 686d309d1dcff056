package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

const scheduleColumns = `id, doctor_id, date, start_time::text AS start_time, end_time::text AS end_time,
	time_slot, is_available, notes, created_at, updated_at`

// scheduleRow carries both stored slot shapes until toModel picks one.
type scheduleRow struct {
	ID          uuid.UUID      `db:"id"`
	DoctorID    uuid.UUID      `db:"doctor_id"`
	Date        timeslot.Date  `db:"date"`
	StartTime   sql.NullString `db:"start_time"`
	EndTime     sql.NullString `db:"end_time"`
	TimeSlot    sql.NullString `db:"time_slot"`
	IsAvailable bool           `db:"is_available"`
	Notes       *string        `db:"notes"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r scheduleRow) slot() (timeslot.Slot, error) {
	if r.StartTime.Valid && r.EndTime.Valid {
		return timeslot.ParseStored(r.StartTime.String + "-" + r.EndTime.String)
	}
	if r.TimeSlot.Valid {
		return timeslot.ParseStored(r.TimeSlot.String)
	}
	return timeslot.Slot{}, timeslot.ErrMalformed
}

func (r scheduleRow) toModel() (*model.ScheduleEntry, error) {
	slot, err := r.slot()
	if err != nil {
		return nil, errors.DataIntegrity(fmt.Sprintf("schedule %s has a malformed time slot", r.ID), err)
	}
	return &model.ScheduleEntry{
		Base:        model.Base{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		DoctorID:    r.DoctorID,
		Date:        r.Date,
		TimeSlot:    slot,
		IsAvailable: r.IsAvailable,
		Notes:       r.Notes,
	}, nil
}

func (r *scheduleRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	q := newBuilder(`SELECT `+scheduleColumns+` FROM schedules WHERE doctor_id = $1`, doctorID)
	if filter.Date != nil {
		q.where("date = ?", *filter.Date)
	}
	if filter.StartDate != nil {
		q.where("date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q.where("date <= ?", *filter.EndDate)
	}
	if filter.IsAvailable != nil {
		q.where("is_available = ?", *filter.IsAvailable)
	}
	q.raw(" ORDER BY date ASC, COALESCE(start_time::text, time_slot) ASC")

	var rows []scheduleRow
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &rows, q.String(), q.args...); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	entries := make([]*model.ScheduleEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *scheduleRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	var row scheduleRow
	err := sqlx.GetContext(ctx, r.conn(ctx), &row, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	if err != nil {
		return nil, notFoundOr(err, "schedule", "failed to get schedule")
	}
	return row.toModel()
}

func (r *scheduleRepository) Create(ctx context.Context, entry *model.ScheduleEntry) error {
	query := `
		INSERT INTO schedules (
			id, doctor_id, date, start_time, end_time, time_slot,
			is_available, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.DoctorID,
		entry.Date,
		entry.TimeSlot.Start.String(),
		entry.TimeSlot.End.String(),
		entry.TimeSlot.String(),
		entry.IsAvailable,
		entry.Notes,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "failed to create schedule")
	}
	return nil
}

// Update rewrites both slot shapes so legacy rows are normalised on first write.
func (r *scheduleRepository) Update(ctx context.Context, entry *model.ScheduleEntry) error {
	query := `
		UPDATE schedules
		SET date = $1, start_time = $2, end_time = $3, time_slot = $4,
			is_available = $5, notes = $6, updated_at = $7
		WHERE id = $8
	`
	entry.UpdatedAt = time.Now().UTC()

	result, err := r.conn(ctx).ExecContext(ctx, query,
		entry.Date,
		entry.TimeSlot.Start.String(),
		entry.TimeSlot.End.String(),
		entry.TimeSlot.String(),
		entry.IsAvailable,
		entry.Notes,
		entry.UpdatedAt,
		entry.ID,
	)
	if err != nil {
		return mapError(err, "failed to update schedule")
	}
	return expectOne(result, "schedule")
}

func (r *scheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return expectOne(result, "schedule")
}

func expectOne(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NotFound(resource, nil)
	}
	return nil
}

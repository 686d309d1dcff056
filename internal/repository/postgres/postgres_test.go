package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-scheduling/internal/model"
	apperrors "github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
	"github.com/jwalitptl/care-scheduling/pkg/retry"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var scheduleCols = []string{"id", "doctor_id", "date", "start_time", "end_time", "time_slot", "is_available", "notes", "created_at", "updated_at"}

func TestScheduleGetNormalisesStoredShapes(t *testing.T) {
	db, mock := newMock(t)
	repo := NewScheduleRepository(db)
	ctx := context.Background()
	doctor := uuid.New()
	day := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	modern := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM schedules WHERE id = \$1`).
		WithArgs(modern.String()).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow(modern.String(), doctor.String(), day, "10:00:00", "12:00:00", nil, true, nil, now, now))

	legacy := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM schedules WHERE id = \$1`).
		WithArgs(legacy.String()).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow(legacy.String(), doctor.String(), day, nil, nil, "09:00:00-09:30:00", false, "surgery", now, now))

	entry, err := repo.Get(ctx, modern)
	require.NoError(t, err)
	assert.Equal(t, "10:00-12:00", entry.TimeSlot.String())
	assert.Equal(t, "2025-12-15", entry.Date.String())
	assert.True(t, entry.IsAvailable)

	entry, err = repo.Get(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, "09:00-09:30", entry.TimeSlot.String())
	require.NotNil(t, entry.Notes)
	assert.Equal(t, "surgery", *entry.Notes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleListSurfacesMalformedSlot(t *testing.T) {
	db, mock := newMock(t)
	repo := NewScheduleRepository(db)
	doctor := uuid.New()
	day := timeslot.MustParseDate("2025-12-15")
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM schedules WHERE doctor_id = \$1 AND date = \$2 ORDER BY`).
		WithArgs(doctor.String(), "2025-12-15").
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow(uuid.NewString(), doctor.String(), day.In(time.UTC), nil, nil, "10:00", true, nil, now, now))

	_, err := repo.ListByDoctor(context.Background(), doctor, model.ScheduleFilter{Date: &day})
	assert.True(t, apperrors.Is(err, apperrors.DataIntegrityError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM schedules`).WillReturnRows(sqlmock.NewRows(scheduleCols))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.NotFoundError))
}

func TestScheduleCreateMapsExclusionViolation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewScheduleRepository(db)

	mock.ExpectExec(`INSERT INTO schedules`).
		WillReturnError(&pq.Error{Code: "23P01", Constraint: "schedules_no_overlapping_availability"})

	err := repo.Create(context.Background(), &model.ScheduleEntry{
		DoctorID:    uuid.New(),
		Date:        timeslot.MustParseDate("2025-12-15"),
		TimeSlot:    timeslot.MustParse("10:00-11:00"),
		IsAvailable: true,
	})
	assert.True(t, apperrors.Is(err, apperrors.ConflictError))
}

func TestMarkReminderSentIsConditional(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec(`UPDATE appointments SET reminder_24h_sent_at = \$1 WHERE id = \$2 AND reminder_24h_sent_at IS NULL`).
		WithArgs(at, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE appointments SET reminder_24h_sent_at = \$1 WHERE id = \$2 AND reminder_24h_sent_at IS NULL`).
		WithArgs(at, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkReminderSent(context.Background(), id, model.Reminder24h, at)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkReminderSent(context.Background(), id, model.Reminder24h, at)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = repo.MarkReminderSent(context.Background(), id, model.ReminderKind("1w"), at)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentUpdateResetsRemindersWhenStartMoves(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	start := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	apt := &model.Appointment{
		Base:      model.Base{ID: uuid.New()},
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      timeslot.MustParseDate("2025-12-15"),
		TimeSlot:  timeslot.MustParse("10:00-10:30"),
		StartsAt:  start,
		EndsAt:    start.Add(30 * time.Minute),
		Status:    model.AppointmentStatusScheduled,
	}

	mock.ExpectExec(`UPDATE appointments SET .+ reminder_24h_sent_at = CASE WHEN starts_at = \$3 THEN reminder_24h_sent_at END, `+
		`reminder_2h_sent_at = CASE WHEN starts_at = \$3 THEN reminder_2h_sent_at END WHERE id = \$9 AND deleted_at IS NULL`).
		WithArgs("2025-12-15", "10:00-10:30", start, start.Add(30*time.Minute), sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg(), apt.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), apt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindConflictsWindowArguments(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)
	doctor := uuid.New()
	start := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM appointments a WHERE a.doctor_id = \$1 AND a.status = 'scheduled' AND a.deleted_at IS NULL`).
		WithArgs(doctor.String(), uuid.Nil.String(), start.Add(-time.Hour), start.Add(time.Hour), start, start.Add(time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	found, err := repo.FindConflicts(context.Background(), model.ConflictQuery{
		DoctorID: doctor,
		Start:    start,
		End:      start.Add(time.Hour),
		Window:   time.Hour,
	})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorRetriesSerializationFailure(t *testing.T) {
	db, mock := newMock(t)
	tx := NewTransactor(db, retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, metrics.New("test"), logger.Nop())

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorDoesNotRetryBusinessErrors(t *testing.T) {
	db, mock := newMock(t)
	tx := NewTransactor(db, retry.DefaultConfig(), nil, logger.Nop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		return apperrors.Coverage("doctor is not available in schedule")
	})
	assert.True(t, apperrors.Is(err, apperrors.CoverageError))
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&pq.Error{Code: "40P01"}))
	assert.True(t, isTransient(&pq.Error{Code: "08006"}))
	assert.False(t, isTransient(&pq.Error{Code: "23P01"}))
	assert.False(t, isTransient(errors.New("boom")))
}

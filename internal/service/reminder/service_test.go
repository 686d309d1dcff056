package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/repository"
	"github.com/jwalitptl/care-scheduling/internal/repository/memory"
	"github.com/jwalitptl/care-scheduling/internal/service/notification"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendReminder(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type fixture struct {
	store  *memory.Store
	sink   *notification.Recorder
	mailer *mockMailer
	svc    *Service
	now    time.Time
}

func newFixture(t *testing.T, repo repository.AppointmentRepository, store *memory.Store) *fixture {
	t.Helper()
	f := &fixture{
		store:  store,
		sink:   &notification.Recorder{},
		mailer: &mockMailer{},
		now:    time.Date(2025, 12, 10, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(repo, f.sink, f.mailer, metrics.New("test"), logger.Nop(), Config{}).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) appointment(t *testing.T, patient uuid.UUID, in time.Duration, status model.AppointmentStatus) *model.Appointment {
	t.Helper()
	start := f.now.Add(in)
	slot, err := timeslot.New(timeslot.NewClock(start.Hour(), start.Minute()), timeslot.NewClock(start.Hour(), start.Minute()+30))
	require.NoError(t, err)

	apt := &model.Appointment{
		PatientID: patient,
		DoctorID:  uuid.New(),
		Date:      timeslot.DateOf(start),
		TimeSlot:  slot,
		StartsAt:  start,
		EndsAt:    start.Add(30 * time.Minute),
		Status:    status,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), apt))
	return apt
}

func TestSweepIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store.Appointments(), store)

	mailed := uuid.New()
	store.SetPatientEmail(mailed, "pat@example.com")

	f.appointment(t, mailed, 3*time.Hour, model.AppointmentStatusScheduled)
	f.appointment(t, uuid.New(), time.Hour, model.AppointmentStatusScheduled)
	f.appointment(t, uuid.New(), 30*time.Hour, model.AppointmentStatusScheduled)
	f.appointment(t, uuid.New(), 5*time.Hour, model.AppointmentStatusCancelled)

	f.mailer.On("SendReminder", mock.Anything, "pat@example.com", "Appointment reminder", mock.AnythingOfType("string")).
		Return(nil).Once()

	first, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{Due: 2, Claimed: 2, Sent: 2}, first)

	second, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{}, second)

	f.mailer.AssertExpectations(t)

	var reminders int
	for _, e := range f.sink.Events() {
		if e.Event == model.EventAppointmentReminder {
			reminders++
		}
	}
	assert.Equal(t, 2, reminders)
}

func TestSweepSendsLateReminderAfterEarlyOne(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store.Appointments(), store)
	apt := f.appointment(t, uuid.New(), 3*time.Hour, model.AppointmentStatusScheduled)

	result, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	f.now = f.now.Add(90 * time.Minute)
	result, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{Due: 1, Claimed: 1, Sent: 1}, result)

	events := f.sink.Events()
	require.Len(t, events, 2)
	payload, ok := events[1].Payload.(model.ReminderPayload)
	require.True(t, ok)
	assert.Equal(t, model.Reminder2h, payload.Kind)
	assert.Equal(t, apt.ID.String(), payload.AppointmentID)
	assert.Equal(t, model.PatientRoom(apt.PatientID), events[1].Room)
}

type lostClaims struct {
	repository.AppointmentRepository
}

func (lostClaims) MarkReminderSent(context.Context, uuid.UUID, model.ReminderKind, time.Time) (bool, error) {
	return false, nil
}

func TestSweepSkipsLostClaims(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, lostClaims{store.Appointments()}, store)
	f.appointment(t, uuid.New(), time.Hour, model.AppointmentStatusScheduled)

	result, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{Due: 1}, result)
	assert.Empty(t, f.sink.Events())
}

func TestSweepMailFailureKeepsClaim(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store.Appointments(), store)

	patient := uuid.New()
	store.SetPatientEmail(patient, "pat@example.com")
	f.appointment(t, patient, time.Hour, model.AppointmentStatusScheduled)

	f.mailer.On("SendReminder", mock.Anything, "pat@example.com", mock.Anything, mock.Anything).
		Return(errors.New("smtp unavailable")).Once()

	result, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{Due: 1, Claimed: 1, Failed: 1}, result)

	result, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	f.mailer.AssertExpectations(t)
}

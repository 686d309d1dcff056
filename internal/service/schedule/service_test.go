package schedule

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/repository/memory"
	"github.com/jwalitptl/care-scheduling/internal/service/notification"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

type fixture struct {
	store  *memory.Store
	svc    *Service
	sink   *notification.Recorder
	doctor uuid.UUID
	now    time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		sink:   &notification.Recorder{},
		doctor: uuid.New(),
		now:    now,
	}
	f.svc = NewService(f.store.Schedules(), f.store, f.sink, metrics.New("test"), logger.Nop(), Config{Location: time.UTC}).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) create(t *testing.T, date, slot string, available bool) *model.ScheduleEntry {
	t.Helper()
	entries, err := f.svc.CreateSchedule(context.Background(), f.doctor, model.CreateScheduleRequest{
		Date:        date,
		TimeSlot:    slot,
		IsAvailable: &available,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func (f *fixture) day(t *testing.T, date string) []*model.ScheduleEntry {
	t.Helper()
	d := timeslot.MustParseDate(date)
	entries, err := f.store.Schedules().ListByDoctor(context.Background(), f.doctor, model.ScheduleFilter{Date: &d})
	require.NoError(t, err)
	return entries
}

func slots(entries []*model.ScheduleEntry, available bool) []string {
	var out []string
	for _, e := range entries {
		if e.IsAvailable == available {
			out = append(out, e.TimeSlot.String())
		}
	}
	sort.Strings(out)
	return out
}

func assertNoAvailableOverlap(t *testing.T, entries []*model.ScheduleEntry) {
	t.Helper()
	for i, a := range entries {
		for _, b := range entries[i+1:] {
			if a.IsAvailable && b.IsAvailable && a.Date == b.Date {
				assert.False(t, a.TimeSlot.Overlaps(b.TimeSlot), "available %s overlaps %s", a.TimeSlot, b.TimeSlot)
			}
		}
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

var dec10 = time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)

func TestCreateScheduleRecurringWeekly(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	entries, err := f.svc.CreateSchedule(context.Background(), f.doctor, model.CreateScheduleRequest{
		Date:         "2025-01-06",
		TimeSlot:     "09:00-12:00",
		RepeatWeekly: true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 12)

	assert.Equal(t, "2025-01-06", entries[0].Date.String())
	assert.Equal(t, time.Monday, entries[0].Date.Weekday())
	assert.Equal(t, "2025-01-13", entries[1].Date.String())
	assert.Equal(t, "2025-03-24", entries[11].Date.String())
	for i, e := range entries {
		assert.Equal(t, "09:00-12:00", e.TimeSlot.String())
		assert.True(t, e.IsAvailable)
		if i > 0 {
			gap := e.Date.In(time.UTC).Sub(entries[i-1].Date.In(time.UTC))
			assert.Equal(t, 7*24*time.Hour, gap)
		}
	}
}

func TestCreateScheduleRecurringIsAtomic(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	f.create(t, "2025-02-03", "11:00-13:00", true)

	_, err := f.svc.CreateSchedule(context.Background(), f.doctor, model.CreateScheduleRequest{
		Date:         "2025-01-06",
		TimeSlot:     "09:00-12:00",
		RepeatWeekly: true,
	})
	require.True(t, errors.Is(err, errors.ConflictError), "got %v", err)
	assert.Contains(t, err.Error(), "2025-02-03")

	all, err := f.svc.ListSchedules(context.Background(), f.doctor, model.ScheduleFilter{IncludePast: true})
	require.NoError(t, err)
	assert.Len(t, all, 1, "no week of the failed batch is kept")
}

func TestCreateScheduleConflicts(t *testing.T) {
	f := newFixture(t, dec10)
	f.create(t, "2025-12-15", "10:00-11:00", false)

	_, err := f.svc.CreateSchedule(context.Background(), f.doctor, model.CreateScheduleRequest{Date: "2025-12-15", TimeSlot: "10:30-11:30"})
	assert.True(t, errors.Is(err, errors.ConflictError), "blocked entries conflict too")

	f.create(t, "2025-12-15", "11:00-12:00", true)
	f.create(t, "2025-12-16", "10:00-11:00", true)

	_, err = f.svc.CreateSchedule(context.Background(), uuid.New(), model.CreateScheduleRequest{Date: "2025-12-15", TimeSlot: "10:00-11:00"})
	assert.NoError(t, err, "other doctors are independent")
}

func TestCreateScheduleValidation(t *testing.T) {
	f := newFixture(t, dec10)

	tests := []struct {
		name string
		req  model.CreateScheduleRequest
		want *errors.AppError
	}{
		{"single digit hour", model.CreateScheduleRequest{Date: "2025-12-15", TimeSlot: "9:00-10:00"}, errors.ValidationError},
		{"hour out of range", model.CreateScheduleRequest{Date: "2025-12-15", TimeSlot: "23:00-24:00"}, errors.ValidationError},
		{"reversed", model.CreateScheduleRequest{Date: "2025-12-15", TimeSlot: "11:00-10:00"}, errors.ValidationError},
		{"missing slot", model.CreateScheduleRequest{Date: "2025-12-15"}, errors.ValidationError},
		{"bad date", model.CreateScheduleRequest{Date: "15-12-2025", TimeSlot: "10:00-11:00"}, errors.ValidationError},
		{"past", model.CreateScheduleRequest{Date: "2025-12-09", TimeSlot: "10:00-11:00"}, errors.PastDateError},
		{"earlier today", model.CreateScheduleRequest{Date: "2025-12-10", TimeSlot: "08:00-09:00"}, errors.PastDateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSchedule(context.Background(), f.doctor, tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestUpdateScheduleLockoutBoundary(t *testing.T) {
	start := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)

	f := newFixture(t, dec10)
	entry := f.create(t, "2025-12-15", "10:00-11:00", true)

	f.now = start.Add(-24*time.Hour + time.Minute)
	_, err := f.svc.UpdateSchedule(context.Background(), entry.ID, model.UpdateScheduleRequest{IsAvailable: boolPtr(false)})
	assert.True(t, errors.Is(err, errors.LockoutError), "23h59m before start")
	stored, _ := f.svc.GetSchedule(context.Background(), entry.ID)
	assert.True(t, stored.IsAvailable, "no mutation on lockout")

	f.now = start.Add(-24 * time.Hour)
	updated, err := f.svc.UpdateSchedule(context.Background(), entry.ID, model.UpdateScheduleRequest{IsAvailable: boolPtr(false)})
	require.NoError(t, err, "exactly 24h before start")
	assert.False(t, updated.IsAvailable)
}

func TestUpdateScheduleMoveIsLockedOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dec10)
	entry := f.create(t, "2025-12-15", "10:00-11:00", true)
	blocked := f.create(t, "2025-12-15", "12:00-13:00", false)

	f.now = time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC)
	tests := map[string]model.UpdateScheduleRequest{
		"new slot": {TimeSlot: strPtr("15:00-16:00")},
		"new date": {Date: strPtr("2025-12-18")},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.UpdateSchedule(ctx, entry.ID, req)
			assert.True(t, errors.Is(err, errors.LockoutError))
		})
	}

	stored, err := f.svc.GetSchedule(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "10:00-11:00", stored.TimeSlot.String())
	assert.Equal(t, "2025-12-15", stored.Date.String())

	_, err = f.svc.UpdateSchedule(ctx, entry.ID, model.UpdateScheduleRequest{Notes: strPtr("room 4")})
	assert.NoError(t, err, "edits that keep the slot are allowed")

	moved, err := f.svc.UpdateSchedule(ctx, blocked.ID, model.UpdateScheduleRequest{TimeSlot: strPtr("13:00-14:00")})
	require.NoError(t, err, "blocked time may be moved at any point")
	assert.Equal(t, "13:00-14:00", moved.TimeSlot.String())

	f.now = time.Date(2025, 12, 14, 10, 0, 0, 0, time.UTC)
	moved, err = f.svc.UpdateSchedule(ctx, entry.ID, model.UpdateScheduleRequest{TimeSlot: strPtr("15:00-16:00")})
	require.NoError(t, err, "exactly 24h before start")
	assert.Equal(t, "15:00-16:00", moved.TimeSlot.String())
}

func TestUpdateScheduleReenableIsNotLockedOut(t *testing.T) {
	f := newFixture(t, dec10)
	entry := f.create(t, "2025-12-15", "10:00-11:00", false)

	f.now = time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC)
	updated, err := f.svc.UpdateSchedule(context.Background(), entry.ID, model.UpdateScheduleRequest{IsAvailable: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsAvailable)
}

func TestUpdateScheduleTimeChange(t *testing.T) {
	f := newFixture(t, dec10)
	first := f.create(t, "2025-12-15", "10:00-11:00", true)
	f.create(t, "2025-12-15", "12:00-13:00", true)

	updated, err := f.svc.UpdateSchedule(context.Background(), first.ID, model.UpdateScheduleRequest{TimeSlot: strPtr("10:00-11:30")})
	require.NoError(t, err, "own range is excluded")
	assert.Equal(t, "10:00-11:30", updated.TimeSlot.String())

	_, err = f.svc.UpdateSchedule(context.Background(), first.ID, model.UpdateScheduleRequest{TimeSlot: strPtr("11:30-12:30")})
	assert.True(t, errors.Is(err, errors.ConflictError))

	_, err = f.svc.UpdateSchedule(context.Background(), first.ID, model.UpdateScheduleRequest{TimeSlot: strPtr("11:30")})
	assert.True(t, errors.Is(err, errors.ValidationError))

	moved, err := f.svc.UpdateSchedule(context.Background(), first.ID, model.UpdateScheduleRequest{Date: strPtr("2025-12-16"), TimeSlot: strPtr("12:00-13:00")})
	require.NoError(t, err, "conflicts are checked on the new date")
	assert.Equal(t, "2025-12-16", moved.Date.String())

	_, err = f.svc.UpdateSchedule(context.Background(), first.ID, model.UpdateScheduleRequest{Date: strPtr("2025-12-01")})
	assert.True(t, errors.Is(err, errors.PastDateError))

	_, err = f.svc.UpdateSchedule(context.Background(), uuid.New(), model.UpdateScheduleRequest{Notes: strPtr("x")})
	assert.True(t, errors.Is(err, errors.NotFoundError))
}

func TestUpdateScheduleReenableChecksAvailableOverlap(t *testing.T) {
	f := newFixture(t, dec10)
	ctx := context.Background()
	repo := f.store.Schedules()

	day := timeslot.MustParseDate("2025-12-15")
	require.NoError(t, repo.Create(ctx, &model.ScheduleEntry{DoctorID: f.doctor, Date: day, TimeSlot: timeslot.MustParse("10:00-11:00"), IsAvailable: true}))
	blocked := &model.ScheduleEntry{DoctorID: f.doctor, Date: day, TimeSlot: timeslot.MustParse("10:30-11:30"), IsAvailable: false}
	require.NoError(t, repo.Create(ctx, blocked))

	_, err := f.svc.UpdateSchedule(ctx, blocked.ID, model.UpdateScheduleRequest{IsAvailable: boolPtr(true)})
	assert.True(t, errors.Is(err, errors.ConflictError))
	assertNoAvailableOverlap(t, f.day(t, "2025-12-15"))
}

func TestDeleteSchedule(t *testing.T) {
	f := newFixture(t, dec10)
	entry := f.create(t, "2025-12-15", "10:00-11:00", true)

	require.NoError(t, f.svc.DeleteSchedule(context.Background(), entry.ID))
	_, err := f.svc.GetSchedule(context.Background(), entry.ID)
	assert.True(t, errors.Is(err, errors.NotFoundError))
	assert.True(t, errors.Is(f.svc.DeleteSchedule(context.Background(), entry.ID), errors.NotFoundError))
}

func TestListSchedulesHidesPastByDefault(t *testing.T) {
	f := newFixture(t, dec10)
	f.create(t, "2025-12-15", "10:00-11:00", true)

	require.NoError(t, f.store.Schedules().Create(context.Background(), &model.ScheduleEntry{
		DoctorID: f.doctor, Date: timeslot.MustParseDate("2025-12-01"), TimeSlot: timeslot.MustParse("10:00-11:00"), IsAvailable: true,
	}))

	upcoming, err := f.svc.ListSchedules(context.Background(), f.doctor, model.ScheduleFilter{})
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)

	all, err := f.svc.ListSchedules(context.Background(), f.doctor, model.ScheduleFilter{IncludePast: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type mockScheduleRepo struct {
	mock.Mock
}

func (m *mockScheduleRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	args := m.Called(ctx, doctorID, filter)
	entries, _ := args.Get(0).([]*model.ScheduleEntry)
	return entries, args.Error(1)
}

func (m *mockScheduleRepo) Get(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	args := m.Called(ctx, id)
	entry, _ := args.Get(0).(*model.ScheduleEntry)
	return entry, args.Error(1)
}

func (m *mockScheduleRepo) Create(ctx context.Context, entry *model.ScheduleEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockScheduleRepo) Update(ctx context.Context, entry *model.ScheduleEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func TestMalformedStoredSlotIsSurfaced(t *testing.T) {
	repo := new(mockScheduleRepo)
	repo.On("ListByDoctor", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.DataIntegrity("schedule has a malformed time slot", timeslot.ErrMalformed))

	svc := NewService(repo, memory.NewStore(), nil, nil, logger.Nop(), Config{}).
		WithClock(func() time.Time { return dec10 })

	_, err := svc.BlockTime(context.Background(), uuid.New(), model.BlockTimeRequest{Date: "2025-12-15", TimeSlot: "11:00-11:30"})
	assert.True(t, errors.Is(err, errors.DataIntegrityError))

	_, err = svc.CreateSchedule(context.Background(), uuid.New(), model.CreateScheduleRequest{Date: "2025-12-15", TimeSlot: "11:00-11:30"})
	assert.True(t, errors.Is(err, errors.DataIntegrityError))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{AppointmentStatusScheduled, AppointmentStatusCompleted, true},
		{AppointmentStatusScheduled, AppointmentStatusCancelled, true},
		{AppointmentStatusScheduled, AppointmentStatusScheduled, false},
		{AppointmentStatusCompleted, AppointmentStatusCancelled, false},
		{AppointmentStatusCancelled, AppointmentStatusCompleted, false},
		{AppointmentStatusCancelled, AppointmentStatusScheduled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestConflictQueryWindow(t *testing.T) {
	doctor := uuid.New()
	base := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	existing := &Appointment{
		Base:     Base{ID: uuid.New()},
		DoctorID: doctor,
		StartsAt: base,
		EndsAt:   base.Add(30 * time.Minute),
		Status:   AppointmentStatusScheduled,
	}

	query := func(offset time.Duration) ConflictQuery {
		start := base.Add(offset)
		return ConflictQuery{DoctorID: doctor, Start: start, End: start.Add(30 * time.Minute), Window: time.Hour}
	}

	assert.True(t, query(59*time.Minute).Matches(existing))
	assert.False(t, query(60*time.Minute).Matches(existing))
	assert.False(t, query(61*time.Minute).Matches(existing))
	assert.True(t, query(-59*time.Minute).Matches(existing))
	assert.False(t, query(-61*time.Minute).Matches(existing))

	long := query(-90 * time.Minute)
	long.End = base.Add(15 * time.Minute)
	assert.True(t, long.Matches(existing), "overlapping interval conflicts outside the window")

	excluded := query(0)
	excluded.ExcludeID = existing.ID
	assert.False(t, excluded.Matches(existing))

	now := time.Now()
	existing.DeletedAt = &now
	assert.False(t, query(0).Matches(existing))
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// CanTransitionTo allows only scheduled -> completed|cancelled.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return s == AppointmentStatusScheduled && next.IsTerminal()
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	Base
	PatientID         uuid.UUID         `json:"patient_id"`
	DoctorID          uuid.UUID         `json:"doctor_id"`
	Date              timeslot.Date     `json:"date"`
	TimeSlot          timeslot.Slot     `json:"time_slot"`
	StartsAt          time.Time         `json:"starts_at"`
	EndsAt            time.Time         `json:"ends_at"`
	Status            AppointmentStatus `json:"status"`
	Reason            *string           `json:"reason,omitempty"`
	Notes             *string           `json:"notes,omitempty"`
	Reminder24hSentAt *time.Time        `json:"reminder_24h_sent_at,omitempty"`
	Reminder2hSentAt  *time.Time        `json:"reminder_2h_sent_at,omitempty"`
	DeletedAt         *time.Time        `json:"-"`
}

type CreateAppointmentRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	Date      string    `json:"date" binding:"required"`
	TimeSlot  string    `json:"time_slot" binding:"required"`
	Reason    *string   `json:"reason" binding:"omitempty,max=1000"`
	Notes     *string   `json:"notes" binding:"omitempty,max=2000"`
}

type UpdateAppointmentRequest struct {
	Date     *string `json:"date"`
	TimeSlot *string `json:"time_slot"`
	Reason   *string `json:"reason" binding:"omitempty,max=1000"`
	Notes    *string `json:"notes" binding:"omitempty,max=2000"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=1000"`
}

type CompleteAppointmentRequest struct {
	Notes *string `json:"notes" binding:"omitempty,max=2000"`
}

type AppointmentFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
	StartDate *timeslot.Date
	EndDate   *timeslot.Date
	Pagination
}

// ConflictQuery finds scheduled appointments of a doctor whose start lies
// strictly within Window of Start, or whose interval overlaps [Start, End).
type ConflictQuery struct {
	DoctorID  uuid.UUID
	Start     time.Time
	End       time.Time
	Window    time.Duration
	ExcludeID uuid.UUID
}

// Matches applies the query to one appointment.
func (q ConflictQuery) Matches(a *Appointment) bool {
	if a.DoctorID != q.DoctorID || a.ID == q.ExcludeID {
		return false
	}
	if a.Status != AppointmentStatusScheduled || a.DeletedAt != nil {
		return false
	}
	diff := a.StartsAt.Sub(q.Start)
	if diff < 0 {
		diff = -diff
	}
	if diff < q.Window {
		return true
	}
	return a.StartsAt.Before(q.End) && a.EndsAt.After(q.Start)
}

// Availability is the bookable remainder of a doctor's day.
type Availability struct {
	DoctorID uuid.UUID       `json:"doctor_id"`
	Date     timeslot.Date   `json:"date"`
	Free     []timeslot.Slot `json:"free"`
}

package model

import (
	"github.com/google/uuid"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

// ScheduleEntry is a doctor's availability, or an explicit block, for one
// date and one contiguous slot.
type ScheduleEntry struct {
	Base
	DoctorID    uuid.UUID     `json:"doctor_id"`
	Date        timeslot.Date `json:"date"`
	TimeSlot    timeslot.Slot `json:"time_slot"`
	IsAvailable bool          `json:"is_available"`
	Notes       *string       `json:"notes,omitempty"`
}

type ScheduleFilter struct {
	Date        *timeslot.Date
	StartDate   *timeslot.Date
	EndDate     *timeslot.Date
	IsAvailable *bool
	IncludePast bool
}

type CreateScheduleRequest struct {
	Date         string  `json:"date" binding:"required,date"`
	TimeSlot     string  `json:"time_slot" binding:"required,timeslot"`
	IsAvailable  *bool   `json:"is_available"`
	RepeatWeekly bool    `json:"repeat_weekly"`
	Notes        *string `json:"notes" binding:"omitempty,max=1000"`
}

type UpdateScheduleRequest struct {
	Date        *string `json:"date" binding:"omitempty,date"`
	TimeSlot    *string `json:"time_slot" binding:"omitempty,timeslot"`
	IsAvailable *bool   `json:"is_available"`
	Notes       *string `json:"notes" binding:"omitempty,max=1000"`
}

type BlockTimeRequest struct {
	Date     string  `json:"date" binding:"required,date"`
	TimeSlot string  `json:"time_slot" binding:"required,timeslot"`
	Reason   *string `json:"reason" binding:"omitempty,max=1000"`
}

// BlockResult summarises what a block request changed. Created holds the
// right-hand remainders split off existing entries; Blocked is the new
// unavailable entry, nil when an exact match was flipped in place.
type BlockResult struct {
	Updated []*ScheduleEntry `json:"updated"`
	Created []*ScheduleEntry `json:"created"`
	Blocked *ScheduleEntry   `json:"blocked"`
}

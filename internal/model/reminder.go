package model

import (
	"fmt"
	"time"
)

type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder2h  ReminderKind = "2h"
)

func ParseReminderKind(s string) (ReminderKind, error) {
	switch ReminderKind(s) {
	case Reminder24h, Reminder2h:
		return ReminderKind(s), nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", s)
}

// DueReminder is an appointment whose reminder of Kind has not been sent.
type DueReminder struct {
	Appointment  *Appointment `json:"appointment"`
	Kind         ReminderKind `json:"kind"`
	PatientEmail *string      `json:"-"`
}

// ReminderPayload is published to rooms and used to render the e-mail.
type ReminderPayload struct {
	AppointmentID string       `json:"appointment_id"`
	DoctorID      string       `json:"doctor_id"`
	PatientID     string       `json:"patient_id"`
	Kind          ReminderKind `json:"kind"`
	Date          string       `json:"date"`
	TimeSlot      string       `json:"time_slot"`
	StartsAt      time.Time    `json:"starts_at"`
}

// SweepResult counts one reminder sweep.
type SweepResult struct {
	Due     int `json:"due"`
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

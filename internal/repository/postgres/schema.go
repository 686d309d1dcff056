package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations are applied in order; every statement is idempotent.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,

	// time_slot is the legacy text column; start_time/end_time are written
	// for every new row. Readers accept either.
	`CREATE TABLE IF NOT EXISTS schedules (
		id           UUID PRIMARY KEY,
		doctor_id    UUID NOT NULL,
		date         DATE NOT NULL,
		start_time   TIME,
		end_time     TIME,
		time_slot    TEXT,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		notes        TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT schedules_slot_present CHECK (
			time_slot IS NOT NULL OR (start_time IS NOT NULL AND end_time IS NOT NULL)
		),
		CONSTRAINT schedules_no_overlapping_availability EXCLUDE USING gist (
			doctor_id WITH =,
			tsrange(date + start_time, date + end_time) WITH &&
		) WHERE (is_available AND start_time IS NOT NULL AND end_time IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_doctor_date ON schedules (doctor_id, date)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id                   UUID PRIMARY KEY,
		patient_id           UUID NOT NULL,
		doctor_id            UUID NOT NULL,
		date                 DATE NOT NULL,
		time_slot            TEXT NOT NULL,
		starts_at            TIMESTAMPTZ NOT NULL,
		ends_at              TIMESTAMPTZ NOT NULL,
		status               TEXT NOT NULL DEFAULT 'scheduled'
		                     CHECK (status IN ('scheduled', 'completed', 'cancelled')),
		reason               TEXT,
		notes                TEXT,
		reminder_24h_sent_at TIMESTAMPTZ,
		reminder_2h_sent_at  TIMESTAMPTZ,
		deleted_at           TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT appointments_no_double_booking EXCLUDE USING gist (
			doctor_id WITH =,
			tstzrange(starts_at, ends_at) WITH &&
		) WHERE (status = 'scheduled' AND deleted_at IS NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_starts
		ON appointments (doctor_id, starts_at) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient
		ON appointments (patient_id) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_due_reminders
		ON appointments (starts_at) WHERE status = 'scheduled' AND deleted_at IS NULL`,

	// Contact addresses synced from the identity provider; used for reminder mail.
	`CREATE TABLE IF NOT EXISTS patient_contacts (
		patient_id UUID PRIMARY KEY,
		email      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// MigrationCount is reported by schedctl.
func MigrationCount() int { return len(migrations) }

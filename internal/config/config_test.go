package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
database:
  driver: memory
scheduling:
  timezone: Europe/Berlin
  conflict_window: 45m
reminder:
  interval: 1m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 45*time.Minute, cfg.Scheduling.ConflictWindow)
	assert.Equal(t, time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())

	// defaults
	assert.Equal(t, 24*time.Hour, cfg.Scheduling.LockoutWindow)
	assert.Equal(t, 12, cfg.Scheduling.RecurringWeeks)
	assert.Equal(t, 2*time.Hour, cfg.Reminder.LateWindow)
	assert.Equal(t, "none", cfg.Messaging.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCHED_DATABASE_HOST", "db.internal")
	t.Setenv("SCHED_SCHEDULING_LOCKOUT_WINDOW", "12h")
	t.Setenv("SCHED_MESSAGING_DRIVER", "redis")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 12*time.Hour, cfg.Scheduling.LockoutWindow)
	assert.Equal(t, "redis", cfg.Messaging.Driver)
	assert.Equal(t, 9090, cfg.Server.Port, "file values survive when no override is set")
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "scheduling:\n  timezone: Mars/Olympus\n"))
	assert.ErrorContains(t, err, "invalid scheduling.timezone")

	_, err = LoadConfig(writeConfig(t, "messaging:\n  driver: kafka\n"))
	assert.ErrorContains(t, err, "unknown messaging.driver")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}

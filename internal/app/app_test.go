package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-scheduling/internal/config"
	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
)

func TestNewWithMemoryStorage(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Database.Driver = "memory"
	cfg.Messaging.Driver = "none"

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Empty(t, a.ReadinessChecks())

	entries, err := a.ScheduleService().ListSchedules(context.Background(), uuid.New(), model.ScheduleFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	result, err := a.ReminderService().Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{}, result)
	assert.NotNil(t, a.AppointmentService())

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/service/notification"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/metrics"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

// BlockTime carves the requested slot out of the doctor's availability.
// Available time outside the slot stays bookable: an entry straddling it is
// cut back to its left remainder and its right remainder becomes a new entry.
func (s *Service) BlockTime(ctx context.Context, doctorID uuid.UUID, req model.BlockTimeRequest) (result *model.BlockResult, err error) {
	defer func() {
		s.metrics.ObserveBlock(metrics.Result(err))
		if err != nil {
			s.logFailure(ctx, "block time", err)
		}
	}()

	date, target, err := parseDateSlot(req.Date, req.TimeSlot)
	if err != nil {
		return nil, err
	}
	if err := s.checkLockout(date, target, "cannot block time less than 24 hours before the scheduled time"); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entries, err := s.repo.ListByDoctor(ctx, doctorID, model.ScheduleFilter{Date: &date})
		if err != nil {
			return err
		}

		for _, e := range entries {
			if !e.IsAvailable && e.TimeSlot.Overlaps(target) {
				return errors.Conflict(fmt.Sprintf("time slot %s overlaps blocked period %s", target, e.TimeSlot), nil)
			}
		}

		result = &model.BlockResult{Updated: []*model.ScheduleEntry{}, Created: []*model.ScheduleEntry{}}
		exact := false
		for _, e := range entries {
			if !e.IsAvailable || !e.TimeSlot.Overlaps(target) {
				continue
			}
			if e.TimeSlot.Equal(target) {
				exact = true
			}
			created, err := s.carve(ctx, e, target, req.Reason)
			if err != nil {
				return err
			}
			result.Updated = append(result.Updated, e)
			if created != nil {
				result.Created = append(result.Created, created)
			}
		}

		if !exact {
			blocked := &model.ScheduleEntry{
				DoctorID:    doctorID,
				Date:        date,
				TimeSlot:    target,
				IsAvailable: false,
				Notes:       req.Reason,
			}
			if err := s.repo.Create(ctx, blocked); err != nil {
				return err
			}
			result.Blocked = blocked
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notification.Notify(ctx, s.sink, s.log, model.EventScheduleBlocked, result, model.DoctorRoom(doctorID))
	return result, nil
}

// carve removes target from the available entry e in place and returns the
// right remainder when e had time on both sides of target.
func (s *Service) carve(ctx context.Context, e *model.ScheduleEntry, target timeslot.Slot, reason *string) (*model.ScheduleEntry, error) {
	left, right := e.TimeSlot.Subtract(target)

	switch {
	case left != nil && right != nil:
		e.TimeSlot = *left
		if err := s.repo.Update(ctx, e); err != nil {
			return nil, err
		}
		rest := &model.ScheduleEntry{
			DoctorID:    e.DoctorID,
			Date:        e.Date,
			TimeSlot:    *right,
			IsAvailable: true,
			Notes:       e.Notes,
		}
		if err := s.repo.Create(ctx, rest); err != nil {
			return nil, err
		}
		return rest, nil
	case left != nil:
		e.TimeSlot = *left
	case right != nil:
		e.TimeSlot = *right
	default:
		// exact match or target covers e entirely
		e.IsAvailable = false
		e.Notes = reason
	}
	return nil, s.repo.Update(ctx, e)
}

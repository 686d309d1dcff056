package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/care-scheduling/pkg/logger"
	"github.com/jwalitptl/care-scheduling/pkg/messaging"
)

// Sink delivers an event to everyone listening on a room such as
// "doctor:<id>" or "patient:<id>".
type Sink interface {
	Publish(ctx context.Context, room, event string, payload interface{}) error
}

type service struct {
	broker  messaging.Broker
	timeout time.Duration
	now     func() time.Time
}

// NewService publishes through broker, bounding each publish by timeout.
func NewService(broker messaging.Broker, timeout time.Duration) Sink {
	return &service{broker: broker, timeout: timeout, now: time.Now}
}

func (s *service) Publish(ctx context.Context, room, event string, payload interface{}) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg := messaging.Message{
		Type:       event,
		Room:       room,
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	}
	if err := s.broker.Publish(ctx, room, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event, room, err)
	}
	return nil
}

// Notify publishes to every room and only logs failures; a lost
// notification never fails the operation that caused it.
func Notify(ctx context.Context, sink Sink, log *logger.Logger, event string, payload interface{}, rooms ...string) {
	if sink == nil {
		return
	}
	for _, room := range rooms {
		if err := sink.Publish(ctx, room, event, payload); err != nil {
			logger.FromContext(ctx, log).Error(err, "notification dropped", "event", event, "room", room)
		}
	}
}

// Published is one call recorded by Recorder.
type Published struct {
	Room    string
	Event   string
	Payload interface{}
}

// Recorder is an in-process Sink that keeps what it was given.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (r *Recorder) Publish(_ context.Context, room, event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Published{Room: room, Event: event, Payload: payload})
	return nil
}

func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

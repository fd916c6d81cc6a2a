package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/helpdesk-pipeline/internal/events"
)

type recordingSink struct {
	err  error
	sent []events.EventType
}

func (s *recordingSink) Send(_ context.Context, event events.Event) error {
	s.sent = append(s.sent, event.Type)
	return s.err
}

func TestNotificationServiceForwardsToEverySink(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	failing := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	svc := NewNotificationService(dispatcher, nil, failing, nil, healthy)
	svc.RegisterHandlers()

	ctx := context.Background()
	for _, typ := range []events.EventType{events.EventTicketProcessed, events.EventTicketEscalated, events.EventTicketAssigned, events.EventTicketsSynced} {
		if err := dispatcher.Publish(ctx, events.Event{Type: typ, TicketNumber: "1001"}); err != nil {
			t.Fatalf("publish %s: %v", typ, err)
		}
	}

	if len(failing.sent) != 4 || len(healthy.sent) != 4 {
		t.Fatalf("failing=%v healthy=%v", failing.sent, healthy.sent)
	}
	if healthy.sent[1] != events.EventTicketEscalated {
		t.Fatalf("order = %v", healthy.sent)
	}
}

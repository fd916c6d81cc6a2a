package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventTicketProcessed, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketProcessed, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketEscalated, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketProcessed}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeClient struct {
	mqtt.Client
	connected bool
	topic     string
	qos       byte
	payload   []byte
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.topic, c.qos = topic, qos
	c.payload, _ = payload.([]byte)
	return &fakeToken{}
}

func TestMQTTSinkPublishesJSON(t *testing.T) {
	client := &fakeClient{connected: true}
	sink := NewMQTTSink(client, "helpdesk/", 1)

	event := Event{ID: "e1", Type: EventTicketEscalated, TicketNumber: "1001", Payload: TicketEscalatedPayload{Reason: "signals"}}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.topic != "helpdesk/events/ticket_escalated" || client.qos != 1 {
		t.Fatalf("unexpected publish %s qos=%d", client.topic, client.qos)
	}
	var decoded map[string]any
	if err := json.Unmarshal(client.payload, &decoded); err != nil || decoded["ticket_number"] != "1001" {
		t.Fatalf("unexpected payload %s (%v)", client.payload, err)
	}
}

func TestMQTTSinkNotConnected(t *testing.T) {
	sink := NewMQTTSink(&fakeClient{}, "", 0)
	if err := sink.Send(context.Background(), Event{Type: EventTicketProcessed}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if got := sink.Topic(EventTicketProcessed); got != "events/ticket_processed" {
		t.Fatalf("Topic = %s", got)
	}
}

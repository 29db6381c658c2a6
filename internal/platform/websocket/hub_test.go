package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(userID string) *Client {
	return &Client{
		ID:     "client-" + userID,
		UserID: userID,
		Topics: []string{UserTopic(userID)},
		Send:   make(chan []byte, 4),
	}
}

func TestHub_RegisterAndCount(t *testing.T) {
	h := NewHub()

	c1 := newTestClient("user-1")
	c2 := newTestClient("user-2")

	h.Register(c1)
	h.Register(c2)

	if h.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", h.ClientCount())
	}
	if h.TopicCount(UserTopic("user-1")) != 1 {
		t.Errorf("expected 1 subscriber for user-1, got %d", h.TopicCount(UserTopic("user-1")))
	}
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub()
	c := newTestClient("user-1")

	h.Register(c)
	h.Unregister(c)

	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}
	if h.TopicCount(UserTopic("user-1")) != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.TopicCount(UserTopic("user-1")))
	}

	// Send channel must be closed
	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("expected Send channel to be closed")
		}
	default:
		t.Error("expected Send channel to be closed")
	}
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	h := NewHub()
	c := newTestClient("user-1")

	h.Register(c)
	h.Unregister(c)
	h.Unregister(c) // must not panic on double close
}

func TestHub_PublishReachesOnlyOwner(t *testing.T) {
	h := NewHub()
	owner := newTestClient("user-1")
	other := newTestClient("user-2")

	h.Register(owner)
	h.Register(other)

	err := h.Publish(context.Background(), "user-1", Event{
		Type:          EventAppointmentStatus,
		AppointmentID: "appt-1",
		Status:        "accepted",
	})
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case raw := <-owner.Send:
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if evt.Type != EventAppointmentStatus {
			t.Errorf("unexpected event type: %s", evt.Type)
		}
		if evt.Status != "accepted" {
			t.Errorf("unexpected status: %s", evt.Status)
		}
		if evt.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("owner did not receive event")
	}

	select {
	case <-other.Send:
		t.Error("other user must not receive the event")
	default:
	}
}

func TestHub_BroadcastSkipsFullClients(t *testing.T) {
	h := NewHub()
	c := &Client{
		ID:     "client-full",
		UserID: "user-1",
		Topics: []string{UserTopic("user-1")},
		Send:   make(chan []byte), // unbuffered, nobody reading
	}
	h.Register(c)

	// Must not block even though the client cannot receive.
	done := make(chan struct{})
	go func() {
		h.Broadcast(UserTopic("user-1"), Event{Type: EventAppointmentCreated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client")
	}
}

func TestHub_BroadcastToUnknownTopic(t *testing.T) {
	h := NewHub()
	// No subscribers; must be a no-op.
	h.Broadcast(UserTopic("nobody"), Event{Type: EventAppointmentCreated})
}

package notification

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// The hub must deliver to local sessions without a Redis backend, and
// Shutdown must stop the Run loop. The worker binary relies on exactly
// this lifecycle.
func TestHubRunShutdown(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	conn := &Connection{UserID: uuid.New(), Send: make(chan []byte, 1)}
	hub.Register(conn)

	if err := hub.SendToUser(conn.UserID, map[string]string{"event": "ping"}); err != nil {
		t.Fatalf("SendToUser: %v", err)
	}
	select {
	case <-conn.Send:
	case <-time.After(time.Second):
		t.Fatal("event not delivered to local session")
	}
	if got := hub.ConnectionCount(); got != 1 {
		t.Fatalf("connection count = %d, want 1", got)
	}
	if !hub.IsOnline(conn.UserID) {
		t.Fatal("registered user not reported online")
	}

	hub.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after shutdown")
	}
}

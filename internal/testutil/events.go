package testutil

import (
	"testing"
	"time"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// EventTimeout bounds how long tests wait on a change feed
const EventTimeout = 2 * time.Second

// NextEvent waits for the next event on the subscription, failing the test on
// timeout or if the subscription ends
func NextEvent(t testing.TB, sub *changefeed.Subscription) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed: %v", sub.Err())
		}
		return ev
	case <-time.After(EventTimeout):
		t.Fatalf("timed out waiting for %s event", sub.Collection())
	}
	return model.ChangeEvent{}
}

// NoEvent asserts nothing arrives on the subscription within the window
func NoEvent(t testing.TB, sub *changefeed.Subscription, window time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected %s event seq=%d", ev.Kind, ev.Seq)
		}
	case <-time.After(window):
	}
}

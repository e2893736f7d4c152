package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func fixedOwner(id int64) OwnerFunc {
	return func(*http.Request) (int64, bool) { return id, true }
}

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100*time.Millisecond, fixedOwner(1))
	defer b.Close()
	ch := b.Subscribe(1)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublish_ScopedToOwner(t *testing.T) {
	b := NewBroker(100*time.Millisecond, fixedOwner(1))
	defer b.Close()
	mine := b.Subscribe(1)
	theirs := b.Subscribe(2)
	defer b.Unsubscribe(mine)
	defer b.Unsubscribe(theirs)

	b.Publish(1, Event{Type: "note.created", Data: map[string]int64{"id": 7}})

	got := drain(mine)
	if len(got) != 1 || !strings.Contains(got[0], "event: note.created") || !strings.Contains(got[0], `"id":7`) {
		t.Errorf("owner 1 got %q", got)
	}
	if other := drain(theirs); len(other) != 0 {
		t.Errorf("owner 2 got %q", other)
	}
}

func TestPublishNoteEvent_GraphThrottlePerOwner(t *testing.T) {
	b := NewBroker(500*time.Millisecond, fixedOwner(1))
	defer b.Close()
	a := b.Subscribe(1)
	c := b.Subscribe(2)
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.PublishNoteEvent(1, KindCreated, 1)
	b.PublishNoteEvent(1, KindEnriched, 1)
	b.PublishNoteEvent(2, KindUpdated, 9)
	b.PublishNoteEvent(1, "bogus", 1)

	count := func(msgs []string) (notes, graphs int) {
		for _, m := range msgs {
			if strings.Contains(m, "graph.updated") {
				graphs++
			} else {
				notes++
			}
		}
		return
	}
	notes, graphs := count(drain(a))
	if notes != 2 || graphs != 1 {
		t.Errorf("owner 1: notes=%d graphs=%d, want 2 and 1", notes, graphs)
	}
	notes, graphs = count(drain(c))
	if notes != 1 || graphs != 1 {
		t.Errorf("owner 2: notes=%d graphs=%d, want 1 and 1", notes, graphs)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, fixedOwner(3))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}
	b.PublishNoteEvent(3, KindUpdated, 42)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") || !strings.Contains(body, `"id":42`) {
		t.Errorf("handler output missing event: %q", body)
	}
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_NoOwner(t *testing.T) {
	b := NewBroker(time.Second, func(*http.Request) (int64, bool) { return 0, false })
	defer b.Close()
	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second, fixedOwner(1))
	defer b.Close()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)
	for range 70 {
		b.Publish(1, Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(100*time.Millisecond, fixedOwner(1))
	ch := b.Subscribe(1)
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}
	b.Publish(1, Event{Type: "note.updated"})
	b.PublishNoteEvent(1, KindUpdated, 1)
}

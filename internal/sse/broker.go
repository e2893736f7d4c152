// Package sse implements a per-owner Server-Sent Events broker for capture and
// graph updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Note event kinds accepted by PublishNoteEvent.
const (
	KindCreated  = "created"
	KindUpdated  = "updated"
	KindDeleted  = "deleted"
	KindEnriched = "enriched"
)

// Event is one SSE message delivered to an owner's clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type ownedEvent struct {
	owner int64
	event Event
}

type noteEventReq struct {
	owner  int64
	kind   string
	noteID int64
}

type subscription struct {
	owner int64
	ch    chan []byte
}

// OwnerFunc resolves the owner a streaming request belongs to.
type OwnerFunc func(r *http.Request) (int64, bool)

// Broker fans events out to subscribed clients of the same owner.
//
// A single event loop goroutine owns the client set and the per-owner graph
// throttle; public methods talk to it over channels.
type Broker struct {
	graphMin time.Duration
	ownerOf  OwnerFunc

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan ownedEvent
	noteEventCh   chan noteEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that emits graph.updated at most once per
// graphThrottle for each owner.
func NewBroker(graphThrottle time.Duration, ownerOf OwnerFunc) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}
	b := &Broker{
		graphMin:      graphThrottle,
		ownerOf:       ownerOf,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan ownedEvent, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]int64)
	lastGraph := make(map[int64]time.Time)

	broadcast := func(owner int64, event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
		for ch, o := range clients {
			if o != owner {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.owner

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case oe := <-b.publishCh:
			broadcast(oe.owner, oe.event)

		case req := <-b.noteEventCh:
			switch req.kind {
			case KindCreated, KindUpdated, KindDeleted, KindEnriched:
				broadcast(req.owner, Event{Type: "note." + req.kind, Data: map[string]int64{"id": req.noteID}})
			default:
				continue
			}
			now := time.Now()
			if now.Sub(lastGraph[req.owner]) >= b.graphMin {
				lastGraph[req.owner] = now
				broadcast(req.owner, Event{Type: "graph.updated", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client of owner and returns its channel.
func (b *Broker) Subscribe(owner int64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{owner: owner, ch: ch}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients across owners.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends event to the owner's clients.
func (b *Broker) Publish(owner int64, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ownedEvent{owner: owner, event: event}:
	case <-b.stopped:
	}
}

// PublishNoteEvent announces a capture change followed by a throttled
// graph.updated event.
func (b *Broker) PublishNoteEvent(owner int64, kind string, noteID int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{owner: owner, kind: kind, noteID: noteID}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := b.ownerOf(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(owner)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

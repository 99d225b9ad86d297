// Package sse streams grid changes to editor clients as Server-Sent Events.
//
// Every event is tagged with the tab it touched. A client that connects with
// ?tab=<name> only receives events for that tab; a client without the
// parameter receives everything. Each event carries a monotonically
// increasing id so a client can tell when it dropped messages and should
// reload the tab.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	EventCellCreated     = "cell.created"
	EventCellDeleted     = "cell.deleted"
	EventCellSaved       = "cell.saved"
	EventRowCreated      = "row.created"
	EventRowDeleted      = "row.deleted"
	EventGroupNormalized = "group.normalized"
	EventNodeChanged     = "node.changed"
	EventTreeUpdated     = "tree.updated"
)

const (
	clientBuffer     = 64
	defaultHeartbeat = 15 * time.Second
)

// Event is a single message. Tab scopes delivery; empty means all clients.
type Event struct {
	Type string `json:"type"`
	Tab  string `json:"tab,omitempty"`
	Data any    `json:"data"`
}

type subscription struct {
	ch  chan []byte
	tab string
}

// Broker fans grid events out to connected clients.
//
// A single loop goroutine owns the client set, the event sequence and the
// per-tab tree.updated timestamps. Public methods talk to it over channels.
type Broker struct {
	treeMin   time.Duration
	heartbeat time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	gridCh        chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one tree.updated per tab
// every treeThrottle.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}

	b := &Broker{
		treeMin:       treeThrottle,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		gridCh:        make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// TabOf returns the tab a content-relative node path belongs to, its first
// component.
func TabOf(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return ""
	}
	first, _, _ := strings.Cut(p, "/")
	return first
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastTree := make(map[string]time.Time)
	var seq uint64

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch, tab := range clients {
			if tab != "" && event.Tab != "" && tab != event.Tab {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; it sees the gap in ids.
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
			clients[sub.ch] = sub.tab

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.gridCh:
			broadcast(event)

			now := time.Now()
			if now.Sub(lastTree[event.Tab]) >= b.treeMin {
				lastTree[event.Tab] = now
				broadcast(Event{Type: EventTreeUpdated, Tab: event.Tab, Data: map[string]string{"tab": event.Tab}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client interested in tab ("" for every tab) and
// returns its channel.
func (b *Broker) Subscribe(tab string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, tab: tab}:
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

// ClientCount returns the number of connected clients.
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

// Publish sends an event as is, with no tree.updated follow-up.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishGridEvent publishes a change to the node at nodePath followed by a
// throttled tree.updated for its tab.
func (b *Broker) PublishGridEvent(eventType, nodePath string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.gridCh <- Event{Type: eventType, Tab: TabOf(nodePath), Data: data}:
	case <-b.stopped:
	}
}

// PublishNodeEvent publishes a node.changed event for a change picked up by
// the watcher. op is one of "created", "updated", "deleted".
func (b *Broker) PublishNodeEvent(op, nodePath string) {
	b.PublishGridEvent(EventNodeChanged, nodePath, map[string]string{"op": op, "path": nodePath})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?tab=name]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var tab string
	if q := strings.Trim(r.URL.Query().Get("tab"), "/"); q != "" {
		tab = path.Base(q)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(tab)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

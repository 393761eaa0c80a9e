// Copyright 2025 Joseph Cumines
//
// SSE client bookkeeping and replay buffer

package transport

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// SSEClient is one connected /events stream.
type SSEClient struct {
	CreatedAt time.Time
	events    chan *SSEEvent
	ID        string
}

// ClientRegistry tracks SSE clients and keeps the most recent events so a
// reconnecting client can resume from Last-Event-ID.
type ClientRegistry struct {
	clients map[string]*SSEClient
	history []*SSEEvent
	mu      sync.Mutex
	limit   int
	nextID  uint64
}

// NewClientRegistry keeps up to limit events for replay.
func NewClientRegistry(limit int) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*SSEClient),
		limit:   limit,
	}
}

// Add registers a client and returns the events it missed after
// lastEventID. Registration and replay are atomic with respect to Broadcast.
func (r *ClientRegistry) Add(lastEventID string) (*SSEClient, []*SSEEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	client := &SSEClient{
		ID:        "client-" + strconv.FormatUint(r.nextID, 10),
		events:    make(chan *SSEEvent, 100),
		CreatedAt: time.Now(),
	}
	r.clients[client.ID] = client

	var missed []*SSEEvent
	if lastEventID != "" {
		for i, e := range r.history {
			if e.ID == lastEventID {
				missed = append(missed, r.history[i+1:]...)
				break
			}
		}
	}
	return client, missed
}

// Remove unregisters a client.
func (r *ClientRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Broadcast records event and queues it for every client. A client whose
// buffer is full misses the event.
func (r *ClientRegistry) Broadcast(event *SSEEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 {
		if len(r.history) >= r.limit {
			r.history = r.history[1:]
		}
		r.history = append(r.history, event)
	}

	for _, client := range r.clients {
		select {
		case client.events <- event:
		default:
			log.Printf("Warning: dropping event %s for client %s (buffer full)", event.ID, client.ID)
		}
	}
}

// Count returns the number of connected clients
func (r *ClientRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

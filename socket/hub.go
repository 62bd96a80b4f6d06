package socket

import (
	"encoding/json"
	"sync"
	"time"

	"mediastore/pkg/logger"
)

const (
	CreatedType = "CREATED" // A document was stored
	DeletedType = "DELETED" // An owner's content tree was removed
	// SubscribedType is sent once to each client after it joined its room.
	SubscribedType = "SUBSCRIBED"

	// allOwners is the room for subscribers that did not ask for one owner.
	allOwners = ""

	broadcastBuffer = 256
)

// Event is what subscribers receive on /events.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	DocID      string    `json:"document_id,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
	Location   string    `json:"location,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	At         time.Time `json:"at"`
}

type Hub struct {
	// Rooms maps an owner id to its subscribers. Only Run touches it.
	Rooms      map[string]map[*Client]bool
	Broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client

	stopOnce sync.Once
	done     chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan Event, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Publish queues ev for delivery. It never blocks a request: when the hub
// is backed up or stopped the event is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case h.Broadcast <- ev:
	default:
		logger.Sugar.Warnf("Event queue full, dropping %s event for owner %s", ev.Type, ev.UserID)
	}
}

// Stop ends Run and disconnects every subscriber.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Rooms[client.UserID] == nil {
				h.Rooms[client.UserID] = make(map[*Client]bool)
			}
			h.Rooms[client.UserID][client] = true
			logger.Sugar.Debugf("Subscriber joined room %q", client.UserID)

		case client := <-h.Unregister:
			h.removeClient(client)

		case ev := <-h.Broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling event: %v", err)
				continue
			}
			// Subscribers of this owner plus the catch-all room.
			for _, room := range []string{ev.UserID, allOwners} {
				for client := range h.Rooms[room] {
					select {
					case client.Send <- payload:
					default:
						// The client is lagging; drop it rather than block the hub.
						logger.Sugar.Warnf("Subscriber send buffer full in room %q. Unregistering.", room)
						h.removeClient(client)
					}
				}
				if ev.UserID == allOwners {
					break
				}
			}

		case <-h.done:
			for room, clients := range h.Rooms {
				for client := range clients {
					close(client.Send)
				}
				delete(h.Rooms, room)
			}
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	clients, ok := h.Rooms[client.UserID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.Rooms, client.UserID)
		logger.Sugar.Debugf("Closed empty room %q", client.UserID)
	}
}

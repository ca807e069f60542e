package websocket

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"friendline/models"
)

// Hub tracks the single live channel of each connected user and delivers
// events to it. Registration changes are applied by the Run loop, which
// broadcasts the online roster after each one.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

type ClientMessage struct {
	Action string `json:"action"`
	To     string `json:"to,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if prev, ok := h.clients[client.UserID]; ok && prev != client {
				// Single session wins: the older channel is shut down.
				close(prev.Send)
			}
			h.clients[client.UserID] = client
			h.mu.Unlock()

			logrus.WithFields(logrus.Fields{
				"function":  "Run",
				"user_id":   client.UserID,
				"client_id": client.ID,
			}).Info("client connected")
			h.broadcastRoster()

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.UserID]
			removed := ok && current == client
			if removed {
				delete(h.clients, client.UserID)
				close(client.Send)
			}
			h.mu.Unlock()

			if removed {
				logrus.WithFields(logrus.Fields{
					"function":  "Run",
					"user_id":   client.UserID,
					"client_id": client.ID,
				}).Info("client disconnected")
				h.broadcastRoster()
			}

		case <-h.done:
			return
		}
	}
}

// Register makes client the user's active channel.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister drops client if it is still the user's active channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Close stops the Run loop and closes every tracked channel.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for id, client := range h.clients {
			close(client.Send)
			delete(h.clients, id)
		}
		h.mu.Unlock()
	})
}

func (h *Hub) Lookup(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[userID]
	return client, ok
}

// Snapshot returns the ids of all connected users, sorted.
func (h *Hub) Snapshot() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() []string {
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// Notify unicasts ev to the user's channel. Offline users and full buffers
// drop the event.
func (h *Hub) Notify(userID string, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Notify",
			"event":    ev.Event,
			"error":    err,
		}).Error("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[userID]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Notify",
			"user_id":  userID,
			"event":    ev.Event,
		}).Debug("recipient offline, event dropped")
		return
	}

	select {
	case client.Send <- data:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Notify",
			"user_id":  userID,
			"event":    ev.Event,
		}).Warn("client buffer full, event dropped")
	}
}

// broadcastRoster sends the full online roster to every connected client.
func (h *Hub) broadcastRoster() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(models.Event{Event: models.EventOnlineUsers, Data: h.snapshotLocked()})
	if err != nil {
		return
	}
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}

package notifications

import (
	"context"
	"errors"
	"sync"

	"billboard/internal/middleware"
	"billboard/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
	// Max listing rooms one connection may watch
	maxRoomsPerClient = 32
)

var (
	ErrHubClosed          = errors.New("hub is shut down")
	ErrServerConnLimit    = errors.New("server connection limit reached")
	ErrUserConnLimit      = errors.New("user connection limit reached")
	ErrRoomLimit          = errors.New("room limit reached")
	ErrClientUnregistered = errors.New("client is not registered")
)

// Hub maps users and listing rooms to their websocket clients. A Hub is
// created per server and torn down with it.
type Hub struct {
	mu    sync.RWMutex
	users map[uint]map[*Client]struct{}
	rooms map[uint]map[*Client]struct{}
	// memberships holds every registered client and the rooms it joined.
	memberships map[*Client]map[uint]struct{}
	closed      bool

	presence *Presence
}

// NewHub creates a hub. presence may be nil.
func NewHub(presence *Presence) *Hub {
	return &Hub{
		users:       make(map[uint]map[*Client]struct{}),
		rooms:       make(map[uint]map[*Client]struct{}),
		memberships: make(map[*Client]map[uint]struct{}),
		presence:    presence,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "marketplace hub" }

// Register adds a connection. userID 0 registers an anonymous viewer that can
// only receive room broadcasts.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if len(h.memberships) >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerConnLimit
	}

	client := newClient(h, conn, userID)
	if userID != 0 {
		m, ok := h.users[userID]
		if !ok {
			m = make(map[*Client]struct{})
			h.users[userID] = m
		}
		if len(m) >= maxConnsPerUser {
			h.mu.Unlock()
			return nil, ErrUserConnLimit
		}
		m[client] = struct{}{}
	}
	h.memberships[client] = make(map[uint]struct{})
	total := len(h.memberships)
	h.mu.Unlock()

	middleware.ActiveWebSockets.Inc()
	observability.WebSocketConnectionsTotal.Set(float64(total))
	if h.presence != nil {
		h.presence.Register(context.Background(), userID)
		client.OnActivity = func() { h.presence.Touch(context.Background(), userID) }
	}
	return client, nil
}

// UnregisterClient removes the client from every user and room index and
// closes its send buffer. Calling it twice is a no-op.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	rooms, ok := h.memberships[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	for listingID := range rooms {
		h.removeFromRoom(client, listingID)
	}
	delete(h.memberships, client)
	if m, ok := h.users[client.UserID]; ok {
		delete(m, client)
		if len(m) == 0 {
			delete(h.users, client.UserID)
		}
	}
	total := len(h.memberships)
	client.close()
	h.mu.Unlock()

	middleware.ActiveWebSockets.Dec()
	observability.WebSocketConnectionsTotal.Set(float64(total))
	if h.presence != nil {
		h.presence.Unregister(context.Background(), client.UserID)
	}
}

// JoinRoom subscribes the client to a listing's room.
func (h *Hub) JoinRoom(client *Client, listingID uint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.memberships[client]
	if !ok {
		return ErrClientUnregistered
	}
	if _, already := joined[listingID]; already {
		return nil
	}
	if len(joined) >= maxRoomsPerClient {
		return ErrRoomLimit
	}

	room, ok := h.rooms[listingID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[listingID] = room
	}
	room[client] = struct{}{}
	joined[listingID] = struct{}{}
	observability.WebSocketRoomMembers.Inc()
	return nil
}

// LeaveRoom unsubscribes the client from a listing's room.
func (h *Hub) LeaveRoom(client *Client, listingID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.memberships[client]
	if !ok {
		return
	}
	if _, in := joined[listingID]; !in {
		return
	}
	h.removeFromRoom(client, listingID)
	delete(joined, listingID)
}

// removeFromRoom must be called with h.mu held.
func (h *Hub) removeFromRoom(client *Client, listingID uint) {
	room, ok := h.rooms[listingID]
	if !ok {
		return
	}
	if _, in := room[client]; in {
		delete(room, client)
		observability.WebSocketRoomMembers.Dec()
	}
	if len(room) == 0 {
		delete(h.rooms, listingID)
	}
}

// SendToUser queues message on every connection of userID and returns how
// many accepted it.
func (h *Hub) SendToUser(userID uint, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.users[userID] {
		if c.TrySend(message) {
			sent++
		}
	}
	return sent
}

// BroadcastRoom queues message on every connection watching listingID.
func (h *Hub) BroadcastRoom(listingID uint, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.rooms[listingID] {
		if c.TrySend(message) {
			sent++
		}
	}
	return sent
}

// Deliver routes a payload received on a notification channel.
func (h *Hub) Deliver(channel string, payload []byte) {
	kind, id, ok := parseChannel(channel)
	if !ok {
		middleware.Logger.Warn("invalid notification channel", "channel", channel)
		return
	}
	switch kind {
	case audienceUser:
		h.SendToUser(id, payload)
	case audienceRoom:
		h.BroadcastRoom(id, payload)
	}
}

// StartWiring connects the Notifier to this hub: messages published by any
// process on user and listing channels reach the local clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		h.Deliver(channel, []byte(payload))
	})
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.memberships)
}

// RoomSize returns the number of clients watching listingID.
func (h *Hub) RoomSize(listingID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[listingID])
}

// IsOnline reports whether a user has at least one connection.
func (h *Hub) IsOnline(ctx context.Context, userID uint) bool {
	if h.presence != nil {
		return h.presence.IsOnline(ctx, userID)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// Shutdown closes every connection. Later registrations fail.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.memberships))
	for c := range h.memberships {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.Conn != nil {
			if err := c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				middleware.Logger.Debug("failed to write close message", "user_id", c.UserID, "error", err)
			}
		}
		h.UnregisterClient(c)
	}
	return nil
}

// Package realtime keeps one room per conversation and fans events out to
// the websocket clients currently in it.
package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/logger"
)

const (
	EventJoined     = "joined"
	EventLeft       = "left"
	EventNewMessage = "new_message"
	EventTyping     = "typing"
	EventError      = "error"
)

// Event is the server->client frame.
type Event struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	Code           apperr.Code `json:"code,omitempty"`
	Message        string      `json:"message,omitempty"`
	Data           any         `json:"data,omitempty"`
}

// ErrorEvent converts err into an error frame, keeping its kind. Internal
// causes are not exposed to clients.
func ErrorEvent(err error) Event {
	code := apperr.CodeOf(err)
	msg := "internal error"
	var ae *apperr.Error
	if code != apperr.CodeInternal && code != apperr.CodeUnknown && errors.As(err, &ae) {
		msg = ae.Message
	}
	return Event{Type: EventError, Code: code, Message: msg}
}

type Options struct {
	TypingInterval time.Duration
	SendBuffer     int
}

type Hub struct {
	opts Options

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(opts Options) *Hub {
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Hub{opts: opts, rooms: make(map[string]map[*Client]struct{})}
}

// Client is one connection. It belongs to at most one room.
type Client struct {
	ID     string
	UserID string

	send   chan []byte
	typing *rate.Limiter

	mu     sync.Mutex
	room   string // guarded by Hub.mu
	closed bool
}

func (h *Hub) NewClient(userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, h.opts.SendBuffer),
		typing: rate.NewLimiter(rate.Every(h.opts.TypingInterval), 1),
	}
}

// Outbound is drained by the connection's write loop; it is closed when the
// client is removed or dropped.
func (c *Client) Outbound() <-chan []byte { return c.send }

// offer never blocks; it reports false when the buffer is full.
func (c *Client) offer(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Join moves c into room, leaving its previous room if any.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.room = room
}

// Leave returns the room c left, or "" if it was in none.
func (h *Hub) Leave(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Client) string {
	room := c.room
	if room == "" {
		return ""
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.room = ""
	return room
}

// Remove drops c from its room and closes its outbound channel.
func (h *Hub) Remove(c *Client) {
	h.Leave(c)
	c.close()
}

func (h *Hub) Room(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room
}

// Broadcast sends one event to every client in the room.
func (h *Hub) Broadcast(room, eventType string, payload any) {
	h.publish(room, nil, Event{Type: eventType, ConversationID: room, Data: payload})
}

// Typing relays a typing indicator from c to the rest of its room. It
// reports false when c is in no room or is typing too often.
func (h *Hub) Typing(c *Client) bool {
	room := h.Room(c)
	if room == "" || !c.typing.Allow() {
		return false
	}
	h.publish(room, c, Event{Type: EventTyping, ConversationID: room, UserID: c.UserID})
	return true
}

// Send delivers ev to c alone.
func (h *Hub) Send(c *Client, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if !c.offer(msg) {
		h.drop(c)
	}
}

func (h *Hub) publish(room string, except *Client, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if !c.offer(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c)
	}
}

// drop disconnects a client whose buffer is full so it cannot stall the room.
func (h *Hub) drop(c *Client) {
	room := h.Leave(c)
	c.close()
	logger.Warn("dropping slow websocket client",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("room", room),
	)
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

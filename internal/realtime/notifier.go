// internal/realtime/notifier.go
package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity levels carried on realtime messages.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Message is what a connected client receives. Data carries event-specific
// fields such as the asset tag or loan id.
type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    int64                  `json:"user_id,omitempty"`
	Severity  string                 `json:"severity"`
}

// NewMessage stamps a message with an id and the current time.
func NewMessage(msgType, title, body, severity string) Message {
	return Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Title:     title,
		Message:   body,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
	}
}

type subscriber struct {
	userID  int64
	manager bool
	ch      chan Message
}

// Hub routes messages to connected clients. Delivery is fire-and-forget: the
// hub holds no history, and a client whose buffer is full loses the message.
// The persisted inbox is the durable record; the hub is only the live mirror.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a client. The returned channel receives messages until
// cancel is called.
func (h *Hub) Subscribe(userID int64, manager bool) (<-chan Message, func()) {
	sub := &subscriber{userID: userID, manager: manager, ch: make(chan Message, 16)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// SendToUser delivers to every connection the user has open.
func (h *Hub) SendToUser(userID int64, msg Message) {
	msg.UserID = userID
	h.send(msg, func(s *subscriber) bool { return s.userID == userID })
}

// Broadcast delivers to every connected client.
func (h *Hub) Broadcast(msg Message) {
	h.send(msg, func(*subscriber) bool { return true })
}

// BroadcastToManagers delivers to clients that subscribed as managers.
func (h *Hub) BroadcastToManagers(msg Message) {
	h.send(msg, func(s *subscriber) bool { return s.manager })
}

// ConnectionCount reports how many clients are attached.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) send(msg Message, match func(*subscriber) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !match(sub) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			log.Printf("realtime: dropping %s message for slow client (user %d)", msg.Type, sub.userID)
		}
	}
}

package feed

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// EventType names the kind of change carried by an Event.
type EventType string

const (
	// EventMessage is published once per appended transcript message.
	EventMessage EventType = "message"
	// EventPending is published whenever the turn pending flag flips.
	EventPending EventType = "pending"
	// EventDelta carries one streamed fragment of a reply that is still being generated.
	EventDelta EventType = "delta"
	// EventCopied is published when the last copied message changes, including the reset to none.
	EventCopied EventType = "copied"
)

// Event is a single change notification delivered to renderers.
type Event struct {
	Type      EventType     `json:"event"`
	Message   *chat.Message `json:"message,omitempty"`
	Pending   *bool         `json:"pending,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	Content   string        `json:"content,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// MessageEvent builds the event announcing an appended message.
func MessageEvent(msg chat.Message) Event {
	msg = msg.Clone()
	return Event{Type: EventMessage, Message: &msg, MessageID: msg.ID}
}

// PendingEvent builds the event announcing a pending flag change.
func PendingEvent(pending bool) Event {
	return Event{Type: EventPending, Pending: &pending}
}

// DeltaEvent builds the event for a streamed fragment answering replyTo.
func DeltaEvent(replyTo, fragment string) Event {
	return Event{Type: EventDelta, MessageID: replyTo, Content: fragment}
}

// CopiedEvent builds the event for a change of the last copied message id.
func CopiedEvent(messageID string) Event {
	return Event{Type: EventCopied, MessageID: messageID}
}

const defaultBuffer = 32

// Hub fans published events out to every live subscriber. A subscriber that
// falls behind loses events rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	buffer int
	logger *zap.Logger
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new listener. The returned cancel func must be called
// once the listener is done; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to all subscribers without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping feed event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("event", string(ev.Type)))
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

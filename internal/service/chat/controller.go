package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
	"github.com/zhouzirui/z-chat/backend/internal/service/feed"
)

// FallbackMessage replaces the assistant reply whenever acquisition fails.
const FallbackMessage = "Sorry, I ran into a problem while generating a response. Please try again."

const maxIDAttempts = 3

var (
	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrCopyUnavailable = errors.New("clipboard is not configured")
)

// Publisher receives transcript and turn-state changes.
type Publisher interface {
	Publish(ev feed.Event)
}

// Copier copies text and tracks the last copied message.
type Copier interface {
	Copy(ctx context.Context, text, id string) error
	LastCopiedID() string
}

// Turn is the outcome of one Submit call.
type Turn struct {
	User      chat.Message `json:"user"`
	Assistant chat.Message `json:"assistant"`
	// Failed is true when Assistant carries FallbackMessage.
	Failed bool `json:"failed"`
	// Skipped is true when the submission was blank and nothing was appended.
	Skipped bool `json:"-"`
}

// Option customizes a Controller.
type Option func(*Controller)

// WithPublisher forwards every change to p.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithCopier enables CopyMessage.
func WithCopier(copier Copier) Option {
	return func(c *Controller) {
		c.copier = copier
	}
}

// WithLogger sets the logger used for acquisition failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithIDGenerator replaces the message id generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) {
		c.newID = newID
	}
}

// Controller runs request/response turns against an Acquirer and owns the
// transcript and turn state. At most one turn is in flight at a time.
type Controller struct {
	store     *Store
	acquirer  ai.Acquirer
	publisher Publisher
	copier    Copier
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	pending bool
}

// NewController wires a controller around store and acquirer.
func NewController(store *Store, acquirer ai.Acquirer, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		acquirer: acquirer,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewStore()
	}
	return c
}

// Submit runs one turn. Blank input (whitespace-only text and no files) is
// ignored and reported through Turn.Skipped. Otherwise exactly one user and
// one assistant message are appended, in that order; an acquisition failure
// yields FallbackMessage instead of an error. Submit returns
// ErrTurnInProgress without appending anything while another turn is pending.
//
// The turn is detached from ctx cancellation so that an abandoned request
// still completes the transcript.
func (c *Controller) Submit(ctx context.Context, text string, files []chat.FileRef) (Turn, error) {
	if chat.IsBlank(text, files) {
		return Turn{Skipped: true}, nil
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return Turn{}, ErrTurnInProgress
	}

	history := c.store.Messages()
	user, err := c.append(chat.SenderUser, text, files)
	if err != nil {
		c.mu.Unlock()
		return Turn{}, err
	}
	c.pending = true
	c.mu.Unlock()

	c.publish(feed.MessageEvent(user))
	c.publish(feed.PendingEvent(true))
	defer c.finishTurn()

	turnCtx := context.WithoutCancel(ctx)
	reply, err := c.acquirer.Resolve(turnCtx, ai.Request{
		Text:    text,
		History: history,
		OnFragment: func(fragment string) {
			c.publish(feed.DeltaEvent(user.ID, fragment))
		},
	})

	failed := false
	switch {
	case err != nil:
		c.logger.Error("response acquisition failed",
			zap.String("messageId", user.ID),
			zap.Error(err))
		reply, failed = FallbackMessage, true
	case strings.TrimSpace(reply) == "":
		c.logger.Error("response acquisition returned blank reply", zap.String("messageId", user.ID))
		reply, failed = FallbackMessage, true
	}

	assistant, err := c.appendReply(reply)
	if err != nil {
		return Turn{User: user}, fmt.Errorf("append assistant reply: %w", err)
	}
	c.publish(feed.MessageEvent(assistant))

	return Turn{User: user, Assistant: assistant, Failed: failed}, nil
}

// CopyMessage copies the content of the message with the given id.
func (c *Controller) CopyMessage(ctx context.Context, id string) error {
	if c.copier == nil {
		return ErrCopyUnavailable
	}

	msg, ok := c.store.Find(id)
	if !ok {
		return fmt.Errorf("copy message %s: %w", id, ErrMessageNotFound)
	}
	return c.copier.Copy(ctx, msg.Content, id)
}

// Messages returns the transcript in order.
func (c *Controller) Messages() []chat.Message {
	return c.store.Messages()
}

// State returns the current turn state.
func (c *Controller) State() chat.TurnState {
	c.mu.Lock()
	state := chat.TurnState{Pending: c.pending}
	c.mu.Unlock()

	if c.copier != nil {
		state.LastCopiedMessageID = c.copier.LastCopiedID()
	}
	return state
}

// Pending reports whether a turn is in flight.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Controller) append(sender chat.Sender, content string, files []chat.FileRef) (chat.Message, error) {
	msg := chat.Message{
		ID:        c.newID(),
		Content:   content,
		Sender:    sender,
		CreatedAt: c.now(),
		Files:     files,
	}

	messages, err := c.store.Append(msg)
	if err != nil {
		return chat.Message{}, err
	}
	return messages[len(messages)-1], nil
}

// appendReply retries with a fresh id when the generated one collides, so a
// reply always follows its user message.
func (c *Controller) appendReply(content string) (chat.Message, error) {
	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		var msg chat.Message
		msg, err = c.append(chat.SenderAI, content, nil)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, ErrDuplicateMessage) {
			return chat.Message{}, err
		}
		c.logger.Warn("assistant message id collided, regenerating", zap.Error(err))
	}
	return chat.Message{}, err
}

func (c *Controller) finishTurn() {
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()

	c.publish(feed.PendingEvent(false))
}

func (c *Controller) publish(ev feed.Event) {
	if c.publisher != nil {
		c.publisher.Publish(ev)
	}
}

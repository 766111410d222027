package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sysclip "github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/service/feed"
)

// DefaultResetDelay is how long a message stays marked as copied.
const DefaultResetDelay = 2 * time.Second

// ErrUnsupported is returned by SystemWriter when no clipboard utility is available.
var ErrUnsupported = errors.New("system clipboard unavailable")

// Writer puts text on a clipboard.
type Writer interface {
	WriteAll(text string) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(text string) error

// WriteAll calls f(text).
func (f WriterFunc) WriteAll(text string) error {
	return f(text)
}

// SystemWriter writes to the host clipboard (pbcopy, xclip, xsel, wl-copy or
// the Windows API, whichever is available).
type SystemWriter struct{}

// WriteAll implements Writer.
func (SystemWriter) WriteAll(text string) error {
	if sysclip.Unsupported {
		return ErrUnsupported
	}
	return sysclip.WriteAll(text)
}

// ClipboardError reports a failed copy.
type ClipboardError struct {
	MessageID string
	Err       error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("copy message %s: %v", e.MessageID, e.Err)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}

// Publisher receives copied-state changes.
type Publisher interface {
	Publish(ev feed.Event)
}

// Config controls a Helper.
type Config struct {
	ResetDelay time.Duration
}

// Helper copies message text and remembers which message was copied last.
// The mark clears after the reset delay; a newer copy restarts the window.
type Helper struct {
	writer    Writer
	delay     time.Duration
	publisher Publisher
	logger    *zap.Logger

	mu         sync.Mutex
	lastCopied string
	timer      *time.Timer
	generation uint64
}

// NewHelper builds a Helper. A nil writer falls back to SystemWriter.
func NewHelper(cfg Config, writer Writer, publisher Publisher, logger *zap.Logger) *Helper {
	if writer == nil {
		writer = SystemWriter{}
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Helper{
		writer:    writer,
		delay:     cfg.ResetDelay,
		publisher: publisher,
		logger:    logger,
	}
}

// Copy writes text to the clipboard and marks id as the last copied message.
// On failure the previous mark is left untouched.
func (h *Helper) Copy(ctx context.Context, text, id string) error {
	if err := ctx.Err(); err != nil {
		return &ClipboardError{MessageID: id, Err: err}
	}

	if err := h.writer.WriteAll(text); err != nil {
		h.logger.Error("failed to copy message to clipboard",
			zap.String("messageId", id),
			zap.Error(err))
		return &ClipboardError{MessageID: id, Err: err}
	}

	h.mu.Lock()
	h.generation++
	gen := h.generation
	h.lastCopied = id
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.delay, func() {
		h.expire(gen)
	})
	h.mu.Unlock()

	h.publish(id)
	return nil
}

// LastCopiedID returns the id of the most recently copied message, or "" once
// the reset delay has passed.
func (h *Helper) LastCopiedID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastCopied
}

// Close stops any pending reset. The current mark is kept.
func (h *Helper) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.generation++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// expire clears the mark unless a newer copy has replaced the timer.
func (h *Helper) expire(gen uint64) {
	h.mu.Lock()
	if gen != h.generation {
		h.mu.Unlock()
		return
	}
	h.lastCopied = ""
	h.timer = nil
	h.mu.Unlock()

	h.publish("")
}

func (h *Helper) publish(id string) {
	if h.publisher != nil {
		h.publisher.Publish(feed.CopiedEvent(id))
	}
}

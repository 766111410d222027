package chat

import (
	"errors"
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

var (
	ErrEmptyMessage  = errors.New("message content is empty and no files are attached")
	ErrInvalidSender = errors.New("message sender is invalid")
	ErrMissingID     = errors.New("message id is required")
)

// FileRef 描述随消息附带的文件，仅用于展示。
type FileRef struct {
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Message is one entry of the conversation transcript. Messages are values:
// once appended they are never edited.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
	Files     []FileRef `json:"files,omitempty"`
}

// Validate checks the invariants a message must satisfy before it is stored.
func (m Message) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !m.Sender.Valid() {
		return ErrInvalidSender
	}
	if m.Content == "" && len(m.Files) == 0 {
		return ErrEmptyMessage
	}
	return nil
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Files != nil {
		m.Files = append([]FileRef(nil), m.Files...)
	}
	return m
}

// IsBlank reports whether a submission carries nothing worth sending.
func IsBlank(text string, files []FileRef) bool {
	return strings.TrimSpace(text) == "" && len(files) == 0
}

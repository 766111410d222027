package chat

// TurnState is the transient UI-facing state of the conversation.
type TurnState struct {
	Pending             bool   `json:"pending"`
	LastCopiedMessageID string `json:"lastCopiedMessageId,omitempty"`
}

package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// DefaultSystemPrompt is sent when no custom prompt is configured.
const DefaultSystemPrompt = `You are a helpful, concise AI assistant embedded in a chat window.
Answer in the language the user writes in. Use Markdown for lists and code.
If a message starts with a mode tag such as [Search: ...], [Think: ...] or [Canvas: ...], follow that mode.`

const defaultHistoryLimit = 10

// buildSystemPrompt appends the names of files attached in the current
// conversation so the model knows they exist, even though their contents are
// not forwarded.
func buildSystemPrompt(base string, history []chat.Message) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}

	var names []string
	for _, msg := range history {
		for _, f := range msg.Files {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return base
	}

	return fmt.Sprintf("%s\n\nThe user has attached these files earlier in the conversation (contents unavailable): %s.",
		base, strings.Join(names, ", "))
}

func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAI:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}

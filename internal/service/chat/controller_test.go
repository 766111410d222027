package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/feed"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *recordingPublisher) Publish(ev feed.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []feed.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]feed.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fakeCopier struct {
	mu     sync.Mutex
	copied map[string]string
	last   string
	err    error
}

func (f *fakeCopier) Copy(_ context.Context, text, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.copied == nil {
		f.copied = make(map[string]string)
	}
	f.copied[id] = text
	f.last = id
	return nil
}

func (f *fakeCopier) LastCopiedID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func echoAcquirer() ai.Acquirer {
	return ai.AcquirerFunc(func(_ context.Context, req ai.Request) (string, error) {
		return "echo: " + req.Text, nil
	})
}

func TestSubmitAppendsUserThenAssistant(t *testing.T) {
	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer())

	turn, err := c.Submit(context.Background(), "  hello there  ", nil)
	require.NoError(t, err)
	require.False(t, turn.Skipped)
	assert.False(t, turn.Failed)

	messages := c.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, chat.SenderUser, messages[0].Sender)
	assert.Equal(t, "  hello there  ", messages[0].Content, "stored content must not be trimmed")
	assert.Equal(t, chat.SenderAI, messages[1].Sender)
	assert.Equal(t, "echo:   hello there  ", messages[1].Content)
	assert.NotEqual(t, messages[0].ID, messages[1].ID)
	assert.Equal(t, turn.User.ID, messages[0].ID)
	assert.Equal(t, turn.Assistant.ID, messages[1].ID)
	assert.False(t, c.State().Pending)
}

func TestSubmitBlankInputIsNoop(t *testing.T) {
	called := false
	acq := ai.AcquirerFunc(func(context.Context, ai.Request) (string, error) {
		called = true
		return "unused", nil
	})
	pub := &recordingPublisher{}
	c := chatservice.NewController(chatservice.NewStore(), acq, chatservice.WithPublisher(pub))

	for _, text := range []string{"", "   ", "\n\t"} {
		turn, err := c.Submit(context.Background(), text, nil)
		require.NoError(t, err)
		assert.True(t, turn.Skipped)
	}

	assert.Empty(t, c.Messages())
	assert.False(t, called)
	assert.Empty(t, pub.types())
}

func TestSubmitFilesOnly(t *testing.T) {
	var gotText string
	acq := ai.AcquirerFunc(func(_ context.Context, req ai.Request) (string, error) {
		gotText = req.Text
		return "I see a file.", nil
	})
	c := chatservice.NewController(chatservice.NewStore(), acq)

	files := []chat.FileRef{{Name: "diagram.png", Size: 2048, MimeType: "image/png"}}
	turn, err := c.Submit(context.Background(), "", files)
	require.NoError(t, err)

	require.Len(t, c.Messages(), 2)
	assert.Equal(t, "", turn.User.Content)
	assert.Equal(t, files, turn.User.Files)
	assert.Equal(t, "", gotText)
	assert.Empty(t, turn.Assistant.Files)
}

func TestSubmitPendingSpansAcquisition(t *testing.T) {
	var c *chatservice.Controller
	var pendingDuring bool
	var lenDuring int

	acq := ai.AcquirerFunc(func(context.Context, ai.Request) (string, error) {
		pendingDuring = c.State().Pending
		lenDuring = len(c.Messages())
		return "done", nil
	})
	c = chatservice.NewController(chatservice.NewStore(), acq)

	assert.False(t, c.Pending())
	_, err := c.Submit(context.Background(), "hi", nil)
	require.NoError(t, err)

	assert.True(t, pendingDuring)
	assert.Equal(t, 1, lenDuring, "user message must be appended before acquisition")
	assert.False(t, c.Pending())
}

func TestSubmitFailureAppendsFallback(t *testing.T) {
	for _, cause := range []error{
		errors.New("connection refused"),
		&ai.AcquisitionError{Strategy: ai.StrategyProvider, Err: errors.New("401 unauthorized: key sk-secret")},
	} {
		t.Run(cause.Error(), func(t *testing.T) {
			var c *chatservice.Controller
			var pendingDuring bool
			acq := ai.AcquirerFunc(func(context.Context, ai.Request) (string, error) {
				pendingDuring = c.Pending()
				return "", cause
			})
			c = chatservice.NewController(chatservice.NewStore(), acq, chatservice.WithLogger(zaptest.NewLogger(t)))

			turn, err := c.Submit(context.Background(), "tell me something", nil)
			require.NoError(t, err)
			assert.True(t, turn.Failed)
			assert.True(t, pendingDuring)

			messages := c.Messages()
			require.Len(t, messages, 2)
			assert.Equal(t, chat.SenderUser, messages[0].Sender)
			assert.Equal(t, chat.SenderAI, messages[1].Sender)
			assert.Equal(t, chatservice.FallbackMessage, messages[1].Content)
			assert.NotContains(t, messages[1].Content, "sk-secret")
			assert.False(t, c.Pending())
		})
	}
}

func TestSubmitBlankReplyAppendsFallback(t *testing.T) {
	acq := ai.AcquirerFunc(func(context.Context, ai.Request) (string, error) {
		return "  ", nil
	})
	c := chatservice.NewController(chatservice.NewStore(), acq)

	turn, err := c.Submit(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.True(t, turn.Failed)
	assert.Equal(t, chatservice.FallbackMessage, turn.Assistant.Content)
}

func TestSubmitRegeneratesCollidingReplyID(t *testing.T) {
	ids := []string{"u1", "u1", "a1"}
	var next int
	newID := func() string {
		id := ids[next]
		next++
		return id
	}
	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer(),
		chatservice.WithIDGenerator(newID),
		chatservice.WithLogger(zaptest.NewLogger(t)))

	turn, err := c.Submit(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", turn.User.ID)
	assert.Equal(t, "a1", turn.Assistant.ID)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.SenderUser, msgs[0].Sender)
	assert.Equal(t, chat.SenderAI, msgs[1].Sender)
	assert.False(t, c.Pending())
}

func TestSubmitGivesUpAfterRepeatedIDCollisions(t *testing.T) {
	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer(),
		chatservice.WithIDGenerator(func() string { return "same" }))

	_, err := c.Submit(context.Background(), "hi", nil)
	require.ErrorIs(t, err, chatservice.ErrDuplicateMessage)
	assert.Len(t, c.Messages(), 1)
	assert.False(t, c.Pending())
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	acq := ai.AcquirerFunc(func(context.Context, ai.Request) (string, error) {
		close(entered)
		<-release
		return "first reply", nil
	})
	c := chatservice.NewController(chatservice.NewStore(), acq)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "first", nil)
		done <- err
	}()
	<-entered

	_, err := c.Submit(context.Background(), "second", nil)
	require.ErrorIs(t, err, chatservice.ErrTurnInProgress)
	assert.Len(t, c.Messages(), 1, "rejected submit must not append")

	close(release)
	require.NoError(t, <-done)

	messages := c.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "first reply", messages[1].Content)
}

func TestSubmitIgnoresCallerCancellation(t *testing.T) {
	acq := ai.AcquirerFunc(func(ctx context.Context, _ ai.Request) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "still here", nil
	})
	c := chatservice.NewController(chatservice.NewStore(), acq)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	turn, err := c.Submit(ctx, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "still here", turn.Assistant.Content)
}

func TestSubmitManyTurnsKeepsOrdering(t *testing.T) {
	// A clock that runs backwards must not break chronological order.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		if tick%3 == 0 {
			return start
		}
		return start.Add(time.Duration(tick) * time.Millisecond)
	}

	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer(), chatservice.WithClock(clock))

	const turns = 25
	for i := 0; i < turns; i++ {
		_, err := c.Submit(context.Background(), fmt.Sprintf("message %d", i), nil)
		require.NoError(t, err)
	}

	messages := c.Messages()
	require.Len(t, messages, 2*turns)
	assert.True(t, sort.SliceIsSorted(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	}))

	seen := make(map[string]bool, len(messages))
	for i, msg := range messages {
		assert.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
		if i%2 == 0 {
			assert.Equal(t, chat.SenderUser, msg.Sender)
		} else {
			assert.Equal(t, chat.SenderAI, msg.Sender)
		}
	}
}

func TestSubmitPassesHistoryAndPublishesEvents(t *testing.T) {
	var histories [][]chat.Message
	acq := ai.AcquirerFunc(func(_ context.Context, req ai.Request) (string, error) {
		histories = append(histories, req.History)
		req.OnFragment("par")
		req.OnFragment("tial")
		return "partial", nil
	})
	pub := &recordingPublisher{}
	c := chatservice.NewController(chatservice.NewStore(), acq, chatservice.WithPublisher(pub))

	_, err := c.Submit(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), "two", nil)
	require.NoError(t, err)

	require.Len(t, histories, 2)
	assert.Empty(t, histories[0])
	require.Len(t, histories[1], 2)
	assert.Equal(t, "one", histories[1][0].Content)

	want := []feed.EventType{
		feed.EventMessage, feed.EventPending, feed.EventDelta, feed.EventDelta, feed.EventMessage, feed.EventPending,
	}
	assert.Equal(t, append(want, want...), pub.types())
}

func TestCopyMessage(t *testing.T) {
	copier := &fakeCopier{}
	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer(), chatservice.WithCopier(copier))

	turn, err := c.Submit(context.Background(), "abc", nil)
	require.NoError(t, err)

	require.NoError(t, c.CopyMessage(context.Background(), turn.Assistant.ID))
	assert.Equal(t, "echo: abc", copier.copied[turn.Assistant.ID])
	assert.Equal(t, turn.Assistant.ID, c.State().LastCopiedMessageID)

	err = c.CopyMessage(context.Background(), "missing")
	require.ErrorIs(t, err, chatservice.ErrMessageNotFound)
}

func TestCopyMessageFailureKeepsTranscript(t *testing.T) {
	copier := &fakeCopier{err: errors.New("no clipboard")}
	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer(), chatservice.WithCopier(copier))

	turn, err := c.Submit(context.Background(), "abc", nil)
	require.NoError(t, err)

	require.Error(t, c.CopyMessage(context.Background(), turn.User.ID))
	assert.Len(t, c.Messages(), 2)
	assert.Empty(t, c.State().LastCopiedMessageID)
}

func TestCopyMessageWithoutCopier(t *testing.T) {
	c := chatservice.NewController(chatservice.NewStore(), echoAcquirer())
	require.ErrorIs(t, c.CopyMessage(context.Background(), "any"), chatservice.ErrCopyUnavailable)
}

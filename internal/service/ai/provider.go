package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// EmptyReplyMessage is returned when the provider answers with no text at all.
const EmptyReplyMessage = "Sorry, I couldn't come up with a response. Could you rephrase that?"

// ProviderConfig controls how the hosted model is called.
type ProviderConfig struct {
	Model        string
	Stream       bool
	SystemPrompt string
	HistoryLimit int
}

// ProviderAcquirer asks a hosted chat-completion model for the reply.
type ProviderAcquirer struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	cfg    ProviderConfig
	logger *zap.Logger
}

// NewProviderAcquirer compiles the prompt chain around chatModel.
func NewProviderAcquirer(ctx context.Context, chatModel model.BaseChatModel, cfg ProviderConfig, logger *zap.Logger) (*ProviderAcquirer, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ProviderAcquirer{
		chain:  runnable,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// StreamingEnabled reports whether replies are requested as a stream.
func (p *ProviderAcquirer) StreamingEnabled() bool {
	return p.cfg.Stream
}

// Resolve sends the utterance to the provider and returns the full reply. In
// streaming mode the fragments are concatenated in arrival order.
func (p *ProviderAcquirer) Resolve(ctx context.Context, req Request) (string, error) {
	input := p.buildChainInput(req)

	var (
		reply string
		err   error
	)
	if p.cfg.Stream {
		reply, err = p.stream(ctx, input, req.OnFragment)
	} else {
		reply, err = p.invoke(ctx, input)
	}
	if err != nil {
		return "", &AcquisitionError{Strategy: StrategyProvider, Err: err}
	}

	if reply == "" {
		p.logger.Warn("provider returned an empty reply", zap.String("model", p.cfg.Model))
		return EmptyReplyMessage, nil
	}

	p.logger.Debug("provider reply received",
		zap.String("model", p.cfg.Model),
		zap.Bool("stream", p.cfg.Stream),
		zap.Int("length", len(reply)))
	return reply, nil
}

func (p *ProviderAcquirer) invoke(ctx context.Context, input map[string]any) (string, error) {
	response, err := p.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}

func (p *ProviderAcquirer) stream(ctx context.Context, input map[string]any, onFragment func(string)) (string, error) {
	stream, err := p.chain.Stream(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("failed to receive stream fragment: %w", recvErr)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		builder.WriteString(chunk.Content)
		if onFragment != nil {
			onFragment(chunk.Content)
		}
	}

	return builder.String(), nil
}

func (p *ProviderAcquirer) buildChainInput(req Request) map[string]any {
	return map[string]any{
		"system":  buildSystemPrompt(p.cfg.SystemPrompt, req.History),
		"history": buildHistoryMessages(req.History, p.cfg.HistoryLimit),
		"query":   req.Text,
	}
}

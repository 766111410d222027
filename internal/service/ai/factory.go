package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/config"
)

// NewAcquirer picks the response strategy described by cfg. In auto mode a
// provider that cannot be initialized degrades to the simulated responder.
func NewAcquirer(ctx context.Context, aiCfg config.AIConfig, chatCfg config.ChatConfig, logger *zap.Logger) (Acquirer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	simulated := func() Acquirer {
		return NewSimulatedAcquirer(SimulatedConfig{
			MinDelay: chatCfg.SimMinDelay,
			MaxDelay: chatCfg.SimMaxDelay,
		})
	}

	switch chatCfg.Responder {
	case config.ResponderSimulated:
		logger.Info("using simulated responder")
		return simulated(), nil
	case config.ResponderProvider:
		acq, err := newProvider(ctx, aiCfg, chatCfg, logger)
		if err != nil {
			return nil, err
		}
		return acq, nil
	}

	if !aiCfg.Enabled() {
		logger.Info("Ark 凭证未配置，使用模拟回复")
		return simulated(), nil
	}

	acq, err := newProvider(ctx, aiCfg, chatCfg, logger)
	if err != nil {
		logger.Warn("failed to initialize AI provider, falling back to simulated responder", zap.Error(err))
		return simulated(), nil
	}
	return acq, nil
}

func newProvider(ctx context.Context, aiCfg config.AIConfig, chatCfg config.ChatConfig, logger *zap.Logger) (*ProviderAcquirer, error) {
	chatModel, err := aiCfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	acq, err := NewProviderAcquirer(ctx, chatModel, ProviderConfig{
		Model:        aiCfg.Model,
		Stream:       aiCfg.StreamResponse,
		SystemPrompt: chatCfg.SystemPrompt,
		HistoryLimit: chatCfg.HistoryLimit,
	}, logger.Named("provider"))
	if err != nil {
		return nil, err
	}

	logger.Info("AI provider initialized",
		zap.String("model", aiCfg.Model),
		zap.Bool("stream", acq.StreamingEnabled()))
	return acq, nil
}

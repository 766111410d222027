package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

const (
	StrategySimulated = "simulated"
	StrategyProvider  = "provider"
)

// Request is the input of a single response acquisition.
type Request struct {
	// Text is the user's utterance exactly as submitted.
	Text string
	// History holds the transcript that preceded this turn.
	History []chat.Message
	// OnFragment, when set, receives each non-empty streamed fragment as it
	// arrives. It is purely informational; Resolve still returns the full reply.
	OnFragment func(fragment string)
}

// Acquirer produces the assistant reply for a user utterance.
type Acquirer interface {
	Resolve(ctx context.Context, req Request) (string, error)
}

// AcquisitionError reports that a strategy could not produce a reply.
type AcquisitionError struct {
	Strategy string
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s acquirer: %v", e.Strategy, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// AcquirerFunc adapts a plain function to the Acquirer interface.
type AcquirerFunc func(ctx context.Context, req Request) (string, error)

// Resolve calls f(ctx, req).
func (f AcquirerFunc) Resolve(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

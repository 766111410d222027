package ai

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Rule maps a set of keywords to a canned reply. Keywords match
// case-insensitively anywhere in the input.
type Rule struct {
	Name     string
	Keywords []string
	Reply    string
}

// Matches reports whether any keyword occurs in the lower-cased input.
func (r Rule) Matches(normalized string) bool {
	for _, word := range r.Keywords {
		if word == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

const (
	GreetingReply = "Hello! I'm your AI assistant. How can I help you today?"
	SearchReply   = "I searched for that and here's a summary of what I found. Search results are simulated in this mode, so treat them as a placeholder for live sources."
	ThinkReply    = "Let me think this through step by step. First I'd restate the problem, then weigh the options, and finally settle on the most reasonable answer."
	CanvasReply   = "I've opened a canvas for this. We can draft and refine the content together, one section at a time."

	// Disclaimer is appended to every generic reply.
	Disclaimer = "\n\n(This is a simulated response. Configure an AI provider to get real answers.)"
)

// DefaultRules is the ordered rule list of the simulated responder. Mode tags
// inserted by the input box are checked before plain keywords.
var DefaultRules = []Rule{
	{Name: "search", Keywords: []string{"[Search:"}, Reply: SearchReply},
	{Name: "think", Keywords: []string{"[Think:"}, Reply: ThinkReply},
	{Name: "canvas", Keywords: []string{"[Canvas:"}, Reply: CanvasReply},
	{Name: "greeting", Keywords: []string{"hello"}, Reply: GreetingReply},
	{
		Name:     "help",
		Keywords: []string{"help", "how do i", "how to"},
		Reply:    "I'm here to help! Tell me a bit more about what you're working on and I'll walk you through it.",
	},
	{
		Name:     "code",
		Keywords: []string{"code", "function", "bug", "error"},
		Reply:    "Happy to look at code with you. Paste the relevant snippet along with what you expected to happen and what actually happened.",
	},
	{
		Name:     "thanks",
		Keywords: []string{"thank"},
		Reply:    "You're welcome! Let me know if there's anything else I can do.",
	},
}

// GenericReplies are picked uniformly at random when no rule matches.
var GenericReplies = []string{
	"That's an interesting question. Let me think about it for a moment.",
	"I understand what you're asking. Here's my take on it.",
	"Thanks for sharing that. There are a few ways to look at this.",
	"Good point! I'd approach it by breaking it into smaller pieces.",
	"I see. Could you tell me a little more so I can give a better answer?",
}

// SimulatedConfig controls the local responder.
type SimulatedConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Rules    []Rule
	Generic  []string
}

func (c SimulatedConfig) withDefaults() SimulatedConfig {
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.Rules == nil {
		c.Rules = DefaultRules
	}
	if len(c.Generic) == 0 {
		c.Generic = GenericReplies
	}
	return c
}

// SimulatedOption customizes a SimulatedAcquirer.
type SimulatedOption func(*SimulatedAcquirer)

// WithRand replaces the random source used for delays and generic picks.
func WithRand(rng *rand.Rand) SimulatedOption {
	return func(a *SimulatedAcquirer) {
		a.rng = rng
	}
}

// WithSleeper replaces the function used to wait out the artificial delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SimulatedOption {
	return func(a *SimulatedAcquirer) {
		a.sleep = sleep
	}
}

// SimulatedAcquirer answers locally from canned replies after an artificial
// delay. It is used when no provider is configured and in demos.
type SimulatedAcquirer struct {
	cfg   SimulatedConfig
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedAcquirer builds a simulated responder.
func NewSimulatedAcquirer(cfg SimulatedConfig, opts ...SimulatedOption) *SimulatedAcquirer {
	now := uint64(time.Now().UnixNano())
	a := &SimulatedAcquirer{
		cfg:   cfg.withDefaults(),
		sleep: sleepContext,
		rng:   rand.New(rand.NewPCG(now, now>>1)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolve waits for the simulated latency and returns a canned reply. It only
// fails when ctx ends before the delay elapses.
func (a *SimulatedAcquirer) Resolve(ctx context.Context, req Request) (string, error) {
	if err := a.sleep(ctx, a.delay()); err != nil {
		return "", &AcquisitionError{Strategy: StrategySimulated, Err: err}
	}
	return a.Respond(req.Text), nil
}

// Respond selects the reply for text without any delay.
func (a *SimulatedAcquirer) Respond(text string) string {
	normalized := strings.ToLower(text)
	for _, rule := range a.cfg.Rules {
		if rule.Matches(normalized) {
			return rule.Reply
		}
	}

	a.mu.Lock()
	pick := a.cfg.Generic[a.rng.IntN(len(a.cfg.Generic))]
	a.mu.Unlock()

	return pick + Disclaimer
}

func (a *SimulatedAcquirer) delay() time.Duration {
	span := a.cfg.MaxDelay - a.cfg.MinDelay
	if span <= 0 {
		return a.cfg.MinDelay
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.MinDelay + time.Duration(a.rng.Int64N(int64(span)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

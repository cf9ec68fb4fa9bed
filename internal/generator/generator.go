package generator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/ai"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
)

// Source is the generated code pair handed to the preview and stored on a session.
type Source struct {
	JSX string `json:"jsx"`
	CSS string `json:"css"`
}

// Turn is one prior chat entry forwarded to the model as context.
type Turn struct {
	Role    string
	Content string
}

type Outcome int

const (
	Parsed Outcome = iota
	ParseFallback
	ServiceFallback
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case ParseFallback:
		return "parse_fallback"
	case ServiceFallback:
		return "service_fallback"
	default:
		return "unknown"
	}
}

// Result is a generation tagged with how it was obtained.
// Err is set only for ServiceFallback.
type Result struct {
	Source  Source
	Outcome Outcome
	Err     error
}

// Generator turns a prompt into a component. It never fails: provider and
// parse problems degrade into an error-rendering component.
type Generator struct {
	registry *ai.Registry
	provider string
	model    string
}

func New(registry *ai.Registry, provider, model string) *Generator {
	return &Generator{registry: registry, provider: provider, model: model}
}

// Run performs one completion and reports the outcome.
func (g *Generator) Run(ctx context.Context, prompt string, previous *Source, recent []Turn) Result {
	log := logger.FromContext(ctx)
	start := time.Now()

	raw, err := g.complete(ctx, buildMessages(prompt, previous, recent))
	if err != nil {
		log.Warn("generation failed",
			zap.String("provider", g.provider),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return Result{Source: serviceFallback(err), Outcome: ServiceFallback, Err: err}
	}

	src, ok := parseReply(raw)
	if !ok {
		log.Warn("unparseable generation reply",
			zap.String("provider", g.provider),
			zap.Int("reply_len", len(raw)),
		)
		return Result{Source: parseFallback(raw), Outcome: ParseFallback}
	}

	log.Info("generation done",
		zap.String("provider", g.provider),
		zap.Bool("refinement", previous != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Result{Source: src, Outcome: Parsed}
}

// Generate is Run without the tag.
func (g *Generator) Generate(ctx context.Context, prompt string, previous *Source, recent []Turn) Source {
	return g.Run(ctx, prompt, previous, recent).Source
}

// Refine regenerates current according to prompt.
func (g *Generator) Refine(ctx context.Context, current Source, prompt string, recent []Turn) Source {
	return g.Generate(ctx, prompt, &current, recent)
}

func (g *Generator) complete(ctx context.Context, msgs []ai.Message) (string, error) {
	if g.registry == nil {
		return "", errors.New("no ai provider registry configured")
	}
	p, err := g.registry.Get(ctx, g.provider, g.model)
	if err != nil {
		return "", err
	}
	return p.Chat(ctx, msgs)
}

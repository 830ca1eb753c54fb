package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-callsynth/internal/config"
	"github.com/loqalabs/loqa-callsynth/internal/timeline"
)

const systemPrompt = "I'm a call center manager. I'm trying to synthesize example conversations to help train new agents."

// Request describes a language model prompt.
type Request struct {
	SessionID   string
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	SessionID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable language model backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// NewGenerator builds the backend selected by cfg.Mode.
func NewGenerator(cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", cfg.Mode)
	}
}

// BuildRequest turns scenario guidelines into a prompt asking for a stereo
// conversation in language.
func BuildRequest(cfg config.GeneratorConfig, guidelines, language string) Request {
	var b strings.Builder
	b.WriteString("Your goal is to synthesize a one to two minute conversation between a ")
	b.WriteString("client and agent or manager.  Please follow the SCRIPT guidelines provided ")
	b.WriteString("below and use them to inform the conversation.  It should be realistic, and ")
	b.WriteString("representative of a natural, semi-spontaneous interaction. Please output ")
	fmt.Fprintf(&b, "the conversation text in the following language: %s.\n\n", language)
	fmt.Fprintf(&b, "SCRIPT::\n%s\n\n", strings.TrimSpace(guidelines))
	b.WriteString("RESPONSE:: Please return ONLY a valid JSON FORMAT object as response. ")
	b.WriteString("There should be no commentary.  There should be no other text or content ")
	b.WriteString("outside of the valid JSON object.  The format of the object should be:\n\n")
	b.WriteString(` [ {"channel": "1", "text": "TEXT"}, {"channel": "2", "text": "TEXT"}, ...]` + "\n")
	b.WriteString("Finally, note that the object must encode a STEREO conversation with exactly ")
	b.WriteString("two channels, no more and no less.")
	return Request{
		Prompt:      b.String(),
		System:      systemPrompt,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

// Generate runs req through gen and parses the accumulated completion into a
// validated stereo script.
func Generate(ctx context.Context, gen Generator, req Request) ([]timeline.Turn, error) {
	var out strings.Builder
	err := gen.Generate(ctx, req, func(c Chunk) error {
		out.WriteString(c.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate conversation: %w", err)
	}
	turns, err := Parse([]byte(out.String()))
	if err != nil {
		return nil, fmt.Errorf("parse generated conversation: %w", err)
	}
	if err := Validate(turns); err != nil {
		return nil, fmt.Errorf("generated conversation: %w", err)
	}
	return turns, nil
}

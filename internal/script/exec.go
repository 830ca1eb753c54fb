package script

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-callsynth/internal/audio"
)

type execGenerator struct {
	cmd []string
}

type execResponse struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

func NewExecGenerator(command string) (Generator, error) {
	argv, err := audio.ParseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	return &execGenerator{cmd: argv}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(map[string]any{
		"prompt":      req.Prompt,
		"system":      req.System,
		"model":       req.Model,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	output, err := audio.RunInput(ctx, g.cmd, input)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return fmt.Errorf("decode generator response: %w", err)
	}
	return consumer(Chunk{
		SessionID:        req.SessionID,
		Content:          resp.Content,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Latency:          time.Since(start),
	})
}

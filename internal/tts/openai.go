package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAISampleRate is the fixed rate of the speech endpoint's raw pcm output.
const openAISampleRate = 24000

type openAISynth struct {
	endpoint string
	apiKey   string
	model    string
	format   string
	timeout  time.Duration
	client   *http.Client
}

type openAIRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// NewOpenAISynth talks to an OpenAI compatible /v1/audio/speech endpoint.
// encoding selects response_format and must be one of pcm, wav or mp3.
func NewOpenAISynth(endpoint, apiKey, model, encoding string, timeout time.Duration) (Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("openai endpoint is required")
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &openAISynth{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		format:   encoding,
		timeout:  timeout,
		client:   &http.Client{},
	}, nil
}

func (s *openAISynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		data, err := s.fetch(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		chunks <- SynthChunk{
			SessionID:  req.SessionID,
			Encoding:   s.format,
			SampleRate: openAISampleRate,
			Channels:   1,
			Data:       data,
			Final:      true,
		}
	}()
	return chunks, errs
}

func (s *openAISynth) fetch(ctx context.Context, req SynthRequest) ([]byte, error) {
	body, err := json.Marshal(openAIRequest{
		Model:          s.model,
		Input:          req.Text,
		Voice:          strings.ToLower(req.Voice),
		ResponseFormat: s.format,
	})
	if err != nil {
		return nil, err
	}

	reqCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(resp.Body)
}

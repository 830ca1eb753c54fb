package tts

import (
	"fmt"
	"time"

	"github.com/loqalabs/loqa-callsynth/internal/config"
)

// New builds the synthesizer selected by cfg.Mode.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockSynth(cfg.SampleRate, nil), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.ProviderRate, cfg.Engine, cfg.Encoding)
	case "openai":
		return NewOpenAISynth(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Encoding, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assembly.OverlapProbability != 0.05 {
		t.Fatalf("expected default overlap probability 0.05, got %v", cfg.Assembly.OverlapProbability)
	}
	if cfg.Voices.Channel1 != "Joanna" || cfg.Voices.Channel2 != "Matthew" {
		t.Fatalf("unexpected default voices: %+v", cfg.Voices)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-call.yaml")
	body := `
assembly:
  overlap_probability: 0.2
  tool: sox
  format: mp3
  verbose: true
voices:
  channel_1: Amy
tts:
  mode: exec
  command: "python3 polly_synth.py --engine neural"
  encoding: mp3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Assembly.OverlapProbability != 0.2 || cfg.Assembly.Tool != "sox" || !cfg.Assembly.Verbose {
		t.Fatalf("assembly not decoded: %+v", cfg.Assembly)
	}
	if cfg.Voices.Channel1 != "Amy" || cfg.Voices.Channel2 != "Matthew" {
		t.Fatalf("voices should merge over defaults: %+v", cfg.Voices)
	}
	if cfg.Assembly.WorkDir != "./tmp" {
		t.Fatalf("expected default work dir to survive, got %q", cfg.Assembly.WorkDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_CALL_OVERLAP_PROBABILITY", "0.5")
	t.Setenv("LOQA_CALL_VOICE_1", "Kimberly")
	t.Setenv("LOQA_CALL_VOICE_2", "Justin")
	t.Setenv("LOQA_CALL_WORK_DIR", "/var/tmp/calls")
	t.Setenv("LOQA_CALL_SEED", "1234")
	t.Setenv("LOQA_CALL_VERBOSE", "true")
	t.Setenv("LOQA_CALL_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_CALL_EVENT_STORE_MAX_RUNS", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Assembly.OverlapProbability != 0.5 {
		t.Fatalf("expected overlap override, got %v", cfg.Assembly.OverlapProbability)
	}
	if cfg.Voices.Channel1 != "Kimberly" || cfg.Voices.Channel2 != "Justin" {
		t.Fatalf("expected voice overrides, got %+v", cfg.Voices)
	}
	if cfg.Assembly.WorkDir != "/var/tmp/calls" {
		t.Fatalf("expected work dir override")
	}
	if cfg.Assembly.Seed != 1234 {
		t.Fatalf("expected seed override, got %d", cfg.Assembly.Seed)
	}
	if !cfg.Assembly.Verbose {
		t.Fatal("expected verbose override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.EventStore.MaxRuns != 12 {
		t.Fatalf("expected max runs override")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"probability above one": func(c *Config) { c.Assembly.OverlapProbability = 1.5 },
		"native needs wav":      func(c *Config) { c.Assembly.Format = "mp3" },
		"unknown tool":          func(c *Config) { c.Assembly.Tool = "ffmpeg" },
		"exec without command":  func(c *Config) { c.TTS.Mode = "exec" },
		"missing voice":         func(c *Config) { c.Voices.Channel2 = "" },
		"bad placement":         func(c *Config) { c.Assembly.Placement = "random" },
		"zero prefetch":         func(c *Config) { c.Assembly.Prefetch = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

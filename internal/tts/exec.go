package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/loqalabs/loqa-callsynth/internal/audio"
)

// execSynth delegates synthesis to an external command. The command receives
// one JSON request on stdin and answers with newline-delimited JSON chunks.
type execSynth struct {
	cmd        []string
	sampleRate int
	engine     string
	encoding   string
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	Language   string `json:"language,omitempty"`
	Engine     string `json:"engine,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Encoding    string `json:"encoding,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	Final       bool   `json:"final"`
	Error       string `json:"error,omitempty"`
}

// NewExecSynth parses command with shell quoting rules. encoding is the
// payload format the command is expected to produce (pcm, wav or mp3).
func NewExecSynth(command string, sampleRate int, engine, encoding string) (Synthesizer, error) {
	args, err := audio.ParseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, engine: engine, encoding: encoding}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		data, err := json.Marshal(execRequest{
			Text:       req.Text,
			Voice:      req.Voice,
			Language:   req.Language,
			Engine:     e.engine,
			SampleRate: e.sampleRate,
			Encoding:   e.encoding,
		})
		if err != nil {
			errs <- err
			return
		}

		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
		cmd.Stdin = bytes.NewReader(data)
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- err
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- fmt.Errorf("start tts command: %w", err)
			return
		}

		fail := func(err error) {
			_ = cmd.Wait()
			errs <- err
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
		sequence := 0
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				fail(fmt.Errorf("decode tts response: %w", err))
				return
			}
			if resp.Error != "" {
				fail(fmt.Errorf("tts command: %s", resp.Error))
				return
			}
			payload, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
			if err != nil {
				fail(fmt.Errorf("decode tts audio: %w", err))
				return
			}
			encoding := resp.Encoding
			if encoding == "" {
				encoding = e.encoding
			}
			rate := resp.SampleRate
			if rate == 0 {
				rate = e.sampleRate
			}
			select {
			case chunks <- SynthChunk{
				SessionID:  req.SessionID,
				Sequence:   sequence,
				Encoding:   encoding,
				SampleRate: rate,
				Channels:   1,
				Data:       payload,
				Final:      resp.Final,
			}:
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
			sequence++
		}
		if err := cmd.Wait(); err != nil {
			errs <- fmt.Errorf("tts: %w", audio.CommandError(e.cmd, stderr.String(), err))
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errs <- scanErr
		}
	}()
	return chunks, errs
}

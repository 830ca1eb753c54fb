// Package script reads, validates and writes two-party conversation scripts.
package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-callsynth/internal/timeline"
)

// ErrNotStereo reports a script that does not use exactly two channels.
var ErrNotStereo = errors.New("script must use exactly two channels")

// record is the on-disk shape of a turn. Generated scripts carry the channel
// as a string ("1"), hand-written ones often as a number.
type record struct {
	Channel channel `json:"channel"`
	Text    string  `json:"text"`
}

type channel int

func (c *channel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("channel %q is not a number", s)
		}
		*c = channel(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channel must be a string or integer: %w", err)
	}
	*c = channel(n)
	return nil
}

func (c channel) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(c)))
}

// Load reads a script from disk.
func Load(path string) ([]timeline.Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	turns, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return turns, nil
}

// Parse decodes a JSON array of turns. Leading or trailing prose around the
// array, as language models tend to add, is ignored.
func Parse(data []byte) ([]timeline.Turn, error) {
	start := bytes.IndexByte(data, '[')
	end := bytes.LastIndexByte(data, ']')
	if start < 0 || end < start {
		return nil, errors.New("no JSON array of turns found")
	}
	var records []record
	if err := json.Unmarshal(data[start:end+1], &records); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	turns := make([]timeline.Turn, len(records))
	for i, r := range records {
		turns[i] = timeline.Turn{Channel: int(r.Channel), Text: r.Text}
	}
	return turns, nil
}

// Validate ensures the script is non-empty, every turn has text and the
// conversation is stereo.
func Validate(turns []timeline.Turn) error {
	if len(turns) == 0 {
		return timeline.ErrEmptyScript
	}
	seen := map[int]struct{}{}
	for i, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			return fmt.Errorf("turn %d: text is required", i)
		}
		seen[t.Channel] = struct{}{}
	}
	if len(seen) != 2 {
		return fmt.Errorf("%w: found %d", ErrNotStereo, len(seen))
	}
	return nil
}

// Save writes turns as indented JSON.
func Save(path string, turns []timeline.Turn) error {
	records := make([]record, len(turns))
	for i, t := range turns {
		records[i] = record{Channel: channel(t.Channel), Text: t.Text}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// OutputName is where a conversation generated from template is stored.
func OutputName(template, language string) string {
	return fmt.Sprintf("%s_%s.conversation.json", template, language)
}

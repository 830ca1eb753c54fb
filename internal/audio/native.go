package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

type nativeTool struct{}

// NewNative returns a Tool that joins 16-bit PCM WAV files in process.
func NewNative() Tool { return nativeTool{} }

func (nativeTool) Name() string { return "native" }

func (nativeTool) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}
	if err := requireWAV(output); err != nil {
		return err
	}
	var (
		format Format
		track  []int
	)
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, samples, err := ReadWAV(in)
		if err != nil {
			return fmt.Errorf("concat: %w", err)
		}
		if i == 0 {
			format = f
		} else if f != format {
			return fmt.Errorf("concat %s: %+v vs %+v: %w", in, f, format, ErrFormatMismatch)
		}
		track = append(track, samples...)
	}
	return WriteWAV(output, format, track)
}

func (nativeTool) Merge(ctx context.Context, left, right, output string) error {
	if err := requireWAV(output); err != nil {
		return err
	}
	lf, ls, err := ReadWAV(left)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	rf, rs, err := ReadWAV(right)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	if lf.Channels != 1 || rf.Channels != 1 || lf.SampleRate != rf.SampleRate || lf.BitDepth != rf.BitDepth {
		return fmt.Errorf("merge %s + %s: %w", left, right, ErrFormatMismatch)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frames := max(len(ls), len(rs))
	stereo := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		if i < len(ls) {
			stereo[2*i] = ls[i]
		}
		if i < len(rs) {
			stereo[2*i+1] = rs[i]
		}
	}
	out := lf
	out.Channels = 2
	return WriteWAV(output, out, stereo)
}

func requireWAV(path string) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" {
		return fmt.Errorf("native tool writes wav only, got %q: %w", ext, ErrUnsupportedFormat)
	}
	return nil
}

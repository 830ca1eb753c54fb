// Package audio holds the file-level primitives used to assemble a call:
// WAV probing, silence generation, clip normalisation and the track tools
// that concatenate clips and interleave two mono tracks into stereo.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

var (
	// ErrFormatMismatch is returned when clips of different layouts are joined.
	ErrFormatMismatch = errors.New("audio format mismatch")
	// ErrUnsupportedFormat is returned for inputs the package cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Format describes the PCM layout of intermediate clips.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Mono16 is the 16-bit mono layout at the given sample rate.
func Mono16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

func (f Format) audioFormat() *goaudio.Format {
	return &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate}
}

// Frames converts seconds into a whole number of frames.
func (f Format) Frames(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(f.SampleRate)))
}

// Seconds converts a frame count back to seconds.
func (f Format) Seconds(frames int) float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(frames) / float64(f.SampleRate)
}

// Probe returns the duration of a PCM WAV file in seconds.
func Probe(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("probe %s: %w", path, ErrUnsupportedFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	frameBytes := int(dec.NumChans) * int(dec.BitDepth) / 8
	if frameBytes == 0 || dec.SampleRate == 0 {
		return 0, fmt.Errorf("probe %s: %w", path, ErrUnsupportedFormat)
	}
	frames := int(dec.PCMLen()) / frameBytes
	return float64(frames) / float64(dec.SampleRate), nil
}

// ReadWAV loads a whole WAV file.
func ReadWAV(path string) (Format, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Format{}, nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Format{}, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	format := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: int(dec.BitDepth)}
	return format, buf.Data, nil
}

// WriteWAV encodes interleaved samples to path.
func WriteWAV(path string, format Format, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{Format: format.audioFormat(), Data: samples, SourceBitDepth: format.BitDepth}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return f.Close()
}

// WriteSilence writes a silent clip of the given length.
func WriteSilence(path string, format Format, seconds float64) error {
	samples := make([]int, format.Frames(seconds)*format.Channels)
	return WriteWAV(path, format, samples)
}

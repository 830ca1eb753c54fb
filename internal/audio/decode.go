package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Encodings accepted from speech providers.
const (
	EncodingPCM = "pcm"
	EncodingWAV = "wav"
	EncodingMP3 = "mp3"
)

// Sniff guesses the encoding of a provider payload, falling back to hint.
func Sniff(data []byte, hint string) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return EncodingWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return EncodingMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && hint != EncodingPCM:
		return EncodingMP3
	}
	if hint == "" {
		return EncodingPCM
	}
	return hint
}

// DecodeClip converts a provider payload into mono samples at target's
// sample rate. pcmRate is the rate of raw little-endian 16-bit PCM payloads.
func DecodeClip(data []byte, hint string, pcmRate int, target Format) ([]int, error) {
	var (
		samples  []int
		rate     int
		channels int
	)
	switch Sniff(data, hint) {
	case EncodingWAV:
		dec := wav.NewDecoder(bytes.NewReader(data))
		if !dec.IsValidFile() {
			return nil, fmt.Errorf("wav payload: %w", ErrUnsupportedFormat)
		}
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("decode wav payload: %w", err)
		}
		samples, rate, channels = rescale(buf.Data, int(dec.BitDepth)), int(dec.SampleRate), int(dec.NumChans)
	case EncodingMP3:
		dec, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode mp3 payload: %w", err)
		}
		raw, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("decode mp3 payload: %w", err)
		}
		// go-mp3 always yields 16-bit little-endian stereo.
		samples, rate, channels = pcm16(raw), dec.SampleRate(), 2
	case EncodingPCM:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("pcm payload not aligned")
		}
		samples, rate, channels = pcm16(data), pcmRate, 1
	default:
		return nil, fmt.Errorf("encoding %q: %w", hint, ErrUnsupportedFormat)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("payload sample rate unknown: %w", ErrUnsupportedFormat)
	}
	mono := downmix(samples, channels)
	return resample(mono, rate, target.SampleRate), nil
}

func pcm16(raw []byte) []int {
	samples := make([]int, len(raw)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return samples
}

// rescale maps samples of another bit depth onto the 16-bit range.
func rescale(samples []int, bitDepth int) []int {
	switch {
	case bitDepth == 16 || bitDepth == 0:
		return samples
	case bitDepth == 8:
		out := make([]int, len(samples))
		for i, s := range samples {
			out[i] = (s - 128) << 8
		}
		return out
	case bitDepth > 16:
		shift := uint(bitDepth - 16)
		out := make([]int, len(samples))
		for i, s := range samples {
			out[i] = s >> shift
		}
		return out
	}
	return samples
}

func downmix(samples []int, channels int) []int {
	if channels <= 1 {
		return samples
	}
	out := make([]int, len(samples)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / channels
	}
	return out
}

// resample converts mono samples between rates with linear interpolation.
func resample(samples []int, from, to int) []int {
	if from == to || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac)
	}
	return out
}

// Package timeline schedules scripted speaker turns onto two sample-aligned
// channel tracks, inserting silence on the idle channel and carrying a small
// randomized overlap from one turn to the next.
package timeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownChannel is returned when a turn names a channel with no voice.
	ErrUnknownChannel = errors.New("channel has no voice assigned")
	// ErrEmptyScript is returned when there are no turns to schedule.
	ErrEmptyScript = errors.New("script has no turns")
)

// Turn is one scripted utterance. Channel selects the voice; placement on the
// output tracks is decided by the scheduler's Placement policy.
type Turn struct {
	Channel int    `json:"channel"`
	Text    string `json:"text"`
}

// VoiceMap maps channel ids (1 or 2) to voice identifiers.
type VoiceMap map[int]string

// Voice returns the voice for channel or ErrUnknownChannel.
func (v VoiceMap) Voice(channel int) (string, error) {
	voice, ok := v[channel]
	if !ok || voice == "" {
		return "", fmt.Errorf("channel %d: %w", channel, ErrUnknownChannel)
	}
	return voice, nil
}

// Kind distinguishes speech from silence segments.
type Kind string

const (
	Speech  Kind = "speech"
	Silence Kind = "silence"
)

// Clip is a rendered audio file and its measured duration in seconds.
type Clip struct {
	Path     string
	Duration float64
}

// Segment is one entry of a channel's ordered segment list.
type Segment struct {
	Kind     Kind
	Duration float64
	Clip     Clip
}

// Step records the scheduling decision made for a single turn.
type Step struct {
	Index             int     `json:"index"`
	Channel           int     `json:"channel"`
	Voice             string  `json:"voice"`
	RawDuration       float64 `json:"raw_duration"`
	EffectiveDuration float64 `json:"effective_duration"`
	// Overlap is the amount subtracted from this turn's silence.
	Overlap float64 `json:"overlap"`
	// Carried is the pending overlap inherited from the previous turn (<= 0).
	Carried float64 `json:"carried"`
	Clamped bool    `json:"clamped,omitempty"`
}

// Timeline holds the two channel segment lists produced for a script.
type Timeline struct {
	Channels [2][]Segment
	Steps    []Step
}

// Channel returns the segments of channel 1 or 2.
func (t Timeline) Channel(n int) []Segment {
	if n < 1 || n > 2 {
		return nil
	}
	return t.Channels[n-1]
}

// Len is the number of scheduled turns.
func (t Timeline) Len() int { return len(t.Steps) }

// Duration sums the segment durations of channel n.
func (t Timeline) Duration(n int) float64 {
	var total float64
	for _, seg := range t.Channel(n) {
		total += seg.Duration
	}
	return total
}

// Clips returns the clip paths of channel n in segment order.
func (t Timeline) Clips(n int) []string {
	segs := t.Channel(n)
	paths := make([]string, 0, len(segs))
	for _, seg := range segs {
		paths = append(paths, seg.Clip.Path)
	}
	return paths
}

// Validate checks that both channels have one segment per turn and that
// exactly one of them carries speech at every index.
func (t Timeline) Validate() error {
	n := len(t.Steps)
	if len(t.Channels[0]) != n || len(t.Channels[1]) != n {
		return fmt.Errorf("channel lengths %d/%d do not match %d turns", len(t.Channels[0]), len(t.Channels[1]), n)
	}
	for i := 0; i < n; i++ {
		a, b := t.Channels[0][i].Kind == Speech, t.Channels[1][i].Kind == Speech
		if a == b {
			return fmt.Errorf("turn %d: expected exactly one speech segment", i)
		}
	}
	return nil
}
